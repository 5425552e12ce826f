// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package profile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/profile"
)

func TestFlags(t *testing.T) {
	dir := t.TempDir()
	var prof profile.Flags
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	prof.Register(flags, "profile.")
	require.NoError(t, flags.Parse([]string{
		"--profile.heap=" + filepath.Join(dir, "heap.pprof"),
		"--profile.goroutine=" + filepath.Join(dir, "goroutine.pprof"),
	}))
	assert.Equal(t, "", prof.CPU)

	stop, err := prof.Start()
	require.NoError(t, err)
	require.NoError(t, stop())

	for _, name := range []string{"heap.pprof", "goroutine.pprof"} {
		fi, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Greater(t, fi.Size(), int64(0), name)
	}
	_, err = os.Stat(filepath.Join(dir, "cpu.pprof"))
	assert.True(t, os.IsNotExist(err))
}

func TestStartBadPath(t *testing.T) {
	prof := profile.Flags{Heap: filepath.Join(t.TempDir(), "missing", "heap.pprof")}
	stop, err := prof.Start()
	assert.Error(t, err)
	assert.NoError(t, stop())
}
