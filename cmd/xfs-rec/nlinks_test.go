// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/repairconf"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs"
	"git.lukeshu.com/xfs-progs-ng/lib/xfsrepair"
	"git.lukeshu.com/xfs-progs-ng/lib/xfsrepair/incore"
)

func TestRunPhase7(t *testing.T) {
	ctx := dlog.NewTestContext(t, true)
	dir := t.TempDir()
	devFilename := filepath.Join(dir, "xfs.img")
	recordsFilename := filepath.Join(dir, "records.json")
	metricsFilename := filepath.Join(dir, "phase7.prom")

	fs, err := xfs.CreateImage(ctx, devFilename, xfs.FormatParams{
		BlockSize: 512,
		InodeSize: 256,
		AgBlocks:  256,
		AgCount:   2,
		LogBlocks: 16,
		Nlink:     true,
	})
	require.NoError(t, err)
	start, err := fs.AllocChunk(1, 32)
	require.NoError(t, err)
	ino := fs.Geometry().AgInoToIno(1, start+5)
	_, err = fs.InitInode(ino, 0o040755, 2, 4)
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	tree := incore.NewTree(2)
	rec := incore.NewInodeRec(1, start)
	rec.SetLive(5, 4)
	rec.SetRefs(5, 3)
	require.NoError(t, tree.Insert(rec))
	fh, err := os.Create(recordsFilename)
	require.NoError(t, err)
	require.NoError(t, tree.Save(fh))
	require.NoError(t, fh.Close())

	cfg := &repairconf.Config{
		Records:         recordsFilename,
		MetricsTextfile: metricsFilename,
	}
	repairconf.ApplyDefaults(cfg)

	// check
	fs, err = xfs.Open(ctx, os.O_RDONLY, devFilename)
	require.NoError(t, err)
	sum, err := runPhase7(ctx, fs, cfg, true)
	require.NoError(t, err)
	assert.Equal(t, []xfsrepair.Correction{
		{Ino: ino, From: 4, To: 3, Outcome: xfsrepair.WouldCorrect},
	}, sum.Corrections)
	require.NoError(t, fs.Close())

	metrics, err := os.ReadFile(metricsFilename)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(metrics), `xfsrepair_phase7_link_count_mismatches_total{outcome="would-correct"} 1`), string(metrics))

	// repair
	cfg.Prefetch = true
	fs, err = xfs.Open(ctx, os.O_RDWR, devFilename)
	require.NoError(t, err)
	sum, err = runPhase7(ctx, fs, cfg, false)
	require.NoError(t, err)
	assert.Equal(t, []xfsrepair.Correction{
		{Ino: ino, From: 4, To: 3, Outcome: xfsrepair.Corrected},
	}, sum.Corrections)
	ip, err := fs.ReadInode(ino)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), ip.Nlink())
	require.NoError(t, fs.Close())
}

func TestRunPhase7NeedsRecords(t *testing.T) {
	ctx := dlog.NewTestContext(t, true)
	_, err := runPhase7(ctx, nil, &repairconf.Config{}, true)
	assert.ErrorContains(t, err, "--records")
}
