// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package repairconf_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/repairconf"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("verbosity", "info", "")
	flags.Bool("prefetch", false, "")
	flags.Int("workers", 0, "")
	flags.Duration("progress-interval", 0, "")
	flags.String("records", "", "")
	flags.String("metrics-textfile", "", "")
	flags.Uint64("orphanage", 0, "")
	return flags
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
	return filename
}

func TestDefaults(t *testing.T) {
	cfg, err := repairconf.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Verbosity)
	assert.Greater(t, cfg.Workers, 0)
	assert.Greater(t, cfg.ProgressInterval, time.Duration(0))
	assert.False(t, cfg.Prefetch)
}

func TestYAMLFile(t *testing.T) {
	filename := writeFile(t, "xfs-rec.yaml", `
verbosity: debug
prefetch: true
workers: 3
progress-interval: 250ms
records: /tmp/records.json
`)
	cfg, err := repairconf.Load(filename, nil)
	require.NoError(t, err)
	assert.Equal(t, &repairconf.Config{
		Verbosity:        "debug",
		Prefetch:         true,
		Workers:          3,
		ProgressInterval: 250 * time.Millisecond,
		Records:          "/tmp/records.json",
	}, cfg)
	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, dlog.LogLevelDebug, lvl)
}

func TestTOMLFile(t *testing.T) {
	filename := writeFile(t, "xfs-rec.toml", `
workers = 2
metrics-textfile = "/tmp/phase7.prom"
`)
	cfg, err := repairconf.Load(filename, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "/tmp/phase7.prom", cfg.MetricsTextfile)
}

// Not parallel: uses t.Setenv.
func TestPrecedence(t *testing.T) {
	filename := writeFile(t, "xfs-rec.yaml", "workers: 3\nverbosity: debug\nprefetch: true\n")
	t.Setenv("XFSREC_WORKERS", "5")
	t.Setenv("XFSREC_PROGRESS_INTERVAL", "2s")

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--verbosity=trace"}))

	cfg, err := repairconf.Load(filename, flags)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "trace", cfg.Verbosity)
	assert.True(t, cfg.Prefetch)
	assert.Equal(t, 2*time.Second, cfg.ProgressInterval)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	type testcase struct {
		Config repairconf.Config
		ErrMsg string
	}
	testcases := map[string]testcase{
		"ok":             {Config: repairconf.Config{Verbosity: "warn", Workers: 4}},
		"bad-verbosity":  {Config: repairconf.Config{Verbosity: "loud"}, ErrMsg: `Config.Verbosity: failed "oneof" check`},
		"neg-workers":    {Config: repairconf.Config{Workers: -1}, ErrMsg: `Config.Workers: failed "gte" check`},
		"neg-interval":   {Config: repairconf.Config{ProgressInterval: -time.Second}, ErrMsg: `Config.ProgressInterval: failed "gte" check`},
		"too-many-works": {Config: repairconf.Config{Workers: 1 << 20}, ErrMsg: `Config.Workers: failed "lte" check`},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			err := repairconf.Validate(&tc.Config)
			if tc.ErrMsg == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.ErrMsg)
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, err := repairconf.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}
