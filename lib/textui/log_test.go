// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui_test

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/textui"
)

func logLineRegexp(inner string) string {
	return `[0-9]{2}:[0-9]{2}:[0-9]{2}\.[0-9]{4} ` + inner + ` \(from lib/textui/log_test\.go:[0-9]+\)\n`
}

func TestLogLine(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		Fields map[string]any
		Log    func(context.Context)
		Line   string
	}
	testcases := map[string]TestCase{
		"debug-grouping": {
			Log:  func(ctx context.Context) { dlog.Debugf(ctx, "examined %d inode slots", 12345) },
			Line: `DBG : examined 12,345 inode slots :`,
		},
		"plain-field": {
			Fields: map[string]any{"slots": 12345},
			Log:    func(ctx context.Context) { dlog.Warn(ctx, "short chunk") },
			Line:   `WRN : short chunk : slots=12,345`,
		},
		"quoted-field": {
			Fields: map[string]any{"xfs.dev": "disk image.img"},
			Log:    func(ctx context.Context) { dlog.Error(ctx, "open failed") },
			Line:   `ERR dev="disk image.img" : open failed :`,
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			var out strings.Builder
			ctx := dlog.WithLogger(context.Background(), textui.NewLogger(&out, dlog.LogLevelTrace))
			for k, v := range tc.Fields {
				ctx = dlog.WithField(ctx, k, v)
			}
			tc.Log(ctx)
			assert.Regexp(t, `^`+logLineRegexp(regexp.QuoteMeta(tc.Line))+`$`, out.String())
		})
	}
}

func TestLogLevelFilter(t *testing.T) {
	t.Parallel()
	var out strings.Builder
	ctx := dlog.WithLogger(context.Background(), textui.NewLogger(&out, dlog.LogLevelWarn))
	for _, lvl := range []dlog.LogLevel{
		dlog.LogLevelTrace,
		dlog.LogLevelDebug,
		dlog.LogLevelInfo,
		dlog.LogLevelWarn,
		dlog.LogLevelError,
	} {
		dlog.Log(ctx, lvl, "x")
	}
	assert.Regexp(t,
		`^`+logLineRegexp(`WRN : x :`)+logLineRegexp(`ERR : x :`)+`$`,
		out.String())
}

func TestLogRepairFields(t *testing.T) {
	t.Parallel()
	var out strings.Builder
	ctx := dlog.WithLogger(context.Background(), textui.NewLogger(&out, dlog.LogLevelInfo))
	ctx = dlog.WithField(ctx, "xfsrepair.ino", 131)
	ctx = dlog.WithField(ctx, "xfsrepair.ag", 3)
	ctx = dlog.WithField(ctx, "xfsrepair.phase", 7)
	dlog.Info(ctx, "msg")
	assert.Regexp(t,
		`^`+logLineRegexp(`INF phase7 ag=3 : msg : ino=131`)+`$`,
		out.String())
}

func TestLogLevelFlag(t *testing.T) {
	t.Parallel()
	var flag textui.LogLevelFlag
	require.NoError(t, flag.Set("WARNING"))
	assert.Equal(t, dlog.LogLevelWarn, flag.Level)
	assert.Equal(t, "warn", flag.String())
	assert.Error(t, flag.Set("loud"))
}
