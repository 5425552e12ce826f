// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/xfs-progs-ng/lib/textui"
)

type countStats struct {
	N, D int
}

func (s countStats) String() string {
	return textui.Sprintf("scanned %v", textui.Portion[int]{N: s.N, D: s.D})
}

type lockedBuilder struct {
	mu sync.Mutex
	strings.Builder
}

func (b *lockedBuilder) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Builder.Write(p)
}

func (b *lockedBuilder) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Builder.String()
}

func TestProgressFinalValue(t *testing.T) {
	t.Parallel()
	var out lockedBuilder
	ctx := dlog.WithLogger(context.Background(), textui.NewLogger(&out, dlog.LogLevelInfo))
	progress := textui.NewProgress[countStats](ctx, dlog.LogLevelInfo, time.Hour)
	progress.Set(countStats{N: 0, D: 128})
	progress.Set(countStats{N: 128, D: 128})
	progress.Done()
	assert.Contains(t, out.String(), "scanned 100% (128/128)")
}

func TestProgressDoneWithoutSet(t *testing.T) {
	t.Parallel()
	var out lockedBuilder
	ctx := dlog.WithLogger(context.Background(), textui.NewLogger(&out, dlog.LogLevelInfo))
	progress := textui.NewProgress[countStats](ctx, dlog.LogLevelInfo, 0)
	progress.Done()
	assert.Empty(t, out.String())
}

func TestProgressSkipsRepeats(t *testing.T) {
	t.Parallel()
	var out lockedBuilder
	ctx := dlog.WithLogger(context.Background(), textui.NewLogger(&out, dlog.LogLevelInfo))
	progress := textui.NewProgress[countStats](ctx, dlog.LogLevelInfo, time.Millisecond)
	progress.Set(countStats{N: 64, D: 128})
	time.Sleep(20 * time.Millisecond)
	progress.Set(countStats{N: 64, D: 128})
	time.Sleep(20 * time.Millisecond)
	progress.Done()
	assert.Equal(t, 1, strings.Count(out.String(), "scanned 50% (64/128)"))
}
