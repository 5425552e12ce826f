// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"
)

type Stats interface {
	comparable
	fmt.Stringer
}

// DefaultProgressInterval is used when NewProgress is given a
// non-positive interval.
var DefaultProgressInterval = Tunable(1 * time.Second)

// Progress logs the latest value handed to Set once per interval,
// and once more from Done.  A tick whose line would repeat the
// previous one is skipped.
type Progress[T Stats] struct {
	ctx  context.Context
	lvl  dlog.LogLevel
	stop context.CancelFunc
	done chan struct{}
	// first is signaled by the first Set, so that the initial
	// value shows up without waiting out a whole interval.
	first chan struct{}

	mu       sync.Mutex
	cur      T
	have     bool
	printed  bool
	lastStat T
	lastLine string
}

func NewProgress[T Stats](ctx context.Context, lvl dlog.LogLevel, interval time.Duration) *Progress[T] {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	ctx, stop := context.WithCancel(ctx)
	p := &Progress[T]{
		ctx:   ctx,
		lvl:   lvl,
		stop:  stop,
		done:  make(chan struct{}),
		first: make(chan struct{}, 1),
	}
	go p.loop(interval)
	return p
}

func (p *Progress[T]) Set(val T) {
	p.mu.Lock()
	wasEmpty := !p.have
	p.cur, p.have = val, true
	p.mu.Unlock()
	if wasEmpty {
		select {
		case p.first <- struct{}{}:
		default:
		}
	}
}

// Done writes the final value, if there is one and it has not
// already been written, then stops the reporter.
func (p *Progress[T]) Done() {
	p.stop()
	<-p.done
}

func (p *Progress[T]) emit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.have || (p.printed && p.cur == p.lastStat) {
		return
	}
	p.lastStat = p.cur
	line := p.cur.String()
	if p.printed && line == p.lastLine {
		return
	}
	p.printed, p.lastLine = true, line
	dlog.Log(p.ctx, p.lvl, line)
}

func (p *Progress[T]) loop(interval time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			p.emit()
			return
		case <-p.first:
			p.emit()
		case <-ticker.C:
			p.emit()
		}
	}
}
