// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	"sync"
)

// SyncPool is a typed sync.Pool of scratch values.  New must be set
// before the first Get.  Reset, if set, runs on each value given back
// to Put, so that Get never hands out stale contents.
type SyncPool[T any] struct {
	New   func() T
	Reset func(T)

	inner sync.Pool
}

func (p *SyncPool[T]) Get() T {
	if val, ok := p.inner.Get().(T); ok {
		return val
	}
	return p.New()
}

func (p *SyncPool[T]) Put(val T) {
	if p.Reset != nil {
		p.Reset(val)
	}
	p.inner.Put(val)
}
