// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"sync"

	"git.lukeshu.com/xfs-progs-ng/lib/containers"
)

// BufferedFile is a write-through block cache in front of a File.
// Reads are served from whole cached blocks; writes go straight to
// the inner File and invalidate the blocks they touch.
//
// It is safe for concurrent use.
type BufferedFile[A ~int64] struct {
	inner     File[A]
	blockSize A

	// mu is held for reading while a block is being filled from
	// the inner file, and for writing while a write is in
	// progress, so that a fill can never cache pre-write data.
	mu    sync.RWMutex
	cache *containers.LRUCache[A, []byte]
}

var _ File[rawAddr] = (*BufferedFile[rawAddr])(nil)

func NewBufferedFile[A ~int64](file File[A], blockSize A, cacheSize int) *BufferedFile[A] {
	return &BufferedFile[A]{
		inner:     file,
		blockSize: blockSize,
		cache:     containers.NewLRUCache[A, []byte](cacheSize),
	}
}

func (bf *BufferedFile[A]) Name() string { return bf.inner.Name() }
func (bf *BufferedFile[A]) Size() A      { return bf.inner.Size() }
func (bf *BufferedFile[A]) Sync() error  { return bf.inner.Sync() }

func (bf *BufferedFile[A]) Close() error {
	bf.cache.Purge()
	return bf.inner.Close()
}

func (bf *BufferedFile[A]) ReadAt(dat []byte, off A) (n int, err error) {
	done := 0
	for done < len(dat) {
		n, err := bf.maybeShortReadAt(dat[done:], off+A(done))
		done += n
		if err != nil {
			return done, err
		}
	}
	return done, nil
}

func (bf *BufferedFile[A]) maybeShortReadAt(dat []byte, off A) (int, error) {
	offsetWithinBlock := off % bf.blockSize
	blockOffset := off - offsetWithinBlock

	bf.mu.RLock()
	defer bf.mu.RUnlock()

	block, ok := bf.cache.Get(blockOffset)
	if !ok {
		block = make([]byte, bf.blockSize)
		n, err := bf.inner.ReadAt(block, blockOffset)
		if err != nil {
			// Don't cache short blocks; hand back what we got.
			if int(offsetWithinBlock) >= n {
				return 0, err
			}
			return copy(dat, block[offsetWithinBlock:n]), err
		}
		bf.cache.Add(blockOffset, block)
	}
	return copy(dat, block[offsetWithinBlock:]), nil
}

func (bf *BufferedFile[A]) WriteAt(dat []byte, off A) (int, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	n, err := bf.inner.WriteAt(dat, off)
	for blockOffset := off - off%bf.blockSize; blockOffset < off+A(len(dat)); blockOffset += bf.blockSize {
		bf.cache.Remove(blockOffset)
	}
	return n, err
}
