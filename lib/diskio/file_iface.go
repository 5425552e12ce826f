// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package diskio provides typed-address access to block devices and
// image files.
package diskio

import (
	"io"
)

// File is a device addressed by a byte-offset type A, so that a
// physical address cannot be handed to something expecting a
// different kind of offset.
type File[A ~int64] interface {
	Name() string
	// Size is the length of the device in bytes, or 0 if it
	// cannot be determined.
	Size() A
	Close() error
	ReadAt(p []byte, off A) (n int, err error)
	WriteAt(p []byte, off A) (n int, err error)
	// Sync makes every completed WriteAt durable.
	Sync() error
}

type rawAddr int64

var (
	_ io.ReaderAt = File[int64](nil)
	_ io.WriterAt = File[int64](nil)
)
