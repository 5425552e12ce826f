// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"io"
	"os"
)

// OSFile is a File backed by a regular image file or a block device.
type OSFile[A ~int64] struct {
	*os.File
}

var _ File[rawAddr] = (*OSFile[rawAddr])(nil)

// OpenOSFile opens a device or image file; flag is passed through to
// os.OpenFile.
func OpenOSFile[A ~int64](filename string, flag int) (*OSFile[A], error) {
	fh, err := os.OpenFile(filename, flag, 0)
	if err != nil {
		return nil, err
	}
	return &OSFile[A]{File: fh}, nil
}

// Size reports the length of an image file from stat.  A block
// device stats as 0 bytes, so its length is found by seeking to the
// end instead.
func (f *OSFile[A]) Size() A {
	fi, err := f.Stat()
	if err != nil {
		return 0
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return A(fi.Size())
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0
	}
	return A(end)
}

func (f *OSFile[A]) ReadAt(dat []byte, off A) (int, error) {
	return f.File.ReadAt(dat, int64(off))
}

func (f *OSFile[A]) WriteAt(dat []byte, off A) (int, error) {
	return f.File.WriteAt(dat, int64(off))
}
