// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/binstruct"
	"git.lukeshu.com/xfs-progs-ng/lib/diskio"
)

func newImage(t *testing.T, size int) *diskio.OSFile[int64] {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "img")
	require.NoError(t, os.WriteFile(filename, make([]byte, size), 0o600))
	fh, err := diskio.OpenOSFile[int64](filename, os.O_RDWR)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fh.Close() })
	return fh
}

func TestBufferedWriteThrough(t *testing.T) {
	t.Parallel()
	raw := newImage(t, 4*512)
	bf := diskio.NewBufferedFile[int64](raw, 512, 2)

	// Prime the cache, then write across a block boundary.
	buf := make([]byte, 8)
	_, err := bf.ReadAt(buf, 508)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), buf)

	n, err := bf.WriteAt([]byte("abcdefgh"), 508)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = bf.ReadAt(buf, 508)
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(buf))

	_, err = raw.ReadAt(buf, 508)
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(buf), "write must reach the inner file")
}

func TestBufferedShortRead(t *testing.T) {
	t.Parallel()
	raw := newImage(t, 700)
	bf := diskio.NewBufferedFile[int64](raw, 512, 4)
	buf := make([]byte, 300)
	n, err := bf.ReadAt(buf, 600)
	assert.Error(t, err)
	assert.Equal(t, 100, n)
}

func TestBufferedConcurrent(t *testing.T) {
	t.Parallel()
	raw := newImage(t, 16*512)
	bf := diskio.NewBufferedFile[int64](raw, 512, 4)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			off := int64(i) * 512
			_, err := bf.WriteAt([]byte{byte(i), byte(i)}, off)
			assert.NoError(t, err)
			buf := make([]byte, 2)
			_, err = bf.ReadAt(buf, off)
			assert.NoError(t, err)
			assert.Equal(t, []byte{byte(i), byte(i)}, buf)
		}(i)
	}
	wg.Wait()
}

type header struct {
	Magic uint32 `bin:"off=0x0, siz=0x4"`
	Count uint16 `bin:"off=0x4, siz=0x2"`

	binstruct.End `bin:"off=0x6"`
}

func TestRef(t *testing.T) {
	t.Parallel()
	raw := newImage(t, 512)
	ref := diskio.Ref[int64, header]{File: raw, Addr: 10, Data: header{Magic: 0x58465342, Count: 7}}
	require.NoError(t, ref.Write())

	buf := make([]byte, 6)
	_, err := raw.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte{'X', 'F', 'S', 'B', 0, 7}, buf)

	back := diskio.Ref[int64, header]{File: raw, Addr: 10}
	require.NoError(t, back.Read())
	assert.Equal(t, ref.Data, back.Data)
}
