// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsprim_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/textui"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

func TestGeometry(t *testing.T) {
	t.Parallel()
	g, err := xfsprim.NewGeometry(4096, 256, 1000, 4)
	require.NoError(t, err)
	assert.Equal(t, uint8(12), g.BlockLog)
	assert.Equal(t, uint8(4), g.InoPBLog)
	assert.Equal(t, uint8(10), g.AgBlkLog)
	assert.Equal(t, uint32(16), g.InodesPerBlock())
	assert.Equal(t, uint32(4), g.BlocksPerChunk())

	agino := g.AgBlockToAgIno(8) + 3
	ino := g.AgInoToIno(2, agino)
	assert.Equal(t, xfsprim.Ino(2<<14|8<<4|3), ino)
	assert.Equal(t, xfsprim.AgNumber(2), g.InoToAg(ino))
	assert.Equal(t, agino, g.InoToAgIno(ino))
	assert.Equal(t, xfsprim.AgBlock(8), g.AgInoToAgBlock(agino))
	assert.Equal(t, uint32(3), g.AgInoToOffset(agino))
	assert.Equal(t, xfsprim.PhysicalAddr((2*1000+8)*4096+3*256), g.InoToPhysical(ino))

	assert.True(t, g.ValidIno(ino))
	assert.False(t, g.ValidIno(g.AgInoToIno(0, 3)), "AG header block")
	assert.False(t, g.ValidIno(g.AgInoToIno(4, agino)), "AG out of range")
	assert.False(t, g.ValidIno(g.AgInoToIno(1, g.AgBlockToAgIno(1000))), "block out of range")
}

func TestGeometryInvalid(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		blockSize uint32
		inodeSize uint16
		agBlocks  uint32
		agCount   uint32
	}{
		{4095, 256, 100, 1},
		{4096, 300, 100, 1},
		{512, 1024, 100, 1},
		{4096, 256, 1, 1},
		{4096, 256, 100, 0},
	} {
		tc := tc
		t.Run(fmt.Sprintf("%+v", tc), func(t *testing.T) {
			t.Parallel()
			_, err := xfsprim.NewGeometry(tc.blockSize, tc.inodeSize, tc.agBlocks, tc.agCount)
			assert.Error(t, err)
		})
	}
}

func TestPhysicalAddrFormat(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0x0000000000001000", fmt.Sprint(xfsprim.PhysicalAddr(4096)))
	assert.Equal(t, "4096", fmt.Sprintf("%d", xfsprim.PhysicalAddr(4096)))
}

func TestInoFormat(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "1234567", fmt.Sprint(xfsprim.Ino(1234567)))
	assert.Equal(t, "1234567", textui.Sprintf("%v", xfsprim.Ino(1234567)))
	assert.Equal(t, "0x12d687", fmt.Sprintf("%#x", xfsprim.Ino(1234567)))
	assert.Equal(t, "   64", fmt.Sprintf("%5v", xfsprim.AgIno(64)))
}
