// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsprim

import (
	"fmt"
	"math/bits"
)

// Geometry is the subset of the superblock needed to turn inode
// numbers in to disk addresses.
//
// An absolute inode number is laid out as
//
//	[ AG number | AG block | inode-within-block ]
//	             <-AgBlkLog-><-----InoPBLog------>
type Geometry struct {
	BlockSize uint32
	InodeSize uint16
	AgBlocks  uint32
	AgCount   uint32

	BlockLog uint8
	AgBlkLog uint8
	InoPBLog uint8
}

// NewGeometry derives the log2 fields from the sizes.
func NewGeometry(blockSize uint32, inodeSize uint16, agBlocks, agCount uint32) (Geometry, error) {
	g := Geometry{
		BlockSize: blockSize,
		InodeSize: inodeSize,
		AgBlocks:  agBlocks,
		AgCount:   agCount,
	}
	switch {
	case blockSize == 0 || blockSize&(blockSize-1) != 0:
		return g, fmt.Errorf("block size %v is not a power of 2", blockSize)
	case inodeSize == 0 || inodeSize&(inodeSize-1) != 0:
		return g, fmt.Errorf("inode size %v is not a power of 2", inodeSize)
	case uint32(inodeSize) > blockSize:
		return g, fmt.Errorf("inode size %v is larger than block size %v", inodeSize, blockSize)
	case agBlocks < 2:
		return g, fmt.Errorf("AG size %v blocks is too small", agBlocks)
	case agCount == 0:
		return g, fmt.Errorf("AG count is 0")
	}
	g.BlockLog = uint8(bits.TrailingZeros32(blockSize))
	g.InoPBLog = g.BlockLog - uint8(bits.TrailingZeros16(inodeSize))
	// Rounded up, like sb_agblklog.
	g.AgBlkLog = uint8(bits.Len32(agBlocks - 1))
	if int(g.AgBlkLog)+int(g.InoPBLog) > 32 {
		return g, fmt.Errorf("AG of %v blocks with %v inodes/block overflows a 32-bit AG inode number",
			agBlocks, g.InodesPerBlock())
	}
	return g, nil
}

func (g Geometry) InodesPerBlock() uint32 { return 1 << g.InoPBLog }

// BlocksPerChunk is the number of blocks an inode chunk occupies.
func (g Geometry) BlocksPerChunk() uint32 {
	if n := InodesPerChunk / g.InodesPerBlock(); n > 0 {
		return n
	}
	return 1
}

func (g Geometry) agInoBits() uint { return uint(g.AgBlkLog) + uint(g.InoPBLog) }

func (g Geometry) AgInoToIno(ag AgNumber, agino AgIno) Ino {
	return Ino(ag)<<g.agInoBits() | Ino(agino)
}

func (g Geometry) InoToAg(ino Ino) AgNumber {
	return AgNumber(ino >> g.agInoBits())
}

func (g Geometry) InoToAgIno(ino Ino) AgIno {
	return AgIno(ino & (1<<g.agInoBits() - 1))
}

func (g Geometry) AgInoToAgBlock(agino AgIno) AgBlock {
	return AgBlock(agino >> g.InoPBLog)
}

// AgInoToOffset returns the index of the inode within its block.
func (g Geometry) AgInoToOffset(agino AgIno) uint32 {
	return uint32(agino) & (1<<g.InoPBLog - 1)
}

func (g Geometry) AgBlockToAgIno(agbno AgBlock) AgIno {
	return AgIno(agbno) << g.InoPBLog
}

func (g Geometry) AgBlockToPhysical(ag AgNumber, agbno AgBlock) PhysicalAddr {
	return PhysicalAddr((uint64(ag)*uint64(g.AgBlocks) + uint64(agbno)) << g.BlockLog)
}

// InoToPhysical returns the byte address of the inode core.
func (g Geometry) InoToPhysical(ino Ino) PhysicalAddr {
	agino := g.InoToAgIno(ino)
	blk := g.AgBlockToPhysical(g.InoToAg(ino), g.AgInoToAgBlock(agino))
	return blk.Add(int64(g.AgInoToOffset(agino)) * int64(g.InodeSize))
}

// ValidIno reports whether ino names an inode slot that can exist on
// the volume; AG headers at block 0 of each AG never hold inodes.
func (g Geometry) ValidIno(ino Ino) bool {
	if uint32(g.InoToAg(ino)) >= g.AgCount {
		return false
	}
	agbno := g.AgInoToAgBlock(g.InoToAgIno(ino))
	return agbno > 0 && uint32(agbno) < g.AgBlocks
}

// TotalInodeSlots is the number of inode numbers the geometry can
// express; used as a progress denominator when icount is unknown.
func (g Geometry) TotalInodeSlots() uint64 {
	return uint64(g.AgCount) << g.agInoBits()
}
