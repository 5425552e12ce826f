// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package xfsprim holds the primitive numbering types of an XFS
// volume, and the arithmetic for converting between them.
package xfsprim

import (
	"fmt"

	"git.lukeshu.com/xfs-progs-ng/lib/fmtutil"
)

type (
	// PhysicalAddr is a byte offset on the device.
	PhysicalAddr int64
	// AgNumber identifies an allocation group.
	AgNumber uint32
	// AgBlock is a block number relative to the start of an AG.
	AgBlock uint32
	// AgIno is an inode number relative to its AG.
	AgIno uint32
	// Ino is an absolute inode number.
	Ino uint64
)

const (
	// InodesPerChunk is the number of inodes allocated together,
	// and the number of slots in an in-core inode record.
	InodesPerChunk = 64

	// MaxLink1 is the largest link count a version-1 inode can
	// store.
	MaxLink1 = 0x7fff
	// MaxLink is the largest link count a version-2 inode can
	// store.
	MaxLink = 0x7fffffff

	// NullIno is never a valid inode number.
	NullIno Ino = 0
)

func (a PhysicalAddr) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v', 's', 'q':
		str := fmt.Sprintf("%#016x", int64(a))
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), str)
	default:
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), int64(a))
	}
}

func (a PhysicalAddr) Add(b int64) PhysicalAddr { return a + PhysicalAddr(b) }

// Inode numbers are identifiers, not quantities; they are printed
// without digit grouping even through textui.
func (i Ino) Format(f fmt.State, verb rune) {
	fmt.Fprintf(f, fmtutil.FmtStateString(f, decimalVerb(verb)), uint64(i))
}

func (i AgIno) Format(f fmt.State, verb rune) {
	fmt.Fprintf(f, fmtutil.FmtStateString(f, decimalVerb(verb)), uint32(i))
}

func decimalVerb(verb rune) rune {
	if verb == 'v' || verb == 's' {
		return 'd'
	}
	return verb
}
