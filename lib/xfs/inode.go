// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfs

import (
	"fmt"

	"git.lukeshu.com/xfs-progs-ng/lib/binstruct"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

var InodeMagic = [2]byte{'I', 'N'}

// Inode formats (DinodeCore.Format).
const (
	FormatDev     = 0
	FormatLocal   = 1
	FormatExtents = 2
	FormatBtree   = 3
)

type Timestamp struct {
	Sec           int32 `bin:"off=0x0, siz=0x4"`
	NSec          int32 `bin:"off=0x4, siz=0x4"`
	binstruct.End `bin:"off=0x8"`
}

// DinodeCore is the fixed-layout head of every on-disk inode.
//
// Version-1 inodes keep their link count in the 16-bit Onlink field
// and leave Nlink zero; version-2 inodes keep it in the 32-bit Nlink
// field and leave Onlink zero.
type DinodeCore struct {
	Magic        [2]byte   `bin:"off=0x0,  siz=0x2"`
	Mode         uint16    `bin:"off=0x2,  siz=0x2"`
	Version      uint8     `bin:"off=0x4,  siz=0x1"`
	Format       uint8     `bin:"off=0x5,  siz=0x1"`
	Onlink       uint16    `bin:"off=0x6,  siz=0x2"`
	UID          uint32    `bin:"off=0x8,  siz=0x4"`
	GID          uint32    `bin:"off=0xc,  siz=0x4"`
	Nlink        uint32    `bin:"off=0x10, siz=0x4"`
	ProjID       uint16    `bin:"off=0x14, siz=0x2"`
	Pad          [8]byte   `bin:"off=0x16, siz=0x8"`
	FlushIter    uint16    `bin:"off=0x1e, siz=0x2"`
	ATime        Timestamp `bin:"off=0x20, siz=0x8"`
	MTime        Timestamp `bin:"off=0x28, siz=0x8"`
	CTime        Timestamp `bin:"off=0x30, siz=0x8"`
	Size         int64     `bin:"off=0x38, siz=0x8"`
	NBlocks      uint64    `bin:"off=0x40, siz=0x8"`
	ExtSize      uint32    `bin:"off=0x48, siz=0x4"`
	NExtents     int32     `bin:"off=0x4c, siz=0x4"`
	ANExtents    int16     `bin:"off=0x50, siz=0x2"`
	ForkOff      uint8     `bin:"off=0x52, siz=0x1"`
	AFormat      int8      `bin:"off=0x53, siz=0x1"`
	DMEvMask     uint32    `bin:"off=0x54, siz=0x4"`
	DMState      uint16    `bin:"off=0x58, siz=0x2"`
	Flags        uint16    `bin:"off=0x5a, siz=0x2"`
	Gen          uint32    `bin:"off=0x5c, siz=0x4"`
	NextUnlinked uint32    `bin:"off=0x60, siz=0x4"`

	binstruct.End `bin:"off=0x64"`
}

// DinodeCoreSize is the number of bytes of an on-disk inode that
// DinodeCore covers; the rest of the inode (data and attribute
// forks) is never touched here.
var DinodeCoreSize = binstruct.StaticSize(DinodeCore{})

// Inode is an in-core inode handle.  The link count is held
// separately from the on-disk core so that it may exceed what the
// inode's current version can store; the core is brought up to date
// by MarshalCore.
type Inode struct {
	Ino  xfsprim.Ino
	Addr xfsprim.PhysicalAddr
	Core DinodeCore

	nlink uint32
}

// UnmarshalInode decodes the core of the inode stored in dat.
func UnmarshalInode(ino xfsprim.Ino, addr xfsprim.PhysicalAddr, dat []byte) (*Inode, error) {
	ip := &Inode{
		Ino:  ino,
		Addr: addr,
	}
	if _, err := binstruct.Unmarshal(dat, &ip.Core); err != nil {
		return nil, fmt.Errorf("inode %v: %w", ino, err)
	}
	if ip.Core.Magic != InodeMagic {
		return nil, fmt.Errorf("inode %v: bad magic %q", ino, ip.Core.Magic[:])
	}
	switch ip.Core.Version {
	case 1:
		ip.nlink = uint32(ip.Core.Onlink)
	case 2:
		ip.nlink = ip.Core.Nlink
	default:
		return nil, fmt.Errorf("inode %v: unsupported inode version %v", ino, ip.Core.Version)
	}
	return ip, nil
}

func (ip *Inode) Nlink() uint32 { return ip.nlink }

func (ip *Inode) SetNlink(n uint32) { ip.nlink = n }

// NeedsUpgrade reports whether the in-core link count no longer fits
// in the inode's on-disk version, so that MarshalCore will write it
// as a version-2 inode.
func (ip *Inode) NeedsUpgrade() bool {
	return ip.Core.Version == 1 && ip.nlink > xfsprim.MaxLink1
}

// MarshalCore folds the in-core link count back in to the on-disk
// core, converting a version-1 inode to version 2 if the count has
// outgrown it, and returns the encoded core.
func (ip *Inode) MarshalCore() ([]byte, error) {
	if ip.NeedsUpgrade() {
		ip.Core.Version = 2
		ip.Core.ProjID = 0
		ip.Core.Pad = [8]byte{}
	}
	switch ip.Core.Version {
	case 1:
		ip.Core.Onlink = uint16(ip.nlink)
		ip.Core.Nlink = 0
	default:
		ip.Core.Onlink = 0
		ip.Core.Nlink = ip.nlink
	}
	return binstruct.Marshal(ip.Core)
}

// IsDir reports whether the inode's mode is S_IFDIR.
func (ip *Inode) IsDir() bool {
	return ip.Core.Mode&0o170000 == 0o040000
}
