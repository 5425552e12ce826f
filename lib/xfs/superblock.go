// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfs

import (
	"fmt"
	"hash/crc32"
	"reflect"

	"git.lukeshu.com/xfs-progs-ng/lib/binstruct"
	"git.lukeshu.com/xfs-progs-ng/lib/fmtutil"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

var SuperblockMagic = [4]byte{'X', 'F', 'S', 'B'}

// VersionNum bits.  The low nibble is the version number itself.
const (
	VersionNumberMask  = 0x000f
	VersionNumber      = 4
	VersionAttrBit     = 0x0010
	VersionNlinkBit    = 0x0020
	VersionQuotaBit    = 0x0040
	VersionAlignBit    = 0x0080
	VersionDalignBit   = 0x0100
	VersionSharedBit   = 0x0200
	VersionLogV2Bit    = 0x0400
	VersionSectorBit   = 0x0800
	VersionExtFlgBit   = 0x1000
	VersionDirV2Bit    = 0x2000
	VersionBorgBit     = 0x4000
	VersionMoreBitsBit = 0x8000
)

type VersionNum uint16

var versionFlags = []fmtutil.Flag[VersionNum]{
	{VersionAttrBit, "ATTR"},
	{VersionNlinkBit, "NLINK"},
	{VersionQuotaBit, "QUOTA"},
	{VersionAlignBit, "ALIGN"},
	{VersionDalignBit, "DALIGN"},
	{VersionSharedBit, "SHARED"},
	{VersionLogV2Bit, "LOGV2"},
	{VersionSectorBit, "SECTOR"},
	{VersionExtFlgBit, "EXTFLG"},
	{VersionDirV2Bit, "DIRV2"},
	{VersionBorgBit, "BORG"},
	{VersionMoreBitsBit, "MOREBITS"},
}

func (v VersionNum) Number() int { return int(v & VersionNumberMask) }

func (v VersionNum) Has(bit VersionNum) bool { return v&bit == bit }

func (v VersionNum) String() string {
	return fmt.Sprintf("v%d+%s", v.Number(),
		fmtutil.FlagsString(v&^VersionNumberMask, versionFlags))
}

type Superblock struct {
	Magic      [4]byte     `bin:"off=0x0,  siz=0x4"`
	BlockSize  uint32      `bin:"off=0x4,  siz=0x4"`
	DBlocks    uint64      `bin:"off=0x8,  siz=0x8"` // total data blocks
	RBlocks    uint64      `bin:"off=0x10, siz=0x8"`
	RExtents   uint64      `bin:"off=0x18, siz=0x8"`
	UUID       [16]byte    `bin:"off=0x20, siz=0x10"`
	LogStart   uint64      `bin:"off=0x30, siz=0x8"` // AG0 block number of the internal log
	RootIno    xfsprim.Ino `bin:"off=0x38, siz=0x8"`
	RbmIno     xfsprim.Ino `bin:"off=0x40, siz=0x8"`
	RsumIno    xfsprim.Ino `bin:"off=0x48, siz=0x8"`
	RExtSize   uint32      `bin:"off=0x50, siz=0x4"`
	AgBlocks   uint32      `bin:"off=0x54, siz=0x4"`
	AgCount    uint32      `bin:"off=0x58, siz=0x4"`
	RbmBlocks  uint32      `bin:"off=0x5c, siz=0x4"`
	LogBlocks  uint32      `bin:"off=0x60, siz=0x4"`
	VersionNum VersionNum  `bin:"off=0x64, siz=0x2"`
	SectSize   uint16      `bin:"off=0x66, siz=0x2"`
	InodeSize  uint16      `bin:"off=0x68, siz=0x2"`
	InoPBlock  uint16      `bin:"off=0x6a, siz=0x2"`
	FName      [12]byte    `bin:"off=0x6c, siz=0xc"`

	BlockLog   uint8 `bin:"off=0x78, siz=0x1"`
	SectLog    uint8 `bin:"off=0x79, siz=0x1"`
	InodeLog   uint8 `bin:"off=0x7a, siz=0x1"`
	InoPBLog   uint8 `bin:"off=0x7b, siz=0x1"`
	AgBlkLog   uint8 `bin:"off=0x7c, siz=0x1"`
	RExtSLog   uint8 `bin:"off=0x7d, siz=0x1"`
	InProgress uint8 `bin:"off=0x7e, siz=0x1"`
	IMaxPct    uint8 `bin:"off=0x7f, siz=0x1"`

	ICount    uint64 `bin:"off=0x80, siz=0x8"` // allocated inodes
	IFree     uint64 `bin:"off=0x88, siz=0x8"`
	FDBlocks  uint64 `bin:"off=0x90, siz=0x8"`
	FRExtents uint64 `bin:"off=0x98, siz=0x8"`

	UQuotIno    xfsprim.Ino `bin:"off=0xa0, siz=0x8"`
	GQuotIno    xfsprim.Ino `bin:"off=0xa8, siz=0x8"`
	QFlags      uint16      `bin:"off=0xb0, siz=0x2"`
	Flags       uint8       `bin:"off=0xb2, siz=0x1"`
	SharedVN    uint8       `bin:"off=0xb3, siz=0x1"`
	InoAlignMt  uint32      `bin:"off=0xb4, siz=0x4"`
	Unit        uint32      `bin:"off=0xb8, siz=0x4"`
	Width       uint32      `bin:"off=0xbc, siz=0x4"`
	DirBlkLog   uint8       `bin:"off=0xc0, siz=0x1"`
	LogSectLog  uint8       `bin:"off=0xc1, siz=0x1"`
	LogSectSize uint16      `bin:"off=0xc2, siz=0x2"`
	LogSUnit    uint32      `bin:"off=0xc4, siz=0x4"`
	Features2   uint32      `bin:"off=0xc8, siz=0x4"`
	BadFeatures uint32      `bin:"off=0xcc, siz=0x4"`

	Reserved [16]byte `bin:"off=0xd0, siz=0x10"`
	CRC      uint32   `bin:"off=0xe0, siz=0x4"` // CRC32C of the superblock with this field zeroed

	binstruct.End `bin:"off=0xe4"`
}

var crc32c = crc32.MakeTable(crc32.Castagnoli)

func (sb Superblock) CalculateChecksum() (uint32, error) {
	sb.CRC = 0
	data, err := binstruct.Marshal(sb)
	if err != nil {
		return 0, err
	}
	return crc32.Checksum(data, crc32c), nil
}

func (sb Superblock) ValidateChecksum() error {
	calced, err := sb.CalculateChecksum()
	if err != nil {
		return err
	}
	if calced != sb.CRC {
		return fmt.Errorf("superblock checksum mismatch: stored=%#08x calculated=%#08x",
			sb.CRC, calced)
	}
	return nil
}

// Equal compares two superblocks, ignoring the checksum.
func (a Superblock) Equal(b Superblock) bool {
	a.CRC = 0
	b.CRC = 0
	return reflect.DeepEqual(a, b)
}

// Geometry validates the size fields against the log2 fields and
// returns the addressing geometry they describe.
func (sb Superblock) Geometry() (xfsprim.Geometry, error) {
	if sb.Magic != SuperblockMagic {
		return xfsprim.Geometry{}, fmt.Errorf("bad magic %q", sb.Magic[:])
	}
	geom, err := xfsprim.NewGeometry(sb.BlockSize, sb.InodeSize, sb.AgBlocks, sb.AgCount)
	if err != nil {
		return geom, err
	}
	switch {
	case geom.BlockLog != sb.BlockLog:
		return geom, fmt.Errorf("blocklog=%v does not match blocksize=%v", sb.BlockLog, sb.BlockSize)
	case geom.InoPBLog != sb.InoPBLog:
		return geom, fmt.Errorf("inopblog=%v does not match blocksize/inodesize=%v", sb.InoPBLog, geom.InodesPerBlock())
	case geom.AgBlkLog != sb.AgBlkLog:
		return geom, fmt.Errorf("agblklog=%v does not match agblocks=%v", sb.AgBlkLog, sb.AgBlocks)
	case sb.DBlocks != uint64(sb.AgBlocks)*uint64(sb.AgCount):
		return geom, fmt.Errorf("dblocks=%v is not agblocks*agcount=%v", sb.DBlocks, uint64(sb.AgBlocks)*uint64(sb.AgCount))
	case sb.LogStart == 0 || sb.LogStart+uint64(sb.LogBlocks) > uint64(sb.AgBlocks):
		return geom, fmt.Errorf("log [%v, +%v) does not fit in AG 0", sb.LogStart, sb.LogBlocks)
	}
	return geom, nil
}

// HasNlink reports whether version-2 inodes (32-bit link counts) are
// permitted on this volume.
func (sb Superblock) HasNlink() bool {
	return sb.VersionNum.Has(VersionNlinkBit)
}

// Label returns the NUL-trimmed volume name.
func (sb Superblock) Label() string {
	n := 0
	for n < len(sb.FName) && sb.FName[n] != 0 {
		n++
	}
	return string(sb.FName[:n])
}
