// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfs

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/xfs-progs-ng/lib/diskio"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

type FormatParams struct {
	Label     string
	BlockSize uint32
	InodeSize uint16
	AgBlocks  uint32
	AgCount   uint32
	LogBlocks uint32
	// Nlink sets VersionNlinkBit, permitting version-2 inodes.
	Nlink bool
}

// LogStart is the AG 0 block that Format places the internal log at.
const LogStart = 1

// Format writes an empty volume (superblocks and a clean internal log)
// to dev, which must already be large enough to hold it.
func Format(ctx context.Context, dev diskio.File[xfsprim.PhysicalAddr], params FormatParams) (*FS, error) {
	geom, err := xfsprim.NewGeometry(params.BlockSize, params.InodeSize, params.AgBlocks, params.AgCount)
	if err != nil {
		return nil, err
	}
	if params.LogBlocks == 0 || LogStart+params.LogBlocks >= params.AgBlocks {
		return nil, fmt.Errorf("log of %v blocks does not fit in an AG of %v blocks",
			params.LogBlocks, params.AgBlocks)
	}
	if len(params.Label) > 12 {
		return nil, fmt.Errorf("label %q is longer than 12 bytes", params.Label)
	}

	version := VersionNum(VersionNumber | VersionAlignBit | VersionDirV2Bit | VersionExtFlgBit)
	if params.Nlink {
		version |= VersionNlinkBit
	}
	sb := Superblock{
		Magic:      SuperblockMagic,
		BlockSize:  params.BlockSize,
		DBlocks:    uint64(params.AgBlocks) * uint64(params.AgCount),
		LogStart:   LogStart,
		AgBlocks:   params.AgBlocks,
		AgCount:    params.AgCount,
		LogBlocks:  params.LogBlocks,
		VersionNum: version,
		SectSize:   512,
		InodeSize:  params.InodeSize,
		InoPBlock:  uint16(geom.InodesPerBlock()),
		BlockLog:   geom.BlockLog,
		SectLog:    9,
		InodeLog:   geom.BlockLog - geom.InoPBLog,
		InoPBLog:   geom.InoPBLog,
		AgBlkLog:   geom.AgBlkLog,
		IMaxPct:    25,
		InoAlignMt: geom.BlocksPerChunk(),
		DirBlkLog:  0,
	}
	copy(sb.FName[:], params.Label)

	fs := &FS{
		dev:  dev,
		sb:   sb,
		geom: geom,
	}
	if need := geom.AgBlockToPhysical(xfsprim.AgNumber(params.AgCount), 0); dev.Size() < need {
		return nil, fmt.Errorf("device is %v bytes but the volume needs %v", int64(dev.Size()), int64(need))
	}

	logStart, logSize := fs.LogRegion()
	if _, err := fs.WriteAt(make([]byte, logSize), logStart); err != nil {
		return nil, fmt.Errorf("zero log: %w", err)
	}
	if err := fs.WriteSuperblock(sb); err != nil {
		return nil, err
	}
	if err := fs.Sync(); err != nil {
		return nil, err
	}
	dlog.Debugf(ctx, "formatted %v AGs of %v blocks", params.AgCount, params.AgBlocks)
	return fs, nil
}

// CreateImage creates (or truncates) an image file sized for params,
// formats it, and returns it open read-write.
func CreateImage(ctx context.Context, filename string, params FormatParams) (*FS, error) {
	osFile, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	size := int64(params.AgBlocks) * int64(params.AgCount) * int64(params.BlockSize)
	if err := osFile.Truncate(size); err != nil {
		_ = osFile.Close()
		return nil, err
	}
	fs, err := Format(ctx, &diskio.OSFile[xfsprim.PhysicalAddr]{File: osFile}, params)
	if err != nil {
		_ = osFile.Close()
		return nil, fmt.Errorf("%q: %w", filename, err)
	}
	return fs, nil
}

// AllocChunk initializes an inode chunk starting at agbno in ag,
// writing 64 free inodes, and returns the chunk's first AG inode
// number.  It is for building volumes, not for use on a volume that
// anything else has open.
func (fs *FS) AllocChunk(ag xfsprim.AgNumber, agbno xfsprim.AgBlock) (xfsprim.AgIno, error) {
	if fs.readOnly {
		return 0, ErrReadOnly
	}
	geom := fs.geom
	start := geom.AgBlockToAgIno(agbno)
	end := agbno + xfsprim.AgBlock(geom.BlocksPerChunk())
	switch {
	case uint32(ag) >= geom.AgCount:
		return 0, fmt.Errorf("AG %v: out of range", ag)
	case agbno == 0:
		return 0, fmt.Errorf("AG %v block 0 holds the AG header", ag)
	case start%xfsprim.InodesPerChunk != 0:
		return 0, fmt.Errorf("AG %v block %v: not chunk-aligned", ag, agbno)
	case uint32(end) > geom.AgBlocks:
		return 0, fmt.Errorf("AG %v block %v: chunk runs off the end of the AG", ag, agbno)
	case ag == 0 && uint64(agbno) < fs.sb.LogStart+uint64(fs.sb.LogBlocks) && uint64(end) > fs.sb.LogStart:
		return 0, fmt.Errorf("AG %v block %v: chunk overlaps the log", ag, agbno)
	}

	buf := make([]byte, fs.sb.InodeSize)
	for i := xfsprim.AgIno(0); i < xfsprim.InodesPerChunk; i++ {
		ip := &Inode{
			Ino:  geom.AgInoToIno(ag, start+i),
			Addr: geom.InoToPhysical(geom.AgInoToIno(ag, start+i)),
			Core: DinodeCore{
				Magic:   InodeMagic,
				Version: 1,
				Format:  FormatExtents,
			},
		}
		core, err := ip.MarshalCore()
		if err != nil {
			return 0, err
		}
		copy(buf, core)
		if _, err := fs.WriteAt(buf, ip.Addr); err != nil {
			return 0, fmt.Errorf("inode %v: %w", ip.Ino, err)
		}
	}

	sb := fs.sb
	sb.ICount += xfsprim.InodesPerChunk
	sb.IFree += xfsprim.InodesPerChunk
	if err := fs.WriteSuperblock(sb); err != nil {
		return 0, err
	}
	return start, nil
}

// InitInode writes a live inode with the given mode, version and
// link count in to an allocated chunk slot.
func (fs *FS) InitInode(ino xfsprim.Ino, mode uint16, version uint8, nlink uint32) (*Inode, error) {
	addr, err := fs.InodeAddr(ino)
	if err != nil {
		return nil, err
	}
	ip := &Inode{
		Ino:  ino,
		Addr: addr,
		Core: DinodeCore{
			Magic:   InodeMagic,
			Mode:    mode,
			Version: version,
			Format:  FormatExtents,
		},
	}
	ip.SetNlink(nlink)
	if err := fs.WriteInode(ip); err != nil {
		return nil, err
	}
	return ip, nil
}

// WriteInode writes an inode core in place, outside of any
// transaction.
func (fs *FS) WriteInode(ip *Inode) error {
	core, err := ip.MarshalCore()
	if err != nil {
		return err
	}
	if _, err := fs.WriteAt(core, ip.Addr); err != nil {
		return fmt.Errorf("inode %v: %w", ip.Ino, err)
	}
	return nil
}
