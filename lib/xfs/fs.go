// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package xfs reads and writes the subset of the XFS on-disk format
// that link-count repair needs: the superblock, the internal log
// region, and inode cores.
package xfs

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/xfs-progs-ng/lib/diskio"
	"git.lukeshu.com/xfs-progs-ng/lib/textui"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

var ErrReadOnly = errors.New("volume is open read-only")

// FS is an open volume.  It is safe for concurrent use; writes to
// disjoint regions may proceed in parallel.
type FS struct {
	dev      diskio.File[xfsprim.PhysicalAddr]
	readOnly bool

	sb   Superblock
	geom xfsprim.Geometry
}

var _ diskio.File[xfsprim.PhysicalAddr] = (*FS)(nil)

// Open opens the volume in filename; flag is passed to os.OpenFile,
// and the volume is read-only unless flag includes os.O_RDWR.
func Open(ctx context.Context, flag int, filename string) (*FS, error) {
	dlog.Debugf(ctx, "Opening device file %q...", filename)
	osFile, err := os.OpenFile(filename, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("device file %q: %w", filename, err)
	}
	typedFile := &diskio.OSFile[xfsprim.PhysicalAddr]{
		File: osFile,
	}
	bufFile := diskio.NewBufferedFile[xfsprim.PhysicalAddr](
		typedFile,
		//nolint:gomnd // False positive: gomnd.ignored-functions=[textui.Tunable] doesn't support type params.
		textui.Tunable[xfsprim.PhysicalAddr](64*1024), // block size: 64KiB
		textui.Tunable(256),                           // number of blocks to buffer; total of 16MiB
	)
	fs, err := NewFS(ctx, bufFile, flag&os.O_RDWR == 0)
	if err != nil {
		_ = bufFile.Close()
		return nil, fmt.Errorf("device file %q: %w", filename, err)
	}
	return fs, nil
}

// NewFS reads and validates the superblock of an already-open device.
func NewFS(ctx context.Context, dev diskio.File[xfsprim.PhysicalAddr], readOnly bool) (*FS, error) {
	primary := &diskio.Ref[xfsprim.PhysicalAddr, Superblock]{
		File: dev,
		Addr: 0,
	}
	if err := primary.Read(); err != nil {
		return nil, fmt.Errorf("superblock: %w", err)
	}
	sb := primary.Data
	if err := sb.ValidateChecksum(); err != nil {
		return nil, err
	}
	geom, err := sb.Geometry()
	if err != nil {
		return nil, fmt.Errorf("superblock: %w", err)
	}
	if need := geom.AgBlockToPhysical(xfsprim.AgNumber(sb.AgCount), 0); dev.Size() < need {
		return nil, fmt.Errorf("device is %v but superblock describes %v",
			textui.IEC(dev.Size(), "B"), textui.IEC(need, "B"))
	}

	for ag := uint32(1); ag < sb.AgCount; ag++ {
		secondary := &diskio.Ref[xfsprim.PhysicalAddr, Superblock]{
			File: dev,
			Addr: geom.AgBlockToPhysical(xfsprim.AgNumber(ag), 0),
		}
		if err := secondary.Read(); err != nil || !secondary.Data.Equal(sb) {
			dlog.Warnf(ctx, "secondary superblock in AG %v disagrees with the primary", ag)
		}
	}

	fs := &FS{
		dev:      dev,
		readOnly: readOnly,
		sb:       sb,
		geom:     geom,
	}
	dlog.Infof(ctx, "volume %q: %v AGs of %v blocks, blocksize=%v inodesize=%v version=%v",
		sb.Label(), sb.AgCount, sb.AgBlocks, sb.BlockSize, sb.InodeSize, sb.VersionNum)
	return fs, nil
}

func (fs *FS) Name() string                    { return fs.dev.Name() }
func (fs *FS) Size() xfsprim.PhysicalAddr      { return fs.dev.Size() }
func (fs *FS) Superblock() Superblock          { return fs.sb }
func (fs *FS) Geometry() xfsprim.Geometry      { return fs.geom }
func (fs *FS) ReadOnly() bool                  { return fs.readOnly }
func (fs *FS) BlockSize() xfsprim.PhysicalAddr { return xfsprim.PhysicalAddr(fs.sb.BlockSize) }

func (fs *FS) ReadAt(p []byte, off xfsprim.PhysicalAddr) (int, error) {
	return fs.dev.ReadAt(p, off)
}

func (fs *FS) WriteAt(p []byte, off xfsprim.PhysicalAddr) (int, error) {
	if fs.readOnly {
		return 0, ErrReadOnly
	}
	return fs.dev.WriteAt(p, off)
}

func (fs *FS) Sync() error {
	if fs.readOnly {
		return nil
	}
	return fs.dev.Sync()
}

func (fs *FS) Close() error {
	var errs derror.MultiError
	if err := fs.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := fs.dev.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// LogRegion returns the byte range of the internal log.
func (fs *FS) LogRegion() (start, size xfsprim.PhysicalAddr) {
	start = fs.geom.AgBlockToPhysical(0, xfsprim.AgBlock(fs.sb.LogStart))
	size = xfsprim.PhysicalAddr(fs.sb.LogBlocks) * fs.BlockSize()
	return start, size
}

// InodeAddr returns the byte address of an inode's core.
func (fs *FS) InodeAddr(ino xfsprim.Ino) (xfsprim.PhysicalAddr, error) {
	if !fs.geom.ValidIno(ino) {
		return 0, fmt.Errorf("inode %v: not a valid inode number for this volume", ino)
	}
	return fs.geom.InoToPhysical(ino), nil
}

// ReadInode loads the core of an inode.
func (fs *FS) ReadInode(ino xfsprim.Ino) (*Inode, error) {
	addr, err := fs.InodeAddr(ino)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, DinodeCoreSize)
	if _, err := fs.dev.ReadAt(buf, addr); err != nil {
		return nil, fmt.Errorf("inode %v: read at %v: %w", ino, addr, err)
	}
	return UnmarshalInode(ino, addr, buf)
}

// WriteSuperblock stamps a fresh checksum on sb and writes it to
// block 0 of every AG.
func (fs *FS) WriteSuperblock(sb Superblock) error {
	crc, err := sb.CalculateChecksum()
	if err != nil {
		return err
	}
	sb.CRC = crc
	for ag := uint32(0); ag < sb.AgCount; ag++ {
		ref := &diskio.Ref[xfsprim.PhysicalAddr, Superblock]{
			File: fs,
			Addr: fs.geom.AgBlockToPhysical(xfsprim.AgNumber(ag), 0),
			Data: sb,
		}
		if err := ref.Write(); err != nil {
			return fmt.Errorf("superblock in AG %v: %w", ag, err)
		}
	}
	fs.sb = sb
	return nil
}
