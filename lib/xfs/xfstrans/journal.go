// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package xfstrans implements small metadata transactions on top of
// the internal log of an xfs.FS.
//
// A transaction reserves log space, locks and loads inodes, logs the
// ones it changes, and then either commits (synchronously: the
// change is durable when Commit returns) or cancels.  A commit
// writes the changed blocks to the log followed by a header naming
// their home addresses, flushes, installs the blocks at home, and
// clears the header.  Open replays a record left behind by a crash.
package xfstrans

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"git.lukeshu.com/go/typedsync"
	"github.com/datawire/dlib/dlog"
	"golang.org/x/sync/semaphore"

	"git.lukeshu.com/xfs-progs-ng/lib/containers"
	"git.lukeshu.com/xfs-progs-ng/lib/textui"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

var (
	ErrDirtyLog        = errors.New("log holds an uninstalled record but the volume is read-only")
	ErrReservation     = errors.New("reservation exceeds log capacity")
	ErrOverReservation = errors.New("transaction logged more blocks than it reserved")
	ErrFinished        = errors.New("transaction already committed or cancelled")
	ErrStuck           = errors.New("log holds a record that failed to install; reopen the volume to replay it")
)

type Journal struct {
	fs        *xfs.FS
	blockSize xfsprim.PhysicalAddr
	logStart  xfsprim.PhysicalAddr
	capacity  int64

	space *semaphore.Weighted

	commitMu sync.Mutex
	seq      uint64
	// stuck is set once a durable record could not be installed.
	// Writing another record would overwrite it, so the journal
	// refuses further work until Open replays it.
	stuck atomic.Pointer[error]

	ilocks typedsync.Map[xfsprim.Ino, *sync.Mutex]
	bufs   containers.SyncPool[[]byte]

	allocated    atomic.Uint64
	committed    atomic.Uint64
	cancelled    atomic.Uint64
	loggedBlocks atomic.Uint64

	// afterLogWrite, if non-nil, runs once a record is durable in
	// the log but before it is installed.  A non-nil error aborts
	// the commit at that point.
	afterLogWrite func() error
}

type Stats struct {
	Allocated    uint64
	Committed    uint64
	Cancelled    uint64
	LoggedBlocks uint64
}

func (s Stats) String() string {
	return textui.Sprintf("transactions: %v allocated, %v committed, %v cancelled (%v blocks logged)",
		s.Allocated, s.Committed, s.Cancelled, s.LoggedBlocks)
}

// Open attaches a journal to fs, replaying any record a previous run
// left in the log.
func Open(ctx context.Context, fs *xfs.FS) (*Journal, error) {
	ctx = dlog.WithField(ctx, "xfstrans.step", "open")
	logStart, logSize := fs.LogRegion()
	blockSize := fs.BlockSize()
	if uint64(blockSize) < 8*(4+HdrAddrs) {
		return nil, fmt.Errorf("block size %v is too small to hold a log header", blockSize)
	}
	capacity := int64(logSize/blockSize) - 1
	if capacity > int64(HdrAddrs) {
		capacity = int64(HdrAddrs)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("log of %v blocks is too small", int64(logSize/blockSize))
	}
	j := &Journal{
		fs:        fs,
		blockSize: blockSize,
		logStart:  logStart,
		capacity:  capacity,
		space:     semaphore.NewWeighted(capacity),
	}
	j.bufs.New = func() []byte { return make([]byte, blockSize) }
	if err := j.replay(ctx); err != nil {
		return nil, err
	}
	dlog.Debugf(ctx, "log at %v: room for %v blocks per commit", logStart, capacity)
	return j, nil
}

func (j *Journal) FS() *xfs.FS { return j.fs }

// Capacity is the largest reservation Alloc will accept.
func (j *Journal) Capacity() int { return int(j.capacity) }

func (j *Journal) Stats() Stats {
	return Stats{
		Allocated:    j.allocated.Load(),
		Committed:    j.committed.Load(),
		Cancelled:    j.cancelled.Load(),
		LoggedBlocks: j.loggedBlocks.Load(),
	}
}

func (j *Journal) stuckErr() error {
	if errp := j.stuck.Load(); errp != nil {
		return fmt.Errorf("%w: %w", ErrStuck, *errp)
	}
	return nil
}

func (j *Journal) markStuck(err error) {
	j.stuck.CompareAndSwap(nil, &err)
}

func (j *Journal) logSlot(i int) xfsprim.PhysicalAddr {
	return j.logStart + xfsprim.PhysicalAddr(i)*j.blockSize
}

func (j *Journal) readBlock(addr xfsprim.PhysicalAddr) ([]byte, error) {
	blk := j.bufs.Get()
	if _, err := j.fs.ReadAt(blk, addr); err != nil {
		j.bufs.Put(blk)
		return nil, fmt.Errorf("read block at %v: %w", addr, err)
	}
	return blk, nil
}

func (j *Journal) writeBlock(addr xfsprim.PhysicalAddr, blk []byte) error {
	if _, err := j.fs.WriteAt(blk, addr); err != nil {
		return fmt.Errorf("write block at %v: %w", addr, err)
	}
	return nil
}

func (j *Journal) replay(ctx context.Context) error {
	hdrBlk, err := j.readBlock(j.logSlot(0))
	if err != nil {
		return err
	}
	hdr, ok := decodeLogHeader(hdrBlk)
	if !ok {
		return nil
	}
	ctx = dlog.WithField(ctx, "xfstrans.seq", hdr.Seq)
	j.seq = hdr.Seq

	torn := hdr.Count == 0 || hdr.Count > uint64(j.capacity)
	var blocks [][]byte
	for i := 0; !torn && i < int(hdr.Count); i++ {
		blk, err := j.readBlock(j.logSlot(1 + i))
		if err != nil {
			return err
		}
		blocks = append(blocks, blk)
	}
	if !torn && hdr.checksum(uint64(j.blockSize), blocks) != hdr.CRC {
		torn = true
	}
	if torn {
		dlog.Warnf(ctx, "discarding torn log record")
		if j.fs.ReadOnly() {
			return nil
		}
		return j.clear()
	}

	if j.fs.ReadOnly() {
		return ErrDirtyLog
	}
	dlog.Infof(ctx, "replaying %v logged blocks", hdr.Count)
	if err := j.install(hdr.Addrs[:hdr.Count], blocks); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	return j.clear()
}

func (j *Journal) install(addrs []uint64, blocks [][]byte) error {
	for i, addr := range addrs {
		if err := j.writeBlock(xfsprim.PhysicalAddr(addr), blocks[i]); err != nil {
			return err
		}
	}
	return j.fs.Sync()
}

func (j *Journal) clear() error {
	if err := j.writeBlock(j.logSlot(0), make([]byte, j.blockSize)); err != nil {
		return err
	}
	return j.fs.Sync()
}

// writeRecord makes blocks durable in the log, to be installed at
// addrs.  The caller must hold commitMu.
func (j *Journal) writeRecord(addrs []uint64, blocks [][]byte) error {
	for i, blk := range blocks {
		if err := j.writeBlock(j.logSlot(1+i), blk); err != nil {
			return err
		}
	}
	hdr := logHeader{
		Seq:   j.seq + 1,
		Count: uint64(len(blocks)),
		Addrs: addrs,
	}
	hdr.CRC = hdr.checksum(uint64(j.blockSize), blocks)
	if err := j.writeBlock(j.logSlot(0), hdr.encode(uint64(j.blockSize))); err != nil {
		return err
	}
	if err := j.fs.Sync(); err != nil {
		return err
	}
	j.seq = hdr.Seq
	return nil
}

func (j *Journal) lockInode(ino xfsprim.Ino) {
	mu, _ := j.ilocks.LoadOrStore(ino, new(sync.Mutex))
	mu.Lock()
}

func (j *Journal) unlockInode(ino xfsprim.Ino) {
	mu, ok := j.ilocks.Load(ino)
	if !ok {
		panic(fmt.Errorf("should not happen: unlock of inode %v that was never locked", ino))
	}
	mu.Unlock()
}
