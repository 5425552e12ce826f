// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfstrans

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/xfs-progs-ng/lib/maps"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

// Trans is one transaction.  It is not safe for concurrent use; each
// goroutine allocates its own.
type Trans struct {
	j    *Journal
	res  int64
	done bool

	inodes map[xfsprim.Ino]*xfs.Inode
	held   []xfsprim.Ino
	logged map[xfsprim.Ino]struct{}
	homes  map[xfsprim.PhysicalAddr]struct{}
}

// Alloc opens a transaction that may log up to resBlocks blocks,
// blocking until that much log space is free.  A zero reservation
// never blocks, and such a transaction can only be cancelled or
// committed empty.
func (j *Journal) Alloc(ctx context.Context, resBlocks int) (*Trans, error) {
	if err := j.stuckErr(); err != nil {
		return nil, err
	}
	res := int64(resBlocks)
	if res < 0 || res > j.capacity {
		return nil, fmt.Errorf("reserve %v blocks: %w (capacity=%v)", resBlocks, ErrReservation, j.capacity)
	}
	if res > 0 {
		if err := j.space.Acquire(ctx, res); err != nil {
			return nil, fmt.Errorf("reserve %v blocks: %w", resBlocks, err)
		}
	}
	j.allocated.Add(1)
	return &Trans{
		j:      j,
		res:    res,
		inodes: make(map[xfsprim.Ino]*xfs.Inode),
		logged: make(map[xfsprim.Ino]struct{}),
		homes:  make(map[xfsprim.PhysicalAddr]struct{}),
	}, nil
}

// IGet locks an inode for the rest of the transaction and loads it.
// Asking for the same inode twice returns the same handle.
func (tp *Trans) IGet(ctx context.Context, ino xfsprim.Ino) (*xfs.Inode, error) {
	if tp.done {
		return nil, ErrFinished
	}
	if ip, ok := tp.inodes[ino]; ok {
		return ip, nil
	}
	tp.j.lockInode(ino)
	ip, err := tp.j.fs.ReadInode(ino)
	if err != nil {
		tp.j.unlockInode(ino)
		return nil, err
	}
	dlog.Tracef(ctx, "locked inode %v", ino)
	tp.inodes[ino] = ip
	tp.held = append(tp.held, ino)
	return ip, nil
}

// LogInode marks an inode's core as changed, to be written at
// commit.
func (tp *Trans) LogInode(ip *xfs.Inode) error {
	if tp.done {
		return ErrFinished
	}
	if tp.inodes[ip.Ino] != ip {
		return fmt.Errorf("inode %v was not obtained through this transaction", ip.Ino)
	}
	home := tp.homeBlock(ip)
	if _, ok := tp.homes[home]; !ok {
		if int64(len(tp.homes)) >= tp.res {
			return fmt.Errorf("inode %v: %w (reserved %v)", ip.Ino, ErrOverReservation, tp.res)
		}
		tp.homes[home] = struct{}{}
	}
	tp.logged[ip.Ino] = struct{}{}
	return nil
}

func (tp *Trans) homeBlock(ip *xfs.Inode) xfsprim.PhysicalAddr {
	return ip.Addr - ip.Addr%tp.j.blockSize
}

// Cancel releases the transaction without writing anything.  It is a
// no-op on a finished transaction.
func (tp *Trans) Cancel() {
	if tp.done {
		return
	}
	tp.release()
	tp.j.cancelled.Add(1)
}

func (tp *Trans) release() {
	tp.done = true
	for i := len(tp.held) - 1; i >= 0; i-- {
		tp.j.unlockInode(tp.held[i])
	}
	tp.held = nil
	if tp.res > 0 {
		tp.j.space.Release(tp.res)
	}
}

// Commit writes every logged inode and returns once the change is
// durable.  The transaction is finished whether or not Commit
// succeeds.
func (tp *Trans) Commit(ctx context.Context) error {
	if tp.done {
		return ErrFinished
	}
	defer tp.release()
	if len(tp.logged) == 0 {
		tp.j.committed.Add(1)
		return nil
	}

	j := tp.j
	j.commitMu.Lock()
	defer j.commitMu.Unlock()
	if err := j.stuckErr(); err != nil {
		return err
	}

	// Patch each logged inode core in to the current contents of
	// its home block.
	blocks := make(map[xfsprim.PhysicalAddr][]byte, len(tp.homes))
	defer func() {
		for _, blk := range blocks {
			j.bufs.Put(blk)
		}
	}()
	for _, ino := range maps.SortedKeys(tp.logged) {
		ip := tp.inodes[ino]
		home := tp.homeBlock(ip)
		blk, ok := blocks[home]
		if !ok {
			var err error
			blk, err = j.readBlock(home)
			if err != nil {
				return err
			}
			blocks[home] = blk
		}
		core, err := ip.MarshalCore()
		if err != nil {
			return fmt.Errorf("inode %v: %w", ino, err)
		}
		copy(blk[ip.Addr-home:], core)
	}

	homes := maps.SortedKeys(blocks)
	addrs := make([]uint64, len(homes))
	data := make([][]byte, len(homes))
	for i, home := range homes {
		addrs[i] = uint64(home)
		data[i] = blocks[home]
	}

	if err := j.writeRecord(addrs, data); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if j.afterLogWrite != nil {
		if err := j.afterLogWrite(); err != nil {
			j.markStuck(err)
			return err
		}
	}
	if err := j.install(addrs, data); err != nil {
		j.markStuck(err)
		return fmt.Errorf("commit: install: %w", err)
	}
	if err := j.clear(); err != nil {
		j.markStuck(err)
		return fmt.Errorf("commit: clear log: %w", err)
	}
	j.committed.Add(1)
	j.loggedBlocks.Add(uint64(len(addrs)))
	dlog.Tracef(ctx, "committed %v blocks as seq %v", len(addrs), j.seq)
	return nil
}
