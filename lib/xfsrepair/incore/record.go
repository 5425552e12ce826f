// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package incore holds the in-core inode records that earlier repair
// phases build: for each inode chunk, which slots are free, which
// were confirmed by the scan, which were reached and referenced from
// the directory tree, how many references each has, and what link
// count each had on disk.
package incore

import (
	"fmt"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

// InodeRec covers one chunk of xfsprim.InodesPerChunk inode slots.
// The masks have bit i set for slot i.
type InodeRec struct {
	AG       xfsprim.AgNumber
	StartNum xfsprim.AgIno

	Free       uint64
	Confirmed  uint64
	Reached    uint64
	Referenced uint64

	NRefs      [xfsprim.InodesPerChunk]uint32
	DiskNlinks [xfsprim.InodesPerChunk]uint32
}

// NewInodeRec returns an all-free record.
func NewInodeRec(ag xfsprim.AgNumber, start xfsprim.AgIno) *InodeRec {
	return &InodeRec{
		AG:       ag,
		StartNum: start,
		Free:     ^uint64(0),
	}
}

func bit(slot int) uint64 {
	if slot < 0 || slot >= xfsprim.InodesPerChunk {
		panic(fmt.Errorf("should not happen: inode slot %v out of range", slot))
	}
	return 1 << slot
}

func (r *InodeRec) IsFree(slot int) bool       { return r.Free&bit(slot) != 0 }
func (r *InodeRec) IsConfirmed(slot int) bool  { return r.Confirmed&bit(slot) != 0 }
func (r *InodeRec) IsReached(slot int) bool    { return r.Reached&bit(slot) != 0 }
func (r *InodeRec) IsReferenced(slot int) bool { return r.Referenced&bit(slot) != 0 }
func (r *InodeRec) NumRefs(slot int) uint32    { return r.NRefs[slot] }
func (r *InodeRec) DiskNlink(slot int) uint32  { return r.DiskNlinks[slot] }

// AgIno returns the AG inode number of a slot.
func (r *InodeRec) AgIno(slot int) xfsprim.AgIno {
	return r.StartNum + xfsprim.AgIno(slot)
}

// SetLive marks a slot as an in-use inode that the scan confirmed,
// with the on-disk link count it found.
func (r *InodeRec) SetLive(slot int, diskNlink uint32) {
	r.Free &^= bit(slot)
	r.Confirmed |= bit(slot)
	r.DiskNlinks[slot] = diskNlink
}

// AddRef records one directory entry pointing at the slot.
func (r *InodeRec) AddRef(slot int) {
	r.Reached |= bit(slot)
	r.Referenced |= bit(slot)
	r.NRefs[slot]++
}

// SetRefs overrides the computed reference count of a slot, marking
// it reached and referenced.
func (r *InodeRec) SetRefs(slot int, n uint32) {
	r.Reached |= bit(slot)
	r.Referenced |= bit(slot)
	r.NRefs[slot] = n
}

// LiveCount is the number of non-free slots.
func (r *InodeRec) LiveCount() int {
	n := 0
	for slot := 0; slot < xfsprim.InodesPerChunk; slot++ {
		if !r.IsFree(slot) {
			n++
		}
	}
	return n
}
