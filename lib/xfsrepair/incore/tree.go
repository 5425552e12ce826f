// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package incore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/datawire/dlib/dlog"
	"github.com/google/btree"

	"git.lukeshu.com/xfs-progs-ng/lib/jsonutil"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

const btreeDegree = 16

func lessRec(a, b *InodeRec) bool { return a.StartNum < b.StartNum }

// Tree indexes inode records by AG and chunk start.  It must not be
// modified once readers are walking it; concurrent reads are safe.
type Tree struct {
	orphanage xfsprim.Ino
	ags       []*btree.BTreeG[*InodeRec]
}

func NewTree(agCount uint32) *Tree {
	t := &Tree{
		ags: make([]*btree.BTreeG[*InodeRec], agCount),
	}
	for i := range t.ags {
		t.ags[i] = btree.NewG[*InodeRec](btreeDegree, lessRec)
	}
	return t
}

func (t *Tree) AgCount() uint32 { return uint32(len(t.ags)) }

// Orphanage is the lost+found inode, or xfsprim.NullIno if there is
// none.
func (t *Tree) Orphanage() xfsprim.Ino { return t.orphanage }

func (t *Tree) SetOrphanage(ino xfsprim.Ino) { t.orphanage = ino }

// Insert adds a record.  Records must be chunk-aligned and may not
// overlap.
func (t *Tree) Insert(rec *InodeRec) error {
	if rec == nil {
		return errors.New("inode record: null chunk")
	}
	if uint32(rec.AG) >= t.AgCount() {
		return fmt.Errorf("inode record AG %v: out of range (agcount=%v)", rec.AG, t.AgCount())
	}
	if rec.StartNum%xfsprim.InodesPerChunk != 0 {
		return fmt.Errorf("inode record AG %v agino %v: not chunk-aligned", rec.AG, rec.StartNum)
	}
	if _, dup := t.ags[rec.AG].Get(rec); dup {
		return fmt.Errorf("inode record AG %v agino %v: duplicate", rec.AG, rec.StartNum)
	}
	t.ags[rec.AG].ReplaceOrInsert(rec)
	return nil
}

// FirstChunk returns the lowest record in ag, or nil.
func (t *Tree) FirstChunk(ag xfsprim.AgNumber) *InodeRec {
	if uint32(ag) >= t.AgCount() {
		return nil
	}
	rec, _ := t.ags[ag].Min()
	return rec
}

// NextChunk returns the record after rec in the same AG, or nil.
func (t *Tree) NextChunk(rec *InodeRec) *InodeRec {
	var next *InodeRec
	t.ags[rec.AG].AscendGreaterOrEqual(&InodeRec{StartNum: rec.StartNum + xfsprim.InodesPerChunk}, func(item *InodeRec) bool {
		next = item
		return false
	})
	return next
}

// Len is the total number of records.
func (t *Tree) Len() int {
	n := 0
	for _, ag := range t.ags {
		n += ag.Len()
	}
	return n
}

// snapshot is the on-file form of a Tree.
type snapshot struct {
	AgCount   uint32
	Orphanage xfsprim.Ino
	Chunks    []*InodeRec
}

// Load reads a Tree saved by Save.
func Load(ctx context.Context, filename string) (*Tree, error) {
	snap, err := jsonutil.ReadFile[snapshot](ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("inode records %q: %w", filename, err)
	}
	t := NewTree(snap.AgCount)
	t.SetOrphanage(snap.Orphanage)
	for _, rec := range snap.Chunks {
		if err := t.Insert(rec); err != nil {
			return nil, fmt.Errorf("inode records %q: %w", filename, err)
		}
	}
	dlog.Infof(ctx, "loaded %v inode records across %v AGs", t.Len(), t.AgCount())
	return t, nil
}

// Save writes the Tree as JSON, AG by AG in chunk order.
func (t *Tree) Save(w io.Writer) error {
	snap := snapshot{
		AgCount:   t.AgCount(),
		Orphanage: t.orphanage,
	}
	for ag := range t.ags {
		for rec := t.FirstChunk(xfsprim.AgNumber(ag)); rec != nil; rec = t.NextChunk(rec) {
			snap.Chunks = append(snap.Chunks, rec)
		}
	}
	return jsonutil.Encode(w, snap)
}
