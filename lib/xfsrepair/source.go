// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsrepair

import (
	"iter"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
	"git.lukeshu.com/xfs-progs-ng/lib/xfsrepair/incore"
)

// InodeRecordSource is the in-core inode record index built by the
// earlier phases.  *incore.Tree implements it.
type InodeRecordSource interface {
	AgCount() uint32
	FirstChunk(ag xfsprim.AgNumber) *incore.InodeRec
	NextChunk(rec *incore.InodeRec) *incore.InodeRec
}

var _ InodeRecordSource = (*incore.Tree)(nil)

// Chunks yields the records of one AG in ascending order.
func Chunks(src InodeRecordSource, ag xfsprim.AgNumber) iter.Seq[*incore.InodeRec] {
	return func(yield func(*incore.InodeRec) bool) {
		for rec := src.FirstChunk(ag); rec != nil; rec = src.NextChunk(rec) {
			if !yield(rec) {
				return
			}
		}
	}
}
