// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package incore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
	"git.lukeshu.com/xfs-progs-ng/lib/xfsrepair/incore"
)

func TestInodeRecSlots(t *testing.T) {
	t.Parallel()
	rec := incore.NewInodeRec(1, 128)
	assert.True(t, rec.IsFree(0))
	assert.Equal(t, 0, rec.LiveCount())

	rec.SetLive(3, 2)
	rec.AddRef(3)
	rec.AddRef(3)
	assert.False(t, rec.IsFree(3))
	assert.True(t, rec.IsConfirmed(3))
	assert.True(t, rec.IsReached(3))
	assert.True(t, rec.IsReferenced(3))
	assert.Equal(t, uint32(2), rec.NumRefs(3))
	assert.Equal(t, uint32(2), rec.DiskNlink(3))
	assert.Equal(t, xfsprim.AgIno(131), rec.AgIno(3))
	assert.Equal(t, 1, rec.LiveCount())

	rec.SetRefs(63, 7)
	assert.True(t, rec.IsFree(63))
	assert.Equal(t, uint32(7), rec.NumRefs(63))

	assert.Panics(t, func() { rec.IsFree(64) })
	assert.Panics(t, func() { rec.IsFree(-1) })
}

func TestTreeInsert(t *testing.T) {
	t.Parallel()
	tree := incore.NewTree(2)
	require.NoError(t, tree.Insert(incore.NewInodeRec(0, 128)))
	require.NoError(t, tree.Insert(incore.NewInodeRec(0, 64)))
	require.NoError(t, tree.Insert(incore.NewInodeRec(1, 64)))

	assert.ErrorContains(t, tree.Insert(incore.NewInodeRec(2, 64)), "out of range")
	assert.ErrorContains(t, tree.Insert(incore.NewInodeRec(0, 65)), "not chunk-aligned")
	assert.ErrorContains(t, tree.Insert(incore.NewInodeRec(0, 128)), "duplicate")
	assert.Equal(t, 3, tree.Len())
}

func walk(tree *incore.Tree, ag xfsprim.AgNumber) []xfsprim.AgIno {
	var ret []xfsprim.AgIno
	for rec := tree.FirstChunk(ag); rec != nil; rec = tree.NextChunk(rec) {
		ret = append(ret, rec.StartNum)
	}
	return ret
}

func TestTreeWalk(t *testing.T) {
	t.Parallel()
	tree := incore.NewTree(3)
	for _, start := range []xfsprim.AgIno{640, 64, 192, 128} {
		require.NoError(t, tree.Insert(incore.NewInodeRec(0, start)))
	}
	require.NoError(t, tree.Insert(incore.NewInodeRec(2, 64)))

	assert.Equal(t, []xfsprim.AgIno{64, 128, 192, 640}, walk(tree, 0))
	assert.Nil(t, walk(tree, 1))
	assert.Equal(t, []xfsprim.AgIno{64}, walk(tree, 2))
	assert.Nil(t, tree.FirstChunk(3))
}

func TestTreeSaveLoad(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	tree := incore.NewTree(2)
	tree.SetOrphanage(70)
	rec := incore.NewInodeRec(0, 64)
	rec.SetLive(0, 2)
	rec.SetRefs(0, 3)
	rec.SetLive(6, 1)
	rec.AddRef(6)
	require.NoError(t, tree.Insert(rec))
	require.NoError(t, tree.Insert(incore.NewInodeRec(1, 128)))

	filename := filepath.Join(t.TempDir(), "records.json")
	fh, err := os.Create(filename)
	require.NoError(t, err)
	require.NoError(t, tree.Save(fh))
	require.NoError(t, fh.Close())

	got, err := incore.Load(ctx, filename)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.AgCount())
	assert.Equal(t, xfsprim.Ino(70), got.Orphanage())
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, rec, got.FirstChunk(0))
	assert.Equal(t, []xfsprim.AgIno{128}, walk(got, 1))
}

func TestLoadRejectsBadRecords(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		JSON   string
		ErrMsg string
	}{
		"misaligned": {
			JSON:   `{"AgCount": 1, "Orphanage": 0, "Chunks": [{"AG": 0, "StartNum": 3}]}`,
			ErrMsg: "not chunk-aligned",
		},
		"null-chunk": {
			JSON:   `{"AgCount": 1, "Orphanage": 0, "Chunks": [null]}`,
			ErrMsg: "null chunk",
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, true)
			filename := filepath.Join(t.TempDir(), "records.json")
			require.NoError(t, os.WriteFile(filename, []byte(tc.JSON), 0o644))
			_, err := incore.Load(ctx, filename)
			assert.ErrorContains(t, err, tc.ErrMsg)
		})
	}
}
