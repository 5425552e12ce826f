// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package binstruct_test

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/binstruct"
)

type logRecord struct {
	Magic   [2]byte `bin:"off=0x0, siz=0x2"`
	Version uint8   `bin:"off=0x2, siz=0x1"`
	Format  int8    `bin:"off=0x3, siz=0x1"`
	Count   uint32  `bin:"off=0x4, siz=0x4"`
	Addr    int64   `bin:"off=0x8, siz=0x8"`
	Scratch string  `bin:"-"`

	binstruct.End `bin:"off=0x10"`
}

func TestBigEndianLayout(t *testing.T) {
	t.Parallel()
	rec := logRecord{
		Magic:   [2]byte{'I', 'N'},
		Version: 2,
		Format:  -1,
		Count:   0x01020304,
		Addr:    0x1122334455667788,
		Scratch: "ignored",
	}
	assert.Equal(t, 16, binstruct.StaticSize(rec))

	dat, err := binstruct.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		'I', 'N', 0x02, 0xff,
		0x01, 0x02, 0x03, 0x04,
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88,
	}, dat)

	var back logRecord
	n, err := binstruct.Unmarshal(dat, &back)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	rec.Scratch = ""
	assert.Equal(t, rec, back)
}

func TestShortBuffer(t *testing.T) {
	t.Parallel()
	var rec logRecord
	_, err := binstruct.Unmarshal(make([]byte, 7), &rec)
	var short *binstruct.ShortBufferError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 16, short.Need)
	assert.Equal(t, 7, short.Have)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

type nestedRecord struct {
	Head logRecord `bin:"off=0x0, siz=0x10"`
	Tail uint32    `bin:"off=0x10, siz=0x4"`

	binstruct.End `bin:"off=0x14"`
}

type failingField struct{}

func (failingField) BinaryStaticSize() int { return 4 }
func (failingField) MarshalBinary() ([]byte, error) {
	return nil, errors.New("refusing to marshal")
}
func (*failingField) UnmarshalBinary([]byte) (int, error) { return 4, nil }

type withFailingField struct {
	A uint32       `bin:"off=0x0, siz=0x4"`
	B failingField `bin:"off=0x4, siz=0x4"`

	binstruct.End `bin:"off=0x8"`
}

func TestFieldErrorLocatesField(t *testing.T) {
	t.Parallel()
	_, err := binstruct.Marshal(withFailingField{})
	var ferr *binstruct.FieldError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "B", ferr.Field)
	assert.Equal(t, 4, ferr.Offset)
	var cerr *binstruct.CodecError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "marshal", cerr.Op)
	assert.EqualError(t, err,
		"binstruct_test.withFailingField.B (off=0x4): marshal (binstruct_test.failingField).MarshalBinary: refusing to marshal")
}

func TestNestedStruct(t *testing.T) {
	t.Parallel()
	dat := make([]byte, 20)
	var rec nestedRecord
	n, err := binstruct.Unmarshal(dat, &rec)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

type badOffset struct {
	A uint16 `bin:"off=0x0, siz=0x2"`
	B uint16 `bin:"off=0x4, siz=0x2"`

	binstruct.End `bin:"off=0x6"`
}

func TestBadTagPanics(t *testing.T) {
	t.Parallel()
	assert.PanicsWithError(t,
		`binstruct: invalid type binstruct_test.badOffset: struct "binstruct_test.badOffset" field 1 "B": tag says off=0x4 but curOffset=0x2`,
		func() { _ = binstruct.StaticSize(badOffset{}) })
}

func TestConcurrentHandlers(t *testing.T) {
	t.Parallel()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dat, err := binstruct.Marshal(logRecord{Count: uint32(i)})
			assert.NoError(t, err)
			var back logRecord
			_, err = binstruct.Unmarshal(dat, &back)
			assert.NoError(t, err)
			assert.Equal(t, uint32(i), back.Count)
		}(i)
	}
	wg.Wait()
}
