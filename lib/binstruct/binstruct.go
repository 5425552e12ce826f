// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package binstruct marshals and unmarshals fixed-layout on-disk
// structures.
//
// Struct fields are annotated with `bin:"off=OFFSET,siz=SIZE"` tags,
// which are checked against the field types when the struct is first
// used; a struct must end with a binstruct.End field that marks its
// total size.  Native integer kinds are encoded big-endian.
package binstruct

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"git.lukeshu.com/go/typedsync"

	"git.lukeshu.com/xfs-progs-ng/lib/binstruct/binint"
)

type (
	U8    = binint.U8
	U16be = binint.U16be
	U32be = binint.U32be
	U64be = binint.U64be
	I8    = binint.I8
	I16be = binint.I16be
	I32be = binint.I32be
	I64be = binint.I64be
)

var intKind2Type = map[reflect.Kind]reflect.Type{
	reflect.Uint8:  reflect.TypeOf(U8(0)),
	reflect.Int8:   reflect.TypeOf(I8(0)),
	reflect.Uint16: reflect.TypeOf(U16be(0)),
	reflect.Int16:  reflect.TypeOf(I16be(0)),
	reflect.Uint32: reflect.TypeOf(U32be(0)),
	reflect.Int32:  reflect.TypeOf(I32be(0)),
	reflect.Uint64: reflect.TypeOf(U64be(0)),
	reflect.Int64:  reflect.TypeOf(I64be(0)),
}

type End struct{}

var endType = reflect.TypeOf(End{})

type tag struct {
	skip bool

	off int
	siz int
}

func parseStructTag(str string) (tag, error) {
	var ret tag
	for _, part := range strings.Split(str, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "-" {
			return tag{skip: true}, nil
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return tag{}, fmt.Errorf("option is not a key=value pair: %q", part)
		}
		vint, err := strconv.ParseInt(val, 0, 0)
		if err != nil {
			return tag{}, fmt.Errorf("option %q: %w", key, err)
		}
		switch key {
		case "off":
			ret.off = int(vint)
		case "siz":
			ret.siz = int(vint)
		default:
			return tag{}, fmt.Errorf("unrecognized option %q", key)
		}
	}
	return ret, nil
}

type structField struct {
	name string
	tag
}

type structHandler struct {
	name   string
	Size   int
	fields []structField
}

func (sh structHandler) Unmarshal(dat []byte, dst reflect.Value) (int, error) {
	if len(dat) < sh.Size {
		return 0, &ShortBufferError{Struct: sh.name, Need: sh.Size, Have: len(dat)}
	}
	var n int
	for i, field := range sh.fields {
		if field.skip {
			continue
		}
		_n, err := Unmarshal(dat[n:], dst.Field(i).Addr().Interface())
		if err != nil {
			if _n >= 0 {
				n += _n
			}
			return n, sh.fieldErr(field, err)
		}
		if _n != field.siz {
			return n, sh.fieldErr(field, fmt.Errorf("consumed %v bytes but should have consumed %v bytes",
				_n, field.siz))
		}
		n += _n
	}
	return n, nil
}

func (sh structHandler) fieldErr(field structField, err error) error {
	return &FieldError{Struct: sh.name, Field: field.name, Offset: field.off, Err: err}
}

func (sh structHandler) Marshal(val reflect.Value) ([]byte, error) {
	ret := make([]byte, 0, sh.Size)
	for i, field := range sh.fields {
		if field.skip {
			continue
		}
		bs, err := Marshal(val.Field(i).Interface())
		ret = append(ret, bs...)
		if err != nil {
			return ret, sh.fieldErr(field, err)
		}
	}
	return ret, nil
}

func genStructHandler(structInfo reflect.Type) (structHandler, error) {
	ret := structHandler{
		name: structInfo.String(),
	}

	var curOffset, endOffset int
	for i := 0; i < structInfo.NumField(); i++ {
		fieldInfo := structInfo.Field(i)

		if fieldInfo.Anonymous && fieldInfo.Type != endType {
			return ret, fmt.Errorf("struct %q field %v %q: binstruct does not support embedded fields",
				ret.name, i, fieldInfo.Name)
		}

		fieldTag, err := parseStructTag(fieldInfo.Tag.Get("bin"))
		if err != nil {
			return ret, fmt.Errorf("struct %q field %v %q: %w",
				ret.name, i, fieldInfo.Name, err)
		}
		if fieldTag.skip {
			ret.fields = append(ret.fields, structField{
				name: fieldInfo.Name,
				tag:  fieldTag,
			})
			continue
		}

		if fieldTag.off != curOffset {
			return ret, fmt.Errorf("struct %q field %v %q: tag says off=%#x but curOffset=%#x",
				ret.name, i, fieldInfo.Name, fieldTag.off, curOffset)
		}
		if fieldInfo.Type == endType {
			endOffset = curOffset
		}

		fieldSize, err := staticSize(fieldInfo.Type)
		if err != nil {
			return ret, fmt.Errorf("struct %q field %v %q: %w",
				ret.name, i, fieldInfo.Name, err)
		}
		if fieldTag.siz != fieldSize {
			return ret, fmt.Errorf("struct %q field %v %q: tag says siz=%#x but StaticSize(typ)=%#x",
				ret.name, i, fieldInfo.Name, fieldTag.siz, fieldSize)
		}
		curOffset += fieldTag.siz

		ret.fields = append(ret.fields, structField{
			name: fieldInfo.Name,
			tag:  fieldTag,
		})
	}
	ret.Size = curOffset

	if ret.Size != endOffset {
		return ret, fmt.Errorf("struct %q: .Size=%v but endOffset=%v",
			ret.name, ret.Size, endOffset)
	}

	return ret, nil
}

// structCache is shared by every goroutine that touches on-disk
// structures (the per-AG repair workers in particular).
var structCache typedsync.Map[reflect.Type, structHandler]

func getStructHandler(typ reflect.Type) structHandler {
	if h, ok := structCache.Load(typ); ok {
		return h
	}
	h, err := genStructHandler(typ)
	if err != nil {
		panic(&InvalidTypeError{
			Type: typ,
			Err:  err,
		})
	}
	h, _ = structCache.LoadOrStore(typ, h)
	return h
}
