// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package binstruct

import (
	"fmt"
	"io"
	"reflect"
)

// InvalidTypeError is a programmer error: the type cannot be given a
// static on-disk layout.
type InvalidTypeError struct {
	Type reflect.Type
	Err  error
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("binstruct: invalid type %v: %v", e.Type, e.Err)
}
func (e *InvalidTypeError) Unwrap() error { return e.Err }

// CodecError wraps an error returned by a type's own MarshalBinary or
// UnmarshalBinary method.
type CodecError struct {
	Op     string // "marshal" or "unmarshal"
	Type   reflect.Type
	Method string
	Err    error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s (%v).%s: %v", e.Op, e.Type, e.Method, e.Err)
}
func (e *CodecError) Unwrap() error { return e.Err }

// FieldError locates a failure at one field of an on-disk structure.
type FieldError struct {
	Struct string
	Field  string
	Offset int
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s (off=%#x): %v", e.Struct, e.Field, e.Offset, e.Err)
}
func (e *FieldError) Unwrap() error { return e.Err }

// ShortBufferError is returned when there are fewer bytes than a
// structure's static size.  It matches io.ErrUnexpectedEOF.
type ShortBufferError struct {
	Struct string
	Need   int
	Have   int
}

func (e *ShortBufferError) Error() string {
	return fmt.Sprintf("%s: need %v bytes, only have %v", e.Struct, e.Need, e.Have)
}
func (e *ShortBufferError) Unwrap() error { return io.ErrUnexpectedEOF }
