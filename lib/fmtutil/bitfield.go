// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fmtutil

import (
	"fmt"
	"strings"
)

// Flag names one or more bits of a flag word.
type Flag[T ~uint8 | ~uint16 | ~uint32 | ~uint64] struct {
	Mask T
	Name string
}

// FlagsString renders v as "NAME|NAME", in table order.  Bits that no
// entry names are appended as a single hex term; an empty word is
// "none".
func FlagsString[T ~uint8 | ~uint16 | ~uint32 | ~uint64](v T, table []Flag[T]) string {
	if v == 0 {
		return "none"
	}
	var parts []string
	rest := v
	for _, flag := range table {
		if flag.Mask != 0 && v&flag.Mask == flag.Mask {
			parts = append(parts, flag.Name)
			rest &^= flag.Mask
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint64(rest)))
	}
	return strings.Join(parts, "|")
}
