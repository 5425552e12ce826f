// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fmtutil provides helpers for implementing fmt.Formatter.
package fmtutil

import (
	"fmt"
	"strconv"
)

// FmtStateString rebuilds the directive (such as "%-8.2f") that
// produced st and verb, so that a Formatter can hand its operands
// back to Printf unchanged.
func FmtStateString(st fmt.State, verb rune) string {
	buf := []byte{'%'}
	for _, flag := range "-+# 0" {
		if st.Flag(int(flag)) {
			buf = append(buf, byte(flag))
		}
	}
	if width, ok := st.Width(); ok {
		buf = strconv.AppendInt(buf, int64(width), 10)
	}
	if prec, ok := st.Precision(); ok {
		buf = append(buf, '.')
		if prec > 0 {
			buf = strconv.AppendInt(buf, int64(prec), 10)
		}
	}
	return string(append(buf, string(verb)...))
}
