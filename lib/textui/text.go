// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package textui implements utilities for emitting human-friendly
// text on stdout and stderr.
package textui

import (
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/exp/constraints"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// printer groups the digits of every integer it prints.  Inode
// numbers opt out of that through their own Format methods.
var printer = message.NewPrinter(language.English)

// Fprintf is fmt.Fprintf with digit grouping.  Use it for output meant
// for a person; use plain fmt for anything a script might parse.
func Fprintf(w io.Writer, key string, a ...any) (n int, err error) {
	return printer.Fprintf(w, key, a...)
}

// Sprintf is to Fprintf as fmt.Sprintf is to fmt.Fprintf.
func Sprintf(key string, a ...any) string {
	return printer.Sprintf(key, a...)
}

// Portion is a count of done-out-of-total, shown as a whole
// percentage followed by the exact counts, e.g. "3% (64/2,048)".  An
// empty total counts as complete.
type Portion[T constraints.Integer] struct {
	N, D T
}

var _ fmt.Stringer = Portion[int]{}

func (p Portion[T]) String() string {
	n, d := uint64(p.N), uint64(p.D)
	pct := uint64(100)
	if d > 0 {
		pct = n * 100 / d
	}
	return printer.Sprintf("%d%% (%d/%d)", pct, n, d)
}

var iecPrefixes = [...]string{"Ki", "Mi", "Gi", "Ti", "Pi", "Ei"}

type iec struct {
	val  float64
	unit string
}

var (
	_ fmt.Formatter = iec{}
	_ fmt.Stringer  = iec{}
)

// IEC scales x by powers of 1024 for display, e.g. IEC(1536, "B")
// prints as "1.5KiB".  The format precision, if any, fixes the
// number of decimal places; the width pads the whole string.
func IEC[T constraints.Integer | constraints.Float](x T, unit string) iec {
	return iec{val: float64(x), unit: unit}
}

func (v iec) Format(f fmt.State, _ rune) {
	val, prefix := v.val, ""
	for i := 0; i < len(iecPrefixes) && math.Abs(val) >= 1024; i++ {
		val /= 1024
		prefix = iecPrefixes[i]
	}
	var opts []number.Option
	if prec, ok := f.Precision(); ok {
		opts = append(opts, number.Scale(prec))
	}
	str := printer.Sprintf("%v%s", number.Decimal(val, opts...), prefix+v.unit)
	if width, ok := f.Width(); ok && width > len([]rune(str)) {
		pad := strings.Repeat(" ", width-len([]rune(str)))
		if f.Flag('-') {
			str += pad
		} else {
			str = pad + str
		}
	}
	_, _ = io.WriteString(f, str)
}

func (v iec) String() string {
	return fmt.Sprint(v)
}
