// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fmtutil_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/xfs-progs-ng/lib/fmtutil"
)

// capture records the directive it was formatted with.
type capture struct {
	directive string
}

func (c *capture) Format(st fmt.State, verb rune) {
	c.directive = fmtutil.FmtStateString(st, verb)
}

func TestFmtStateString(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"bare":       "%v",
		"width":      "%8d",
		"left":       "%-8.2f",
		"sharp":      "%#x",
		"plus":       "%+d",
		"zero-pad":   "%08d",
		"space":      "% x",
		"zero-prec":  "%.s",
		"inode-mask": "%#016x",
	}
	for tcName, in := range testcases {
		in := in
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			var c capture
			assert.Equal(t, "", fmt.Sprintf(in, &c))
			assert.Equal(t, in, c.directive)

			// The reconstructed directive must parse the same way.
			var again capture
			assert.Equal(t, "", fmt.Sprintf(c.directive, &again))
			assert.Equal(t, c.directive, again.directive)
		})
	}
}

func TestFlagsString(t *testing.T) {
	t.Parallel()
	table := []fmtutil.Flag[uint16]{
		{0x01, "ATTR"},
		{0x02, "NLINK"},
		{0x04, "ALIGN"},
		{0x30, "PAIR"},
	}
	assert.Equal(t, "none", fmtutil.FlagsString(uint16(0), table))
	assert.Equal(t, "ATTR|ALIGN", fmtutil.FlagsString(uint16(0b101), table))
	assert.Equal(t, "NLINK|0x10", fmtutil.FlagsString(uint16(0x12), table))
	assert.Equal(t, "PAIR|0x100", fmtutil.FlagsString(uint16(0x130), table))
}
