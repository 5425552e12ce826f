// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/xfs-progs-ng/lib/textui"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

func TestFprintfGroupsDigits(t *testing.T) {
	t.Parallel()
	var out strings.Builder
	_, _ = textui.Fprintf(&out, "%d slots, %v live", 12345, uint64(1048576))
	assert.Equal(t, "12,345 slots, 1,048,576 live", out.String())
}

func TestPortion(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "100% (0/0)", fmt.Sprint(textui.Portion[int]{}))
	assert.Equal(t, "0% (1/12,345)", fmt.Sprint(textui.Portion[int]{N: 1, D: 12345}))
	assert.Equal(t, "50% (64/128)", fmt.Sprint(textui.Portion[xfsprim.Ino]{N: 64, D: 128}))
}

func TestIEC(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "512B", textui.IEC(512, "B").String())
	assert.Equal(t, "1.5KiB", textui.IEC(1536, "B").String())
	assert.Equal(t, "256KiB", textui.IEC(xfsprim.PhysicalAddr(256*1024), "B").String())
	assert.Equal(t, "1.00MiB", fmt.Sprintf("%.2v", textui.IEC(1<<20, "B")))
	assert.Equal(t, "   1KiB", fmt.Sprintf("%7v", textui.IEC(1024, "B")))
	assert.Equal(t, "1KiB   ", fmt.Sprintf("%-7v", textui.IEC(1024, "B")))
}
