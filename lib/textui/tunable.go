// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui

// Tunable annotates a value as something that might want to be tuned
// as the program gets optimized.  Values that operators routinely
// need to change are exposed through lib/repairconf instead.
func Tunable[T any](x T) T {
	return x
}
