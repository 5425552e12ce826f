// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsrepair

import (
	"fmt"
)

// Outcome is what updateInodeNlinks did with one inode.
type Outcome int

const (
	// Unchanged: the on-disk count already matched; the
	// transaction was cancelled.
	Unchanged Outcome = iota
	// Corrected: the count was rewritten and committed.
	Corrected
	// WouldCorrect: verify-only run found a mismatch.
	WouldCorrect
	// Orphanage: the inode is the orphanage and was left alone.
	Orphanage
	// Unresolved: verify-only run could not load the inode.
	Unresolved
)

var outcomeNames = []string{
	Unchanged:    "unchanged",
	Corrected:    "corrected",
	WouldCorrect: "would-correct",
	Orphanage:    "orphanage",
	Unresolved:   "unresolved",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
	return outcomeNames[o]
}
