// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsrepair

import (
	"fmt"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

// InvariantViolationError is returned when an earlier phase or the
// journal broke a contract that phase 7 relies on.  It always ends
// the run.
type InvariantViolationError struct {
	AG   xfsprim.AgNumber
	Ino  xfsprim.Ino
	What string
	Err  error
}

func (e *InvariantViolationError) Error() string {
	msg := fmt.Sprintf("AG %v inode %v: %s", e.AG, e.Ino, e.What)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvariantViolationError) Unwrap() error { return e.Err }

// ResolutionError is returned when an inode cannot be mapped or
// loaded.  It ends a repairing run; a verify-only run logs it and
// moves on.
type ResolutionError struct {
	Ino xfsprim.Ino
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("couldn't map inode %v, err = %v", e.Ino, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
