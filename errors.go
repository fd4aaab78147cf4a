// SPDX-License-Identifier: AGPL-3.0-or-later
// © 2025 dex-go Contributors
// Part of dex-go — Licensed under AGPL-3.0-or-later.

package dex

import (
	"errors"
	"fmt"
)

var (
	ErrNotLoaded      = errors.New("dex: runtime is not loaded")
	ErrAlreadyLoaded  = errors.New("dex: a different runtime library is already loaded")
	ErrOptionMismatch = errors.New("dex: runtime is already loaded with different options")
	ErrFinalized      = errors.New("dex: runtime has been finalized")
	ErrClosed         = errors.New("dex: handle is closed")
	ErrNonASCII       = errors.New("dex: string is not ASCII")
	ErrInvalidJaxpr   = errors.New("dex: jaxpr is not valid JSON")
)

// Error reports a failure signalled by libDex. Message is the text returned by
// dexGetError at the time of the failure.
type Error struct {
	Op      string
	Message string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("dex: %s: %s", e.Op, msg)
}

// LayoutError reports a size or offset mismatch between the Go mirrors and
// the C declarations. It means the binding and the native library disagree
// on the ABI, and the runtime must not be initialized.
type LayoutError struct {
	Type string
	Got  uintptr
	Want uintptr
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("dex: ABI layout mismatch for %s: got %d bytes, want %d", e.Type, e.Got, e.Want)
}
