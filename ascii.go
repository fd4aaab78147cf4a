// SPDX-License-Identifier: AGPL-3.0-or-later
// © 2025 dex-go Contributors
// Part of dex-go — Licensed under AGPL-3.0-or-later.

package dex

import (
	"fmt"
	"strings"
)

// CheckASCII reports whether s can be passed to libDex as a NUL-terminated
// ASCII buffer. The error wraps ErrNonASCII and names the offending offset.
func CheckASCII(s string) error {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == 0:
			return fmt.Errorf("%w: NUL byte at offset %d", ErrNonASCII, i)
		case c >= 0x80:
			return fmt.Errorf("%w: byte 0x%02x at offset %d", ErrNonASCII, c, i)
		}
	}
	return nil
}

// decodeASCII converts a buffer produced by libDex into a Go string.
func decodeASCII(b []byte) (string, error) {
	for i, c := range b {
		if c >= 0x80 {
			return "", fmt.Errorf("%w: native string has byte 0x%02x at offset %d", ErrNonASCII, c, i)
		}
	}
	return string(b), nil
}

// sanitizeASCII is decodeASCII for diagnostics: bytes outside ASCII become
// U+FFFD instead of failing, so an error message is never lost.
func sanitizeASCII(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c >= 0x80 {
			sb.WriteRune('�')
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
