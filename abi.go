// SPDX-License-Identifier: AGPL-3.0-or-later
// © 2025 dex-go Contributors
// Part of dex-go — Licensed under AGPL-3.0-or-later.

package dex

import (
	"fmt"
	"math"
	"unsafe"
)

// Sizes of the ABI structs shared with libDex.
const (
	LitSize       = 16
	RectArraySize = 24
	CAtomSize     = 4 * 8
)

// Compile-time layout checks for the Go mirrors.
var (
	_ [unsafe.Sizeof(Lit{}) - LitSize]struct{}
	_ [LitSize - unsafe.Sizeof(Lit{})]struct{}
	_ [unsafe.Sizeof(RectArray{}) - RectArraySize]struct{}
	_ [RectArraySize - unsafe.Sizeof(RectArray{})]struct{}
	_ [unsafe.Sizeof(CAtom{}) - CAtomSize]struct{}
	_ [CAtomSize - unsafe.Sizeof(CAtom{})]struct{}
)

// ScalarType is the tag of a Lit. The numbering is fixed by the native ABI.
type ScalarType uint64

const (
	Int64 ScalarType = iota
	Int32
	Uint8
	Float64
	Float32
	Uint32
	Uint64
)

var scalarNames = [...]string{
	Int64:   "i64",
	Int32:   "i32",
	Uint8:   "u8",
	Float64: "f64",
	Float32: "f32",
	Uint32:  "u32",
	Uint64:  "u64",
}

var scalarSizes = [...]int{
	Int64:   8,
	Int32:   4,
	Uint8:   1,
	Float64: 8,
	Float32: 4,
	Uint32:  4,
	Uint64:  8,
}

// Valid reports whether t is one of the tags known to the ABI.
func (t ScalarType) Valid() bool {
	return t <= Uint64
}

// String returns the short name used in Dex function signatures, e.g. "f32".
func (t ScalarType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("ScalarType(%d)", uint64(t))
	}
	return scalarNames[t]
}

// Size returns the width of the scalar in bytes.
func (t ScalarType) Size() int {
	if !t.Valid() {
		return 0
	}
	return scalarSizes[t]
}

func (t ScalarType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("dex: invalid scalar type %d", uint64(t))
	}
	return []byte(t.String()), nil
}

func (t *ScalarType) UnmarshalText(text []byte) error {
	parsed, err := ParseScalarType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseScalarType maps a signature name such as "i32" to its ScalarType.
func ParseScalarType(name string) (ScalarType, error) {
	for i, n := range scalarNames {
		if n == name {
			return ScalarType(i), nil
		}
	}
	return 0, fmt.Errorf("dex: unknown scalar type %q", name)
}

// Lit mirrors the native scalar literal: a tag followed by an 8 byte union.
type Lit struct {
	Tag     ScalarType
	payload [8]byte
}

func (l *Lit) slot() unsafe.Pointer {
	return unsafe.Pointer(&l.payload[0])
}

func Int64Lit(v int64) Lit {
	l := Lit{Tag: Int64}
	*(*int64)(l.slot()) = v
	return l
}

func Int32Lit(v int32) Lit {
	l := Lit{Tag: Int32}
	*(*int32)(l.slot()) = v
	return l
}

func Uint8Lit(v uint8) Lit {
	l := Lit{Tag: Uint8}
	*(*uint8)(l.slot()) = v
	return l
}

func Float64Lit(v float64) Lit {
	l := Lit{Tag: Float64}
	*(*float64)(l.slot()) = v
	return l
}

func Float32Lit(v float32) Lit {
	l := Lit{Tag: Float32}
	*(*float32)(l.slot()) = v
	return l
}

func Uint32Lit(v uint32) Lit {
	l := Lit{Tag: Uint32}
	*(*uint32)(l.slot()) = v
	return l
}

func Uint64Lit(v uint64) Lit {
	l := Lit{Tag: Uint64}
	*(*uint64)(l.slot()) = v
	return l
}

// LitOf builds a Lit from a Go value of one of the supported scalar kinds.
func LitOf(v any) (Lit, error) {
	switch x := v.(type) {
	case int64:
		return Int64Lit(x), nil
	case int32:
		return Int32Lit(x), nil
	case uint8:
		return Uint8Lit(x), nil
	case float64:
		return Float64Lit(x), nil
	case float32:
		return Float32Lit(x), nil
	case uint32:
		return Uint32Lit(x), nil
	case uint64:
		return Uint64Lit(x), nil
	case int:
		return Int64Lit(int64(x)), nil
	case bool:
		if x {
			return Uint8Lit(1), nil
		}
		return Uint8Lit(0), nil
	default:
		return Lit{}, fmt.Errorf("dex: unsupported literal type %T", v)
	}
}

// Value returns the literal as the Go type matching its tag.
func (l Lit) Value() any {
	p := l.slot()
	switch l.Tag {
	case Int64:
		return *(*int64)(p)
	case Int32:
		return *(*int32)(p)
	case Uint8:
		return *(*uint8)(p)
	case Float64:
		return *(*float64)(p)
	case Float32:
		return *(*float32)(p)
	case Uint32:
		return *(*uint32)(p)
	case Uint64:
		return *(*uint64)(p)
	}
	return nil
}

// Float64 converts any numeric literal to float64.
func (l Lit) Float64() (float64, bool) {
	switch v := l.Value().(type) {
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint8:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// Int64 converts integral literals to int64. Floats and uint64 values above
// MaxInt64 are rejected.
func (l Lit) Int64() (int64, bool) {
	switch v := l.Value().(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

func (l Lit) String() string {
	if !l.Tag.Valid() {
		return fmt.Sprintf("Lit(tag=%d)", uint64(l.Tag))
	}
	return fmt.Sprintf("%v:%s", l.Value(), l.Tag)
}

// RectArray mirrors the native rectangular array descriptor. Shape and
// Strides point at rank-many int64 values; strides are counted in elements.
// The pointers are not traced by the Go collector once stored in a CAtom, so
// they should reference C memory (see Array) or memory the caller keeps alive.
type RectArray struct {
	Data    unsafe.Pointer
	Shape   *int64
	Strides *int64
}

// AtomKind is the tag of a CAtom.
type AtomKind uint64

const (
	KindLit AtomKind = iota
	KindRectArray
)

func (k AtomKind) String() string {
	switch k {
	case KindLit:
		return "lit"
	case KindRectArray:
		return "rect_array"
	}
	return fmt.Sprintf("AtomKind(%d)", uint64(k))
}

// CAtom mirrors the native atom union exchanged by dexToCAtom and
// dexFromCAtom.
type CAtom struct {
	Kind    AtomKind
	payload [RectArraySize]byte
}

func LitAtom(l Lit) CAtom {
	a := CAtom{Kind: KindLit}
	*(*Lit)(unsafe.Pointer(&a.payload[0])) = l
	return a
}

func RectArrayAtom(ra RectArray) CAtom {
	a := CAtom{Kind: KindRectArray}
	*(*RectArray)(unsafe.Pointer(&a.payload[0])) = ra
	return a
}

// Lit returns the literal payload when the atom holds one.
func (a CAtom) Lit() (Lit, bool) {
	if a.Kind != KindLit {
		return Lit{}, false
	}
	return *(*Lit)(unsafe.Pointer(&a.payload[0])), true
}

// RectArray returns the array payload when the atom holds one.
func (a CAtom) RectArray() (RectArray, bool) {
	if a.Kind != KindRectArray {
		return RectArray{}, false
	}
	return *(*RectArray)(unsafe.Pointer(&a.payload[0])), true
}

func (a CAtom) String() string {
	switch a.Kind {
	case KindLit:
		l, _ := a.Lit()
		return l.String()
	case KindRectArray:
		ra, _ := a.RectArray()
		return fmt.Sprintf("RectArray(data=%p)", ra.Data)
	}
	return a.Kind.String()
}

// ExportCC selects the calling convention used when compiling a function for
// export.
type ExportCC int32

const (
	FlatCC ExportCC = 0
	XLACC  ExportCC = 1
)

func (cc ExportCC) String() string {
	switch cc {
	case FlatCC:
		return "flat"
	case XLACC:
		return "xla"
	}
	return fmt.Sprintf("ExportCC(%d)", int32(cc))
}

func (cc ExportCC) MarshalText() ([]byte, error) {
	if cc != FlatCC && cc != XLACC {
		return nil, fmt.Errorf("dex: invalid calling convention %d", int32(cc))
	}
	return []byte(cc.String()), nil
}

func (cc *ExportCC) UnmarshalText(text []byte) error {
	parsed, err := ParseExportCC(string(text))
	if err != nil {
		return err
	}
	*cc = parsed
	return nil
}

// ParseExportCC accepts "flat" or "xla". An empty name selects FlatCC.
func ParseExportCC(name string) (ExportCC, error) {
	switch name {
	case "", "flat":
		return FlatCC, nil
	case "xla":
		return XLACC, nil
	}
	return 0, fmt.Errorf("dex: unknown calling convention %q (want flat or xla)", name)
}
