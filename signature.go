// SPDX-License-Identifier: AGPL-3.0-or-later
// © 2025 dex-go Contributors
// Part of dex-go — Licensed under AGPL-3.0-or-later.

package dex

import (
	"fmt"
	"strconv"
	"strings"
)

// Dim is one array dimension: a fixed size, or the name of an integer
// argument that carries the size at call time.
type Dim struct {
	Size int
	Name string
}

// Symbolic reports whether the dimension refers to another binder.
func (d Dim) Symbolic() bool {
	return d.Name != ""
}

func (d Dim) String() string {
	if d.Symbolic() {
		return d.Name
	}
	return strconv.Itoa(d.Size)
}

func (d Dim) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Dim) UnmarshalText(text []byte) error {
	s := string(text)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return fmt.Errorf("dex: negative dimension %d", n)
		}
		*d = Dim{Size: n}
		return nil
	}
	if !isName(s) {
		return fmt.Errorf("dex: invalid dimension %q", s)
	}
	*d = Dim{Name: s}
	return nil
}

// Binder is one argument or result of a compiled function.
type Binder struct {
	Name     string     `json:"name" yaml:"name"`
	Type     ScalarType `json:"type" yaml:"type"`
	Shape    []Dim      `json:"shape,omitempty" yaml:"shape,omitempty"`
	Implicit bool       `json:"implicit,omitempty" yaml:"implicit,omitempty"`
}

// Rank is the number of array dimensions; scalars have rank zero.
func (b Binder) Rank() int {
	return len(b.Shape)
}

func (b Binder) String() string {
	var sb strings.Builder
	if b.Implicit {
		sb.WriteByte('?')
	}
	sb.WriteString(b.Name)
	sb.WriteByte(':')
	sb.WriteString(b.Type.String())
	if len(b.Shape) > 0 {
		sb.WriteByte('[')
		for i, d := range b.Shape {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(d.String())
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// CType is one entry of the C-level calling sequence.
type CType struct {
	Scalar  ScalarType
	Pointer bool
}

func (t CType) String() string {
	if t.Pointer {
		return t.Scalar.String() + "*"
	}
	return t.Scalar.String()
}

func (t CType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *CType) UnmarshalText(text []byte) error {
	types, err := ParseCCall(string(text))
	if err != nil {
		return err
	}
	if len(types) != 1 {
		return fmt.Errorf("dex: expected one C type, got %d", len(types))
	}
	*t = types[0]
	return nil
}

// Signature is the parsed form of a RawSignature.
type Signature struct {
	Args    []Binder `json:"args" yaml:"args"`
	Results []Binder `json:"results" yaml:"results"`
	CCall   []CType  `json:"ccall" yaml:"ccall"`
}

// ExplicitArgs returns the arguments a caller supplies directly. Implicit
// arguments are sizes inferred from the explicit array arguments.
func (s *Signature) ExplicitArgs() []Binder {
	out := make([]Binder, 0, len(s.Args))
	for _, a := range s.Args {
		if !a.Implicit {
			out = append(out, a)
		}
	}
	return out
}

// Raw renders the signature back into the native string form.
func (s *Signature) Raw() RawSignature {
	ccall := make([]string, len(s.CCall))
	for i, t := range s.CCall {
		ccall[i] = t.String()
	}
	return RawSignature{
		Arg:   joinBinders(s.Args),
		Res:   joinBinders(s.Results),
		CCall: strings.Join(ccall, ","),
	}
}

func (s *Signature) String() string {
	raw := s.Raw()
	return fmt.Sprintf("(%s) -> (%s)", raw.Arg, raw.Res)
}

func joinBinders(bs []Binder) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = b.String()
	}
	return strings.Join(parts, ",")
}

// SignatureError reports malformed signature text.
type SignatureError struct {
	Field  string
	Input  string
	Offset int
	Msg    string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("dex: bad %s signature %q at offset %d: %s", e.Field, e.Input, e.Offset, e.Msg)
}

// ParseSignature parses all three fields of a raw signature.
func ParseSignature(raw RawSignature) (*Signature, error) {
	args, err := parseBinders("arg", raw.Arg)
	if err != nil {
		return nil, err
	}
	results, err := parseBinders("res", raw.Res)
	if err != nil {
		return nil, err
	}
	ccall, err := ParseCCall(raw.CCall)
	if err != nil {
		return nil, err
	}
	return &Signature{Args: args, Results: results, CCall: ccall}, nil
}

// ParseBinders parses a comma separated binder list such as
// "?n:i32,x:f32[n,3]".
func ParseBinders(s string) ([]Binder, error) {
	return parseBinders("binder", s)
}

func parseBinders(field, s string) ([]Binder, error) {
	p := &sigScanner{field: field, src: s}
	p.skipSpaces()
	if p.done() {
		return []Binder{}, nil
	}
	var out []Binder
	for {
		b, err := p.binder()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
		p.skipSpaces()
		if p.done() {
			return out, nil
		}
		if !p.accept(',') {
			return nil, p.errorf("expected ',' after binder %q", b.Name)
		}
	}
}

// ParseCCall parses the C calling sequence, e.g. "i32,f32*,f32*".
func ParseCCall(s string) ([]CType, error) {
	p := &sigScanner{field: "ccall", src: s}
	p.skipSpaces()
	if p.done() {
		return []CType{}, nil
	}
	var out []CType
	for {
		p.skipSpaces()
		start := p.pos
		name := p.name()
		if name == "" {
			return nil, p.errorf("expected C type")
		}
		scalar, err := ParseScalarType(name)
		if err != nil {
			p.pos = start
			return nil, p.errorf("unknown scalar type %q", name)
		}
		t := CType{Scalar: scalar}
		p.skipSpaces()
		if p.accept('*') {
			t.Pointer = true
			p.skipSpaces()
		}
		out = append(out, t)
		if p.done() {
			return out, nil
		}
		if !p.accept(',') {
			return nil, p.errorf("expected ',' after C type")
		}
	}
}

type sigScanner struct {
	field string
	src   string
	pos   int
}

func (p *sigScanner) errorf(format string, args ...any) error {
	return &SignatureError{Field: p.field, Input: p.src, Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *sigScanner) done() bool {
	return p.pos >= len(p.src)
}

func (p *sigScanner) peek() byte {
	if p.done() {
		return 0
	}
	return p.src[p.pos]
}

func (p *sigScanner) accept(c byte) bool {
	if p.peek() == c && !p.done() {
		p.pos++
		return true
	}
	return false
}

func (p *sigScanner) skipSpaces() {
	for !p.done() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *sigScanner) name() string {
	start := p.pos
	for !p.done() && isNameByte(p.src[p.pos], p.pos == start) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *sigScanner) binder() (Binder, error) {
	var b Binder
	p.skipSpaces()
	if p.accept('?') {
		b.Implicit = true
	}
	b.Name = p.name()
	if b.Name == "" {
		return Binder{}, p.errorf("expected binder name")
	}
	p.skipSpaces()
	if !p.accept(':') {
		return Binder{}, p.errorf("expected ':' after %q", b.Name)
	}
	p.skipSpaces()
	start := p.pos
	typeName := p.name()
	scalar, err := ParseScalarType(typeName)
	if err != nil {
		p.pos = start
		return Binder{}, p.errorf("unknown scalar type %q", typeName)
	}
	b.Type = scalar
	p.skipSpaces()
	if p.accept('[') {
		shape, err := p.dims()
		if err != nil {
			return Binder{}, err
		}
		b.Shape = shape
	}
	return b, nil
}

func (p *sigScanner) dims() ([]Dim, error) {
	var shape []Dim
	for {
		p.skipSpaces()
		start := p.pos
		for !p.done() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		if p.pos > start {
			n, err := strconv.Atoi(p.src[start:p.pos])
			if err != nil {
				p.pos = start
				return nil, p.errorf("bad dimension: %v", err)
			}
			shape = append(shape, Dim{Size: n})
		} else {
			name := p.name()
			if name == "" {
				return nil, p.errorf("expected dimension")
			}
			shape = append(shape, Dim{Name: name})
		}
		p.skipSpaces()
		switch {
		case p.accept(','):
		case p.accept(']'):
			return shape, nil
		default:
			return nil, p.errorf("expected ',' or ']' in shape")
		}
	}
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9', c == '\'':
		return !first
	}
	return false
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i], i == 0) {
			return false
		}
	}
	return true
}
