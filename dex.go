// SPDX-License-Identifier: AGPL-3.0-or-later
// © 2025 dex-go Contributors
// Part of dex-go — Licensed under AGPL-3.0-or-later.

package dex

/*
#cgo CFLAGS: -I${SRCDIR}
#cgo linux LDFLAGS: -ldl
#include "dex_abi.h"
*/
import "C"

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/dex-lang/dex-go/internal/envconfig"
	"github.com/dex-lang/dex-go/internal/logutil"
)

type symbols struct {
	init                  unsafe.Pointer
	fini                  unsafe.Pointer
	getError              unsafe.Pointer
	createContext         unsafe.Pointer
	destroyContext        unsafe.Pointer
	forkContext           unsafe.Pointer
	eval                  unsafe.Pointer
	lookup                unsafe.Pointer
	freshName             unsafe.Pointer
	print                 unsafe.Pointer
	toCAtom               unsafe.Pointer
	fromCAtom             unsafe.Pointer
	compile               unsafe.Pointer
	unload                unsafe.Pointer
	getFunctionSignature  unsafe.Pointer
	freeFunctionSignature unsafe.Pointer
	roundtripJaxprJSON    unsafe.Pointer
	compileJaxpr          unsafe.Pointer
	xlaCPUTrampoline      unsafe.Pointer
}

type symbolRef struct {
	name string
	dst  *unsafe.Pointer
}

func (s *symbols) refs() []symbolRef {
	return []symbolRef{
		{"dexInit", &s.init},
		{"dexFini", &s.fini},
		{"dexGetError", &s.getError},
		{"dexCreateContext", &s.createContext},
		{"dexDestroyContext", &s.destroyContext},
		{"dexForkContext", &s.forkContext},
		{"dexEval", &s.eval},
		{"dexLookup", &s.lookup},
		{"dexFreshName", &s.freshName},
		{"dexPrint", &s.print},
		{"dexToCAtom", &s.toCAtom},
		{"dexFromCAtom", &s.fromCAtom},
		{"dexCompile", &s.compile},
		{"dexUnload", &s.unload},
		{"dexGetFunctionSignature", &s.getFunctionSignature},
		{"dexFreeFunctionSignature", &s.freeFunctionSignature},
		{"dexRoundtripJaxprJson", &s.roundtripJaxprJSON},
		{"dexCompileJaxpr", &s.compileJaxpr},
		{"dexXLACPUTrampoline", &s.xlaCPUTrampoline},
	}
}

// Runtime is the process-wide handle on an initialized libDex.
type Runtime struct {
	path      string
	handle    unsafe.Pointer
	sym       symbols
	serialize bool

	// gate is held shared by native calls and exclusively by Shutdown.
	gate      sync.RWMutex
	finalized bool
	// serial orders native calls when serialize is set, so that dexGetError
	// is read by the call that failed.
	serial sync.Mutex
}

type loadOptions struct {
	serialize bool
}

// Option configures Load.
type Option func(*loadOptions)

// WithSerializedCalls controls whether native calls are issued one at a time.
// The default comes from DEX_SERIALIZE.
func WithSerializedCalls(on bool) Option {
	return func(o *loadOptions) {
		o.serialize = on
	}
}

var (
	processMu        sync.Mutex
	processRuntime   *Runtime
	processFinalized bool
)

// Load opens the shared library at path, checks the ABI layout, and runs
// dexInit. The native runtime can be initialized once per process: loading
// the same path again returns the existing Runtime, a different path fails
// with ErrAlreadyLoaded, and any Load after Shutdown fails with ErrFinalized.
// Options only apply to the first Load. A later Load that passes options
// the existing Runtime was not loaded with fails with ErrOptionMismatch.
func Load(path string, opts ...Option) (*Runtime, error) {
	o := loadOptions{serialize: envconfig.Serialize}
	for _, opt := range opts {
		opt(&o)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	processMu.Lock()
	defer processMu.Unlock()

	if processFinalized {
		return nil, ErrFinalized
	}
	if processRuntime != nil {
		if processRuntime.path != path {
			return nil, fmt.Errorf("%w: %s (requested %s)", ErrAlreadyLoaded, processRuntime.path, path)
		}
		if len(opts) > 0 && processRuntime.serialize != o.serialize {
			return nil, fmt.Errorf("%w: serialize=%t (requested %t)", ErrOptionMismatch, processRuntime.serialize, o.serialize)
		}
		return processRuntime, nil
	}

	if err := checkLayout(); err != nil {
		return nil, err
	}

	rt, err := open(path)
	if err != nil {
		return nil, err
	}
	rt.serialize = o.serialize

	slog.Debug("initializing dex runtime", "library", path, "serialize", rt.serialize)
	C.dex_call_void(rt.sym.init)
	processRuntime = rt
	return rt, nil
}

// Default loads the library named by DEX_LIBRARY, or the first libDex found
// on the search path.
func Default(opts ...Option) (*Runtime, error) {
	path, err := ResolveLibrary(envconfig.Library)
	if err != nil {
		return nil, err
	}
	return Load(path, opts...)
}

// Loaded returns the runtime initialized by an earlier Load.
func Loaded() (*Runtime, error) {
	processMu.Lock()
	defer processMu.Unlock()
	switch {
	case processFinalized:
		return nil, ErrFinalized
	case processRuntime == nil:
		return nil, ErrNotLoaded
	}
	return processRuntime, nil
}

func open(path string) (*Runtime, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	handle := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if handle == nil {
		return nil, fmt.Errorf("dex: unable to load %s: %s", path, C.GoString(C.dlerror()))
	}

	rt := &Runtime{path: path, handle: handle}
	for _, ref := range rt.sym.refs() {
		cname := C.CString(ref.name)
		*ref.dst = C.dlsym(handle, cname)
		C.free(unsafe.Pointer(cname))
		if *ref.dst == nil {
			C.dlclose(handle)
			return nil, fmt.Errorf("dex: unable to load symbol %s from %s", ref.name, path)
		}
	}
	return rt, nil
}

// checkLayout compares the Go mirrors against the C declarations the
// trampolines are compiled with.
func checkLayout() error {
	var atom C.CAtom
	checks := []LayoutError{
		{Type: "CLit", Got: uintptr(C.sizeof_CLit), Want: unsafe.Sizeof(Lit{})},
		{Type: "CRectArray", Got: uintptr(C.sizeof_CRectArray), Want: unsafe.Sizeof(RectArray{})},
		{Type: "CAtom", Got: uintptr(C.sizeof_CAtom), Want: unsafe.Sizeof(CAtom{})},
		{Type: "CAtom", Got: uintptr(C.sizeof_CAtom), Want: CAtomSize},
		{Type: "CAtom.payload offset", Got: unsafe.Offsetof(atom.payload), Want: unsafe.Offsetof(CAtom{}.payload)},
	}
	for _, c := range checks {
		if c.Got != c.Want {
			err := c
			return &err
		}
	}
	return nil
}

// Path returns the absolute path of the loaded library.
func (rt *Runtime) Path() string {
	return rt.path
}

// Shutdown runs dexFini. It is safe to call more than once; only the first
// call reaches the library. Afterwards releases of native objects are
// suppressed and every other call fails with ErrFinalized.
func (rt *Runtime) Shutdown() {
	rt.gate.Lock()
	defer rt.gate.Unlock()
	if rt.finalized {
		return
	}
	slog.Debug("finalizing dex runtime", "library", rt.path)
	C.dex_call_void(rt.sym.fini)
	rt.finalized = true

	processMu.Lock()
	processFinalized = true
	processMu.Unlock()
}

// Finalized reports whether Shutdown has run.
func (rt *Runtime) Finalized() bool {
	rt.gate.RLock()
	defer rt.gate.RUnlock()
	return rt.finalized
}

// enter must bracket every native call. The returned func releases the call.
func (rt *Runtime) enter() (func(), error) {
	rt.gate.RLock()
	if rt.finalized {
		rt.gate.RUnlock()
		return nil, ErrFinalized
	}
	if rt.serialize {
		rt.serial.Lock()
		return func() {
			rt.serial.Unlock()
			rt.gate.RUnlock()
		}, nil
	}
	return rt.gate.RUnlock, nil
}

// enterRelease is enter for destructors: after finalization the release is
// skipped rather than reported.
func (rt *Runtime) enterRelease(kind string) (func(), bool) {
	exit, err := rt.enter()
	if err != nil {
		logutil.Trace("suppressed native release after finalization", "kind", kind)
		return nil, false
	}
	return exit, true
}

// fail builds the error for a failed call. It must run before the call's
// exit func so the message belongs to this call.
func (rt *Runtime) fail(op string) error {
	msg := C.dex_call_get_error(rt.sym.getError)
	if msg == nil {
		return &Error{Op: op}
	}
	return &Error{Op: op, Message: sanitizeASCII([]byte(C.GoString(msg)))}
}

func cString(s string) (*C.char, error) {
	if err := CheckASCII(s); err != nil {
		return nil, err
	}
	return C.CString(s), nil
}

// takeString copies and frees a string allocated by libDex.
func takeString(p *C.char) (string, error) {
	defer C.free(unsafe.Pointer(p))
	return decodeASCII([]byte(C.GoString(p)))
}

// RoundtripJaxprJSON parses a serialized jaxpr in libDex and serializes it
// again. It is mostly useful to check that a jaxpr is accepted.
func (rt *Runtime) RoundtripJaxprJSON(jaxpr string) (string, error) {
	if !json.Valid([]byte(jaxpr)) {
		return "", ErrInvalidJaxpr
	}
	cjaxpr, err := cString(jaxpr)
	if err != nil {
		return "", err
	}
	defer C.free(unsafe.Pointer(cjaxpr))

	exit, err := rt.enter()
	if err != nil {
		return "", err
	}
	defer exit()

	out := C.dex_call_roundtrip_jaxpr_json(rt.sym.roundtripJaxprJSON, cjaxpr)
	if out == nil {
		return "", rt.fail("roundtrip_jaxpr_json")
	}
	return takeString(out)
}

// XLACPUTrampoline returns the address of dexXLACPUTrampoline, the custom
// call target that XLA uses to invoke functions compiled with XLACC.
func (rt *Runtime) XLACPUTrampoline() unsafe.Pointer {
	return rt.sym.xlaCPUTrampoline
}
