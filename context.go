// SPDX-License-Identifier: AGPL-3.0-or-later
// © 2025 dex-go Contributors
// Part of dex-go — Licensed under AGPL-3.0-or-later.

package dex

/*
#cgo CFLAGS: -I${SRCDIR}
#include "dex_abi.h"
*/
import "C"

import (
	"runtime"
	"unsafe"
)

// Context owns an evaluation environment allocated by libDex. Fork, Lookup,
// Print, and Compile only read the context and may overlap; Eval and Close
// must not run concurrently with anything else on the same Context. Fork it
// to evaluate in parallel.
type Context struct {
	rt  *Runtime
	ptr *C.HsContext
}

func newContext(rt *Runtime, ptr *C.HsContext) *Context {
	c := &Context{rt: rt, ptr: ptr}
	runtime.SetFinalizer(c, func(c *Context) {
		c.Close()
	})
	return c
}

// NewContext creates an empty top-level context.
func (rt *Runtime) NewContext() (*Context, error) {
	exit, err := rt.enter()
	if err != nil {
		return nil, err
	}
	defer exit()

	ptr := C.dex_call_create_context(rt.sym.createContext)
	if ptr == nil {
		return nil, rt.fail("create_context")
	}
	return newContext(rt, ptr), nil
}

// Runtime returns the runtime the context belongs to.
func (c *Context) Runtime() *Runtime {
	return c.rt
}

// Close destroys the native context. Subsequent calls are safe. After the
// runtime is finalized the native release is skipped.
func (c *Context) Close() {
	if c == nil || c.ptr == nil {
		return
	}
	ptr := c.ptr
	c.ptr = nil
	runtime.SetFinalizer(c, nil)

	exit, ok := c.rt.enterRelease("context")
	if !ok {
		return
	}
	defer exit()
	C.dex_call_destroy_context(c.rt.sym.destroyContext, ptr)
}

// Fork returns an independent copy of the context. Evaluating in the fork
// does not affect c.
func (c *Context) Fork() (*Context, error) {
	if c == nil || c.ptr == nil {
		return nil, ErrClosed
	}
	exit, err := c.rt.enter()
	if err != nil {
		return nil, err
	}
	defer exit()

	ptr := C.dex_call_fork_context(c.rt.sym.forkContext, c.ptr)
	if ptr == nil {
		return nil, c.rt.fail("fork_context")
	}
	return newContext(c.rt, ptr), nil
}

// Eval evaluates Dex source in the context. Top-level definitions become
// visible to later Lookup and Eval calls on the same context.
func (c *Context) Eval(source string) error {
	if c == nil || c.ptr == nil {
		return ErrClosed
	}
	csource, err := cString(source)
	if err != nil {
		return err
	}
	defer C.free(unsafe.Pointer(csource))

	exit, err := c.rt.enter()
	if err != nil {
		return err
	}
	defer exit()

	if C.dex_call_eval(c.rt.sym.eval, c.ptr, csource) == 0 {
		return c.rt.fail("eval")
	}
	return nil
}

// Lookup resolves a top-level name.
func (c *Context) Lookup(name string) (*Atom, error) {
	if c == nil || c.ptr == nil {
		return nil, ErrClosed
	}
	cname, err := cString(name)
	if err != nil {
		return nil, err
	}
	defer C.free(unsafe.Pointer(cname))

	exit, err := c.rt.enter()
	if err != nil {
		return nil, err
	}
	defer exit()

	ptr := C.dex_call_lookup(c.rt.sym.lookup, c.ptr, cname)
	if ptr == nil {
		return nil, c.rt.fail("lookup " + name)
	}
	return &Atom{ctx: c, ptr: ptr}, nil
}

// FreshName returns a name that is not bound in the context.
func (c *Context) FreshName() (string, error) {
	if c == nil || c.ptr == nil {
		return "", ErrClosed
	}
	exit, err := c.rt.enter()
	if err != nil {
		return "", err
	}
	defer exit()

	out := C.dex_call_fresh_name(c.rt.sym.freshName, c.ptr)
	if out == nil {
		return "", c.rt.fail("fresh_name")
	}
	return takeString(out)
}

// Print renders an atom with the Dex pretty printer.
func (c *Context) Print(a *Atom) (string, error) {
	if c == nil || c.ptr == nil {
		return "", ErrClosed
	}
	if !a.live() {
		return "", ErrClosed
	}
	exit, err := c.rt.enter()
	if err != nil {
		return "", err
	}
	defer exit()

	out := C.dex_call_print(c.rt.sym.print, c.ptr, a.ptr)
	if out == nil {
		return "", c.rt.fail("print")
	}
	return takeString(out)
}

// FromCAtom builds a Dex atom from a C atom. Array data referenced by the
// atom is read during the call.
func (c *Context) FromCAtom(atom CAtom) (*Atom, error) {
	if c == nil || c.ptr == nil {
		return nil, ErrClosed
	}
	in := (*C.CAtom)(C.malloc(C.sizeof_CAtom))
	defer C.free(unsafe.Pointer(in))
	*(*CAtom)(unsafe.Pointer(in)) = atom

	exit, err := c.rt.enter()
	if err != nil {
		return nil, err
	}
	defer exit()

	ptr := C.dex_call_from_catom(c.rt.sym.fromCAtom, in)
	if ptr == nil {
		return nil, c.rt.fail("from_catom")
	}
	return &Atom{ctx: c, ptr: ptr}, nil
}

// Compile compiles a function atom into native code using the given calling
// convention.
func (c *Context) Compile(cc ExportCC, fn *Atom) (*NativeFunction, error) {
	if c == nil || c.ptr == nil {
		return nil, ErrClosed
	}
	if !fn.live() {
		return nil, ErrClosed
	}
	exit, err := c.rt.enter()
	if err != nil {
		return nil, err
	}
	defer exit()

	ptr := C.dex_call_compile(c.rt.sym.compile, c.ptr, C.int32_t(cc), fn.ptr)
	if ptr == nil {
		return nil, c.rt.fail("compile")
	}
	return newNativeFunction(c, ptr, cc), nil
}

// CompileJaxpr compiles a serialized jaxpr into native code.
func (c *Context) CompileJaxpr(cc ExportCC, jaxpr string) (*NativeFunction, error) {
	if c == nil || c.ptr == nil {
		return nil, ErrClosed
	}
	cjaxpr, err := cString(jaxpr)
	if err != nil {
		return nil, err
	}
	defer C.free(unsafe.Pointer(cjaxpr))

	exit, err := c.rt.enter()
	if err != nil {
		return nil, err
	}
	defer exit()

	ptr := C.dex_call_compile_jaxpr(c.rt.sym.compileJaxpr, c.ptr, C.int32_t(cc), cjaxpr)
	if ptr == nil {
		return nil, c.rt.fail("compile_jaxpr")
	}
	return newNativeFunction(c, ptr, cc), nil
}

// Atom is a Dex value owned by the native runtime. libDex exposes no way to
// release atoms individually; an atom is valid until its context is closed,
// after which every use fails with ErrClosed.
type Atom struct {
	ctx *Context
	ptr *C.HsAtom
}

func (a *Atom) live() bool {
	return a != nil && a.ptr != nil && a.ctx != nil && a.ctx.ptr != nil
}

// Context returns the context the atom was produced in.
func (a *Atom) Context() *Context {
	return a.ctx
}

// String renders the atom, or an error marker when printing fails.
func (a *Atom) String() string {
	if !a.live() {
		return "<" + ErrClosed.Error() + ">"
	}
	s, err := a.ctx.Print(a)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return s
}

// ToCAtom converts the atom to its C representation. Scalars come back as a
// Lit; arrays come back as a RectArray whose buffers are owned by libDex.
func (a *Atom) ToCAtom() (CAtom, error) {
	if !a.live() {
		return CAtom{}, ErrClosed
	}
	out := (*C.CAtom)(C.malloc(C.sizeof_CAtom))
	defer C.free(unsafe.Pointer(out))

	exit, err := a.ctx.rt.enter()
	if err != nil {
		return CAtom{}, err
	}
	defer exit()

	if C.dex_call_to_catom(a.ctx.rt.sym.toCAtom, a.ptr, out) == 0 {
		return CAtom{}, a.ctx.rt.fail("to_catom")
	}
	return *(*CAtom)(unsafe.Pointer(out)), nil
}
