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

// NativeFunction is a function compiled by libDex. It stays loaded until
// Close is called or it becomes unreachable.
type NativeFunction struct {
	ctx *Context
	ptr C.NativeFunction
	cc  ExportCC
}

func newNativeFunction(c *Context, ptr C.NativeFunction, cc ExportCC) *NativeFunction {
	f := &NativeFunction{ctx: c, ptr: ptr, cc: cc}
	runtime.SetFinalizer(f, func(f *NativeFunction) {
		f.Close()
	})
	return f
}

// Pointer returns the entry point of the compiled code.
func (f *NativeFunction) Pointer() unsafe.Pointer {
	if f == nil {
		return nil
	}
	return unsafe.Pointer(f.ptr)
}

// CallingConvention returns the convention the function was compiled with.
func (f *NativeFunction) CallingConvention() ExportCC {
	return f.cc
}

// Close unloads the compiled code. Subsequent calls are safe. The unload is
// skipped when the owning context has already been closed or the runtime has
// been finalized.
func (f *NativeFunction) Close() {
	if f == nil || f.ptr == nil {
		return
	}
	ptr := f.ptr
	f.ptr = nil
	runtime.SetFinalizer(f, nil)

	if f.ctx.ptr == nil {
		return
	}
	exit, ok := f.ctx.rt.enterRelease("native function")
	if !ok {
		return
	}
	defer exit()
	C.dex_call_unload(f.ctx.rt.sym.unload, f.ctx.ptr, ptr)
}

// RawSignature holds the three strings returned by dexGetFunctionSignature.
type RawSignature struct {
	Arg   string `json:"arg" yaml:"arg"`
	Res   string `json:"res" yaml:"res"`
	CCall string `json:"ccall" yaml:"ccall"`
}

// RawSignature fetches the signature strings of the function. The native
// signature object is freed before returning.
func (f *NativeFunction) RawSignature() (RawSignature, error) {
	if f == nil || f.ptr == nil || f.ctx.ptr == nil {
		return RawSignature{}, ErrClosed
	}
	rt := f.ctx.rt
	exit, err := rt.enter()
	if err != nil {
		return RawSignature{}, err
	}
	defer exit()

	sig := C.dex_call_get_function_signature(rt.sym.getFunctionSignature, f.ctx.ptr, f.ptr)
	if sig == nil {
		return RawSignature{}, rt.fail("get_function_signature")
	}
	defer C.dex_call_free_function_signature(rt.sym.freeFunctionSignature, sig)

	var raw RawSignature
	fields := []struct {
		src *C.char
		dst *string
	}{
		{sig.arg, &raw.Arg},
		{sig.res, &raw.Res},
		{sig.ccall, &raw.CCall},
	}
	for _, field := range fields {
		if field.src == nil {
			continue
		}
		s, err := decodeASCII([]byte(C.GoString(field.src)))
		if err != nil {
			return RawSignature{}, err
		}
		*field.dst = s
	}
	return raw, nil
}

// Signature fetches and parses the function signature.
func (f *NativeFunction) Signature() (*Signature, error) {
	raw, err := f.RawSignature()
	if err != nil {
		return nil, err
	}
	return ParseSignature(raw)
}
