//go:build dkvengine

// Package cengine bridges internal/engine.Engine to a native storage
// engine library linked in via cgo, for deployments that build with the
// dkvengine tag (spec §1: "the storage engine is a native library that
// must not be linked into [backend processes]" — this bridge only exists
// inside the worker binary, never the client). Grounded on the teacher
// pack's cgo-to-native pattern in
// VanitasCaesar1-mantisdb/storage/storage_rust.go: a build-tag-gated file
// with a C preamble declaring extern entry points resolved at link time
// against a prebuilt shared object, one thin Go wrapper type, and a
// runtime.SetFinalizer safety net for handles a caller forgets to Close.
package cengine

/*
#cgo LDFLAGS: -ldkvengine
#include <stdlib.h>
#include <stdint.h>

extern uintptr_t dkvengine_open(const char *path, size_t path_len, const uint8_t *opts, size_t opts_len, uint8_t column_flag, int32_t attr_count);
extern void       dkvengine_close(uintptr_t handle);
extern uint64_t   dkvengine_count(uintptr_t handle);
extern int        dkvengine_put(uintptr_t handle, const uint8_t *key, size_t key_len, const uint8_t *val, size_t val_len);
extern int        dkvengine_get(uintptr_t handle, const uint8_t *key, size_t key_len, uint8_t **val_out, size_t *val_len_out);
extern int        dkvengine_delete(uintptr_t handle, const uint8_t *key, size_t key_len);
extern uintptr_t  dkvengine_iter_new(uintptr_t handle);
extern void       dkvengine_iter_free(uintptr_t handle, uintptr_t iter);
extern int        dkvengine_batch_read(uintptr_t handle, uintptr_t iter, uint8_t *buf, size_t buf_len, size_t *size_out);
extern void       dkvengine_free_buf(uint8_t *ptr);
*/
import "C"

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/dkvbridge/dkvbridge/internal/engine"
)

// Engine wraps a native dkvengine handle behind internal/engine.Engine.
type Engine struct {
	handle C.uintptr_t
}

// New constructs an unopened Engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Open(_ context.Context, path string, opts engine.Options) error {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var cOpts *C.uint8_t
	if len(opts.Opts) > 0 {
		cOpts = (*C.uint8_t)(unsafe.Pointer(&opts.Opts[0]))
	}
	colFlag := C.uint8_t(0)
	if opts.ColumnStore {
		colFlag = 1
	}

	h := C.dkvengine_open(cPath, C.size_t(len(path)), cOpts, C.size_t(len(opts.Opts)), colFlag, C.int32_t(opts.AttrCount))
	if h == 0 {
		return fmt.Errorf("cengine: open failed for %s", path)
	}
	e.handle = h
	runtime.SetFinalizer(e, func(e *Engine) {
		if e.handle != 0 {
			C.dkvengine_close(e.handle)
		}
	})
	return nil
}

func (e *Engine) Close() error {
	if e.handle == 0 {
		return nil
	}
	C.dkvengine_close(e.handle)
	e.handle = 0
	return nil
}

func (e *Engine) Count() (uint64, error) {
	return uint64(C.dkvengine_count(e.handle)), nil
}

func (e *Engine) Put(key, value []byte) error {
	var ck, cv *C.uint8_t
	if len(key) > 0 {
		ck = (*C.uint8_t)(unsafe.Pointer(&key[0]))
	}
	if len(value) > 0 {
		cv = (*C.uint8_t)(unsafe.Pointer(&value[0]))
	}
	if rc := C.dkvengine_put(e.handle, ck, C.size_t(len(key)), cv, C.size_t(len(value))); rc != 0 {
		return fmt.Errorf("cengine: put failed, rc=%d", rc)
	}
	return nil
}

func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	var ck *C.uint8_t
	if len(key) > 0 {
		ck = (*C.uint8_t)(unsafe.Pointer(&key[0]))
	}
	var valOut *C.uint8_t
	var lenOut C.size_t
	rc := C.dkvengine_get(e.handle, ck, C.size_t(len(key)), &valOut, &lenOut)
	if rc != 0 || valOut == nil {
		return nil, false, nil
	}
	defer C.dkvengine_free_buf(valOut)
	return C.GoBytes(unsafe.Pointer(valOut), C.int(lenOut)), true, nil
}

func (e *Engine) Delete(key []byte) (bool, error) {
	var ck *C.uint8_t
	if len(key) > 0 {
		ck = (*C.uint8_t)(unsafe.Pointer(&key[0]))
	}
	rc := C.dkvengine_delete(e.handle, ck, C.size_t(len(key)))
	return rc == 0, nil
}

// nativeIterator wraps a native iterator handle. It never crosses a
// process boundary (spec §9); the worker keys it by CursorKey in
// internal/worker's cursor map.
type nativeIterator struct {
	handle C.uintptr_t
}

func (e *Engine) GetIter() (engine.Iterator, error) {
	h := C.dkvengine_iter_new(e.handle)
	if h == 0 {
		return nil, fmt.Errorf("cengine: iter_new failed")
	}
	return &nativeIterator{handle: h}, nil
}

func (e *Engine) DelIter(it engine.Iterator) error {
	ni, ok := it.(*nativeIterator)
	if !ok {
		return fmt.Errorf("cengine: wrong iterator type")
	}
	C.dkvengine_iter_free(e.handle, ni.handle)
	return nil
}

func (e *Engine) BatchRead(it engine.Iterator, buf []byte) (int, bool, error) {
	ni, ok := it.(*nativeIterator)
	if !ok {
		return 0, false, fmt.Errorf("cengine: wrong iterator type")
	}
	if len(buf) == 0 {
		return 0, false, fmt.Errorf("cengine: zero-length buffer")
	}
	var sizeOut C.size_t
	hasMore := C.dkvengine_batch_read(e.handle, ni.handle, (*C.uint8_t)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)), &sizeOut)
	return int(sizeOut), hasMore != 0, nil
}

// Range-query support is not implemented for the native bridge in this
// tree: the reference native library this bridge targets exposes only a
// forward iterator, not a bounded range cursor. ParseRangeOptions/
// RangeRead/ParseRangeResult return an error rather than silently
// degrading to a full scan; ClearRangeMeta has nothing to release and
// returns nil.

func (e *Engine) ParseRangeOptions([]byte, []byte, uint64, []int32) (engine.RangeCursor, engine.ReadOptions, error) {
	return nil, nil, fmt.Errorf("cengine: range queries not supported by the native bridge")
}

func (e *Engine) RangeRead(engine.RangeCursor, engine.ReadOptions, []byte) (int, bool, error) {
	return 0, false, fmt.Errorf("cengine: range queries not supported by the native bridge")
}

func (e *Engine) ParseRangeResult(result []byte, buf []byte) (int, error) {
	return 0, fmt.Errorf("cengine: range queries not supported by the native bridge")
}

func (e *Engine) ClearRangeMeta(engine.RangeCursor, engine.ReadOptions) error {
	return nil
}

var _ engine.Engine = (*Engine)(nil)
