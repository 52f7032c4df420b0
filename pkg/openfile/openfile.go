// Copyright 2024 Chainguard, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package openfile implements the open-file object shared by file
// descriptors: a vnode, the flags it was opened with, a current offset and a
// reference count.
//
// The offset is protected by the object's own lock, which is independent of
// any descriptor table lock. A transfer holds the offset lock across the
// vnode call so that concurrent transfers on one object observe disjoint,
// totally ordered offset ranges.
package openfile

import (
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/tyther9/COP4610/pkg/errno"
	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/uio"
	"github.com/tyther9/COP4610/pkg/vnode"
)

// OpenFile is an open-file object.
type OpenFile struct {
	vn    vnode.Vnode
	flags int
	name  string

	mu     sync.Mutex // guards offset
	offset int64

	refs atomic.Int32
}

// Open resolves path through fsys and returns a new object with offset 0 and
// one reference.
func Open(fsys vnode.FS, path string, flags int, mode fs.FileMode) (*OpenFile, error) {
	if !fcntl.Valid(flags) {
		return nil, fmt.Errorf("open %s with %#x: %w", path, flags, unix.EINVAL)
	}
	vn, err := fsys.OpenPath(path, flags, mode)
	if err != nil {
		return nil, errno.Wrap(err)
	}
	of := New(vn, flags)
	of.name = path
	return of, nil
}

// New wraps an already open vnode. The object owns vn from here on.
func New(vn vnode.Vnode, flags int) *OpenFile {
	of := &OpenFile{vn: vn, flags: flags}
	if s, ok := vn.(fmt.Stringer); ok {
		of.name = s.String()
	}
	of.refs.Store(1)
	return of
}

// IncRef adds a reference.
func (of *OpenFile) IncRef() {
	if of.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("openfile: IncRef on released %s", of.name))
	}
}

// DecRef drops a reference. The caller dropping the last one releases the
// vnode.
func (of *OpenFile) DecRef() {
	switch n := of.refs.Add(-1); {
	case n == 0:
		of.vn.Release()
	case n < 0:
		panic(fmt.Sprintf("openfile: refcount of %s went negative", of.name))
	}
}

// RefCount returns the current number of references.
func (of *OpenFile) RefCount() int32 { return of.refs.Load() }

// Flags returns the flags the object was opened with.
func (of *OpenFile) Flags() int { return of.flags }

// AccMode returns the access-mode bits of Flags.
func (of *OpenFile) AccMode() int { return fcntl.AccMode(of.flags) }

// CanRead reports whether the object was opened for reading.
func (of *OpenFile) CanRead() bool { return fcntl.Readable(of.flags) }

// CanWrite reports whether the object was opened for writing.
func (of *OpenFile) CanWrite() bool { return fcntl.Writable(of.flags) }

// Name returns the path the object was opened by, for diagnostics.
func (of *OpenFile) Name() string { return of.name }

// Offset returns the current offset.
func (of *OpenFile) Offset() int64 {
	of.mu.Lock()
	defer of.mu.Unlock()
	return of.offset
}

// Transfer runs u against the vnode at the object's current offset and
// advances the offset by the number of bytes moved. u.Offset is overwritten:
// it is the current offset, or end of file for an O_APPEND write. On error the
// offset is left where it was and the error is returned with the count of
// bytes the vnode reported moving.
func (of *OpenFile) Transfer(u *uio.UIO) (int, error) {
	if u.Rw == uio.Read && !of.CanRead() || u.Rw == uio.Write && !of.CanWrite() {
		return 0, errno.ErrBadAccess
	}
	requested := u.Resid

	of.mu.Lock()
	defer of.mu.Unlock()

	u.Offset = of.offset
	var err error
	if u.Rw == uio.Write {
		if of.flags&fcntl.O_APPEND != 0 {
			if u.Offset, err = of.vn.Size(); err != nil {
				return 0, errno.Wrap(err)
			}
		}
		err = of.vn.Write(u)
	} else {
		err = of.vn.Read(u)
	}
	n := requested - u.Resid
	if err != nil {
		return n, errno.Wrap(err)
	}
	if vnode.IsSeekable(of.vn) {
		of.offset = u.Offset
	}
	return n, nil
}

// Seek sets the offset relative to whence (fcntl.SEEK_SET, SEEK_CUR or
// SEEK_END) and returns the new offset.
func (of *OpenFile) Seek(pos int64, whence int) (int64, error) {
	if !vnode.IsSeekable(of.vn) {
		return 0, unix.ESPIPE
	}
	of.mu.Lock()
	defer of.mu.Unlock()

	var base int64
	switch whence {
	case fcntl.SEEK_SET:
	case fcntl.SEEK_CUR:
		base = of.offset
	case fcntl.SEEK_END:
		size, err := of.vn.Size()
		if err != nil {
			return 0, errno.Wrap(err)
		}
		base = size
	default:
		return 0, unix.EINVAL
	}
	off := base + pos
	if off < 0 {
		return 0, unix.EINVAL
	}
	of.offset = off
	return off, nil
}

func (of *OpenFile) String() string {
	return fmt.Sprintf("%s(%s refs=%d)", of.name, fcntl.String(of.flags), of.refs.Load())
}
