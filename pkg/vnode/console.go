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

package vnode

import (
	"errors"
	"io"
	"io/fs"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/uio"
)

// ConsoleName is the device path of the console.
const ConsoleName = "con:"

type consoleFS struct {
	FS
	dev *console
}

// WithConsole returns fsys with ConsoleName resolved to a device that reads
// from in and writes to out. Either may be nil, in which case reads see end of
// file and writes are discarded.
func WithConsole(fsys FS, in io.Reader, out io.Writer) FS {
	if in == nil {
		in = eofReader{}
	}
	if out == nil {
		out = io.Discard
	}
	return &consoleFS{FS: fsys, dev: &console{in: in, out: out}}
}

func (c *consoleFS) OpenPath(p string, flags int, perm fs.FileMode) (Vnode, error) {
	if p != ConsoleName {
		return c.FS.OpenPath(p, flags, perm)
	}
	if flags&fcntl.O_CREAT != 0 && flags&fcntl.O_EXCL != 0 {
		return nil, &fs.PathError{Op: "open", Path: p, Err: unix.EEXIST}
	}
	return &consoleVnode{dev: c.dev}, nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// console serializes access to the underlying streams across every vnode
// open on it.
type console struct {
	mu  sync.Mutex
	in  io.Reader
	out io.Writer
}

type consoleVnode struct {
	dev      *console
	released atomic.Bool
}

func (v *consoleVnode) Read(u *uio.UIO) error {
	if u.Resid == 0 {
		return nil
	}
	v.dev.mu.Lock()
	defer v.dev.mu.Unlock()
	buf := make([]byte, u.Resid)
	n, err := v.dev.in.Read(buf)
	if _, cerr := u.Move(buf[:n]); cerr != nil {
		return cerr
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (v *consoleVnode) Write(u *uio.UIO) error {
	if u.Resid == 0 {
		return nil
	}
	v.dev.mu.Lock()
	defer v.dev.mu.Unlock()
	buf := make([]byte, u.Resid)
	n, cerr := u.Copy(buf)
	w, err := v.dev.out.Write(buf[:n])
	u.Advance(w)
	if err != nil {
		return err
	}
	return cerr
}

func (v *consoleVnode) Size() (int64, error) { return 0, nil }

func (v *consoleVnode) Seekable() bool { return false }

func (v *consoleVnode) Release() {
	if !v.released.CompareAndSwap(false, true) {
		panic("vnode: console released twice")
	}
}

func (v *consoleVnode) String() string { return ConsoleName }
