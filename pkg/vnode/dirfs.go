// Copyright 2022, 2023 Chainguard, Inc.
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
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/uio"
)

type dirFS string

// DirFS returns an FS backed by the host directory root. Paths are resolved
// relative to root and cannot escape it.
func DirFS(root string) (FS, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, &fs.PathError{Op: "dirfs", Path: root, Err: unix.ENOTDIR}
	}
	return dirFS(root), nil
}

func (dir dirFS) finalPath(p string) string {
	return filepath.Join(string(dir), filepath.FromSlash(cleanPath(p)))
}

// hostFlags translates kernel open flags to the host's.
func hostFlags(flags int) int {
	var h int
	switch fcntl.AccMode(flags) {
	case fcntl.O_WRONLY:
		h = os.O_WRONLY
	case fcntl.O_RDWR:
		h = os.O_RDWR
	default:
		h = os.O_RDONLY
	}
	if flags&fcntl.O_CREAT != 0 {
		h |= os.O_CREATE
	}
	if flags&fcntl.O_EXCL != 0 {
		h |= os.O_EXCL
	}
	if flags&fcntl.O_TRUNC != 0 && fcntl.Writable(flags) {
		h |= os.O_TRUNC
	}
	if flags&fcntl.O_NOCTTY != 0 {
		h |= unix.O_NOCTTY
	}
	return h
}

func (dir dirFS) OpenPath(p string, flags int, perm fs.FileMode) (Vnode, error) {
	if p == "" {
		return nil, &fs.PathError{Op: "open", Path: p, Err: unix.EINVAL}
	}
	f, err := os.OpenFile(dir.finalPath(p), hostFlags(flags), perm)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.IsDir() {
		f.Close()
		return nil, &fs.PathError{Op: "open", Path: p, Err: unix.EISDIR}
	}
	return &fileVnode{f: f}, nil
}

type fileVnode struct {
	f        *os.File
	released atomic.Bool
}

func (v *fileVnode) Read(u *uio.UIO) error {
	if u.Resid == 0 {
		return nil
	}
	buf := make([]byte, u.Resid)
	n, err := v.f.ReadAt(buf, u.Offset)
	if _, cerr := u.Move(buf[:n]); cerr != nil {
		return cerr
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (v *fileVnode) Write(u *uio.UIO) error {
	if u.Resid == 0 {
		return nil
	}
	buf := make([]byte, u.Resid)
	n, cerr := u.Copy(buf)
	w, err := v.f.WriteAt(buf[:n], u.Offset)
	u.Advance(w)
	if err != nil {
		return err
	}
	return cerr
}

func (v *fileVnode) Size() (int64, error) {
	fi, err := v.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (v *fileVnode) Release() {
	if !v.released.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("vnode: %s released twice", v.f.Name()))
	}
	v.f.Close()
}

func (v *fileVnode) String() string { return "dir:" + v.f.Name() }
