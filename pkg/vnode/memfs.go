// Copyright 2023 Chainguard, Inc.
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
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/uio"
)

const pathSep = "/"

// MemFS is an in-memory file tree. It is safe for concurrent use.
type MemFS struct {
	tree *node
}

// NewMemFS returns an empty tree containing only the root directory.
func NewMemFS() *MemFS {
	return &MemFS{
		tree: &node{
			dir:      true,
			children: map[string]*node{},
			name:     "/",
			mode:     fs.ModeDir | 0o755,
		},
	}
}

type node struct {
	mode     fs.FileMode
	dir      bool
	name     string
	modTime  time.Time
	children map[string]*node

	mu    sync.Mutex
	data  []byte
	opens int
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean(pathSep+p), pathSep)
}

// getNode returns the node for the given path.
func (m *MemFS) getNode(p string) (*node, error) {
	p = cleanPath(p)
	if p == "" {
		return m.tree, nil
	}
	n := m.tree
	for _, part := range strings.Split(p, pathSep) {
		if !n.dir {
			return nil, unix.ENOTDIR
		}
		n.mu.Lock()
		child, ok := n.children[part]
		n.mu.Unlock()
		if !ok {
			return nil, unix.ENOENT
		}
		n = child
	}
	return n, nil
}

func (m *MemFS) Mkdir(p string, perm fs.FileMode) error {
	p = cleanPath(p)
	if p == "" {
		return &fs.PathError{Op: "mkdir", Path: pathSep, Err: unix.EEXIST}
	}
	parent, err := m.getNode(path.Dir(p))
	if err != nil {
		return &fs.PathError{Op: "mkdir", Path: p, Err: err}
	}
	if !parent.dir {
		return &fs.PathError{Op: "mkdir", Path: p, Err: unix.ENOTDIR}
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	base := path.Base(p)
	if _, ok := parent.children[base]; ok {
		return &fs.PathError{Op: "mkdir", Path: p, Err: unix.EEXIST}
	}
	parent.children[base] = newDir(base, perm)
	return nil
}

func (m *MemFS) MkdirAll(p string, perm fs.FileMode) error {
	p = cleanPath(p)
	if p == "" {
		return nil
	}
	n := m.tree
	for _, part := range strings.Split(p, pathSep) {
		n.mu.Lock()
		child, ok := n.children[part]
		if !ok {
			child = newDir(part, perm)
			n.children[part] = child
		}
		n.mu.Unlock()
		if !child.dir {
			return &fs.PathError{Op: "mkdir", Path: p, Err: unix.ENOTDIR}
		}
		n = child
	}
	return nil
}

func newDir(name string, perm fs.FileMode) *node {
	return &node{
		name:     name,
		mode:     fs.ModeDir | perm,
		dir:      true,
		children: map[string]*node{},
		modTime:  time.Now(),
	}
}

func (m *MemFS) Stat(p string) (fs.FileInfo, error) {
	n, err := m.getNode(p)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: p, Err: err}
	}
	return n.fileInfo(), nil
}

// ReadDir lists the names in directory p, sorted.
func (m *MemFS) ReadDir(p string) ([]string, error) {
	n, err := m.getNode(p)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: err}
	}
	if !n.dir {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: unix.ENOTDIR}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ReadFile returns a copy of the contents of p.
func (m *MemFS) ReadFile(p string) ([]byte, error) {
	n, err := m.getNode(p)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: p, Err: err}
	}
	if n.dir {
		return nil, &fs.PathError{Op: "read", Path: p, Err: unix.EISDIR}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]byte(nil), n.data...), nil
}

// WriteFile replaces the contents of p, creating it if needed.
func (m *MemFS) WriteFile(p string, b []byte, perm fs.FileMode) error {
	n, err := m.lookupOrCreate(p, fcntl.O_WRONLY|fcntl.O_CREAT|fcntl.O_TRUNC, perm)
	if err != nil {
		return &fs.PathError{Op: "write", Path: p, Err: err}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.data = append([]byte(nil), b...)
	n.modTime = time.Now()
	return nil
}

// OpenPath implements FS.
func (m *MemFS) OpenPath(p string, flags int, perm fs.FileMode) (Vnode, error) {
	if p == "" {
		return nil, &fs.PathError{Op: "open", Path: p, Err: unix.EINVAL}
	}
	n, err := m.lookupOrCreate(p, flags, perm)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: p, Err: err}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if flags&fcntl.O_TRUNC != 0 && fcntl.Writable(flags) {
		n.data = nil
		n.modTime = time.Now()
	}
	n.opens++
	return &memVnode{node: n, name: cleanPath(p)}, nil
}

func (m *MemFS) lookupOrCreate(p string, flags int, perm fs.FileMode) (*node, error) {
	p = cleanPath(p)
	if p == "" {
		return nil, unix.EISDIR
	}
	parent, err := m.getNode(path.Dir(p))
	if err != nil {
		return nil, err
	}
	if !parent.dir {
		return nil, unix.ENOTDIR
	}
	base := path.Base(p)
	parent.mu.Lock()
	defer parent.mu.Unlock()
	n, ok := parent.children[base]
	switch {
	case ok && flags&fcntl.O_CREAT != 0 && flags&fcntl.O_EXCL != 0:
		return nil, unix.EEXIST
	case ok && n.dir:
		return nil, unix.EISDIR
	case ok:
		return n, nil
	case flags&fcntl.O_CREAT == 0:
		return nil, unix.ENOENT
	}
	n = &node{
		name:    base,
		mode:    perm &^ fs.ModeType,
		modTime: time.Now(),
	}
	parent.children[base] = n
	return n, nil
}

// OpenCount reports how many vnodes are open on p. It is zero for a path that
// does not exist.
func (m *MemFS) OpenCount(p string) int {
	n, err := m.getNode(p)
	if err != nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.opens
}

type memVnode struct {
	node     *node
	name     string
	released atomic.Bool
}

func (v *memVnode) Read(u *uio.UIO) error {
	if v.released.Load() {
		return fs.ErrClosed
	}
	v.node.mu.Lock()
	defer v.node.mu.Unlock()
	if u.Offset < 0 {
		return unix.EINVAL
	}
	if u.Offset >= int64(len(v.node.data)) {
		return nil
	}
	_, err := u.Move(v.node.data[u.Offset:])
	return err
}

func (v *memVnode) Write(u *uio.UIO) error {
	if v.released.Load() {
		return fs.ErrClosed
	}
	v.node.mu.Lock()
	defer v.node.mu.Unlock()
	if u.Offset < 0 {
		return unix.EINVAL
	}
	if u.Resid == 0 {
		return nil
	}
	size := int64(len(v.node.data))
	end := u.Offset + int64(u.Resid)
	if end > size {
		v.node.data = append(v.node.data, make([]byte, end-size)...)
	}
	n, err := u.Copy(v.node.data[u.Offset:end])
	u.Advance(n)
	if got := u.Offset; got < end && end > size {
		// Drop the growth a faulting copy did not fill.
		v.node.data = v.node.data[:max(size, got)]
	}
	v.node.modTime = time.Now()
	return err
}

func (v *memVnode) Size() (int64, error) {
	if v.released.Load() {
		return 0, fs.ErrClosed
	}
	v.node.mu.Lock()
	defer v.node.mu.Unlock()
	return int64(len(v.node.data)), nil
}

func (v *memVnode) Release() {
	if !v.released.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("vnode: %s released twice", v.name))
	}
	v.node.mu.Lock()
	v.node.opens--
	v.node.mu.Unlock()
}

func (v *memVnode) String() string { return "mem:" + v.name }

func (n *node) fileInfo() fs.FileInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &memFileInfo{
		name:    n.name,
		size:    int64(len(n.data)),
		mode:    n.mode,
		modTime: n.modTime,
	}
}

type memFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (m *memFileInfo) Name() string       { return m.name }
func (m *memFileInfo) Size() int64        { return m.size }
func (m *memFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *memFileInfo) ModTime() time.Time { return m.modTime }
func (m *memFileInfo) IsDir() bool        { return m.mode.IsDir() }
func (m *memFileInfo) Sys() any           { return nil }
