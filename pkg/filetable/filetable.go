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

// Package filetable maps a process's file descriptors to open-file objects.
//
// Each occupied slot owns one reference on its object. The table lock only
// covers slot bookkeeping: it is never held while an object's offset lock is
// taken or while a reference that may release a vnode is dropped.
package filetable

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/tyther9/COP4610/pkg/openfile"
)

// DefaultOpenMax is the table size used when none is configured.
const DefaultOpenMax = 128

// Table is a per-process file-descriptor table.
type Table struct {
	mu    sync.Mutex
	slots []*openfile.OpenFile
}

// New returns an empty table with n slots, or DefaultOpenMax if n is not
// positive.
func New(n int) *Table {
	if n <= 0 {
		n = DefaultOpenMax
	}
	return &Table{slots: make([]*openfile.OpenFile, n)}
}

// Max returns the number of slots.
func (t *Table) Max() int { return len(t.slots) }

// Place stores of in the lowest free slot and returns its index. The slot
// takes over the caller's reference. A full table fails with EMFILE.
func (t *Table) Place(of *openfile.OpenFile) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, cur := range t.slots {
		if cur == nil {
			t.slots[fd] = of
			return fd, nil
		}
	}
	return -1, fmt.Errorf("no free descriptor among %d: %w", len(t.slots), unix.EMFILE)
}

// PlaceAt stores of (which may be nil) in slot fd and returns the previous
// occupant. The caller owns the returned reference and must drop it.
func (t *Table) PlaceAt(of *openfile.OpenFile, fd int) (*openfile.OpenFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.slots) {
		return nil, fmt.Errorf("descriptor %d: %w", fd, unix.EBADF)
	}
	prev := t.slots[fd]
	t.slots[fd] = of
	return prev, nil
}

// Get returns the object in slot fd with a borrowed reference that the caller
// must return with Put. An empty or out-of-range slot fails with EBADF.
func (t *Table) Get(fd int) (*openfile.OpenFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return nil, fmt.Errorf("descriptor %d: %w", fd, unix.EBADF)
	}
	of := t.slots[fd]
	of.IncRef()
	return of, nil
}

// Put returns a reference borrowed with Get.
func (t *Table) Put(of *openfile.OpenFile) {
	of.DecRef()
}

// Copy returns a table with the same slots, each holding a new reference.
func (t *Table) Copy() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &Table{slots: make([]*openfile.OpenFile, len(t.slots))}
	for fd, of := range t.slots {
		if of != nil {
			of.IncRef()
			c.slots[fd] = of
		}
	}
	return c
}

// CloseAll empties the table and drops every slot's reference.
func (t *Table) CloseAll() {
	t.mu.Lock()
	var held []*openfile.OpenFile
	for fd, of := range t.slots {
		if of != nil {
			held = append(held, of)
			t.slots[fd] = nil
		}
	}
	t.mu.Unlock()
	for _, of := range held {
		of.DecRef()
	}
}

// Len returns the number of occupied slots.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, of := range t.slots {
		if of != nil {
			n++
		}
	}
	return n
}

// Objects returns the distinct objects referenced by the table.
func (t *Table) Objects() sets.Set[*openfile.OpenFile] {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := sets.New[*openfile.OpenFile]()
	for _, of := range t.slots {
		if of != nil {
			s.Insert(of)
		}
	}
	return s
}

// Descriptors returns the occupied slot numbers in ascending order.
func (t *Table) Descriptors() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var fds []int
	for fd, of := range t.slots {
		if of != nil {
			fds = append(fds, fd)
		}
	}
	return fds
}
