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

// Package addrspace models a process's user memory and the primitives that
// move bytes between it and the kernel.
package addrspace

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// UserPtr is an address in a user address space. The zero value is the null
// pointer and is never mapped.
type UserPtr uint64

// DefaultBase is where user memory starts unless New is told otherwise.
const DefaultBase UserPtr = 0x400000

// AddrSpace is a contiguous region of user memory starting at Base. Memory
// is handed out with Map and Reserve from the bottom up; everything below the
// break is readable and writable.
type AddrSpace struct {
	base UserPtr

	mu   sync.RWMutex
	mem  []byte
	brk  int
	size int
}

// New returns an address space of size bytes mapped at base.
func New(base UserPtr, size int) *AddrSpace {
	if base == 0 {
		base = DefaultBase
	}
	return &AddrSpace{
		base: base,
		mem:  make([]byte, size),
		size: size,
	}
}

// Base returns the lowest mapped address.
func (as *AddrSpace) Base() UserPtr { return as.base }

// Size returns the number of bytes of user memory.
func (as *AddrSpace) Size() int { return as.size }

// Reserve hands out n zeroed bytes of user memory.
func (as *AddrSpace) Reserve(n int) (UserPtr, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if n < 0 || as.brk+n > as.size {
		return 0, fmt.Errorf("reserve %d bytes: %w", n, unix.ENOMEM)
	}
	ptr := as.base + UserPtr(as.brk)
	as.brk += n
	return ptr, nil
}

// Map reserves len(data) bytes and copies data there.
func (as *AddrSpace) Map(data []byte) (UserPtr, error) {
	ptr, err := as.Reserve(len(data))
	if err != nil {
		return 0, err
	}
	if err := as.CopyOut(ptr, data); err != nil {
		return 0, err
	}
	return ptr, nil
}

// MapString maps s followed by a terminating NUL.
func (as *AddrSpace) MapString(s string) (UserPtr, error) {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return as.Map(b)
}

// region returns the slice of user memory [ptr, ptr+n), or EFAULT if any of
// it lies outside the mapped range. Callers hold mu.
func (as *AddrSpace) region(ptr UserPtr, n int) ([]byte, error) {
	if ptr == 0 || ptr < as.base || n < 0 {
		return nil, unix.EFAULT
	}
	start := uint64(ptr - as.base)
	end := start + uint64(n)
	if end < start || end > uint64(as.brk) {
		return nil, unix.EFAULT
	}
	return as.mem[start:end], nil
}
