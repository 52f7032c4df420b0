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

// Package uio describes a single transfer between memory and a vnode.
//
// A UIO names one or more memory regions (IOVec), where they live (user or
// kernel memory), which way the bytes flow, the file position the transfer
// starts at, and how many bytes remain. The vnode layer services a UIO by
// calling Move (or Copy followed by Advance) with the file bytes at
// u.Offset; every byte moved advances Offset and decreases Resid, so after
// the call Offset is the initial position plus the bytes actually moved,
// whatever the outcome.
package uio

import (
	"fmt"

	"github.com/tyther9/COP4610/pkg/addrspace"
)

// Segment says which address space the IOVec regions belong to.
type Segment int

const (
	// UserSpace regions are addresses in Space.
	UserSpace Segment = iota
	// SysSpace regions are kernel byte slices.
	SysSpace
)

// Direction is the direction of the transfer, seen from memory.
type Direction int

const (
	// Read moves bytes from the file into memory.
	Read Direction = iota
	// Write moves bytes from memory into the file.
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

// IOVec is one memory region. Exactly one of Base (UserSpace) or Kern
// (SysSpace) is meaningful.
type IOVec struct {
	Base addrspace.UserPtr
	Kern []byte
	Len  int
}

// UIO is an I/O descriptor.
type UIO struct {
	Iov     []IOVec
	Offset  int64
	Resid   int
	Segment Segment
	Rw      Direction
	Space   *addrspace.AddrSpace
}

// NewKernel returns a descriptor over a single kernel buffer, starting at
// file position off.
func NewKernel(buf []byte, off int64, rw Direction) *UIO {
	return &UIO{
		Iov:     []IOVec{{Kern: buf, Len: len(buf)}},
		Offset:  off,
		Resid:   len(buf),
		Segment: SysSpace,
		Rw:      rw,
	}
}

// NewUser returns a descriptor over n bytes of user memory at base in space.
func NewUser(space *addrspace.AddrSpace, base addrspace.UserPtr, n int, off int64, rw Direction) *UIO {
	return &UIO{
		Iov:     []IOVec{{Base: base, Len: n}},
		Offset:  off,
		Resid:   n,
		Segment: UserSpace,
		Rw:      rw,
		Space:   space,
	}
}

// Move transfers up to len(data) bytes between data and the descriptor's
// regions: for Read, data is the file content and is copied into memory; for
// Write, memory is copied into data. It returns the number of bytes moved,
// which is less than len(data) only when Resid ran out or a user copy
// faulted.
func (u *UIO) Move(data []byte) (int, error) {
	n, err := u.Copy(data)
	u.Advance(n)
	return n, err
}

// Copy is Move without advancing the descriptor. Vnodes that must learn
// how many bytes the backing store accepted before committing use Copy,
// then Advance by the amount written.
func (u *UIO) Copy(data []byte) (int, error) {
	if u.Segment == UserSpace && u.Space == nil {
		return 0, fmt.Errorf("uio: user segment without an address space")
	}
	moved := 0
	for _, iov := range u.Iov {
		if moved == len(data) || moved == u.Resid {
			break
		}
		if iov.Len == 0 {
			continue
		}
		n := min(iov.Len, len(data)-moved, u.Resid-moved)
		chunk := data[moved : moved+n]
		var err error
		switch u.Segment {
		case SysSpace:
			if u.Rw == Read {
				copy(iov.Kern[:n], chunk)
			} else {
				copy(chunk, iov.Kern[:n])
			}
		case UserSpace:
			if u.Rw == Read {
				err = u.Space.CopyOut(iov.Base, chunk)
			} else {
				err = u.Space.CopyIn(chunk, iov.Base)
			}
		}
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

// Advance consumes n bytes of the descriptor: Offset grows by n, Resid
// shrinks by n, and the IOVecs are trimmed from the front.
func (u *UIO) Advance(n int) {
	if n > u.Resid {
		panic(fmt.Sprintf("uio: advance %d past residual %d", n, u.Resid))
	}
	u.Offset += int64(n)
	u.Resid -= n
	for n > 0 && len(u.Iov) > 0 {
		iov := &u.Iov[0]
		if n < iov.Len {
			iov.Len -= n
			if u.Segment == SysSpace {
				iov.Kern = iov.Kern[n:]
			} else {
				iov.Base += addrspace.UserPtr(n)
			}
			return
		}
		n -= iov.Len
		u.Iov = u.Iov[1:]
	}
}
