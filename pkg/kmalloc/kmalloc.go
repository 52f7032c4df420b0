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

// Package kmalloc is the kernel heap used for path and transfer buffers.
// The heap has a fixed byte budget; running out is an ordinary ENOMEM, never
// a panic.
package kmalloc

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

// Allocator hands out byte buffers against a fixed budget.
type Allocator struct {
	limit int64
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

// New returns an allocator that never has more than limit bytes outstanding.
func New(limit int64) *Allocator {
	return &Allocator{
		limit: limit,
		sem:   semaphore.NewWeighted(limit),
	}
}

// Alloc returns a zeroed buffer of n bytes. It does not block: if the budget
// cannot cover n bytes right now the call fails with ENOMEM.
func (a *Allocator) Alloc(n int) ([]byte, error) {
	if n < 0 || int64(n) > a.limit {
		return nil, fmt.Errorf("kmalloc %d bytes: %w", n, unix.ENOMEM)
	}
	if !a.sem.TryAcquire(int64(n)) {
		return nil, fmt.Errorf("kmalloc %d bytes (%d in use): %w", n, a.inUse.Load(), unix.ENOMEM)
	}
	a.inUse.Add(int64(n))
	return make([]byte, n), nil
}

// Free returns b to the heap. b must have come from Alloc and must not be
// used afterwards.
func (a *Allocator) Free(b []byte) {
	if b == nil {
		return
	}
	n := int64(cap(b))
	if a.inUse.Add(-n) < 0 {
		panic(fmt.Sprintf("kmalloc: free of %d bytes drove heap negative", n))
	}
	a.sem.Release(n)
}

// InUse reports the number of bytes currently allocated.
func (a *Allocator) InUse() int64 { return a.inUse.Load() }

// Limit reports the heap budget.
func (a *Allocator) Limit() int64 { return a.limit }
