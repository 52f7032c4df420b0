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

// Package syscalls implements the file system calls: open, read, write,
// close, lseek, dup2 and meld, plus the trap dispatcher that decodes them.
//
// Every handler takes the calling process explicitly. Errors carry a
// golang.org/x/sys/unix.Errno that errno.FromError recovers.
package syscalls

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/tyther9/COP4610/pkg/addrspace"
	"github.com/tyther9/COP4610/pkg/kmalloc"
	"github.com/tyther9/COP4610/pkg/proc"
	"github.com/tyther9/COP4610/pkg/vnode"
)

// DefaultPathMax bounds the length of a path argument, terminator included.
const DefaultPathMax = 1024

// Handlers carries what the file system calls need besides the process.
type Handlers struct {
	// FS resolves paths.
	FS vnode.FS
	// Alloc provides path and transfer buffers.
	Alloc *kmalloc.Allocator
	// PathMax bounds path arguments; DefaultPathMax if zero.
	PathMax int
}

func (h *Handlers) pathMax() int {
	if h.PathMax > 0 {
		return h.PathMax
	}
	return DefaultPathMax
}

// copyInPath copies the path at upath into a kernel buffer.
func (h *Handlers) copyInPath(p *proc.Process, upath addrspace.UserPtr) (string, error) {
	if upath == 0 {
		return "", fmt.Errorf("null path: %w", unix.EINVAL)
	}
	kpath, err := h.Alloc.Alloc(h.pathMax())
	if err != nil {
		return "", err
	}
	defer h.Alloc.Free(kpath)
	n, err := p.Space.CopyInStr(kpath, upath)
	if err != nil {
		return "", fmt.Errorf("copying path at %#x: %w", uint64(upath), err)
	}
	return string(kpath[:n]), nil
}
