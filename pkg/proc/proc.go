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

// Package proc holds the per-process state the file system calls operate on.
package proc

import (
	"fmt"
	"sync/atomic"

	"github.com/tyther9/COP4610/pkg/addrspace"
	"github.com/tyther9/COP4610/pkg/filetable"
)

var lastPID atomic.Int32

// Process is a user process: its address space and descriptor table. It is
// passed explicitly to every system call.
type Process struct {
	PID   int
	Name  string
	Space *addrspace.AddrSpace
	Files *filetable.Table

	exited atomic.Bool
}

// New returns a process with a fresh PID, an address space of memSize bytes
// and an empty table of openMax descriptors.
func New(name string, memSize, openMax int) *Process {
	return &Process{
		PID:   int(lastPID.Add(1)),
		Name:  name,
		Space: addrspace.New(addrspace.DefaultBase, memSize),
		Files: filetable.New(openMax),
	}
}

// Fork returns a child sharing every open-file object of p. The child gets
// its own, empty address space of the same size.
func (p *Process) Fork(name string) *Process {
	return &Process{
		PID:   int(lastPID.Add(1)),
		Name:  name,
		Space: addrspace.New(p.Space.Base(), p.Space.Size()),
		Files: p.Files.Copy(),
	}
}

// Exit closes every descriptor. Calling it again does nothing.
func (p *Process) Exit() {
	if p.exited.CompareAndSwap(false, true) {
		p.Files.CloseAll()
	}
}

func (p *Process) String() string {
	return fmt.Sprintf("%s[%d]", p.Name, p.PID)
}
