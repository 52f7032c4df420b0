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

// Package kernel boots the file system layer: it builds the root file
// system, the kernel heap and the system call handlers from a Config, and
// spawns processes forked from an init process whose first three
// descriptors are the console.
package kernel

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/chainguard-dev/clog"

	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/kmalloc"
	klog "github.com/tyther9/COP4610/pkg/log"
	"github.com/tyther9/COP4610/pkg/openfile"
	"github.com/tyther9/COP4610/pkg/proc"
	"github.com/tyther9/COP4610/pkg/syscalls"
	"github.com/tyther9/COP4610/pkg/vnode"
)

// Kernel is a booted file system layer.
type Kernel struct {
	cfg Config

	stdin  io.Reader
	stdout io.Writer

	mem   *vnode.MemFS
	root  vnode.FS
	alloc *kmalloc.Allocator
	sys   *syscalls.Handlers
	init  *proc.Process
}

// New boots a kernel.
func New(ctx context.Context, opts ...Option) (*Kernel, error) {
	k := &Kernel{}
	for _, opt := range opts {
		if err := opt(k); err != nil {
			return nil, err
		}
	}
	if err := k.cfg.Validate(); err != nil {
		return nil, err
	}

	log := clog.FromContext(ctx)
	switch {
	case k.cfg.Root.Dir != "":
		root, err := vnode.DirFS(k.cfg.Root.Dir)
		if err != nil {
			return nil, fmt.Errorf("mounting root %s: %w", k.cfg.Root.Dir, err)
		}
		k.root = root
		log.Debugf("root is host directory %s", k.cfg.Root.Dir)
	default:
		k.mem = vnode.NewMemFS()
		k.root = k.mem
		if k.cfg.Root.Image != "" {
			f, err := os.Open(k.cfg.Root.Image)
			if err != nil {
				return nil, fmt.Errorf("opening root image: %w", err)
			}
			defer f.Close()
			if err := vnode.LoadImage(k.mem, f, k.cfg.Root.ImageLimit); err != nil {
				return nil, fmt.Errorf("loading root image %s: %w", k.cfg.Root.Image, err)
			}
			log.Debugf("root is image %s", k.cfg.Root.Image)
		}
	}

	k.alloc = kmalloc.New(k.cfg.HeapBytes)
	k.sys = &syscalls.Handlers{
		FS:      vnode.WithConsole(k.root, k.stdin, k.stdout),
		Alloc:   k.alloc,
		PathMax: k.cfg.PathMax,
	}

	k.init = proc.New("init", k.cfg.UserMemory, k.cfg.OpenMax)
	for _, flags := range []int{fcntl.O_RDONLY, fcntl.O_WRONLY, fcntl.O_WRONLY} {
		of, err := openfile.Open(k.sys.FS, vnode.ConsoleName, flags, 0)
		if err != nil {
			k.init.Exit()
			return nil, fmt.Errorf("opening console: %w", err)
		}
		if _, err := k.init.Files.Place(of); err != nil {
			of.DecRef()
			k.init.Exit()
			return nil, fmt.Errorf("opening console: %w", err)
		}
	}
	return k, nil
}

// Config returns the effective configuration, defaults filled in.
func (k *Kernel) Config() Config { return k.cfg }

// Syscalls returns the system call handlers.
func (k *Kernel) Syscalls() *syscalls.Handlers { return k.sys }

// Heap returns the kernel heap.
func (k *Kernel) Heap() *kmalloc.Allocator { return k.alloc }

// MemFS returns the in-memory root, or nil when the root is a host
// directory.
func (k *Kernel) MemFS() *vnode.MemFS { return k.mem }

// Spawn forks a process from init, so descriptors 0, 1 and 2 share init's
// console objects (read-only, write-only, write-only). The returned context
// logs with the process's identity.
func (k *Kernel) Spawn(ctx context.Context, name string) (*proc.Process, context.Context, error) {
	if k.init == nil {
		return nil, nil, fmt.Errorf("spawning %s: kernel is not booted", name)
	}
	p := k.init.Fork(name)
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With(klog.PIDKey, p.PID, klog.ProcKey, name))
	return p, ctx, nil
}

// SaveImage writes the in-memory root to w as a gzip-compressed tarball
// that WithImage can boot from.
func (k *Kernel) SaveImage(w io.Writer) error {
	if k.mem == nil {
		return fmt.Errorf("root %s is a host directory, not an image", k.cfg.Root.Dir)
	}
	return vnode.SaveImage(k.mem, w)
}

// Trap issues system call callno with args on behalf of p and returns its
// result.
func (k *Kernel) Trap(ctx context.Context, p *proc.Process, callno int, args ...int64) (int64, error) {
	if len(args) > len(syscalls.TrapFrame{}.Args) {
		return -1, fmt.Errorf("system call %d: too many arguments", callno)
	}
	tf := &syscalls.TrapFrame{Callno: callno}
	copy(tf.Args[:], args)
	err := k.sys.Dispatch(ctx, p, tf)
	return tf.Retval, err
}
