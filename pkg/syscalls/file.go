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

package syscalls

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sys/unix"

	"github.com/tyther9/COP4610/pkg/addrspace"
	"github.com/tyther9/COP4610/pkg/errno"
	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/openfile"
	"github.com/tyther9/COP4610/pkg/proc"
	"github.com/tyther9/COP4610/pkg/uio"
)

// Open opens the file named by the string at upath and returns the lowest
// free descriptor for it.
func (h *Handlers) Open(ctx context.Context, p *proc.Process, upath addrspace.UserPtr, flags int, mode fs.FileMode) (int, error) {
	log := clog.FromContext(ctx)

	if !fcntl.Valid(flags) {
		return -1, fmt.Errorf("open flags %#x: %w", flags, unix.EINVAL)
	}
	path, err := h.copyInPath(p, upath)
	if err != nil {
		return -1, err
	}
	of, err := openfile.Open(h.FS, path, flags, mode)
	if err != nil {
		log.Debugf("open %q %s: %v", path, fcntl.String(flags), err)
		return -1, err
	}
	fd, err := p.Files.Place(of)
	if err != nil {
		of.DecRef()
		return -1, err
	}
	log.Debugf("open %q %s = %d", path, fcntl.String(flags), fd)
	return fd, nil
}

// Read reads up to size bytes from fd into the user buffer at buf and
// returns the number of bytes read. Zero means end of file.
func (h *Handlers) Read(ctx context.Context, p *proc.Process, fd int, buf addrspace.UserPtr, size int) (int, error) {
	of, err := p.Files.Get(fd)
	if err != nil {
		return -1, err
	}
	defer p.Files.Put(of)

	if !of.CanRead() {
		return -1, fmt.Errorf("read fd %d: %w", fd, errno.ErrBadAccess)
	}
	if size < 0 {
		return -1, fmt.Errorf("read size %d: %w", size, unix.EINVAL)
	}
	kbuf, err := h.Alloc.Alloc(size)
	if err != nil {
		return -1, err
	}
	defer h.Alloc.Free(kbuf)

	n, err := of.Transfer(uio.NewKernel(kbuf, 0, uio.Read))
	if err != nil {
		return -1, fmt.Errorf("read fd %d: %w", fd, err)
	}
	if n > 0 {
		if err := p.Space.CopyOut(buf, kbuf[:n]); err != nil {
			return -1, fmt.Errorf("read fd %d: %w", fd, err)
		}
	}
	clog.FromContext(ctx).Debugf("read fd %d size %d = %d", fd, size, n)
	return n, nil
}

// Write writes size bytes from the user buffer at buf to fd and returns the
// number of bytes written.
func (h *Handlers) Write(ctx context.Context, p *proc.Process, fd int, buf addrspace.UserPtr, size int) (int, error) {
	of, err := p.Files.Get(fd)
	if err != nil {
		return -1, err
	}
	defer p.Files.Put(of)

	if !of.CanWrite() {
		return -1, fmt.Errorf("write fd %d: %w", fd, errno.ErrBadAccess)
	}
	if size < 0 {
		return -1, fmt.Errorf("write size %d: %w", size, unix.EINVAL)
	}
	kbuf, err := h.Alloc.Alloc(size)
	if err != nil {
		return -1, err
	}
	defer h.Alloc.Free(kbuf)

	if size > 0 {
		if err := p.Space.CopyIn(kbuf, buf); err != nil {
			return -1, fmt.Errorf("write fd %d: %w", fd, err)
		}
	}
	n, err := of.Transfer(uio.NewKernel(kbuf, 0, uio.Write))
	if err != nil {
		return -1, fmt.Errorf("write fd %d: %w", fd, err)
	}
	clog.FromContext(ctx).Debugf("write fd %d size %d = %d", fd, size, n)
	return n, nil
}

// Close empties slot fd and drops the reference it held.
func (h *Handlers) Close(ctx context.Context, p *proc.Process, fd int) error {
	of, err := p.Files.Get(fd)
	if err != nil {
		return err
	}
	defer p.Files.Put(of)

	prev, err := p.Files.PlaceAt(nil, fd)
	if err != nil {
		return err
	}
	if prev == nil {
		// Lost a race with another close of the same descriptor.
		return fmt.Errorf("close fd %d: %w", fd, unix.EBADF)
	}
	prev.DecRef()
	clog.FromContext(ctx).Debugf("close fd %d (%s)", fd, of.Name())
	return nil
}

// Lseek repositions fd and returns the new offset.
func (h *Handlers) Lseek(ctx context.Context, p *proc.Process, fd int, pos int64, whence int) (int64, error) {
	of, err := p.Files.Get(fd)
	if err != nil {
		return -1, err
	}
	defer p.Files.Put(of)

	off, err := of.Seek(pos, whence)
	if err != nil {
		return -1, fmt.Errorf("lseek fd %d: %w", fd, err)
	}
	clog.FromContext(ctx).Debugf("lseek fd %d %d/%d = %d", fd, pos, whence, off)
	return off, nil
}

// Dup2 makes newfd refer to the same open-file object as oldfd, closing
// whatever newfd referred to before.
func (h *Handlers) Dup2(ctx context.Context, p *proc.Process, oldfd, newfd int) (int, error) {
	of, err := p.Files.Get(oldfd)
	if err != nil {
		return -1, err
	}
	if oldfd == newfd {
		p.Files.Put(of)
		return newfd, nil
	}
	// The borrowed reference becomes the one held by newfd's slot.
	prev, err := p.Files.PlaceAt(of, newfd)
	if err != nil {
		p.Files.Put(of)
		return -1, err
	}
	if prev != nil {
		prev.DecRef()
	}
	clog.FromContext(ctx).Debugf("dup2 %d -> %d", oldfd, newfd)
	return newfd, nil
}
