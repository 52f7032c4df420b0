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

// Package errno classifies the error codes returned by the file system calls.
//
// Codes are golang.org/x/sys/unix Errno values so that they can be returned
// directly as errors and compared with errors.Is. Kind groups them into the
// categories callers usually care about.
package errno

import (
	"errors"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// Kind specifies a class of error.
type Kind uint8

const (
	Other              Kind = iota // Unclassified error.
	InvalidArgument                // Null or bad pointer, malformed flags or arguments.
	BadDescriptor                  // Descriptor out of range or not open.
	BadFileAccess                  // Operation does not match the descriptor's access mode.
	ResourceExhaustion             // No free descriptor slot or kernel memory.
	NameResolution                 // Path lookup or creation failed.
	IO                             // Failure reported by the backing store.
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case BadDescriptor:
		return "bad descriptor"
	case BadFileAccess:
		return "bad file access"
	case ResourceExhaustion:
		return "resource exhaustion"
	case NameResolution:
		return "name resolution"
	case IO:
		return "i/o"
	default:
		return "other"
	}
}

// ErrBadAccess is returned when a read is attempted on a write-only
// descriptor or a write on a read-only one. It unwraps to EBADF.
var ErrBadAccess error = accessError{}

type accessError struct{}

func (accessError) Error() string        { return "descriptor not open for this operation" }
func (accessError) Unwrap() error        { return unix.EBADF }
func (accessError) Is(target error) bool { return target == unix.EBADF }

// KindOf classifies err. A nil error has Kind Other.
func KindOf(err error) Kind {
	if err == nil {
		return Other
	}
	if errors.Is(err, ErrBadAccess) {
		return BadFileAccess
	}
	switch FromError(err) {
	case unix.EINVAL, unix.EFAULT, unix.ENAMETOOLONG, unix.ESPIPE:
		return InvalidArgument
	case unix.EBADF:
		return BadDescriptor
	case unix.EMFILE, unix.ENFILE, unix.ENOMEM, unix.ENOSPC:
		return ResourceExhaustion
	case unix.ENOENT, unix.EEXIST, unix.EACCES, unix.EPERM, unix.EISDIR, unix.ENOTDIR:
		return NameResolution
	case unix.EIO:
		return IO
	default:
		return Other
	}
}

// FromError maps err onto the errno a system call should report. Errors that
// already carry an Errno keep it; well known io/fs sentinels are translated;
// anything else becomes EIO. A nil error maps to 0.
func FromError(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var e unix.Errno
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return unix.ENOENT
	case errors.Is(err, fs.ErrExist):
		return unix.EEXIST
	case errors.Is(err, fs.ErrPermission):
		return unix.EACCES
	case errors.Is(err, fs.ErrInvalid):
		return unix.EINVAL
	case errors.Is(err, os.ErrClosed):
		return unix.EBADF
	default:
		return unix.EIO
	}
}

// Wrap returns err annotated with the errno FromError derives for it, so that
// errors.Is(Wrap(err), unix.ENOENT) and friends hold for vnode errors.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var e unix.Errno
	if errors.As(err, &e) {
		return err
	}
	return &wrapped{err: err, code: FromError(err)}
}

type wrapped struct {
	err  error
	code unix.Errno
}

func (w *wrapped) Error() string   { return w.err.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.err, w.code} }
