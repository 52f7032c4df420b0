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

package vnode

import (
	"io/fs"

	"github.com/tyther9/COP4610/pkg/uio"
)

// Vnode is an open handle on a file-like object. It has no notion of a
// current position: every transfer is positioned by the UIO it is given.
type Vnode interface {
	// Read fills u from the file starting at u.Offset. Reading at or past
	// end of file moves nothing and is not an error.
	Read(u *uio.UIO) error
	// Write stores u into the file starting at u.Offset, growing it as
	// needed.
	Write(u *uio.UIO) error
	// Size returns the current length of the file.
	Size() (int64, error)
	// Release drops the handle. It must be called exactly once.
	Release()
}

// Seekable is implemented by vnodes that support positioned access. Devices
// that ignore the offset (the console) report false.
type Seekable interface {
	Seekable() bool
}

// IsSeekable reports whether vn supports positioned access.
func IsSeekable(vn Vnode) bool {
	if s, ok := vn.(Seekable); ok {
		return s.Seekable()
	}
	return true
}

// FS resolves paths to vnodes.
type FS interface {
	// OpenPath resolves path, creating it when flags asks for it (see
	// package fcntl), and returns a handle the caller must Release.
	OpenPath(path string, flags int, mode fs.FileMode) (Vnode, error)
}
