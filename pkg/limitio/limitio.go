// Copyright 2026 Chainguard, Inc.
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

// Package limitio caps how many bytes a reader may produce. Root images are
// decompressed into kernel memory, so their size is bounded.
package limitio

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// DefaultImageLimit bounds a decompressed root image unless configured
// otherwise.
const DefaultImageLimit = 64 << 20

// TooLargeError is returned once a stream produces more than Limit bytes.
// It unwraps to EFBIG.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("stream exceeds %d bytes", e.Limit)
}

func (e *TooLargeError) Unwrap() error { return unix.EFBIG }

// Reader yields at most limit bytes of its source and fails with
// TooLargeError if the source has more.
type Reader struct {
	r     io.Reader
	left  int64
	limit int64
	over  bool
}

// NewReader wraps r. A negative limit disables the cap; zero selects
// DefaultImageLimit.
func NewReader(r io.Reader, limit int64) io.Reader {
	switch {
	case limit < 0:
		return r
	case limit == 0:
		limit = DefaultImageLimit
	}
	return &Reader{r: r, left: limit, limit: limit}
}

func (l *Reader) Read(p []byte) (int, error) {
	if l.over {
		return 0, &TooLargeError{Limit: l.limit}
	}
	if l.left <= 0 {
		// Exactly at the cap: only a further byte from the source is an
		// overflow.
		var probe [1]byte
		n, err := l.r.Read(probe[:])
		if n > 0 {
			l.over = true
			return 0, &TooLargeError{Limit: l.limit}
		}
		return 0, err
	}
	if int64(len(p)) > l.left {
		p = p[:l.left]
	}
	n, err := l.r.Read(p)
	l.left -= int64(n)
	return n, err
}
