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

package addrspace

import (
	"bytes"

	"golang.org/x/sys/unix"
)

// CopyIn copies len(dst) bytes from user address src into dst.
func (as *AddrSpace) CopyIn(dst []byte, src UserPtr) error {
	as.mu.RLock()
	defer as.mu.RUnlock()
	r, err := as.region(src, len(dst))
	if err != nil {
		return err
	}
	copy(dst, r)
	return nil
}

// CopyOut copies src to user address dst.
func (as *AddrSpace) CopyOut(dst UserPtr, src []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	r, err := as.region(dst, len(src))
	if err != nil {
		return err
	}
	copy(r, src)
	return nil
}

// CopyInStr copies a NUL-terminated string from user address src into dst,
// terminator included, and returns the string's length. A string that does not
// end within len(dst) bytes fails with ENAMETOOLONG, and one that runs off the
// end of user memory fails with EFAULT.
func (as *AddrSpace) CopyInStr(dst []byte, src UserPtr) (int, error) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	if src == 0 || src < as.base {
		return 0, unix.EFAULT
	}
	start := uint64(src - as.base)
	if start >= uint64(as.brk) {
		return 0, unix.EFAULT
	}
	avail := as.mem[start:as.brk]
	limit := min(len(avail), len(dst))
	if i := bytes.IndexByte(avail[:limit], 0); i >= 0 {
		copy(dst, avail[:i+1])
		return i, nil
	}
	if limit == len(dst) {
		return 0, unix.ENAMETOOLONG
	}
	return 0, unix.EFAULT
}
