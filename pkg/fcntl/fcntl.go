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

// Package fcntl defines the open flags and seek modes understood by the
// kernel's file system calls. The values are the kernel ABI, not the host's.
package fcntl

import "strings"

const (
	O_RDONLY  = 0  // open for reading only
	O_WRONLY  = 1  // open for writing only
	O_RDWR    = 2  // open for reading and writing
	O_ACCMODE = 3  // mask for O_RDONLY/O_WRONLY/O_RDWR
	O_CREAT   = 4  // create file if nonexistent
	O_EXCL    = 8  // with O_CREAT, fail if file exists
	O_TRUNC   = 16 // truncate to zero length
	O_APPEND  = 32 // append mode
	O_NOCTTY  = 64 // accepted and ignored

	// AllFlags is every bit open(2) accepts.
	AllFlags = O_ACCMODE | O_CREAT | O_EXCL | O_TRUNC | O_APPEND | O_NOCTTY
)

const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// Valid reports whether flags only uses known bits and names a real access
// mode.
func Valid(flags int) bool {
	if flags < 0 || flags&^AllFlags != 0 {
		return false
	}
	return flags&O_ACCMODE != O_ACCMODE
}

// AccMode returns the access-mode bits of flags.
func AccMode(flags int) int { return flags & O_ACCMODE }

// Readable reports whether an object opened with flags may be read.
func Readable(flags int) bool { return AccMode(flags) != O_WRONLY }

// Writable reports whether an object opened with flags may be written.
func Writable(flags int) bool { return AccMode(flags) != O_RDONLY }

var names = []struct {
	bit  int
	name string
}{
	{O_CREAT, "O_CREAT"},
	{O_EXCL, "O_EXCL"},
	{O_TRUNC, "O_TRUNC"},
	{O_APPEND, "O_APPEND"},
	{O_NOCTTY, "O_NOCTTY"},
}

// String renders flags the way they would be written in C, e.g.
// "O_WRONLY|O_CREAT|O_TRUNC".
func String(flags int) string {
	var parts []string
	switch AccMode(flags) {
	case O_RDONLY:
		parts = append(parts, "O_RDONLY")
	case O_WRONLY:
		parts = append(parts, "O_WRONLY")
	case O_RDWR:
		parts = append(parts, "O_RDWR")
	default:
		parts = append(parts, "O_ACCMODE")
	}
	for _, n := range names {
		if flags&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Parse is the inverse of String. Unknown names are reported with ok == false.
func Parse(s string) (flags int, ok bool) {
	for _, part := range strings.Split(s, "|") {
		switch part = strings.TrimSpace(part); part {
		case "O_RDONLY":
		case "O_WRONLY":
			flags |= O_WRONLY
		case "O_RDWR":
			flags |= O_RDWR
		default:
			found := false
			for _, n := range names {
				if n.name == part {
					flags |= n.bit
					found = true
					break
				}
			}
			if !found {
				return 0, false
			}
		}
	}
	return flags, true
}
