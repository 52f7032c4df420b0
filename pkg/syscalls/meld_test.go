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
	"io/fs"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/tyther9/COP4610/pkg/addrspace"
	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/kmalloc"
	"github.com/tyther9/COP4610/pkg/uio"
	"github.com/tyther9/COP4610/pkg/vnode"
)

func (f *fixture) meld(a, b, out string) (int, error) {
	f.t.Helper()
	return f.h.Meld(f.ctx, f.p, f.str(a), f.str(b), f.str(out))
}

func TestMeld(t *testing.T) {
	for _, tt := range []struct {
		name string
		src1 string
		src2 string
		want string
	}{
		{
			name: "equal lengths",
			src1: "01238901",
			src2: "45672345",
			want: "0123456789012345",
		},
		{
			name: "second empty",
			src1: "hello",
			src2: "",
			want: "hell    o       ",
		},
		{
			name: "first empty",
			src1: "",
			src2: "abc",
			want: "    abc ",
		},
		{
			name: "both empty",
			want: "",
		},
		{
			name: "uneven",
			src1: "aaaabb",
			src2: "cc",
			want: "aaaacc  bb      ",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.fs.WriteFile("source1", []byte(tt.src1), 0o644))
			require.NoError(t, f.fs.WriteFile("source2", []byte(tt.src2), 0o644))

			n, err := f.meld("source1", "source2", "merged")
			require.NoError(t, err)
			require.Equal(t, len(tt.want), n)

			got, err := f.fs.ReadFile("merged")
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))

			fi, err := f.fs.Stat("merged")
			require.NoError(t, err)
			require.Equal(t, "-rw-rw-r--", fi.Mode().String())

			require.Zero(t, f.p.Files.Len(), "meld never touches the descriptor table")
			for _, p := range []string{"source1", "source2", "merged"} {
				require.Zero(t, f.fs.OpenCount(p), p)
			}
		})
	}
}

// The meld test program: create the sources through the file system calls,
// meld, and read the result back through a descriptor.
func TestMeldProgram(t *testing.T) {
	f := newFixture(t)
	for path, data := range map[string]string{"source1": "01238901", "source2": "45672345"} {
		fd := f.open(path, fcntl.O_WRONLY|fcntl.O_CREAT|fcntl.O_TRUNC)
		require.Equal(t, 8, f.write(fd, data))
		f.close(fd)
	}

	n, err := f.meld("source1", "source2", "merged")
	require.NoError(t, err)
	require.Equal(t, 16, n)

	fd := f.open("merged", fcntl.O_RDONLY)
	require.Equal(t, "0123456789012345", f.read(fd, 16))
	f.close(fd)
}

func TestMeldOutputExists(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.fs.WriteFile("source1", []byte("abcd"), 0o644))
	require.NoError(t, f.fs.WriteFile("source2", []byte("efgh"), 0o644))
	require.NoError(t, f.fs.WriteFile("merged", []byte("keep"), 0o644))

	_, err := f.meld("source1", "source2", "merged")
	require.ErrorIs(t, err, unix.EEXIST)

	got, err := f.fs.ReadFile("merged")
	require.NoError(t, err)
	require.Equal(t, "keep", string(got))
	require.Zero(t, f.fs.OpenCount("source1"))
	require.Zero(t, f.fs.OpenCount("source2"))
}

func TestMeldErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.fs.WriteFile("source1", []byte("abcd"), 0o644))

	_, err := f.h.Meld(f.ctx, f.p, 0, f.str("source1"), f.str("merged"))
	require.ErrorIs(t, err, unix.EINVAL)
	_, err = f.h.Meld(f.ctx, f.p, f.str("source1"), f.str("source1"), addrspace.UserPtr(0))
	require.ErrorIs(t, err, unix.EINVAL)

	_, err = f.meld("source1", "missing", "merged")
	require.ErrorIs(t, err, unix.ENOENT)
	_, err = f.fs.Stat("merged")
	require.ErrorIs(t, err, unix.ENOENT, "output is not created when an input is missing")
	require.Zero(t, f.fs.OpenCount("source1"))
}

func TestMeldNoMemory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.fs.WriteFile("s1", []byte("abcd"), 0o644))
	require.NoError(t, f.fs.WriteFile("s2", []byte("efgh"), 0o644))

	// Room for one path buffer at a time, but not for both chunk buffers.
	small := kmalloc.New(6)
	f.h.Alloc = small
	f.h.PathMax = 6

	_, err := f.meld("s1", "s2", "o")
	require.ErrorIs(t, err, unix.ENOMEM)
	require.Zero(t, small.InUse())
	for _, p := range []string{"s1", "s2", "o"} {
		require.Zero(t, f.fs.OpenCount(p), p)
	}
}

// failingFS fails the failAt'th vnode write made through it with EIO.
type failingFS struct {
	vnode.FS
	failAt int32
	writes atomic.Int32
}

func (f *failingFS) OpenPath(path string, flags int, mode fs.FileMode) (vnode.Vnode, error) {
	vn, err := f.FS.OpenPath(path, flags, mode)
	if err != nil {
		return nil, err
	}
	return &failingVnode{Vnode: vn, fs: f}, nil
}

type failingVnode struct {
	vnode.Vnode
	fs *failingFS
}

func (v *failingVnode) Write(u *uio.UIO) error {
	if v.fs.writes.Add(1) == v.fs.failAt {
		return unix.EIO
	}
	return v.Vnode.Write(u)
}

func TestMeldWriteFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.fs.WriteFile("source1", []byte("aaaabbbb"), 0o644))
	require.NoError(t, f.fs.WriteFile("source2", []byte("ccccdddd"), 0o644))
	f.h.FS = &failingFS{FS: f.fs, failAt: 3}

	_, err := f.meld("source1", "source2", "merged")
	require.ErrorIs(t, err, unix.EIO)

	got, err := f.fs.ReadFile("merged")
	require.NoError(t, err)
	require.Equal(t, "aaaacccc", string(got), "the first round is kept")
	for _, p := range []string{"source1", "source2", "merged"} {
		require.Zero(t, f.fs.OpenCount(p), p)
	}
	require.Zero(t, f.alloc.InUse())
}
