// Copyright 2023 Chainguard, Inc.
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
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/tyther9/COP4610/pkg/addrspace"
	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/uio"
)

func TestMemFSMkdir(t *testing.T) {
	t.Run("parent non existent", func(t *testing.T) {
		m := NewMemFS()
		err := m.Mkdir("/a/b", 0o755)
		require.ErrorIs(t, err, unix.ENOENT)
	})
	t.Run("parent file", func(t *testing.T) {
		m := NewMemFS()
		require.NoError(t, m.Mkdir("/a", 0o755))
		require.NoError(t, m.WriteFile("/a/b", []byte("hello"), 0o644))
		err := m.Mkdir("/a/b/c", 0o755)
		require.ErrorIs(t, err, unix.ENOTDIR)
	})
	t.Run("already exists", func(t *testing.T) {
		m := NewMemFS()
		require.NoError(t, m.Mkdir("/a", 0o755))
		err := m.Mkdir("/a", 0o755)
		require.ErrorIs(t, err, unix.EEXIST)
	})
	t.Run("success", func(t *testing.T) {
		m := NewMemFS()
		require.NoError(t, m.MkdirAll("/a/b", 0o755))
		require.NoError(t, m.Mkdir("/a/b/c", 0o755))
		fi, err := m.Stat("a/b/c")
		require.NoError(t, err)
		require.True(t, fi.IsDir())
	})
}

func TestMemFSOpenPath(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(m *MemFS)
		path    string
		flags   int
		wantErr error
	}{
		{
			name:    "missing without create",
			path:    "nope",
			flags:   fcntl.O_RDONLY,
			wantErr: unix.ENOENT,
		},
		{
			name:  "create",
			path:  "new",
			flags: fcntl.O_WRONLY | fcntl.O_CREAT,
		},
		{
			name:    "exclusive create of existing file",
			setup:   func(m *MemFS) { require.NoError(t, m.WriteFile("f", nil, 0o644)) },
			path:    "f",
			flags:   fcntl.O_WRONLY | fcntl.O_CREAT | fcntl.O_EXCL,
			wantErr: unix.EEXIST,
		},
		{
			name:    "directory",
			setup:   func(m *MemFS) { require.NoError(t, m.Mkdir("d", 0o755)) },
			path:    "d",
			flags:   fcntl.O_RDONLY,
			wantErr: unix.EISDIR,
		},
		{
			name:    "missing parent",
			path:    "a/b",
			flags:   fcntl.O_WRONLY | fcntl.O_CREAT,
			wantErr: unix.ENOENT,
		},
		{
			name:    "empty path",
			path:    "",
			flags:   fcntl.O_RDONLY,
			wantErr: unix.EINVAL,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemFS()
			if tt.setup != nil {
				tt.setup(m)
			}
			vn, err := m.OpenPath(tt.path, tt.flags, 0o664)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, 1, m.OpenCount(tt.path))
			vn.Release()
			require.Equal(t, 0, m.OpenCount(tt.path))
		})
	}
}

func TestMemFSTruncate(t *testing.T) {
	m := NewMemFS()
	require.NoError(t, m.WriteFile("f", []byte("hello"), 0o644))

	vn, err := m.OpenPath("f", fcntl.O_RDONLY|fcntl.O_TRUNC, 0)
	require.NoError(t, err)
	vn.Release()
	got, err := m.ReadFile("f")
	require.NoError(t, err)
	require.Equal(t, "hello", string(got), "read-only open must not truncate")

	vn, err = m.OpenPath("f", fcntl.O_WRONLY|fcntl.O_TRUNC, 0)
	require.NoError(t, err)
	vn.Release()
	got, err = m.ReadFile("f")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMemVnodeReadWrite(t *testing.T) {
	m := NewMemFS()
	vn, err := m.OpenPath("f", fcntl.O_RDWR|fcntl.O_CREAT, 0o644)
	require.NoError(t, err)
	defer vn.Release()

	u := uio.NewKernel([]byte("ABCD"), 0, uio.Write)
	require.NoError(t, vn.Write(u))
	require.Equal(t, int64(4), u.Offset)
	require.Zero(t, u.Resid)

	// Writing past the end leaves a zero-filled hole.
	u = uio.NewKernel([]byte("Z"), 6, uio.Write)
	require.NoError(t, vn.Write(u))
	size, err := vn.Size()
	require.NoError(t, err)
	require.Equal(t, int64(7), size)

	buf := make([]byte, 10)
	u = uio.NewKernel(buf, 0, uio.Read)
	require.NoError(t, vn.Read(u))
	require.Equal(t, 3, u.Resid)
	require.Equal(t, int64(7), u.Offset)
	require.Equal(t, []byte("ABCD\x00\x00Z"), buf[:7])

	u = uio.NewKernel(buf, 100, uio.Read)
	require.NoError(t, vn.Read(u))
	require.Equal(t, len(buf), u.Resid, "read at end of file moves nothing")
}

func TestMemVnodeUserFault(t *testing.T) {
	m := NewMemFS()
	vn, err := m.OpenPath("f", fcntl.O_RDWR|fcntl.O_CREAT, 0o644)
	require.NoError(t, err)
	defer vn.Release()

	as := addrspace.New(0, 16)
	ptr, err := as.Map([]byte("xy"))
	require.NoError(t, err)

	// Only two bytes are mapped, so a four byte write faults.
	u := uio.NewUser(as, ptr, 4, 0, uio.Write)
	require.ErrorIs(t, vn.Write(u), unix.EFAULT)
	size, err := vn.Size()
	require.NoError(t, err)
	require.Zero(t, size)

	u = uio.NewUser(as, ptr, 2, 0, uio.Write)
	require.NoError(t, vn.Write(u))
	got, err := m.ReadFile("f")
	require.NoError(t, err)
	require.Equal(t, "xy", string(got))
}

func TestMemVnodeDoubleRelease(t *testing.T) {
	m := NewMemFS()
	vn, err := m.OpenPath("f", fcntl.O_WRONLY|fcntl.O_CREAT, 0o644)
	require.NoError(t, err)
	vn.Release()
	require.Panics(t, vn.Release)
}
