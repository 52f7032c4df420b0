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

package openfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/tyther9/COP4610/pkg/errno"
	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/uio"
	"github.com/tyther9/COP4610/pkg/vnode"
)

func write(t *testing.T, of *OpenFile, s string) int {
	t.Helper()
	n, err := of.Transfer(uio.NewKernel([]byte(s), 0, uio.Write))
	require.NoError(t, err)
	return n
}

func read(t *testing.T, of *OpenFile, n int) string {
	t.Helper()
	buf := make([]byte, n)
	got, err := of.Transfer(uio.NewKernel(buf, 0, uio.Read))
	require.NoError(t, err)
	return string(buf[:got])
}

func TestOpenValidatesFlags(t *testing.T) {
	m := vnode.NewMemFS()
	for _, flags := range []int{-1, fcntl.O_ACCMODE, 1 << 10} {
		_, err := Open(m, "f", flags, 0o644)
		require.ErrorIs(t, err, unix.EINVAL, fcntl.String(flags))
	}
	_, err := Open(m, "missing", fcntl.O_RDONLY, 0)
	require.ErrorIs(t, err, unix.ENOENT)
	require.Equal(t, errno.NameResolution, errno.KindOf(err))
}

func TestRefCount(t *testing.T) {
	m := vnode.NewMemFS()
	of, err := Open(m, "f", fcntl.O_WRONLY|fcntl.O_CREAT, 0o644)
	require.NoError(t, err)
	require.Equal(t, int32(1), of.RefCount())
	require.Equal(t, 1, m.OpenCount("f"))

	of.IncRef()
	require.Equal(t, int32(2), of.RefCount())
	of.DecRef()
	require.Equal(t, 1, m.OpenCount("f"), "vnode stays open while referenced")
	of.DecRef()
	require.Equal(t, 0, m.OpenCount("f"))
	require.Panics(t, of.DecRef)
}

func TestTransferSequential(t *testing.T) {
	m := vnode.NewMemFS()
	of, err := Open(m, "f", fcntl.O_WRONLY|fcntl.O_CREAT, 0o644)
	require.NoError(t, err)
	require.Equal(t, 2, write(t, of, "AB"))
	require.Equal(t, 2, write(t, of, "CD"))
	require.Equal(t, int64(4), of.Offset())
	of.DecRef()

	of, err = Open(m, "f", fcntl.O_RDONLY, 0)
	require.NoError(t, err)
	defer of.DecRef()
	require.Equal(t, "ABCD", read(t, of, 16))
	require.Equal(t, "", read(t, of, 16))
}

func TestTransferAccessMode(t *testing.T) {
	m := vnode.NewMemFS()
	require.NoError(t, m.WriteFile("f", []byte("data"), 0o644))

	wo, err := Open(m, "f", fcntl.O_WRONLY, 0)
	require.NoError(t, err)
	defer wo.DecRef()
	_, err = wo.Transfer(uio.NewKernel(make([]byte, 4), 0, uio.Read))
	require.ErrorIs(t, err, unix.EBADF)
	require.Equal(t, errno.BadFileAccess, errno.KindOf(err))

	ro, err := Open(m, "f", fcntl.O_RDONLY, 0)
	require.NoError(t, err)
	defer ro.DecRef()
	_, err = ro.Transfer(uio.NewKernel([]byte("x"), 0, uio.Write))
	require.ErrorIs(t, err, errno.ErrBadAccess)
	require.Zero(t, ro.Offset())
}

func TestTransferAppend(t *testing.T) {
	m := vnode.NewMemFS()
	require.NoError(t, m.WriteFile("f", []byte("head"), 0o644))
	of, err := Open(m, "f", fcntl.O_WRONLY|fcntl.O_APPEND, 0)
	require.NoError(t, err)
	defer of.DecRef()
	write(t, of, "-tail")
	got, err := m.ReadFile("f")
	require.NoError(t, err)
	require.Equal(t, "head-tail", string(got))
	require.Equal(t, int64(9), of.Offset())
}

func TestTransferErrorKeepsOffset(t *testing.T) {
	m := vnode.NewMemFS()
	of, err := Open(m, "f", fcntl.O_RDWR|fcntl.O_CREAT, 0o644)
	require.NoError(t, err)
	defer of.DecRef()
	write(t, of, "abc")

	// A user descriptor without an address space cannot be serviced.
	u := &uio.UIO{Iov: []uio.IOVec{{Base: 1, Len: 1}}, Resid: 1, Segment: uio.UserSpace, Rw: uio.Write}
	_, err = of.Transfer(u)
	require.Error(t, err)
	require.Equal(t, int64(3), of.Offset())
}

func TestSeek(t *testing.T) {
	m := vnode.NewMemFS()
	require.NoError(t, m.WriteFile("f", []byte("0123456789"), 0o644))
	of, err := Open(m, "f", fcntl.O_RDONLY, 0)
	require.NoError(t, err)
	defer of.DecRef()

	for _, tt := range []struct {
		pos     int64
		whence  int
		want    int64
		wantErr error
	}{
		{pos: 4, whence: fcntl.SEEK_SET, want: 4},
		{pos: 2, whence: fcntl.SEEK_CUR, want: 6},
		{pos: -1, whence: fcntl.SEEK_END, want: 9},
		{pos: -100, whence: fcntl.SEEK_CUR, wantErr: unix.EINVAL},
		{pos: 0, whence: 7, wantErr: unix.EINVAL},
	} {
		got, err := of.Seek(tt.pos, tt.whence)
		if tt.wantErr != nil {
			require.ErrorIs(t, err, tt.wantErr)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
	require.Equal(t, "9", read(t, of, 4))

	con := New(mustConsole(t), fcntl.O_RDWR)
	defer con.DecRef()
	_, err = con.Seek(0, fcntl.SEEK_SET)
	require.ErrorIs(t, err, unix.ESPIPE)
}

func mustConsole(t *testing.T) vnode.Vnode {
	t.Helper()
	vn, err := vnode.WithConsole(vnode.NewMemFS(), nil, &bytes.Buffer{}).OpenPath(vnode.ConsoleName, fcntl.O_RDWR, 0)
	require.NoError(t, err)
	return vn
}

// Concurrent writers on one object must receive disjoint offset ranges, so
// every record lands intact.
func TestTransferConcurrent(t *testing.T) {
	m := vnode.NewMemFS()
	of, err := Open(m, "f", fcntl.O_WRONLY|fcntl.O_CREAT, 0o644)
	require.NoError(t, err)
	defer of.DecRef()

	const writers, perWriter = 8, 50
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		rec := []byte{'a' + byte(i), 'a' + byte(i), 'a' + byte(i), '\n'}
		g.Go(func() error {
			for j := 0; j < perWriter; j++ {
				if _, err := of.Transfer(uio.NewKernel(rec, 0, uio.Write)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int64(writers*perWriter*4), of.Offset())

	data, err := m.ReadFile("f")
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSuffix(data, []byte("\n")), []byte("\n"))
	require.Len(t, lines, writers*perWriter)
	counts := map[string]int{}
	for _, l := range lines {
		require.Len(t, l, 3)
		require.Equal(t, l[0], l[1])
		require.Equal(t, l[1], l[2])
		counts[string(l)]++
	}
	require.Len(t, counts, writers)
	for k, v := range counts {
		require.Equal(t, perWriter, v, k)
	}
}

func TestDistinctObjectsAreIndependent(t *testing.T) {
	m := vnode.NewMemFS()
	require.NoError(t, m.WriteFile("f", []byte("abcdef"), 0o644))
	a, err := Open(m, "f", fcntl.O_RDONLY, 0)
	require.NoError(t, err)
	defer a.DecRef()
	b, err := Open(m, "f", fcntl.O_RDONLY, 0)
	require.NoError(t, err)
	defer b.DecRef()

	bufA, bufB := make([]byte, 3), make([]byte, 6)
	var g errgroup.Group
	g.Go(func() error {
		_, err := a.Transfer(uio.NewKernel(bufA, 0, uio.Read))
		return err
	})
	g.Go(func() error {
		_, err := b.Transfer(uio.NewKernel(bufB, 0, uio.Read))
		return err
	})
	require.NoError(t, g.Wait())
	ga, gb := string(bufA), string(bufB)
	require.Equal(t, "abc", ga)
	require.Equal(t, "abcdef", gb)
}
