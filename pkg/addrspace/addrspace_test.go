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

package addrspace

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMapCopy(t *testing.T) {
	as := New(0, 64)
	require.Equal(t, DefaultBase, as.Base())
	require.Equal(t, 64, as.Size())

	p, err := as.Map([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, DefaultBase, p)

	got := make([]byte, 5)
	require.NoError(t, as.CopyIn(got, p))
	require.Equal(t, "hello", string(got))

	require.NoError(t, as.CopyOut(p+1, []byte("EL")))
	require.NoError(t, as.CopyIn(got, p))
	require.Equal(t, "hELlo", string(got))

	q, err := as.Reserve(8)
	require.NoError(t, err)
	require.Equal(t, p+5, q)
	require.NoError(t, as.CopyIn(make([]byte, 8), q))
}

func TestFaults(t *testing.T) {
	as := New(0x1000, 16)
	p, err := as.Map([]byte("abcd"))
	require.NoError(t, err)

	for _, tt := range []struct {
		name string
		ptr  UserPtr
		n    int
	}{
		{"null", 0, 1},
		{"below base", 0x10, 1},
		{"past break", p + 2, 4},
		{"unreserved", p + 4, 1},
		{"wraps", ^UserPtr(0), 2},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, as.CopyIn(make([]byte, tt.n), tt.ptr), unix.EFAULT)
			require.ErrorIs(t, as.CopyOut(tt.ptr, make([]byte, tt.n)), unix.EFAULT)
		})
	}

	_, err = as.Reserve(13)
	require.ErrorIs(t, err, unix.ENOMEM)
	_, err = as.Reserve(-1)
	require.ErrorIs(t, err, unix.ENOMEM)
}

func TestCopyInStr(t *testing.T) {
	as := New(0, 64)
	p, err := as.MapString("source1")
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := as.CopyInStr(buf, p)
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, "source1\x00", string(buf[:n+1]))

	// Exactly enough room for the terminator.
	n, err = as.CopyInStr(make([]byte, 8), p)
	require.NoError(t, err)
	require.Equal(t, 7, n)

	_, err = as.CopyInStr(make([]byte, 7), p)
	require.ErrorIs(t, err, unix.ENAMETOOLONG)

	_, err = as.CopyInStr(buf, 0)
	require.ErrorIs(t, err, unix.EFAULT)

	// No terminator before the end of user memory.
	q, err := as.Map([]byte("unterminated"))
	require.NoError(t, err)
	_, err = as.CopyInStr(make([]byte, 32), q)
	require.ErrorIs(t, err, unix.EFAULT)
}
