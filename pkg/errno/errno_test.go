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

package errno

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFromError(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
		want unix.Errno
	}{
		{"nil", nil, 0},
		{"errno", unix.EMFILE, unix.EMFILE},
		{"wrapped errno", fmt.Errorf("placing: %w", unix.EMFILE), unix.EMFILE},
		{"not exist", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, unix.ENOENT},
		{"exist", fs.ErrExist, unix.EEXIST},
		{"permission", fs.ErrPermission, unix.EACCES},
		{"invalid", fs.ErrInvalid, unix.EINVAL},
		{"closed", os.ErrClosed, unix.EBADF},
		{"host errno", &fs.PathError{Op: "open", Path: "x", Err: unix.EISDIR}, unix.EISDIR},
		{"bad access", ErrBadAccess, unix.EBADF},
		{"unknown", errors.New("disk on fire"), unix.EIO},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FromError(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want Kind
	}{
		{nil, Other},
		{unix.EINVAL, InvalidArgument},
		{unix.EFAULT, InvalidArgument},
		{unix.ENAMETOOLONG, InvalidArgument},
		{unix.EBADF, BadDescriptor},
		{fmt.Errorf("read: %w", ErrBadAccess), BadFileAccess},
		{unix.EMFILE, ResourceExhaustion},
		{unix.ENOMEM, ResourceExhaustion},
		{fs.ErrNotExist, NameResolution},
		{unix.EEXIST, NameResolution},
		{errors.New("short write"), IO},
		{unix.EAGAIN, Other},
	} {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(tt.err), tt.want.String())
		})
	}
}

func TestBadAccess(t *testing.T) {
	err := fmt.Errorf("write fd 0: %w", ErrBadAccess)
	require.ErrorIs(t, err, unix.EBADF)
	require.ErrorIs(t, err, ErrBadAccess)
	require.NotErrorIs(t, unix.EBADF, ErrBadAccess)
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap(nil))

	base := &fs.PathError{Op: "open", Path: "missing", Err: fs.ErrNotExist}
	err := Wrap(base)
	require.ErrorIs(t, err, unix.ENOENT)
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.Equal(t, base.Error(), err.Error())

	var pe *fs.PathError
	require.ErrorAs(t, err, &pe)

	require.Equal(t, error(unix.EEXIST), Wrap(unix.EEXIST))
}
