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
	"context"
	"fmt"
	"io/fs"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sys/unix"

	"github.com/tyther9/COP4610/pkg/addrspace"
	"github.com/tyther9/COP4610/pkg/errno"
	"github.com/tyther9/COP4610/pkg/proc"
)

// System call numbers.
const (
	SYS_open  = 45
	SYS_dup2  = 48
	SYS_close = 49
	SYS_read  = 50
	SYS_write = 55
	SYS_lseek = 59
	SYS_meld  = 120
)

var callNames = map[int]string{
	SYS_open:  "open",
	SYS_dup2:  "dup2",
	SYS_close: "close",
	SYS_read:  "read",
	SYS_write: "write",
	SYS_lseek: "lseek",
	SYS_meld:  "meld",
}

// CallName returns the name of system call n, or "" if there is none.
func CallName(n int) string { return callNames[n] }

// CallNumber returns the number of the named system call.
func CallNumber(name string) (int, bool) {
	for n, s := range callNames {
		if s == name {
			return n, true
		}
	}
	return 0, false
}

// TrapFrame holds the registers of a system call: the call number and
// arguments on entry, the result and error code on return.
type TrapFrame struct {
	Callno int
	Args   [4]int64

	Retval int64
	Errno  unix.Errno
}

func (tf *TrapFrame) ptr(i int) addrspace.UserPtr { return addrspace.UserPtr(tf.Args[i]) }
func (tf *TrapFrame) arg(i int) int                { return int(tf.Args[i]) }

// Dispatch runs the system call described by tf on behalf of p. On success
// tf.Errno is 0 and tf.Retval holds the result; on failure tf.Retval is -1
// and tf.Errno holds the code. The handler's error is returned as well.
func (h *Handlers) Dispatch(ctx context.Context, p *proc.Process, tf *TrapFrame) error {
	var (
		ret int64
		err error
	)
	switch tf.Callno {
	case SYS_open:
		var fd int
		fd, err = h.Open(ctx, p, tf.ptr(0), tf.arg(1), fs.FileMode(tf.Args[2]).Perm())
		ret = int64(fd)
	case SYS_read:
		var n int
		n, err = h.Read(ctx, p, tf.arg(0), tf.ptr(1), tf.arg(2))
		ret = int64(n)
	case SYS_write:
		var n int
		n, err = h.Write(ctx, p, tf.arg(0), tf.ptr(1), tf.arg(2))
		ret = int64(n)
	case SYS_close:
		err = h.Close(ctx, p, tf.arg(0))
	case SYS_lseek:
		ret, err = h.Lseek(ctx, p, tf.arg(0), tf.Args[1], tf.arg(2))
	case SYS_dup2:
		var fd int
		fd, err = h.Dup2(ctx, p, tf.arg(0), tf.arg(1))
		ret = int64(fd)
	case SYS_meld:
		var n int
		n, err = h.Meld(ctx, p, tf.ptr(0), tf.ptr(1), tf.ptr(2))
		ret = int64(n)
	default:
		err = fmt.Errorf("system call %d: %w", tf.Callno, unix.ENOSYS)
	}

	if err != nil {
		tf.Retval = -1
		tf.Errno = errno.FromError(err)
		clog.FromContext(ctx).Debugf("%s[%d]: %s: %v", p.Name, p.PID, callName(tf.Callno), err)
		return err
	}
	tf.Retval = ret
	tf.Errno = 0
	return nil
}

func callName(n int) string {
	if s := CallName(n); s != "" {
		return s
	}
	return fmt.Sprintf("syscall %d", n)
}
