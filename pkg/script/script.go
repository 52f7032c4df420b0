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

// Package script runs user programs written as one system call per line.
//
// A line has the form
//
//	[var =] call arg... [expect value] [fails ERRNO]
//
// where call is one of the system call names known to the dispatcher, or
// echo. Arguments are tokenized like a shell command line, so quoting and
// # comments work as expected. Path and data arguments are copied into the
// process's address space before the trap; null passes the null pointer.
// $var substitutes the result of an earlier line.
//
//	fd = open source1 O_WRONLY|O_CREAT|O_TRUNC 0664
//	write $fd 01238901 expect 8
//	close $fd
//	close $fd fails EBADF
package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/shlex"
	"golang.org/x/sys/unix"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/tyther9/COP4610/pkg/addrspace"
	"github.com/tyther9/COP4610/pkg/errno"
	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/proc"
	"github.com/tyther9/COP4610/pkg/syscalls"
)

// Echo is the pseudo call number of the echo statement. It writes its
// arguments, space separated and newline terminated, to descriptor 1.
const Echo = -1

const (
	kwExpect = "expect"
	kwFails  = "fails"
)

var keywords = sets.New(kwExpect, kwFails)

var arity = map[int][2]int{
	syscalls.SYS_open:  {2, 3},
	syscalls.SYS_read:  {2, 2},
	syscalls.SYS_write: {2, 3},
	syscalls.SYS_close: {1, 1},
	syscalls.SYS_lseek: {3, 3},
	syscalls.SYS_dup2:  {2, 2},
	syscalls.SYS_meld:  {3, 3},
}

var whences = map[string]int{
	"SEEK_SET": fcntl.SEEK_SET,
	"SEEK_CUR": fcntl.SEEK_CUR,
	"SEEK_END": fcntl.SEEK_END,
}

// Trapper issues system calls on behalf of a process.
type Trapper interface {
	Trap(ctx context.Context, p *proc.Process, callno int, args ...int64) (int64, error)
}

// Step is a parsed line.
type Step struct {
	Line int
	Bind string
	Call int
	Args []string

	// Expect is the expected result when HasExpect is set: the bytes read
	// for read, the return value otherwise.
	Expect    string
	HasExpect bool
	// Fails names the errno the call must fail with.
	Fails string
}

func (s Step) name() string {
	if s.Call == Echo {
		return "echo"
	}
	return syscalls.CallName(s.Call)
}

// Script is a parsed program.
type Script struct {
	Name  string
	Steps []Step
}

// Parse reads a program from r. name is used in error messages.
func Parse(name string, r io.Reader) (*Script, error) {
	s := &Script{Name: name}
	bound := sets.New[string]()

	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		toks, err := shlex.Split(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		if len(toks) == 0 {
			continue
		}
		st, err := parseStep(toks, bound)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		st.Line = line
		if st.Bind != "" {
			bound.Insert(st.Bind)
		}
		s.Steps = append(s.Steps, st)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return s, nil
}

func parseStep(toks []string, bound sets.Set[string]) (Step, error) {
	var st Step
	if len(toks) >= 2 && toks[1] == "=" {
		if !validName(toks[0]) {
			return st, fmt.Errorf("invalid variable name %q", toks[0])
		}
		st.Bind, toks = toks[0], toks[2:]
		if len(toks) == 0 {
			return st, errors.New("missing system call after =")
		}
	}

	call := toks[0]
	toks = toks[1:]
	if call == "echo" {
		st.Call = Echo
	} else {
		n, ok := syscalls.CallNumber(call)
		if !ok {
			return st, fmt.Errorf("unknown system call %q", call)
		}
		st.Call = n
	}

	// Trailing clauses, in either order.
	for len(toks) >= 2 && keywords.Has(toks[len(toks)-2]) {
		kw, val := toks[len(toks)-2], toks[len(toks)-1]
		toks = toks[:len(toks)-2]
		switch kw {
		case kwExpect:
			if st.HasExpect {
				return st, errors.New("duplicate expect clause")
			}
			st.Expect, st.HasExpect = val, true
		case kwFails:
			if st.Fails != "" {
				return st, errors.New("duplicate fails clause")
			}
			if !strings.HasPrefix(val, "E") {
				return st, fmt.Errorf("fails wants an errno name, got %q", val)
			}
			st.Fails = val
		}
	}
	if st.Call == Echo && (st.HasExpect || st.Fails != "") {
		return st, errors.New("echo takes no expect or fails clause")
	}
	if st.HasExpect && st.Fails != "" {
		return st, errors.New("expect and fails are mutually exclusive")
	}
	st.Args = toks

	if st.Call != Echo {
		want := arity[st.Call]
		if len(st.Args) < want[0] || len(st.Args) > want[1] {
			if want[0] == want[1] {
				return st, fmt.Errorf("%s takes %d arguments, got %d", call, want[0], len(st.Args))
			}
			return st, fmt.Errorf("%s takes %d to %d arguments, got %d", call, want[0], want[1], len(st.Args))
		}
	}
	for _, a := range st.Args {
		if v, ok := strings.CutPrefix(a, "$"); ok && !bound.Has(v) {
			return st, fmt.Errorf("undefined variable %q", v)
		}
	}
	if st.Call == syscalls.SYS_open {
		if _, err := flagsArg(st.Args[1]); err != nil {
			return st, err
		}
	}
	return st, nil
}

func validName(s string) bool {
	if s == "" || keywords.Has(s) {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func flagsArg(s string) (int, error) {
	if n, err := strconv.ParseInt(s, 0, 32); err == nil {
		return int(n), nil
	}
	flags, ok := fcntl.Parse(s)
	if !ok {
		return 0, fmt.Errorf("unknown open flags %q", s)
	}
	return flags, nil
}

type value struct {
	n    int64
	data string
}

func (v value) String() string {
	if v.data != "" {
		return v.data
	}
	return strconv.FormatInt(v.n, 10)
}

// run is the state of one execution.
type run struct {
	t    Trapper
	p    *proc.Process
	vars map[string]value
}

// Run executes the program as process p. It stops at the first line whose
// outcome differs from what the line expects.
func (s *Script) Run(ctx context.Context, t Trapper, p *proc.Process) error {
	log := clog.FromContext(ctx)
	r := &run{t: t, p: p, vars: map[string]value{}}
	for _, st := range s.Steps {
		v, err := r.step(ctx, st)
		if st.Fails != "" {
			if err == nil {
				return fmt.Errorf("%s:%d: %s succeeded, want %s", s.Name, st.Line, st.name(), st.Fails)
			}
			if got := unix.ErrnoName(errno.FromError(err)); got != st.Fails {
				return fmt.Errorf("%s:%d: %s failed with %s, want %s: %w", s.Name, st.Line, st.name(), got, st.Fails, err)
			}
			log.Debugf("%s:%d: %s failed as expected: %v", s.Name, st.Line, st.name(), err)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s:%d: %s: %w", s.Name, st.Line, st.name(), err)
		}
		if st.HasExpect {
			got := strconv.FormatInt(v.n, 10)
			if st.Call == syscalls.SYS_read {
				got = v.data
			}
			if got != st.Expect {
				return fmt.Errorf("%s:%d: %s returned %q, want %q", s.Name, st.Line, st.name(), got, st.Expect)
			}
		}
		if st.Bind != "" {
			r.vars[st.Bind] = v
		}
	}
	return nil
}

func (r *run) step(ctx context.Context, st Step) (value, error) {
	switch st.Call {
	case Echo:
		words := make([]string, len(st.Args))
		for i, a := range st.Args {
			words[i] = r.str(a)
		}
		msg := strings.Join(words, " ") + "\n"
		n, err := r.write(ctx, 1, msg, len(msg))
		return value{n: n}, err

	case syscalls.SYS_open:
		path, err := r.path(st.Args[0])
		if err != nil {
			return value{}, err
		}
		flags, err := flagsArg(st.Args[1])
		if err != nil {
			return value{}, err
		}
		var mode int64
		if len(st.Args) > 2 {
			if mode, err = strconv.ParseInt(st.Args[2], 8, 32); err != nil {
				return value{}, fmt.Errorf("mode %q: %w", st.Args[2], err)
			}
		}
		n, err := r.t.Trap(ctx, r.p, st.Call, int64(path), int64(flags), mode)
		return value{n: n}, err

	case syscalls.SYS_read:
		fd, err := r.num(st.Args[0])
		if err != nil {
			return value{}, err
		}
		size, err := r.num(st.Args[1])
		if err != nil {
			return value{}, err
		}
		buf, err := r.p.Space.Reserve(int(max(size, 0)))
		if err != nil {
			return value{}, err
		}
		n, err := r.t.Trap(ctx, r.p, st.Call, fd, int64(buf), size)
		if err != nil {
			return value{n: n}, err
		}
		data := make([]byte, n)
		if err := r.p.Space.CopyIn(data, buf); err != nil {
			return value{}, err
		}
		return value{n: n, data: string(data)}, nil

	case syscalls.SYS_write:
		fd, err := r.num(st.Args[0])
		if err != nil {
			return value{}, err
		}
		data := r.str(st.Args[1])
		size := int64(len(data))
		if len(st.Args) > 2 {
			if size, err = r.num(st.Args[2]); err != nil {
				return value{}, err
			}
		}
		n, err := r.write(ctx, fd, data, int(size))
		return value{n: n}, err

	case syscalls.SYS_lseek:
		args, err := r.nums(st.Args[:2])
		if err != nil {
			return value{}, err
		}
		whence, ok := whences[st.Args[2]]
		if !ok {
			w, err := r.num(st.Args[2])
			if err != nil {
				return value{}, fmt.Errorf("whence %q: %w", st.Args[2], err)
			}
			whence = int(w)
		}
		n, err := r.t.Trap(ctx, r.p, st.Call, args[0], args[1], int64(whence))
		return value{n: n}, err

	case syscalls.SYS_meld:
		var args []int64
		for _, a := range st.Args {
			ptr, err := r.path(a)
			if err != nil {
				return value{}, err
			}
			args = append(args, int64(ptr))
		}
		n, err := r.t.Trap(ctx, r.p, st.Call, args...)
		return value{n: n}, err

	default:
		args, err := r.nums(st.Args)
		if err != nil {
			return value{}, err
		}
		n, err := r.t.Trap(ctx, r.p, st.Call, args...)
		return value{n: n}, err
	}
}

// write maps data into user memory and writes size bytes of it to fd. A
// size larger than data reaches past the mapping on purpose.
func (r *run) write(ctx context.Context, fd int64, data string, size int) (int64, error) {
	var ptr addrspace.UserPtr
	if data != "null" {
		var err error
		if ptr, err = r.p.Space.Map([]byte(data)); err != nil {
			return 0, err
		}
	}
	return r.t.Trap(ctx, r.p, syscalls.SYS_write, fd, int64(ptr), int64(size))
}

func (r *run) path(s string) (addrspace.UserPtr, error) {
	if s == "null" {
		return 0, nil
	}
	return r.p.Space.MapString(r.str(s))
}

func (r *run) str(s string) string {
	if v, ok := strings.CutPrefix(s, "$"); ok {
		return r.vars[v].String()
	}
	return s
}

func (r *run) num(s string) (int64, error) {
	if v, ok := strings.CutPrefix(s, "$"); ok {
		return r.vars[v].n, nil
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("want an integer, got %q", s)
	}
	return n, nil
}

func (r *run) nums(args []string) ([]int64, error) {
	out := make([]int64, len(args))
	for i, a := range args {
		n, err := r.num(a)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
