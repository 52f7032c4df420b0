// Copyright 2023 Chainguard, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the kernel's console log handler: one line per record,
// prefixed with the process it concerns.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Attribute keys the handler renders in the process column.
const (
	PIDKey  = "pid"
	ProcKey = "proc"
)

// writerFromTarget returns a writer given a target specification.
func writerFromTarget(target string) (io.Writer, error) {
	switch target {
	case "builtin:stderr":
		return os.Stderr, nil
	case "builtin:stdout":
		return os.Stdout, nil
	case "builtin:discard":
		return io.Discard, nil
	default:
		if strings.Contains(target, "/") {
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, err
			}
		}
		return os.OpenFile(target, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	}
}

// writer returns a writer which writes to multiple target specifications.
func writer(targets []string) (io.Writer, error) {
	switch len(targets) {
	case 0:
		return os.Stderr, nil
	case 1:
		return writerFromTarget(targets[0])
	}
	writers := make([]io.Writer, 0, len(targets))
	for _, target := range targets {
		w, err := writerFromTarget(target)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	return io.MultiWriter(writers...), nil
}

const (
	reset   = 0
	yellow  = 33
	magenta = 35
	gray    = 37
)

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func levelToColor(l slog.Level) int {
	switch {
	case l >= slog.LevelError:
		return magenta
	case l >= slog.LevelWarn:
		return yellow
	default:
		return gray
	}
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERR"
	case l >= slog.LevelWarn:
		return "WRN"
	case l >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

// Handler returns a handler writing records at or above level to every target
// in logPolicy ("builtin:stderr", "builtin:stdout", "builtin:discard" or a
// file path).
func Handler(logPolicy []string, level slog.Leveler) (slog.Handler, error) {
	out, err := writer(logPolicy)
	if err != nil {
		return nil, fmt.Errorf("log policy %v: %w", logPolicy, err)
	}
	return NewHandler(out, level), nil
}

// NewHandler returns a handler writing to out.
func NewHandler(out io.Writer, level slog.Leveler) slog.Handler {
	return &handler{
		out:   out,
		level: level,
		color: isTerminal(out),
		mu:    &sync.Mutex{},
	}
}

type handler struct {
	level slog.Leveler
	out   io.Writer
	color bool
	attrs []slog.Attr

	mu *sync.Mutex
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level.Level() }

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

// This handler doesn't support groups.
func (h *handler) WithGroup(string) slog.Handler { return h }

func (h *handler) paint(c int) string {
	if !h.color {
		return ""
	}
	return fmt.Sprintf("\x1b[%dm", c)
}

// process renders the process column from the pid and proc attributes,
// record attributes taking precedence over handler ones.
func (h *handler) process(r slog.Record) string {
	var pid, name string
	collect := func(a slog.Attr) bool {
		switch a.Key {
		case PIDKey:
			pid = a.Value.String()
		case ProcKey:
			name = a.Value.String()
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)
	switch {
	case pid != "" && name != "":
		return fmt.Sprintf("%s[%s]", name, pid)
	case pid != "":
		return "pid " + pid
	default:
		return name
	}
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	var extra strings.Builder
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != PIDKey && a.Key != ProcKey {
			fmt.Fprintf(&extra, " %s=%v", a.Key, a.Value)
		}
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	c := levelToColor(r.Level)
	_, err := fmt.Fprintf(h.out, "%s %s%-12s|%s %s%s%s%s\n",
		levelTag(r.Level), h.paint(c), h.process(r), h.paint(reset),
		h.paint(c), r.Message, extra.String(), h.paint(reset))
	return err
}
