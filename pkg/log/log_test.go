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

package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerProcessColumn(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, slog.LevelInfo))

	l.Debug("hidden")
	l.With(PIDKey, 3, ProcKey, "meld").Info("opened", "fd", 4)
	l.Warn("no process")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "INF meld[3]     | opened fd=4", lines[0])
	require.Equal(t, "WRN             | no process", lines[1])
}

func TestHandlerFileTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "logs", "kfs.log")
	h, err := Handler([]string{target, "builtin:discard"}, slog.LevelDebug)
	require.NoError(t, err)
	slog.New(h).Debug("hello", PIDKey, 1)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "DBG pid 1       | hello\n", string(got))
}
