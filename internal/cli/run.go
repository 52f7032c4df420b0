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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/tyther9/COP4610/pkg/kernel"
	"github.com/tyther9/COP4610/pkg/script"
)

func runCmd(g *globalOptions) *cobra.Command {
	var (
		jobs      int
		saveImage string
	)

	cmd := &cobra.Command{
		Use:   "run <script>...",
		Short: "Run system call scripts as concurrent processes",
		Long: `Run system call scripts as concurrent processes.

Each script runs as its own process against one shared kernel, so scripts
see each other's files. A script holds one system call per line:

  [var =] call arg... [expect value] [fails ERRNO]

The calls are open, read, write, close, lseek, dup2, meld and echo. Use - to
read a script from standard input.
`,
		Example: `  kfs run setup.kfs
  kfs run --jobs 4 writer1.kfs writer2.kfs reader.kfs
  kfs run --image root.tar.gz --save-image next.tar.gz setup.kfs`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scripts, err := loadScripts(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			k, err := g.boot(cmd)
			if err != nil {
				return err
			}
			if err := RunCmd(cmd.Context(), k, jobs, scripts...); err != nil {
				return err
			}
			if saveImage == "" {
				return nil
			}
			return saveRoot(k, saveImage)
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "number of scripts to run at once (0 runs all of them at once)")
	cmd.Flags().StringVar(&saveImage, "save-image", "", "write the in-memory root to this tarball after every script succeeds")

	return cmd
}

// loadScripts parses every named script before any of them runs. "-" names
// stdin and may appear once.
func loadScripts(stdin io.Reader, paths []string) ([]*script.Script, error) {
	if i := slices.Index(paths, "-"); i >= 0 && slices.Contains(paths[i+1:], "-") {
		return nil, errors.New("standard input can only be read once")
	}
	scripts := make([]*script.Script, 0, len(paths))
	for _, path := range paths {
		var (
			s   *script.Script
			err error
		)
		if path == "-" {
			s, err = script.Parse("<stdin>", stdin)
		} else {
			var f *os.File
			if f, err = os.Open(path); err != nil {
				return nil, err
			}
			s, err = script.Parse(path, f)
			f.Close()
		}
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// RunCmd runs each script as its own process on k, at most jobs at a time.
func RunCmd(ctx context.Context, k *kernel.Kernel, jobs int, scripts ...*script.Script) error {
	ctx, span := otel.Tracer("kfs").Start(ctx, "RunCmd")
	defer span.End()
	span.SetAttributes(attribute.Int("scripts", len(scripts)))

	var g errgroup.Group
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for _, s := range scripts {
		g.Go(func() error {
			p, pctx, err := k.Spawn(ctx, processName(s.Name))
			if err != nil {
				return err
			}
			defer p.Exit()
			if err := s.Run(pctx, k, p); err != nil {
				return err
			}
			clog.FromContext(pctx).Debugf("%s finished with descriptors %v open on %d files",
				s.Name, p.Files.Descriptors(), p.Files.Objects().Len())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("running scripts: %w", err)
	}
	return nil
}

func saveRoot(k *kernel.Kernel, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := k.SaveImage(f); err != nil {
		f.Close()
		return fmt.Errorf("saving root to %s: %w", path, err)
	}
	return f.Close()
}

func processName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
