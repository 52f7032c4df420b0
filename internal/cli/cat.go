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
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/kernel"
	"github.com/tyther9/COP4610/pkg/syscalls"
)

func catCmd(g *globalOptions) *cobra.Command {
	var bufSize int

	cmd := &cobra.Command{
		Use:     "cat <path>...",
		Short:   "Copy files to the console",
		Example: `  kfs cat --image root.tar.gz etc/motd`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := g.boot(cmd)
			if err != nil {
				return err
			}
			return CatCmd(cmd.Context(), k, bufSize, args...)
		},
	}

	cmd.Flags().IntVar(&bufSize, "buffer-size", 512, "bytes moved per read and write")

	return cmd
}

// CatCmd copies each path to descriptor 1 with read and write system calls.
func CatCmd(ctx context.Context, k *kernel.Kernel, bufSize int, paths ...string) error {
	ctx, span := otel.Tracer("kfs").Start(ctx, "CatCmd")
	defer span.End()

	if bufSize <= 0 {
		return fmt.Errorf("buffer size must be positive, got %d", bufSize)
	}
	p, ctx, err := k.Spawn(ctx, "cat")
	if err != nil {
		return err
	}
	defer p.Exit()

	buf, err := p.Space.Reserve(bufSize)
	if err != nil {
		return err
	}
	var total int64
	for _, path := range paths {
		upath, err := p.Space.MapString(path)
		if err != nil {
			return err
		}
		fd, err := k.Trap(ctx, p, syscalls.SYS_open, int64(upath), fcntl.O_RDONLY)
		if err != nil {
			return fmt.Errorf("%s: open for read: %w", path, err)
		}
		for {
			n, err := k.Trap(ctx, p, syscalls.SYS_read, fd, int64(buf), int64(bufSize))
			if err != nil {
				return fmt.Errorf("%s: read: %w", path, err)
			}
			if n == 0 {
				break
			}
			if _, err := k.Trap(ctx, p, syscalls.SYS_write, 1, int64(buf), n); err != nil {
				return fmt.Errorf("%s: write: %w", path, err)
			}
			total += n
		}
		if _, err := k.Trap(ctx, p, syscalls.SYS_close, fd); err != nil {
			return fmt.Errorf("%s: close: %w", path, err)
		}
	}
	span.SetAttributes(attribute.Int64("bytes", total))
	return nil
}
