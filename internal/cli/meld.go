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
	"io"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/tyther9/COP4610/pkg/kernel"
	"github.com/tyther9/COP4610/pkg/syscalls"
)

func meldCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "meld <file1> <file2> <out>",
		Short: "Interleave two files into a new one, four bytes at a time",
		Long: `Interleave two files into a new one, four bytes at a time.

Each round appends four bytes of file1 and then four bytes of file2 to out,
padding short chunks with spaces, until both inputs are exhausted. out must
not exist yet.
`,
		Example: `  kfs meld --root ./data source1 source2 merged`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := g.boot(cmd)
			if err != nil {
				return err
			}
			return MeldCmd(cmd.Context(), k, cmd.OutOrStdout(), args[0], args[1], args[2])
		},
	}
}

// MeldCmd melds path1 and path2 into out as a fresh process and reports the
// number of bytes written to w.
func MeldCmd(ctx context.Context, k *kernel.Kernel, w io.Writer, path1, path2, out string) error {
	ctx, span := otel.Tracer("kfs").Start(ctx, "MeldCmd")
	defer span.End()

	p, ctx, err := k.Spawn(ctx, "meld")
	if err != nil {
		return err
	}
	defer p.Exit()

	args := make([]int64, 0, 3)
	for _, s := range []string{path1, path2, out} {
		ptr, err := p.Space.MapString(s)
		if err != nil {
			return err
		}
		args = append(args, int64(ptr))
	}
	n, err := k.Trap(ctx, p, syscalls.SYS_meld, args...)
	if err != nil {
		return fmt.Errorf("meld %s %s %s: %w", path1, path2, out, err)
	}
	fmt.Fprintf(w, "Bytes written= %d\n", n)
	return nil
}
