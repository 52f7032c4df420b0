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
	_ "embed"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/tyther9/COP4610/pkg/kernel"
	"github.com/tyther9/COP4610/pkg/script"
)

//go:embed meld-test.kfs
var meldTestScript string

func meldTest(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "meld-test",
		Short: "Run the meld test program",
		Long: `Run the meld test program.

The program creates source1 and source2 in the root file system, melds them
into merged and reads merged back. It fails if merged already exists or does
not read back as 0123456789012345.
`,
		Example: `  kfs meld-test
  kfs meld-test --root ./scratch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := g.boot(cmd)
			if err != nil {
				return err
			}
			return MeldTestCmd(cmd.Context(), k)
		},
	}
}

// MeldTestCmd runs the meld test program as a fresh process on k. Its output
// goes to the console.
func MeldTestCmd(ctx context.Context, k *kernel.Kernel) error {
	ctx, span := otel.Tracer("kfs").Start(ctx, "MeldTestCmd")
	defer span.End()

	s, err := script.Parse("meld-test.kfs", strings.NewReader(meldTestScript))
	if err != nil {
		return err
	}
	p, ctx, err := k.Spawn(ctx, "meld")
	if err != nil {
		return err
	}
	defer p.Exit()
	return s.Run(ctx, k, p)
}
