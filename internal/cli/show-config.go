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
	"gopkg.in/yaml.v3"

	"github.com/tyther9/COP4610/pkg/kernel"
)

func showConfig(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show-config",
		Short: "Show the kernel configuration derived from the config file and flags",
		Long: `Show the kernel configuration derived from the config file and flags.

The derived configuration, defaults filled in, is rendered in YAML.
`,
		Example: `  kfs show-config --config kfs.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ShowConfigCmd(cmd.Context(), cmd.OutOrStdout(), g.kernelOptions(cmd)...)
		},
	}
}

func ShowConfigCmd(ctx context.Context, w io.Writer, opts ...kernel.Option) error {
	ctx, span := otel.Tracer("kfs").Start(ctx, "ShowConfigCmd")
	defer span.End()

	k, err := kernel.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to load kernel configuration: %w", err)
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	enc.SetIndent(2)
	return enc.Encode(k.Config())
}
