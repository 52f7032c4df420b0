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
	"fmt"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog/slag"
	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"sigs.k8s.io/release-utils/version"

	"github.com/tyther9/COP4610/pkg/kernel"
	klog "github.com/tyther9/COP4610/pkg/log"
)

// globalOptions holds the flags every command shares.
type globalOptions struct {
	config    string
	root      string
	image     string
	logPolicy []string
}

// kernelOptions turns the global flags into kernel options. Flags win over
// the configuration file.
func (g *globalOptions) kernelOptions(cmd *cobra.Command) []kernel.Option {
	var opts []kernel.Option
	if g.config != "" {
		opts = append(opts, kernel.WithConfigFile(g.config))
	}
	return append(opts,
		kernel.WithRootDir(g.root),
		kernel.WithImage(g.image),
		kernel.WithConsole(cmd.InOrStdin(), cmd.OutOrStdout()),
	)
}

func (g *globalOptions) boot(cmd *cobra.Command) (*kernel.Kernel, error) {
	k, err := kernel.New(cmd.Context(), g.kernelOptions(cmd)...)
	if err != nil {
		return nil, fmt.Errorf("booting kernel: %w", err)
	}
	return k, nil
}

func New() *cobra.Command {
	g := &globalOptions{}
	level := slag.Level(slog.LevelInfo)

	cmd := &cobra.Command{
		Use:               "kfs",
		Short:             "Run file system calls against a small kernel",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(g.logPolicy) > 0 {
				h, err := klog.Handler(g.logPolicy, slog.Level(level))
				if err != nil {
					return err
				}
				slog.SetDefault(slog.New(h))
				return nil
			}
			slog.SetDefault(slog.New(charmlog.NewWithOptions(os.Stderr, charmlog.Options{
				ReportTimestamp: true,
				Level:           charmlog.Level(level),
			})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&g.config, "config", "c", "", "path to a kernel configuration file")
	cmd.PersistentFlags().StringVar(&g.root, "root", "", "host directory to serve as the root file system")
	cmd.PersistentFlags().StringVar(&g.image, "image", "", "gzip-compressed tarball to unpack into an in-memory root")
	cmd.PersistentFlags().Var(&level, "log-level", "log level (e.g. debug, info, warn, error)")
	cmd.PersistentFlags().StringSliceVar(&g.logPolicy, "log-policy", []string{}, "kernel log targets (builtin:stderr, builtin:stdout, builtin:discard or a file path)")
	cmd.MarkFlagsMutuallyExclusive("root", "image")

	cmd.AddCommand(meldCmd(g))
	cmd.AddCommand(meldTest(g))
	cmd.AddCommand(catCmd(g))
	cmd.AddCommand(runCmd(g))
	cmd.AddCommand(showConfig(g))
	cmd.AddCommand(version.Version())

	return cmd
}
