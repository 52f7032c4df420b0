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

package kernel

import (
	"fmt"
	"io"
)

// Option is an option for the kernel.
type Option func(*Kernel) error

// WithConfig replaces the kernel configuration.
func WithConfig(cfg Config) Option {
	return func(k *Kernel) error {
		k.cfg = cfg
		return nil
	}
}

// WithConfigFile loads the kernel configuration from a YAML file. Fields the
// file leaves out keep their current values.
func WithConfigFile(path string) Option {
	return func(k *Kernel) error {
		if err := k.cfg.Load(path); err != nil {
			return fmt.Errorf("failed to load kernel configuration: %w", err)
		}
		return nil
	}
}

// WithRootDir serves a host directory as the root file system.
func WithRootDir(dir string) Option {
	return func(k *Kernel) error {
		if dir != "" {
			k.cfg.Root = RootConfig{Dir: dir}
		}
		return nil
	}
}

// WithImage unpacks a gzip-compressed tarball into an in-memory root.
func WithImage(path string) Option {
	return func(k *Kernel) error {
		if path != "" {
			k.cfg.Root = RootConfig{Image: path, ImageLimit: k.cfg.Root.ImageLimit}
		}
		return nil
	}
}

// WithConsole connects the console device to in and out.
func WithConsole(in io.Reader, out io.Writer) Option {
	return func(k *Kernel) error {
		k.stdin, k.stdout = in, out
		return nil
	}
}

// WithOpenMax sets the size of each descriptor table.
func WithOpenMax(n int) Option {
	return func(k *Kernel) error {
		k.cfg.OpenMax = n
		return nil
	}
}

// WithHeapBytes sets the kernel heap budget.
func WithHeapBytes(n int64) Option {
	return func(k *Kernel) error {
		k.cfg.HeapBytes = n
		return nil
	}
}
