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

//go:generate go run ../../internal/gen-jsonschema -o ../../kfs.schema.json

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tyther9/COP4610/pkg/filetable"
	"github.com/tyther9/COP4610/pkg/syscalls"
)

const (
	// DefaultHeapBytes is the kernel heap budget.
	DefaultHeapBytes = 1 << 20
	// DefaultUserMemory is the size of each process's address space.
	DefaultUserMemory = 1 << 20
)

// Config is the kernel configuration.
type Config struct {
	// Optional: Size of each process's descriptor table
	OpenMax int `json:"open-max,omitempty" yaml:"open-max,omitempty"`
	// Optional: Longest accepted path, terminating NUL included
	PathMax int `json:"path-max,omitempty" yaml:"path-max,omitempty"`
	// Optional: Kernel heap budget in bytes
	HeapBytes int64 `json:"heap-bytes,omitempty" yaml:"heap-bytes,omitempty"`
	// Optional: Size of each process's address space in bytes
	UserMemory int `json:"user-memory,omitempty" yaml:"user-memory,omitempty"`
	// Optional: The root file system
	Root RootConfig `json:"root,omitempty" yaml:"root,omitempty"`
}

// RootConfig selects the root file system. With neither field set the root
// is an empty in-memory tree.
type RootConfig struct {
	// Optional: Host directory to serve as the root
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Optional: Gzip-compressed tarball unpacked into an in-memory root
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
	// Optional: Largest decompressed image in bytes, -1 for no limit
	ImageLimit int64 `json:"image-limit,omitempty" yaml:"image-limit,omitempty"`
}

// Load reads a configuration file over the receiver.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read kernel configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse kernel configuration: %w", err)
	}

	return nil
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenMax < 0 {
		errs = append(errs, fmt.Errorf("open-max must not be negative, got %d", c.OpenMax))
	}
	if c.PathMax < 0 {
		errs = append(errs, fmt.Errorf("path-max must not be negative, got %d", c.PathMax))
	}
	if c.HeapBytes < 0 {
		errs = append(errs, fmt.Errorf("heap-bytes must not be negative, got %d", c.HeapBytes))
	}
	if c.UserMemory < 0 {
		errs = append(errs, fmt.Errorf("user-memory must not be negative, got %d", c.UserMemory))
	}
	if c.Root.Dir != "" && c.Root.Image != "" {
		errs = append(errs, errors.New("root.dir and root.image are mutually exclusive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid kernel configuration: %w", err)
	}

	if c.OpenMax == 0 {
		c.OpenMax = filetable.DefaultOpenMax
	}
	if c.PathMax == 0 {
		c.PathMax = syscalls.DefaultPathMax
	}
	if c.HeapBytes == 0 {
		c.HeapBytes = DefaultHeapBytes
	}
	if c.UserMemory == 0 {
		c.UserMemory = DefaultUserMemory
	}
	if int64(c.PathMax) > c.HeapBytes {
		return fmt.Errorf("invalid kernel configuration: path-max %d exceeds heap-bytes %d", c.PathMax, c.HeapBytes)
	}
	return nil
}
