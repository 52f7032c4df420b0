// Copyright 2023 Chainguard, Inc.
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

package vnode

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/klauspost/compress/gzip"

	"github.com/tyther9/COP4610/pkg/limitio"
)

// LoadImage unpacks a gzip-compressed tar stream into m. Directories and
// regular files are created; other entry types are skipped. The
// decompressed stream may not exceed limit bytes (see limitio.NewReader).
func LoadImage(m *MemFS, r io.Reader, limit int64) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(limitio.NewReader(zr, limit))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		name := cleanPath(hdr.Name)
		if name == "" {
			continue
		}
		perm := fs.FileMode(hdr.Mode).Perm()
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := m.MkdirAll(name, perm); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := m.MkdirAll(path.Dir(name), 0o755); err != nil {
				return err
			}
			data, err := io.ReadAll(tr)
			if err != nil {
				return fmt.Errorf("reading %s: %w", name, err)
			}
			if err := m.WriteFile(name, data, perm); err != nil {
				return err
			}
		}
	}
}

// SaveImage writes m as a gzip-compressed tar stream, the inverse of
// LoadImage.
func SaveImage(m *MemFS, w io.Writer) error {
	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)
	if err := m.walk("", func(name string, n *node) error {
		fi := n.fileInfo()
		hdr := &tar.Header{
			Name:    name,
			Mode:    int64(fi.Mode().Perm()),
			ModTime: fi.ModTime(),
		}
		if n.dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
			return tw.WriteHeader(hdr)
		}
		n.mu.Lock()
		data := append([]byte(nil), n.data...)
		n.mu.Unlock()
		hdr.Typeflag = tar.TypeReg
		hdr.Size = int64(len(data))
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(data)
		return err
	}); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}

// walk visits every node below dir in lexical order, parents first.
func (m *MemFS) walk(dir string, fn func(name string, n *node) error) error {
	names, err := m.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		full := path.Join(dir, name)
		n, err := m.getNode(full)
		if err != nil {
			return err
		}
		if err := fn(full, n); err != nil {
			return err
		}
		if n.dir {
			if err := m.walk(full, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Populate copies every directory and regular file of fsys into m.
func Populate(m *MemFS, fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		switch {
		case d.IsDir():
			return m.MkdirAll(p, 0o755)
		case d.Type().IsRegular():
			data, err := fs.ReadFile(fsys, p)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			return m.WriteFile(p, data, info.Mode().Perm())
		}
		return nil
	})
}
