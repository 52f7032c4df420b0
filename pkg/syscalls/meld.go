// Copyright 2024 Chainguard, Inc.
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

package syscalls

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tyther9/COP4610/pkg/addrspace"
	"github.com/tyther9/COP4610/pkg/fcntl"
	"github.com/tyther9/COP4610/pkg/openfile"
	"github.com/tyther9/COP4610/pkg/proc"
	"github.com/tyther9/COP4610/pkg/uio"
)

const (
	// MeldChunk is the number of bytes taken from each input per round.
	MeldChunk = 4
	// MeldMode is the permission the output file is created with.
	MeldMode = 0o664

	pad = ' '
)

// Meld interleaves two files into a newly created third one, MeldChunk
// bytes at a time: chunk 1 of the first file, chunk 1 of the second, chunk 2
// of the first, and so on. A short or missing chunk is padded with spaces, so
// every round writes 2*MeldChunk bytes. The output must not exist. Meld
// returns the size of the output.
//
// The three files are opened privately and never appear in the descriptor
// table. If a transfer fails the output written so far is left in place.
func (h *Handlers) Meld(ctx context.Context, p *proc.Process, upath1, upath2, upathOut addrspace.UserPtr) (_ int, err error) {
	ctx, span := otel.Tracer("kfs").Start(ctx, "Meld", trace.WithAttributes(attribute.Int("pid", p.PID)))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	log := clog.FromContext(ctx)

	var paths [3]string
	for i, up := range []addrspace.UserPtr{upath1, upath2, upathOut} {
		if paths[i], err = h.copyInPath(p, up); err != nil {
			return -1, fmt.Errorf("meld: %w", err)
		}
	}
	span.SetAttributes(
		attribute.String("path1", paths[0]),
		attribute.String("path2", paths[1]),
		attribute.String("out", paths[2]),
	)

	in1, err := openfile.Open(h.FS, paths[0], fcntl.O_RDONLY, 0)
	if err != nil {
		return -1, fmt.Errorf("meld: %w", err)
	}
	defer in1.DecRef()
	in2, err := openfile.Open(h.FS, paths[1], fcntl.O_RDONLY, 0)
	if err != nil {
		return -1, fmt.Errorf("meld: %w", err)
	}
	defer in2.DecRef()
	out, err := openfile.Open(h.FS, paths[2], fcntl.O_WRONLY|fcntl.O_CREAT|fcntl.O_EXCL, MeldMode)
	if err != nil {
		return -1, fmt.Errorf("meld: %w", err)
	}
	defer out.DecRef()

	buf1, err := h.Alloc.Alloc(MeldChunk)
	if err != nil {
		return -1, fmt.Errorf("meld: %w", err)
	}
	defer h.Alloc.Free(buf1)
	buf2, err := h.Alloc.Alloc(MeldChunk)
	if err != nil {
		return -1, fmt.Errorf("meld: %w", err)
	}
	defer h.Alloc.Free(buf2)

	rounds := 0
	for {
		n1, err := in1.Transfer(uio.NewKernel(buf1, 0, uio.Read))
		if err != nil {
			return -1, fmt.Errorf("meld: reading %s: %w", paths[0], err)
		}
		n2, err := in2.Transfer(uio.NewKernel(buf2, 0, uio.Read))
		if err != nil {
			return -1, fmt.Errorf("meld: reading %s: %w", paths[1], err)
		}
		if n1 == 0 && n2 == 0 {
			break
		}
		padChunk(buf1, n1)
		padChunk(buf2, n2)
		for i, b := range [][]byte{buf1, buf2} {
			if _, err := out.Transfer(uio.NewKernel(b, 0, uio.Write)); err != nil {
				return -1, fmt.Errorf("meld: writing %s chunk %d.%d: %w", paths[2], rounds, i, err)
			}
		}
		rounds++
	}

	total := int(out.Offset())
	log.Infof("meld %s + %s -> %s: %d bytes in %d rounds", paths[0], paths[1], paths[2], total, rounds)
	span.SetAttributes(attribute.Int("bytes", total))
	return total, nil
}

// padChunk fills buf with spaces after its first n valid bytes.
func padChunk(buf []byte, n int) {
	for i := n; i < len(buf); i++ {
		buf[i] = pad
	}
}
