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

// Command gen-jsonschema writes the JSON schema of the kernel configuration
// file. It runs from pkg/kernel through go generate.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/tyther9/COP4610/pkg/kernel"
)

const kernelPackage = "github.com/tyther9/COP4610/pkg/kernel"

var (
	outputFlag = flag.String("o", "", "output path, - for stdout")
	srcFlag    = flag.String("src", ".", "directory holding the kernel package sources, for descriptions")
)

func main() {
	flag.Parse()

	if *outputFlag == "" {
		log.Fatal("output path is required")
	}

	r := &jsonschema.Reflector{
		// Every field is optional; Validate fills in defaults.
		RequiredFromJSONSchemaTags: true,
	}
	if err := r.AddGoComments(kernelPackage, *srcFlag); err != nil {
		log.Fatal(err)
	}
	schema := r.Reflect(kernel.Config{})
	schema.ID = "https://github.com/tyther9/COP4610/kfs.schema.json"
	schema.Title = "kfs kernel configuration"

	b := new(bytes.Buffer)
	enc := json.NewEncoder(b)
	enc.SetIndent("", "  ")
	if err := enc.Encode(schema); err != nil {
		log.Fatal(err)
	}
	if *outputFlag == "-" {
		if _, err := os.Stdout.Write(b.Bytes()); err != nil {
			log.Fatal(err)
		}
		return
	}
	//nolint:gosec  // the schema is meant to be world readable
	if err := os.WriteFile(*outputFlag, b.Bytes(), 0644); err != nil {
		log.Fatal(err)
	}
}
