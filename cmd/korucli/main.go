// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/koru3d/lumen/gfx/vkr"
	log "github.com/sirupsen/logrus"
)

var (
	validation = flag.Bool("validation", false, "Enable the validation layer")
	indent     = flag.Bool("indent", true, "Indent the output")
)

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)

	backend, err := vkr.New(vkr.Config{
		ApplicationName: "korucli",
		Validation:      *validation,
	}, log.StandardLogger())
	if err != nil {
		log.Fatal(err)
	}
	defer backend.Release()

	adapters, err := backend.Adapters()
	if err != nil {
		log.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	if *indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(adapters); err != nil {
		log.Fatal(err)
	}
}
