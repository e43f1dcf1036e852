// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/koru3d/lumen/asset"
	log "github.com/sirupsen/logrus"
)

var (
	in       = flag.String("in", "assets-src", "Directory of source files")
	out      = flag.String("out", "assets", "Directory to write assets to")
	compress = flag.Bool("lz4", true, "Compress asset blobs with LZ4")
	workers  = flag.Int("j", 0, "Parallel conversions, one per CPU when 0")
	verbose  = flag.Bool("v", false, "Log every converted file")
)

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	compression := asset.CompressionNone
	if *compress {
		compression = asset.CompressionLZ4
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	packer := &Packer{
		In:          *in,
		Out:         *out,
		Compression: compression,
		Workers:     *workers,
		Log:         log.StandardLogger(),
	}
	stats, err := packer.Pack(ctx)
	if err != nil {
		log.Fatal(err)
	}
	log.WithFields(log.Fields{
		"converted": stats.Converted,
		"skipped":   stats.Skipped,
	}).Info("Assets packed")
}
