// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/utility/kar"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"
)

func init() {
	currentUserName = "unknown"
	if u, err := user.Current(); err == nil {
		currentUserName = u.Name
	}
}

var (
	currentUserName string
	author          = flag.String("author", "", "Set the author of the package when compressing")
	version         = flag.Int64("version", 1, "Archive version number to create it with")
	extract         = flag.String("e", "", "Extract the file given")
	compress        = flag.String("c", "", "Compress the given file/folder")
	list            = flag.String("l", "", "List the contents of the file given")
	dstFile         = flag.String("f", "out.kar", "Destination file")
	outDir          = flag.String("o", ".", "Directory to extract into")
	silent          = flag.Bool("s", false, "Silent")
)

func main() {
	flag.Parse()
	if *silent {
		log.SetLevel(log.WarnLevel)
	}

	ops := 0
	for _, op := range []string{*extract, *compress, *list} {
		if op != "" {
			ops++
		}
	}
	if ops > 1 {
		log.Fatal("only one operation at a time")
	}

	var err error
	switch {
	case *compress != "":
		err = compressFiles(*compress, *dstFile)
	case *extract != "":
		err = extractFiles(*extract, *outDir)
	case *list != "":
		err = listFiles(*list, os.Stdout)
	default:
		flag.PrintDefaults()
	}
	if err != nil {
		log.Fatal(err)
	}
}

// archiveName is the slash separated name of file relative to root.
func archiveName(root, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", err
	}
	if rel == "." {
		rel = filepath.Base(file)
	}
	return filepath.ToSlash(rel), nil
}

func compressFiles(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return errors.Newf("destination file %s exists, will not overwrite", dst)
	}

	var filesToCompress []string
	if err := filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			filesToCompress = append(filesToCompress, p)
		}
		return nil
	}); err != nil {
		return errors.Wrapf(err, "walk %s", src)
	}

	name := *author
	if name == "" {
		name = currentUserName
	}
	karBuilder, err := kar.NewBuilder(kar.Header{
		Author:      name,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})
	if err != nil {
		return err
	}
	defer karBuilder.Close()

	root := src
	if info, err := os.Stat(src); err == nil && !info.IsDir() {
		root = filepath.Dir(src)
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, ftc := range filesToCompress {
		ftc := ftc
		g.Go(func() error {
			entry, err := archiveName(root, ftc)
			if err != nil {
				return err
			}
			f, err := os.Open(ftc)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := karBuilder.Add(entry, f); err != nil {
				return err
			}
			log.WithField("path", entry).Debug("Added")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	written, err := karBuilder.WriteTo(out)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	log.WithFields(log.Fields{
		"files": karBuilder.Len(),
		"bytes": written,
		"path":  dst,
	}).Info("Archive written")
	return out.Close()
}

func openArchive(file string) (*kar.Archive, io.Closer, error) {
	mapped, err := mmap.Open(file)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "map %s", file)
	}
	archive, err := kar.Open(mapped)
	if err != nil {
		mapped.Close()
		return nil, nil, errors.Wrapf(err, "open %s", file)
	}
	return archive, mapped, nil
}

// destination resolves name under dir, refusing names that climb out of it.
func destination(dir, name string) (string, error) {
	clean := path.Clean(name)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Newf("entry %q escapes the output directory", name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

func extractFiles(file, dir string) error {
	archive, closer, err := openArchive(file)
	if err != nil {
		return err
	}
	defer closer.Close()

	for _, name := range archive.Names() {
		target, err := destination(dir, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		r, err := archive.Open(name)
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, r); err != nil {
			out.Close()
			return errors.Wrapf(err, "extract %s", name)
		}
		if err := out.Close(); err != nil {
			return err
		}
		log.WithField("path", target).Debug("Extracted")
	}
	log.WithField("files", len(archive.Names())).Info("Archive extracted")
	return nil
}

func listFiles(file string, w io.Writer) error {
	archive, closer, err := openArchive(file)
	if err != nil {
		return err
	}
	defer closer.Close()

	header := archive.Header()
	fmt.Fprintf(w, "author: %s, version: %d, created: %s\n",
		header.Author, header.Version, time.Unix(header.DateCreated, 0).Format(time.RFC3339))
	for _, name := range archive.Names() {
		entry, err := archive.Stat(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%10d %10d %s\n", entry.Size, entry.CompressedSize, entry.Name)
	}
	return nil
}
