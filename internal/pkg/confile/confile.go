// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package confile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/raalkml/build-container/internal/pkg/util/paths"
	"github.com/raalkml/build-container/pkg/sylog"
)

// File is an opened container configuration.
type File struct {
	// Name is the path the configuration was found under, or "-" for
	// standard input.
	Name string
	// Dir is the directory relative paths in the configuration resolve
	// against.
	Dir string

	r io.ReadCloser
}

func (f *File) Read(p []byte) (int, error) { return f.r.Read(p) }

// Close closes the underlying file. Standard input is left open.
func (f *File) Close() error {
	if f.r == os.Stdin {
		return nil
	}
	return f.r.Close()
}

// Open locates and opens the named container configuration. An
// absolute name is opened directly. The name "-" selects standard
// input with the current working directory as the configuration
// directory. Anything else is tried against the configuration search
// path, first readable file wins.
//
// checkOut, when non-nil, receives the "# config file …" report lines
// that check mode promises on standard output, including one line per
// candidate that failed to open; outside check mode only the chosen
// file is reported, to the verbose log.
func Open(name string, checkOut io.Writer) (*File, error) {
	report := func(format string, a ...interface{}) {
		if checkOut != nil {
			fmt.Fprintf(checkOut, format+"\n", a...)
			return
		}
		sylog.Verbosef(format, a...)
	}

	if name == "-" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, pkgerrors.Wrap(err, "cannot determine working directory")
		}
		return &File{Name: "-", Dir: cwd, r: os.Stdin}, nil
	}

	if filepath.IsAbs(name) {
		fp, err := os.Open(name)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "configuration %s", name)
		}
		report("# config file '%s'", name)
		return &File{Name: name, Dir: filepath.Dir(name), r: fp}, nil
	}

	var lastErr error
	for _, dir := range paths.SearchDirs() {
		file := dir + "/" + name
		fp, err := os.Open(file)
		if err == nil {
			report("# config file '%s'", file)
			return &File{Name: file, Dir: dir, r: fp}, nil
		}
		lastErr = err
		if checkOut != nil {
			fmt.Fprintf(checkOut, "# config file '%s': %s\n", file, errnoText(err))
		}
	}
	if lastErr == nil {
		lastErr = fs.ErrNotExist
	}
	return nil, pkgerrors.Wrapf(lastErr, "configuration %s", name)
}

// errnoText unwraps a PathError so the report shows the bare strerror
// text the way the check output format expects it.
func errnoText(err error) string {
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return perr.Err.Error()
	}
	return err.Error()
}
