// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package mount

import (
	"strings"

	"golang.org/x/sys/unix"
)

// extra option bits that do not map to kernel mount flags
const (
	// OptLoop requests a loop device between the source file and the
	// mount.
	OptLoop uint = 1 << iota
)

type optionEntry struct {
	flag  uintptr
	extra uint
}

// optionWords is the table of recognized mount option words. Anything
// not in here is filesystem specific and goes into the data argument of
// mount(2) untouched.
var optionWords = map[string]optionEntry{
	"rec":    {flag: unix.MS_REC},
	"noexec": {flag: unix.MS_NOEXEC},
	"nosuid": {flag: unix.MS_NOSUID},
	"nodev":  {flag: unix.MS_NODEV},
	"ro":     {flag: unix.MS_RDONLY},
	"rw":     {},
	"loop":   {extra: OptLoop},
}

// Options is the result of partitioning the free-form option words of
// a directive.
type Options struct {
	// Flags accumulates the kernel mount flag bits of the recognized
	// words.
	Flags uintptr
	// Extra accumulates the Opt* bits of the recognized words.
	Extra uint
	// Data holds the unrecognized words in their original relative
	// order, to be handed to the filesystem driver.
	Data []string
}

func isOptionSep(r rune) bool {
	return r == ',' || r == ' ' || r == '\t' || r == '\r'
}

// SplitOptions partitions the option text of a directive into kernel
// flags and filesystem data words. Words are separated by commas or
// whitespace.
func SplitOptions(text string) Options {
	var opts Options
	for _, word := range strings.FieldsFunc(text, isOptionSep) {
		if e, ok := optionWords[strings.ToLower(word)]; ok {
			opts.Flags |= e.flag
			opts.Extra |= e.extra
			continue
		}
		opts.Data = append(opts.Data, word)
	}
	return opts
}

// DataString returns the data words joined the way mount(2) expects
// them.
func (o Options) DataString() string {
	return strings.Join(o.Data, ",")
}

// NeedRemount reports whether the directive asked for mount flags that
// the kernel silently ignores on the initial call and which therefore
// require a remount to take effect.
func (o Options) NeedRemount() bool {
	return o.Flags&^uintptr(unix.MS_REC) != 0
}
