// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package mount

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raalkml/build-container/internal/pkg/util/kernel"
	"github.com/raalkml/build-container/pkg/sylog"
	"github.com/raalkml/build-container/pkg/util/loop"
	"golang.org/x/sys/unix"
)

// mountSyscall points to unix.Mount and is swapped out by unit tests.
var mountSyscall = unix.Mount

// loopAttach points to loop.Attach and is swapped out by unit tests.
var loopAttach = loop.Attach

// Kind discriminates the mount directives of a container
// configuration.
type Kind int

const (
	KindMount Kind = iota
	KindBind
	KindMove
	KindUnion
	KindOverlay
)

func (k Kind) String() string {
	switch k {
	case KindMount:
		return "mount"
	case KindBind:
		return "bind"
	case KindMove:
		return "move"
	case KindUnion:
		return "union"
	case KindOverlay:
		return "overlay"
	}
	return "???"
}

// Op is one fully resolved mount directive. All paths are absolute by
// the time an Op leaves the configuration parser.
type Op struct {
	Kind    Kind     `json:"kind"`
	Source  string   `json:"source,omitempty"`  // bind, move, mount
	Target  string   `json:"target"`            // every kind
	FSType  string   `json:"fstype,omitempty"`  // mount only
	Lowers  []string `json:"lowers,omitempty"`  // union, overlay
	Upper   string   `json:"upper,omitempty"`   // overlay only
	Work    string   `json:"work,omitempty"`    // overlay only
	Options string   `json:"options,omitempty"` // raw option text
}

// Executor carries out mount directives, or prints them in check mode.
type Executor struct {
	// CheckMode suppresses the mount syscalls and writes the planned
	// operations to Out instead. Directory creation still happens.
	CheckMode bool
	Out       io.Writer

	// Release gates the overlay default options on the running kernel.
	Release *kernel.Release
}

// NewExecutor returns an Executor bound to the running kernel.
func NewExecutor(checkMode bool) (*Executor, error) {
	release, err := kernel.Uname()
	if err != nil {
		return nil, err
	}
	return &Executor{
		CheckMode: checkMode,
		Out:       os.Stdout,
		Release:   release,
	}, nil
}

// Mkdir creates a directory pushed with one of the from!/to!/work!
// directives. An already existing directory is fine.
func (e *Executor) Mkdir(path string) error {
	if e.CheckMode {
		fmt.Fprintf(e.Out, "# mkdir '%s'\n", path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir(%s): %s", path, err)
	}
	return nil
}

// overlayData assembles the data argument of an overlay-family mount.
// When the directive carried no filesystem options the kernel-release
// default prefix is used, otherwise the alternate prefix precedes the
// user's options.
func (e *Executor) overlayData(op *Op, opts Options) string {
	prefix, optPrefix := e.Release.OverlayOptions()

	var b strings.Builder
	if len(opts.Data) == 0 {
		b.WriteString(prefix)
	} else {
		b.WriteString(optPrefix)
		b.WriteString(opts.DataString())
		b.WriteString(",")
	}
	if op.Kind == KindOverlay {
		b.WriteString("upperdir=")
		b.WriteString(op.Upper)
		b.WriteString(",lowerdir=")
		b.WriteString(strings.Join(op.Lowers, ":"))
		b.WriteString(",workdir=")
		b.WriteString(op.Work)
	} else {
		b.WriteString("lowerdir=")
		b.WriteString(strings.Join(op.Lowers, ":"))
	}
	return b.String()
}

// arguments resolves an Op into the raw arguments of the initial
// mount(2) call.
func (e *Executor) arguments(op *Op, opts Options) (source, fstype, data string, flags uintptr) {
	switch op.Kind {
	case KindBind:
		return op.Source, "", opts.DataString(), unix.MS_BIND
	case KindMove:
		return op.Source, "", opts.DataString(), unix.MS_MOVE
	case KindUnion:
		return "union", "overlay", e.overlayData(op, opts), 0
	case KindOverlay:
		return "overlay", "overlay", e.overlayData(op, opts), 0
	}
	source = op.Source
	if source == "" {
		source = "none"
	}
	return source, op.FSType, opts.DataString(), 0
}

// Mount executes one directive: optional loop device setup, the mount
// itself and, when flags beyond MS_REC were requested, the remount
// that makes the kernel honor them.
func (e *Executor) Mount(op *Op) error {
	opts := SplitOptions(op.Options)
	source, fstype, data, flags := e.arguments(op, opts)

	if e.CheckMode {
		kindTag := ""
		switch op.Kind {
		case KindBind:
			kindTag = " bind"
		case KindMove:
			kindTag = " move"
		}
		if opts.Extra&OptLoop != 0 {
			kindTag += " loop"
		}
		fmt.Fprintf(e.Out, "# mount %s %s %s 0x%x%s %s\n",
			source, op.Target, fstype, flags|opts.Flags, kindTag, data)
		return nil
	}

	var dev *loop.Device
	if opts.Extra&OptLoop != 0 {
		var err error
		dev, err = loopAttach(source)
		if err != nil {
			return err
		}
		source = dev.Path
	}

	if err := mountSyscall(source, op.Target, fstype, flags|(opts.Flags&unix.MS_REC), data); err != nil {
		if dev != nil {
			if derr := dev.Detach(); derr != nil {
				sylog.Debugf("%s", derr)
			}
		}
		return fmt.Errorf("mount(%s, %s): %s", source, op.Target, err)
	}

	if opts.NeedRemount() {
		remountFlags := uintptr(unix.MS_REMOUNT) | flags | opts.Flags
		if err := mountSyscall(source, op.Target, fstype, remountFlags, data); err != nil {
			if dev != nil {
				if derr := dev.Detach(); derr != nil {
					sylog.Debugf("%s", derr)
				}
			}
			return fmt.Errorf("mount(%s, %s, 0x%x): %s", source, op.Target, remountFlags, err)
		}
	}

	if dev != nil {
		// the filesystem holds its own reference now
		if err := dev.Close(); err != nil {
			sylog.Debugf("closing %s: %s", dev.Path, err)
		}
	}
	return nil
}
