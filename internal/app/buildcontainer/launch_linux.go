// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package buildcontainer implements the mount-namespace launcher: a
// container made of namespaces and a declaratively configured
// file-system view, with no image behind it.
package buildcontainer

import (
	"fmt"
	"io"
	"os"

	"github.com/raalkml/build-container/internal/pkg/confile"
	"github.com/raalkml/build-container/internal/pkg/mount"
	"github.com/raalkml/build-container/internal/pkg/runtime/launcher"
	"github.com/raalkml/build-container/internal/pkg/util/env"
	"github.com/raalkml/build-container/internal/pkg/util/priv"
	"github.com/raalkml/build-container/pkg/sylog"
)

// Options are the command line options of the mount-container tool,
// already digested by the CLI layer.
type Options struct {
	// Config is the -n argument: a configuration name, an absolute
	// path or "-" for standard input. Empty means no configuration,
	// just the namespaces.
	Config string
	// Check plans the configuration on stdout instead of executing.
	Check bool
	// LockFS selects MS_PRIVATE propagation.
	LockFS bool
	// PidNS counts the -P occurrences; two or more also mount a
	// fresh proc.
	PidNS int
	// NetNS and UserNS request the respective namespaces; a user
	// namespace is forced when the effective uid is not root.
	NetNS  bool
	UserNS bool
	// Dir is the child working directory, empty for the launcher
	// cwd (or the startup cwd when the configuration chroots).
	Dir string
	// EnvSpecs are the -E NAME[=VALUE] arguments.
	EnvSpecs []string
	// Args is the full child argument vector including argv[0].
	Args []string
}

// Launch runs the mount-container flow and returns the process exit
// code.
func Launch(opts *Options) int {
	if err := env.ApplySpecs(opts.EnvSpecs); err != nil {
		sylog.Errorf("%s", err)
		return 1
	}

	startupCwd, err := os.Getwd()
	if err != nil {
		sylog.Errorf("cannot determine working directory: %s", err)
		return 1
	}

	privs, err := priv.Capture()
	if err != nil {
		sylog.Errorf("%s", err)
		return 2
	}

	userNS := opts.UserNS
	if os.Geteuid() != 0 {
		// without privileges only a user namespace can own the
		// mount namespace
		userNS = true
	}

	if opts.Check {
		return check(opts, privs)
	}

	var plan *confile.Plan
	if opts.Config != "" {
		plan, err = parseConfig(opts.Config, privs)
		if err != nil {
			sylog.Errorf("%s", err)
			return 3
		}
	}

	dir := opts.Dir
	if dir == "" && plan != nil && plan.Chroot != "" {
		// paths on the command line would be stale after the
		// chroot, fall back to where the caller stood
		dir = startupCwd
	}

	cfg := &launcher.Config{
		UserNS:    userNS,
		NetNS:     opts.NetNS,
		PidNS:     opts.PidNS > 0,
		LockFS:    opts.LockFS,
		MountProc: opts.PidNS > 1,
		Plan:      plan,
		Dir:       dir,
		Privs:     privs,
		Prog:      opts.Args[0],
		Args:      opts.Args,
	}
	status, err := launcher.Spawn(cfg, nil)
	if err != nil {
		sylog.Errorf("%s", err)
		return 2
	}
	return status
}

// parseConfig locates, opens and parses the configuration. With an
// effective uid of root and a different real uid (the SUID case) the
// file is opened and read with the caller's identity, so the caller
// cannot trick the launcher into reading files the caller may not.
func parseConfig(name string, privs *priv.Privileges) (*confile.Plan, error) {
	suid := os.Geteuid() == 0 && os.Getuid() != 0
	if suid {
		if err := priv.Drop(); err != nil {
			return nil, fmt.Errorf("dropping privileges for configuration read: %s", err)
		}
	}
	plan, err := openAndParse(name, privs, nil)
	if suid {
		if eerr := priv.Escalate(); eerr != nil {
			return nil, fmt.Errorf("restoring privileges: %s", eerr)
		}
	}
	return plan, err
}

func openAndParse(name string, privs *priv.Privileges, checkOut io.Writer) (*confile.Plan, error) {
	f, err := confile.Open(name, checkOut)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parser := &confile.Parser{Home: privs.HomeDir()}
	return parser.Parse(f)
}

// check applies the caller identity immediately, plans the
// configuration on stdout and reports what would be started.
func check(opts *Options, privs *priv.Privileges) int {
	if err := privs.Apply(); err != nil {
		sylog.Errorf("%s", err)
		return 2
	}
	if opts.Config != "" {
		plan, err := openAndParse(opts.Config, privs, os.Stdout)
		if err != nil {
			sylog.Errorf("%s", err)
			return 3
		}
		executor, err := mount.NewExecutor(true)
		if err != nil {
			sylog.Errorf("%s", err)
			return 3
		}
		if err := plan.Execute(executor); err != nil {
			sylog.Errorf("%s", err)
			return 3
		}
	}
	fmt.Printf("# starting '%s'", opts.Args[0])
	for _, arg := range opts.Args[1:] {
		fmt.Printf(" '%s'", arg)
	}
	fmt.Println()
	return 0
}
