// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package isonet implements the network-namespace launcher: the child
// runs behind a veth pair whose outside end hangs off an existing
// bridge.
package isonet

import (
	"os"

	"github.com/raalkml/build-container/internal/pkg/network"
	"github.com/raalkml/build-container/internal/pkg/runtime/launcher"
	"github.com/raalkml/build-container/internal/pkg/util/env"
	"github.com/raalkml/build-container/internal/pkg/util/priv"
	"github.com/raalkml/build-container/pkg/sylog"
)

// Options are the digested command line options of the isonet tool.
type Options struct {
	// Bridge is the bridge the outside veth end is enslaved to.
	Bridge string
	// Netdev is the stable name of the device inside the namespace.
	Netdev string
	// DHCP runs the DHCP client once the device is up.
	DHCP bool
	// Dir is the child working directory, empty to inherit.
	Dir string
	// EnvSpecs are the -E NAME[=VALUE] arguments.
	EnvSpecs []string
	// Args is the full child argument vector including argv[0].
	Args []string
}

// Launch runs the isonet flow and returns the process exit code.
func Launch(opts *Options) int {
	if err := env.ApplySpecs(opts.EnvSpecs); err != nil {
		sylog.Errorf("%s", err)
		return 1
	}

	// collect privileges of the unmodified process environment
	privs, err := priv.Capture()
	if err != nil {
		sylog.Errorf("%s", err)
		return 2
	}
	if os.Geteuid() != 0 {
		sylog.Errorf("unprivileged execution")
		return 1
	}

	pair, err := network.CreatePair()
	if err != nil {
		sylog.Errorf("%s", err)
		return 1
	}
	if err := pair.AttachBridge(opts.Bridge); err != nil {
		sylog.Errorf("%s", err)
		pair.Delete()
		return 1
	}

	cfg := &launcher.Config{
		NetNS: true,
		Dir:   opts.Dir,
		Privs: privs,
		Netdev: &launcher.Netdev{
			Peer: pair.Peer,
			Name: opts.Netdev,
			DHCP: opts.DHCP,
		},
		Prog: opts.Args[0],
		Args: opts.Args,
	}
	status, err := launcher.Spawn(cfg, func(pid int) error {
		return pair.MoveToPid(pid)
	})
	if err != nil {
		sylog.Errorf("%s", err)
		// the pair never made it into the namespace
		pair.Delete()
		return 2
	}
	return status
}
