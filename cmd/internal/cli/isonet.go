// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"os"

	"github.com/raalkml/build-container/internal/app/isonet"
	"github.com/spf13/cobra"
)

var isonetFlags struct {
	commonFlags
	bridge string
	dhcp   bool
}

// IsonetCmd is the network-namespace launcher command.
var IsonetCmd = &cobra.Command{
	Use:   "isonet [flags] [--] [args...]",
	Short: "Run a program in a new network namespace behind a bridge",
	Long: `Runs a program in a new network namespace connected to an existing
bridge through a veth pair, optionally configuring the inner device
with a DHCP client.`,
	DisableFlagsInUseLine: true,
	RunE: func(_ *cobra.Command, args []string) error {
		f := &isonetFlags
		f.setLogLevel()
		bridge := f.bridge
		if bridge == "" {
			bridge = os.Getenv("ISONET_BRIDGE")
		}
		if bridge == "" {
			bridge = "isonet0"
		}
		netdev := os.Getenv("ISONET_NETDEV")
		if netdev == "" {
			netdev = "eth0"
		}
		opts := &isonet.Options{
			Bridge:   bridge,
			Netdev:   netdev,
			DHCP:     f.dhcp,
			Dir:      f.chdir(),
			EnvSpecs: f.envSpecs,
			Args:     f.childArgs(args),
		}
		os.Exit(isonet.Launch(opts))
		return nil
	},
}

func init() {
	f := &isonetFlags
	addCommonFlags(IsonetCmd, &f.commonFlags)
	flags := IsonetCmd.Flags()
	flags.StringVarP(&f.bridge, "bridge", "b", "",
		"connect the inner netdev to this bridge (default $ISONET_BRIDGE or isonet0)")
	flags.BoolVarP(&f.dhcp, "dhcp", "D", false,
		"run a DHCP client on the inner netdev")
}

// ExecuteIsonet runs the isonet command line.
func ExecuteIsonet() {
	execute(IsonetCmd)
}
