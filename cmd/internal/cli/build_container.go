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

	"github.com/raalkml/build-container/internal/app/buildcontainer"
	"github.com/spf13/cobra"
)

var buildContainerFlags struct {
	commonFlags
	config string
	check  bool
	lockFS bool
	pidNS  int
	netNS  bool
	userNS bool
}

// BuildContainerCmd is the mount-container launcher command.
var BuildContainerCmd = &cobra.Command{
	Use:   "run-build-container [flags] [--] [args...]",
	Short: "Run a program in its own mount namespace",
	Long: `Runs a program in a freshly unshared mount namespace, optionally with a
file-system view assembled from a declarative container configuration
(bind, move, plain, union and overlay mounts plus an optional chroot).`,
	DisableFlagsInUseLine: true,
	RunE: func(_ *cobra.Command, args []string) error {
		f := &buildContainerFlags
		f.setLogLevel()
		opts := &buildcontainer.Options{
			Config:   f.config,
			Check:    f.check,
			LockFS:   f.lockFS,
			PidNS:    f.pidNS,
			NetNS:    f.netNS,
			UserNS:   f.userNS,
			Dir:      f.chdir(),
			EnvSpecs: f.envSpecs,
			Args:     f.childArgs(args),
		}
		os.Exit(buildcontainer.Launch(opts))
		return nil
	},
}

func init() {
	f := &buildContainerFlags
	addCommonFlags(BuildContainerCmd, &f.commonFlags)
	flags := BuildContainerCmd.Flags()
	flags.StringVarP(&f.config, "name", "n", "",
		"read the container configuration ('-' for standard input)")
	flags.BoolVarP(&f.check, "check", "c", false,
		"check the configuration only, don't run anything")
	flags.BoolVarP(&f.lockFS, "lock-fs", "L", false,
		"lock the file system against changes from the parent namespace")
	flags.CountVarP(&f.pidNS, "pid", "P",
		"unshare the pid namespace; given twice, also mount a fresh /proc")
	flags.BoolVarP(&f.netNS, "net", "N", false,
		"unshare the network namespace")
	flags.BoolVarP(&f.userNS, "userns", "U", false,
		"unshare the user namespace")
}

// ExecuteBuildContainer runs the mount-container command line.
func ExecuteBuildContainer() {
	execute(BuildContainerCmd)
}
