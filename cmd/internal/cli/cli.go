// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cli defines the command lines of the launcher binaries.
package cli

import (
	"os"

	"github.com/raalkml/build-container/pkg/sylog"
	"github.com/spf13/cobra"
)

// commonFlags are the options both launchers share.
type commonFlags struct {
	quiet    bool
	verbose  int
	prog     string
	login    bool
	dir      string
	workdir  string
	envSpecs []string
}

func addCommonFlags(cmd *cobra.Command, f *commonFlags) {
	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "only print errors and warnings")
	flags.CountVarP(&f.verbose, "verbose", "v", "increase verbosity")
	flags.StringVarP(&f.prog, "exec", "e", "", "run this program instead of ${SHELL:-/bin/sh}")
	flags.BoolVarP(&f.login, "login", "l", false, "pass -l to the program (login shell)")
	flags.StringVarP(&f.dir, "directory", "d", "", "change to this directory before executing")
	flags.StringVarP(&f.workdir, "workdir", "w", "", "same as -d, for docker-run compatibility")
	flags.StringArrayVarP(&f.envSpecs, "env", "E", nil,
		"set the environment variable NAME[=VALUE], unset NAME without a VALUE")
}

// setLogLevel translates the -q/-v counters into the logger level.
func (f *commonFlags) setLogLevel() {
	level := 1 + f.verbose
	if f.quiet {
		level = -1
	}
	sylog.SetLevel(level, true)
}

// chdir returns the requested working directory, -w winning over -d.
func (f *commonFlags) chdir() string {
	if f.workdir != "" {
		return f.workdir
	}
	return f.dir
}

// childArgs assembles the child argument vector: the program, the
// optional login marker and everything after the options.
func (f *commonFlags) childArgs(rest []string) []string {
	prog := f.prog
	if prog == "" {
		sylog.Verbosef("No program given, falling back to shell")
		prog = os.Getenv("SHELL")
	}
	if prog == "" {
		prog = "/bin/sh"
	}
	args := []string{prog}
	if f.login {
		args = append(args, "-l")
	}
	return append(args, rest...)
}

func execute(cmd *cobra.Command) {
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err != nil {
		sylog.Errorf("%s", err)
		os.Exit(1)
	}
}
