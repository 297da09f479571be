// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"os"

	"github.com/raalkml/build-container/cmd/internal/cli"
	"github.com/raalkml/build-container/internal/pkg/runtime/launcher"
)

func main() {
	// the re-executed process enters the in-namespace stage directly
	if launcher.InStage2() {
		os.Exit(launcher.Stage2())
	}
	cli.ExecuteBuildContainer()
}
