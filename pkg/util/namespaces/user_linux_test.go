// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package namespaces

import (
	"os"
	"testing"
)

func TestIsInsideUserNamespace(t *testing.T) {
	// the test process runs in the host user namespace unless the CI
	// itself is containerized with a partial mapping, in which case
	// both answers are legitimate; at least the call must not lie
	// about setgroups in the host namespace
	inside, setgroups := IsInsideUserNamespace(os.Getpid())
	if !inside && setgroups {
		t.Fatalf("setgroups reported allowed outside a user namespace")
	}

	inside, setgroups = IsInsideUserNamespace(-1)
	if inside || setgroups {
		t.Fatalf("expected defaults for a nonexistent pid")
	}
}
