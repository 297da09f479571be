// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package test provides privilege helpers for tests that behave
// differently for root and for ordinary users.
package test

import (
	"os"
	"runtime"
	"syscall"
	"testing"
)

const unprivilegedID = 65534 // nobody

var origUID = os.Getuid()

// DropPrivilege drops the effective ids of the test thread to an
// unprivileged user when the test runs as root. A no-op otherwise.
func DropPrivilege(t *testing.T) {
	runtime.LockOSThread()
	if origUID != 0 {
		return
	}
	if err := syscall.Setresgid(unprivilegedID, unprivilegedID, 0); err != nil {
		t.Fatalf("failed to drop group privileges: %s", err)
	}
	if err := syscall.Setresuid(unprivilegedID, unprivilegedID, 0); err != nil {
		t.Fatalf("failed to drop user privileges: %s", err)
	}
}

// ResetPrivilege restores root privileges after DropPrivilege.
func ResetPrivilege(t *testing.T) {
	defer runtime.UnlockOSThread()
	if origUID != 0 {
		return
	}
	if err := syscall.Setresuid(0, 0, 0); err != nil {
		t.Fatalf("failed to reset user privileges: %s", err)
	}
	if err := syscall.Setresgid(0, 0, 0); err != nil {
		t.Fatalf("failed to reset group privileges: %s", err)
	}
}

// EnsurePrivilege skips the test unless it runs as root.
func EnsurePrivilege(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("test requires root privileges")
	}
}
