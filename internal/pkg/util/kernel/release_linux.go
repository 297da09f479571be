// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package kernel

import (
	"fmt"

	"github.com/blang/semver/v4"
	"github.com/raalkml/build-container/pkg/sylog"
	"golang.org/x/sys/unix"
)

// Release describes the running kernel as far as the overlay mount
// planner cares about it.
type Release struct {
	Sysname string
	Version semver.Version
}

// xinoSupport is the first kernel release where overlayfs accepts the
// xino mount options.
var xinoSupport = semver.MustParse("4.16.0")

// Uname returns the Release of the running kernel.
func Uname() (*Release, error) {
	var uts unix.Utsname

	if err := unix.Uname(&uts); err != nil {
		return nil, fmt.Errorf("uname: %s", err)
	}
	r := &Release{
		Sysname: unix.ByteSliceToString(uts.Sysname[:]),
	}
	release := unix.ByteSliceToString(uts.Release[:])
	v, err := semver.ParseTolerant(release)
	if err != nil {
		sylog.Debugf("Could not parse kernel release %q: %s", release, err)
		return r, nil
	}
	// prerelease tags like "-91-generic" would make 5.15.0 sort below
	// itself, drop them before comparing
	v.Pre = nil
	v.Build = nil
	r.Version = v
	return r, nil
}

// OverlayOptions returns the default data prefixes for overlay-family
// mounts. The first is prepended when the directive carried no overlay
// options of its own, the second when it did. Old kernels reject the
// xino options, anything that is not Linux gets no defaults at all.
func (r *Release) OverlayOptions() (prefix, optPrefix string) {
	if r.Sysname != "Linux" {
		return "", ""
	}
	if r.Version.GTE(xinoSupport) {
		return "index=off,xino=off,", "xino=off,"
	}
	return "index=off,", ""
}
