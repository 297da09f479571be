// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package kernel

import (
	"testing"

	"github.com/blang/semver/v4"
	"gotest.tools/v3/assert"
)

func TestOverlayOptions(t *testing.T) {
	tests := []struct {
		name      string
		sysname   string
		version   string
		prefix    string
		optPrefix string
	}{
		{
			name:      "modern kernel",
			sysname:   "Linux",
			version:   "5.15.0",
			prefix:    "index=off,xino=off,",
			optPrefix: "xino=off,",
		},
		{
			name:      "first xino kernel",
			sysname:   "Linux",
			version:   "4.16.0",
			prefix:    "index=off,xino=off,",
			optPrefix: "xino=off,",
		},
		{
			name:      "pre-xino kernel",
			sysname:   "Linux",
			version:   "4.15.0",
			prefix:    "index=off,",
			optPrefix: "",
		},
		{
			name:      "old kernel",
			sysname:   "Linux",
			version:   "4.4.0",
			prefix:    "index=off,",
			optPrefix: "",
		},
		{
			name:    "not linux",
			sysname: "Hurd",
			version: "5.15.0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Release{Sysname: tt.sysname, Version: semver.MustParse(tt.version)}
			prefix, optPrefix := r.OverlayOptions()
			assert.Equal(t, prefix, tt.prefix)
			assert.Equal(t, optPrefix, tt.optPrefix)
		})
	}
}

func TestUname(t *testing.T) {
	r, err := Uname()
	assert.NilError(t, err)
	assert.Equal(t, r.Sysname, "Linux")
	assert.Assert(t, r.Version.Major > 0)
}
