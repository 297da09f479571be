// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package launcher

import (
	"encoding/json"
	"syscall"
	"testing"

	"github.com/raalkml/build-container/internal/pkg/confile"
	"github.com/raalkml/build-container/internal/pkg/mount"
	"github.com/raalkml/build-container/internal/pkg/util/priv"
	"gotest.tools/v3/assert"
)

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name   string
		status syscall.WaitStatus
		expect int
	}{
		{
			name:   "clean exit",
			status: syscall.WaitStatus(0),
			expect: 0,
		},
		{
			name:   "exit 42",
			status: syscall.WaitStatus(42 << 8),
			expect: 42,
		},
		{
			name:   "terminated by SIGTERM",
			status: syscall.WaitStatus(int(syscall.SIGTERM)),
			expect: 143,
		},
		{
			name:   "killed by SIGKILL",
			status: syscall.WaitStatus(int(syscall.SIGKILL)),
			expect: 137,
		},
		{
			name:   "stopped is neither",
			status: syscall.WaitStatus(0x7f),
			expect: 127,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ExitStatus(tt.status), tt.expect)
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := &Config{
		UserNS:    true,
		NetNS:     true,
		PidNS:     true,
		LockFS:    true,
		MountProc: true,
		Plan: &confile.Plan{
			Actions: []confile.Action{
				{Mkdir: "/dst"},
				{Mount: &mount.Op{
					Kind:    mount.KindBind,
					Source:  "/src",
					Target:  "/dst",
					Options: "rec,ro",
				}},
			},
			Chroot: "/newroot",
		},
		Dir: "/work",
		Privs: &priv.Privileges{
			HasUID: true,
			HasGID: true,
			UID:    1000,
			GID:    1000,
			Groups: []int{1000, 44},
			User:   "alice",
			Home:   "/home/alice",
		},
		Netdev: &Netdev{Peer: "isn0p", Name: "eth0", DHCP: true},
		Prog:   "/bin/sh",
		Args:   []string{"/bin/sh", "-l"},
	}

	data, err := json.Marshal(cfg)
	assert.NilError(t, err)

	decoded := new(Config)
	assert.NilError(t, json.Unmarshal(data, decoded))
	assert.DeepEqual(t, cfg, decoded)
}
