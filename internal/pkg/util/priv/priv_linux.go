// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package priv

import (
	"fmt"
	"os"
	"runtime"
	"syscall"

	"github.com/ccoveille/go-safecast"
	"github.com/raalkml/build-container/internal/pkg/util/user"
	"github.com/raalkml/build-container/pkg/sylog"
)

// Privileges is a snapshot of the identity the process should assume
// before executing the child program. It is captured once at startup,
// travels untouched through the launcher stages (it is part of the
// stage configuration JSON) and is applied exactly once, immediately
// before chdir and exec.
type Privileges struct {
	HasUID bool `json:"hasUid"`
	HasGID bool `json:"hasGid"`

	UID  uint32 `json:"uid"`
	EUID uint32 `json:"euid"`
	GID  uint32 `json:"gid"`
	EGID uint32 `json:"egid"`

	// Groups is the supplementary group list of the target user, the
	// primary group first. Cleared by Apply.
	Groups []int `json:"groups,omitempty"`

	// User and Home are set when the identity was recovered from a
	// SUDO_USER passwd entry.
	User string `json:"user,omitempty"`
	Home string `json:"home,omitempty"`
}

// Capture records the identity of the invoking user. Under sudo from a
// SUID-root binary the real and effective uid are equal, so the passwd
// entry named by SUDO_USER is the only trace of the caller; in that
// case the whole record (uid, gid, groups, home) comes from the passwd
// database. Otherwise the record holds the real uid alone.
func Capture() (*Privileges, error) {
	p := &Privileges{}

	ruid, err := safecast.ToUint32(os.Getuid())
	if err != nil {
		return nil, fmt.Errorf("failed to convert uid to uint32: %s", err)
	}
	euid, err := safecast.ToUint32(os.Geteuid())
	if err != nil {
		return nil, fmt.Errorf("failed to convert euid to uint32: %s", err)
	}
	egid, err := safecast.ToUint32(os.Getegid())
	if err != nil {
		return nil, fmt.Errorf("failed to convert egid to uint32: %s", err)
	}
	p.EUID = euid
	p.EGID = egid

	if sudoUser := os.Getenv("SUDO_USER"); ruid == euid && sudoUser != "" {
		pw, err := user.GetPwNam(sudoUser)
		if err != nil {
			return nil, fmt.Errorf("SUDO_USER %q: %s", sudoUser, err)
		}
		groups, err := user.GroupIDs(sudoUser)
		if err != nil {
			sylog.Warningf("Could not list groups for %s: %s", sudoUser, err)
			groups = nil
		}
		p.HasUID = true
		p.UID = pw.UID
		p.HasGID = true
		p.GID = pw.GID
		p.Groups = groups
		p.User = pw.Name
		p.Home = pw.Dir
		return p, nil
	}

	p.HasUID = true
	p.UID = ruid
	return p, nil
}

// Apply performs the credential transitions recorded in p, in the
// fixed order gid, supplementary groups, uid. A refusal of any of the
// syscalls leaves the process in an undefined credential state and the
// returned error must terminate the launcher. The environment of the
// future child is adjusted when a target user is known.
func (p *Privileges) Apply() error {
	if p.HasGID {
		if err := syscall.Setregid(int(p.GID), int(p.GID)); err != nil {
			return fmt.Errorf("setregid(%d): %s", p.GID, err)
		}
	}
	if len(p.Groups) > 0 {
		if err := syscall.Setgroups(p.Groups); err != nil {
			return fmt.Errorf("setgroups: %s", err)
		}
		p.Groups = nil
	}
	if p.HasUID {
		if err := syscall.Setreuid(int(p.UID), int(p.UID)); err != nil {
			return fmt.Errorf("setreuid(%d): %s", p.UID, err)
		}
	}
	if p.User != "" {
		os.Setenv("USER", p.User)
		os.Setenv("USERNAME", p.User)
		os.Setenv("LOGNAME", p.User)
	}
	if p.Home != "" {
		os.Setenv("HOME", p.Home)
	}
	return nil
}

// HomeDir returns the home directory of the target user when one was
// captured, and the HOME environment variable otherwise.
func (p *Privileges) HomeDir() string {
	if p.Home != "" {
		return p.Home
	}
	return os.Getenv("HOME")
}

// Escalate escalates thread privileges.
func Escalate() error {
	runtime.LockOSThread()
	uid := os.Getuid()
	return syscall.Setresuid(uid, 0, uid)
}

// Drop drops thread privileges.
func Drop() error {
	defer runtime.UnlockOSThread()
	uid := os.Getuid()
	return syscall.Setresuid(uid, uid, 0)
}
