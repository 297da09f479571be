// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

//go:build !windows

package user

import (
	"fmt"
	"os"
	osuser "os/user"
	"strconv"

	"github.com/ccoveille/go-safecast"
)

// User represents a Unix user account information.
type User struct {
	Name  string
	UID   uint32
	GID   uint32
	Gecos string
	Dir   string
	Shell string
}

// Group represents a Unix group information.
type Group struct {
	Name string
	GID  uint32
}

func convertUser(u *osuser.User) (*User, error) {
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to convert uid %s: %s", u.Uid, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to convert gid %s: %s", u.Gid, err)
	}
	return &User{
		Name:  u.Username,
		UID:   uint32(uid),
		GID:   uint32(gid),
		Gecos: u.Name,
		Dir:   u.HomeDir,
		Shell: os.Getenv("SHELL"),
	}, nil
}

func convertGroup(g *osuser.Group) (*Group, error) {
	gid, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to convert gid %s: %s", g.Gid, err)
	}
	return &Group{Name: g.Name, GID: uint32(gid)}, nil
}

// GetPwUID returns a pointer to User structure associated with user uid.
func GetPwUID(uid uint32) (*User, error) {
	u, err := osuser.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil, err
	}
	return convertUser(u)
}

// GetPwNam returns a pointer to User structure associated with user name.
func GetPwNam(name string) (*User, error) {
	u, err := osuser.Lookup(name)
	if err != nil {
		return nil, err
	}
	return convertUser(u)
}

// GetGrGID returns a pointer to Group structure associated with group gid.
func GetGrGID(gid uint32) (*Group, error) {
	g, err := osuser.LookupGroupId(strconv.FormatUint(uint64(gid), 10))
	if err != nil {
		return nil, err
	}
	return convertGroup(g)
}

// GetGrNam returns a pointer to Group structure associated with group name.
func GetGrNam(name string) (*Group, error) {
	g, err := osuser.LookupGroup(name)
	if err != nil {
		return nil, err
	}
	return convertGroup(g)
}

// Current returns a pointer to User structure associated with the
// current user.
func Current() (*User, error) {
	uid, err := safecast.ToUint32(os.Getuid())
	if err != nil {
		return nil, fmt.Errorf("failed to convert uid to uint32: %s", err)
	}
	return GetPwUID(uid)
}

// GroupIDs returns the list of group ids the named user is a member of,
// the primary group first, in the order reported by the group database.
func GroupIDs(name string) ([]int, error) {
	u, err := osuser.Lookup(name)
	if err != nil {
		return nil, err
	}
	ids, err := u.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("while listing groups for %s: %s", name, err)
	}
	gids := make([]int, 0, len(ids))
	for _, id := range ids {
		gid, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("failed to convert gid %s: %s", id, err)
		}
		gids = append(gids, gid)
	}
	return gids, nil
}
