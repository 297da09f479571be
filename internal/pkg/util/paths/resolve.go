// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package paths

import (
	"os"
	"strings"
)

// Resolve turns a path from a container configuration into an absolute
// path. An absolute path is returned unchanged. A "~" or "~/" prefix is
// replaced with home. Anything else is taken relative to configDir.
// The join inserts exactly one separator, so the result is textually
// predictable for the check mode output.
func Resolve(configDir, raw, home string) string {
	if strings.HasPrefix(raw, "/") {
		return raw
	}
	if raw == "~" {
		return home
	}
	if strings.HasPrefix(raw, "~/") {
		return join(home, raw[2:])
	}
	return join(configDir, raw)
}

func join(dir, rest string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + rest
	}
	return dir + "/" + rest
}

// SearchDirs returns the directory list searched for a named container
// configuration: the colon separated BUILD_CONTAINER_PATH environment
// variable, or the built-in default. An empty list element means the
// current directory. A "~" prefix in an element is expanded with the
// HOME environment variable.
func SearchDirs() []string {
	path := os.Getenv("BUILD_CONTAINER_PATH")
	if path == "" {
		path = "~/.config/build-container:/etc/build-container"
	}
	var dirs []string
	for _, dir := range strings.Split(path, ":") {
		if dir == "" {
			dir = "."
		} else if dir == "~" || strings.HasPrefix(dir, "~/") {
			home := os.Getenv("HOME")
			if home == "" {
				home = "."
			}
			dir = home + dir[1:]
		}
		dirs = append(dirs, dir)
	}
	return dirs
}
