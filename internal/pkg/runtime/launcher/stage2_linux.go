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
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/raalkml/build-container/internal/pkg/mount"
	"github.com/raalkml/build-container/internal/pkg/network"
	"github.com/raalkml/build-container/pkg/sylog"
	"github.com/raalkml/build-container/pkg/util/namespaces"
	"golang.org/x/sys/unix"
)

// Stage 2 exit codes, propagated verbatim by stage 1. They follow the
// launcher conventions: 2 for anything that failed while the process
// still held setup privileges and for a failed program lookup or exec,
// 3 for configuration processing and chdir.
const (
	exitSetup  = 2
	exitConfig = 3
)

// Stage2 performs the in-namespace setup and execs the child program.
// It only returns on failure, with the process exit code.
func Stage2() int {
	cfg, err := readConfig()
	if err != nil {
		sylog.Errorf("%s", err)
		return exitSetup
	}

	// the markers must not leak into the child environment
	os.Unsetenv(stageEnv)
	os.Unsetenv(sylog.MessageLevelEnv)

	// Block mount events from propagating out of the namespace; with
	// LockFS nothing propagates in either. Must precede every other
	// mount.
	propagation := uintptr(unix.MS_SLAVE)
	if cfg.LockFS {
		propagation = unix.MS_PRIVATE
	}
	if err := unix.Mount("none", "/", "", unix.MS_REC|propagation, ""); err != nil {
		sylog.Errorf("setting mount propagation: %s", err)
		return exitSetup
	}

	if cfg.NetNS {
		if err := network.SetupLoopback(); err != nil {
			sylog.Errorf("%s", err)
			return exitSetup
		}
	}

	if cfg.Netdev != nil {
		if code := setupNetdev(cfg.Netdev); code != 0 {
			return code
		}
	}

	if cfg.Plan != nil {
		executor, err := mount.NewExecutor(false)
		if err != nil {
			sylog.Errorf("%s", err)
			return exitSetup
		}
		if err := cfg.Plan.Execute(executor); err != nil {
			sylog.Errorf("%s", err)
			return exitConfig
		}
		if cfg.Plan.Chroot != "" {
			if err := unix.Chroot(cfg.Plan.Chroot); err != nil {
				sylog.Errorf("chroot(%s): %s", cfg.Plan.Chroot, err)
				return exitSetup
			}
		}
	}

	if cfg.MountProc {
		flags := uintptr(unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC)
		if err := unix.Mount("proc", "/proc", "proc", flags, ""); err != nil {
			sylog.Errorf("mounting /proc: %s", err)
			return exitSetup
		}
	}

	if cfg.UserNS {
		// setgroups is denied in the namespace, the runtime wrote
		// "deny" before the maps; do not let Apply trip over it
		if inside, allowed := namespaces.IsInsideUserNamespace(os.Getpid()); inside && !allowed {
			cfg.Privs.Groups = nil
		}
	}
	if err := cfg.Privs.Apply(); err != nil {
		sylog.Errorf("%s", err)
		return exitSetup
	}

	if cfg.Dir != "" {
		if err := os.Chdir(cfg.Dir); err != nil {
			sylog.Errorf("chdir(%s): %s", cfg.Dir, err)
			return exitConfig
		}
	}

	prog, err := exec.LookPath(cfg.Prog)
	if err != nil {
		sylog.Errorf("%s: %s", cfg.Prog, err)
		return exitSetup
	}
	sylog.Verbosef("Starting '%s' (pid %d)", strings.Join(cfg.Args, " "), os.Getpid())
	if err := unix.Exec(prog, cfg.Args, os.Environ()); err != nil {
		sylog.Errorf("exec(%s): %s", prog, err)
	}
	return exitSetup
}

func readConfig() (*Config, error) {
	f := os.NewFile(uintptr(configFD), "config")
	if f == nil {
		return nil, errors.New("missing stage 2 configuration pipe")
	}
	defer f.Close()

	cfg := new(Config)
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	if cfg.Privs == nil {
		return nil, errors.New("stage 2 configuration carries no privilege record")
	}
	return cfg, nil
}

// setupNetdev completes the veth rendezvous from the inside: report
// the namespace as existing, wait for the parent to move the peer in,
// give it its stable name and obtain a lease if asked to.
func setupNetdev(nd *Netdev) int {
	sock := os.NewFile(uintptr(rendezvousFD), "rendezvous")
	if sock == nil {
		sylog.Errorf("missing rendezvous socket")
		return exitSetup
	}
	defer sock.Close()

	buf := []byte{1}
	if _, err := sock.Write(buf); err != nil {
		sylog.Errorf("trigger netns setting: %s", err)
		return exitSetup
	}
	if _, err := sock.Read(buf); err != nil {
		sylog.Errorf("waiting for %s: %s", nd.Peer, err)
		return exitSetup
	}

	if err := network.RenameUp(nd.Peer, nd.Name); err != nil {
		sylog.Errorf("%s", err)
		return exitSetup
	}

	if nd.DHCP {
		var exitErr *exec.ExitError
		err := network.RunDHCP(nd.Name)
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			// a failed lease is the child's problem, not ours
			sylog.Warningf("%s", err)
		default:
			sylog.Errorf("%s", err)
			return exitSetup
		}
	}
	return 0
}
