// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package launcher drives the two stages of a container start. Stage 1
// runs in the caller's namespaces: it collects everything the
// container needs into a Config and re-executes the binary with the
// requested clone flags, so that the kernel creates every namespace in
// one step and (for the user namespace) the Go runtime writes the
// setgroups/gid_map/uid_map files in the required order before stage 2
// runs. Stage 2 finds the Config on an inherited pipe, performs the
// in-namespace setup and replaces itself with the child program.
package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/raalkml/build-container/internal/pkg/confile"
	"github.com/raalkml/build-container/internal/pkg/util/priv"
	"github.com/raalkml/build-container/pkg/sylog"
	"golang.org/x/sys/unix"
)

const (
	// stageEnv marks the re-executed process.
	stageEnv = "_BUILD_CONTAINER_STAGE"
	// configFD is the read end of the configuration pipe in stage 2,
	// the first entry of ExtraFiles.
	configFD = 3
	// rendezvousFD is the stage-2 end of the netdev rendezvous
	// socket, the second entry of ExtraFiles.
	rendezvousFD = 4
)

// Netdev asks stage 2 to take over a veth peer that the parent moves
// into the namespace during the rendezvous.
type Netdev struct {
	// Peer is the device name the peer arrives under.
	Peer string `json:"peer"`
	// Name is the stable inner name the device is renamed to.
	Name string `json:"name"`
	// DHCP runs the DHCP client on the renamed device.
	DHCP bool `json:"dhcp,omitempty"`
}

// Config is everything stage 2 needs to know, serialized onto the
// configuration pipe.
type Config struct {
	UserNS bool `json:"userNs,omitempty"`
	NetNS  bool `json:"netNs,omitempty"`
	PidNS  bool `json:"pidNs,omitempty"`

	// LockFS selects MS_PRIVATE instead of MS_SLAVE for the
	// mount-propagation guard on /.
	LockFS bool `json:"lockFs,omitempty"`
	// MountProc mounts a fresh proc instance over /proc (set when -P
	// was given twice).
	MountProc bool `json:"mountProc,omitempty"`

	Plan *confile.Plan `json:"plan,omitempty"`

	// Dir is the working directory of the child, empty to stay where
	// the launcher started.
	Dir string `json:"dir,omitempty"`

	Privs *priv.Privileges `json:"privs"`

	Netdev *Netdev `json:"netdev,omitempty"`

	// Prog is the child program looked up in PATH; Args is its full
	// argument vector including argv[0].
	Prog string   `json:"prog"`
	Args []string `json:"args"`
}

// InStage2 reports whether this process is the re-executed stage 2.
func InStage2() bool {
	return os.Getenv(stageEnv) == "2"
}

// Spawn re-executes the binary as stage 2 inside freshly created
// namespaces, hands it cfg and waits for it. The returned int is the
// exit status to propagate: the child's own code, 128+signo for a
// signaled child, 127 when the status is neither.
//
// When cfg.Netdev is set, ready is called with the stage-2 pid after
// stage 2 reported its namespaces up, and stage 2 resumes only once
// ready returned nil; this is the window in which the caller moves the
// veth peer. ready must be nil otherwise.
func Spawn(cfg *Config, ready func(pid int) error) (int, error) {
	configR, configW, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("while creating configuration pipe: %s", err)
	}
	defer configR.Close()

	cmd := exec.Command("/proc/self/exe")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), stageEnv+"=2", sylog.GetEnvVar())
	cmd.ExtraFiles = []*os.File{configR}

	attr := &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS,
	}
	if cfg.NetNS {
		attr.Cloneflags |= syscall.CLONE_NEWNET
	}
	if cfg.PidNS {
		attr.Cloneflags |= syscall.CLONE_NEWPID
	}
	if cfg.UserNS {
		attr.Cloneflags |= syscall.CLONE_NEWUSER
		// the identity maps to itself, privileges inside the
		// namespace are whatever the caller had outside
		attr.UidMappings = []syscall.SysProcIDMap{
			{ContainerID: os.Geteuid(), HostID: os.Geteuid(), Size: 1},
		}
		attr.GidMappings = []syscall.SysProcIDMap{
			{ContainerID: os.Getegid(), HostID: os.Getegid(), Size: 1},
		}
		// have the runtime write "deny" to setgroups before gid_map
		attr.GidMappingsEnableSetgroups = false
	}
	cmd.SysProcAttr = attr

	var parentSock *os.File
	if cfg.Netdev != nil {
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			configW.Close()
			return 0, fmt.Errorf("socketpair: %s", err)
		}
		parentSock = os.NewFile(uintptr(fds[0]), "rendezvous")
		childSock := os.NewFile(uintptr(fds[1]), "rendezvous")
		defer parentSock.Close()
		cmd.ExtraFiles = append(cmd.ExtraFiles, childSock)
		defer childSock.Close()
	}

	sylog.Debugf("Starting stage 2 with clone flags 0x%x", attr.Cloneflags)
	if err := cmd.Start(); err != nil {
		configW.Close()
		return 0, fmt.Errorf("while starting stage 2: %s", err)
	}

	if err := json.NewEncoder(configW).Encode(cfg); err != nil {
		configW.Close()
		cmd.Process.Kill()
		cmd.Wait()
		return 0, fmt.Errorf("while sending stage 2 configuration: %s", err)
	}
	configW.Close()

	if cfg.Netdev != nil {
		buf := make([]byte, 1)
		if _, err := parentSock.Read(buf); err != nil {
			cmd.Process.Kill()
			cmd.Wait()
			return 0, fmt.Errorf("stage 2 rendezvous: %s", err)
		}
		if err := ready(cmd.Process.Pid); err != nil {
			cmd.Process.Kill()
			cmd.Wait()
			return 0, err
		}
		if _, err := parentSock.Write(buf); err != nil {
			cmd.Process.Kill()
			cmd.Wait()
			return 0, fmt.Errorf("stage 2 rendezvous: %s", err)
		}
	}

	return wait(cmd)
}

// wait collapses the child status into the launcher exit code.
func wait(cmd *exec.Cmd) (int, error) {
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 0, fmt.Errorf("while waiting for stage 2: %s", err)
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return 127, nil
	}
	return ExitStatus(status), nil
}

// ExitStatus maps a wait status onto the launcher exit code.
func ExitStatus(status syscall.WaitStatus) int {
	switch {
	case status.Exited():
		return status.ExitStatus()
	case status.Signaled():
		return 128 + int(status.Signal())
	}
	return 127
}
