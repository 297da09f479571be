// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package loop

import (
	"fmt"
	"os"
	"syscall"

	"github.com/raalkml/build-container/pkg/sylog"
)

// Loop device IOCTL commands
const (
	CmdSetFd      = 0x4C00
	CmdClrFd      = 0x4C01
	CmdSetStatus  = 0x4C02
	CmdGetStatus  = 0x4C03
	CmdCtlGetFree = 0x4C82
)

const loopControl = "/dev/loop-control"

// Device is a loop device with a backing file attached to it. The
// device node stays open for the lifetime of the value so that the
// association cannot be recycled before the mount consumed it.
type Device struct {
	Number int
	Path   string
	file   *os.File
}

// Attach allocates a free loop device through the kernel's atomic
// allocator and attaches the file at source to it.
func Attach(source string) (*Device, error) {
	ctrl, err := os.OpenFile(loopControl, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("while opening %s: %s", loopControl, err)
	}
	defer ctrl.Close()

	num, _, esys := syscall.Syscall(syscall.SYS_IOCTL, ctrl.Fd(), CmdCtlGetFree, 0)
	if esys != 0 {
		return nil, fmt.Errorf("could not allocate a loop device: %s", esys)
	}

	path := fmt.Sprintf("/dev/loop%d", num)
	dev, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("while opening %s: %s", path, err)
	}

	img, err := os.OpenFile(source, os.O_RDWR, 0)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("while opening %s: %s", source, err)
	}
	defer img.Close()

	if _, _, esys := syscall.Syscall(syscall.SYS_IOCTL, dev.Fd(), CmdSetFd, img.Fd()); esys != 0 {
		dev.Close()
		return nil, fmt.Errorf("failed to attach %s to %s: %s", source, path, esys)
	}
	if _, _, esys := syscall.Syscall(syscall.SYS_FCNTL, dev.Fd(), syscall.F_SETFD, syscall.FD_CLOEXEC); esys != 0 {
		sylog.Debugf("failed to set close-on-exec on %s: %s", path, esys)
	}

	sylog.Debugf("Attached %s to %s", source, path)
	return &Device{Number: int(num), Path: path, file: dev}, nil
}

// Detach dissociates the backing file from the device and closes it.
// Used on mount error paths so a failed directive does not leak the
// device.
func (d *Device) Detach() error {
	_, _, esys := syscall.Syscall(syscall.SYS_IOCTL, d.file.Fd(), CmdClrFd, 0)
	closeErr := d.file.Close()
	if esys != 0 {
		return fmt.Errorf("failed to detach %s: %s", d.Path, esys)
	}
	return closeErr
}

// Close releases the device node without clearing the association,
// leaving the kernel in charge of the device once the mount holds its
// own reference.
func (d *Device) Close() error {
	return d.file.Close()
}
