// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package network

import (
	"fmt"

	"github.com/raalkml/build-container/pkg/sylog"
	"github.com/vishvananda/netlink"
)

// maxNetdev bounds the search for a free outside device name.
const maxNetdev = 100

// linkAdd and friends point to their netlink counterparts and are
// swapped out by unit tests; netlink sockets need a live kernel.
var (
	linkAdd       = netlink.LinkAdd
	linkByName    = netlink.LinkByName
	linkDel       = netlink.LinkDel
	linkSetUp     = netlink.LinkSetUp
	linkSetMaster = netlink.LinkSetMaster
	linkSetNsPid  = netlink.LinkSetNsPid
	linkSetName   = netlink.LinkSetName
)

// Pair is a provisioned veth pair. Out lives in the root network
// namespace enslaved to the bridge, Peer is handed into the container
// namespace.
type Pair struct {
	Out  string
	Peer string
}

// CreatePair creates a veth pair under the first free isnK/isnKp name.
// The kernel arbitrates the name allocation: a taken name fails the
// add and the next index is tried.
func CreatePair() (*Pair, error) {
	for i := 0; i < maxNetdev; i++ {
		p := &Pair{
			Out:  fmt.Sprintf("isn%d", i),
			Peer: fmt.Sprintf("isn%dp", i),
		}
		veth := &netlink.Veth{
			LinkAttrs: netlink.LinkAttrs{Name: p.Out},
			PeerName:  p.Peer,
		}
		if err := linkAdd(veth); err != nil {
			sylog.Debugf("link add %s: %s", p.Out, err)
			continue
		}
		sylog.Verbosef("Created veth pair %s/%s", p.Out, p.Peer)
		return p, nil
	}
	return nil, fmt.Errorf("no free veth device name after %d attempts", maxNetdev)
}

// AttachBridge enslaves the outside end to the named bridge and brings
// it up.
func (p *Pair) AttachBridge(bridge string) error {
	br, err := linkByName(bridge)
	if err != nil {
		return fmt.Errorf("bridge %s: %s", bridge, err)
	}
	out, err := linkByName(p.Out)
	if err != nil {
		return fmt.Errorf("device %s: %s", p.Out, err)
	}
	if err := linkSetMaster(out, br); err != nil {
		return fmt.Errorf("enslaving %s to %s: %s", p.Out, bridge, err)
	}
	if err := linkSetUp(out); err != nil {
		return fmt.Errorf("bringing %s up: %s", p.Out, err)
	}
	return nil
}

// MoveToPid moves the peer end into the network namespace of pid.
// Called from the parent once the namespace exists, which the
// rendezvous byte guarantees.
func (p *Pair) MoveToPid(pid int) error {
	peer, err := linkByName(p.Peer)
	if err != nil {
		return fmt.Errorf("device %s: %s", p.Peer, err)
	}
	if err := linkSetNsPid(peer, pid); err != nil {
		return fmt.Errorf("moving %s to namespace of pid %d: %s", p.Peer, pid, err)
	}
	return nil
}

// Delete removes the outside end (and with it the whole pair) after a
// provisioning failure.
func (p *Pair) Delete() {
	out, err := linkByName(p.Out)
	if err != nil {
		sylog.Debugf("device %s: %s", p.Out, err)
		return
	}
	if err := linkDel(out); err != nil {
		sylog.Warningf("Could not delete %s: %s", p.Out, err)
	}
}

// SetupLoopback brings the loopback device of the current network
// namespace up.
func SetupLoopback() error {
	lo, err := linkByName("lo")
	if err != nil {
		return fmt.Errorf("netns: loopback: %s", err)
	}
	if err := linkSetUp(lo); err != nil {
		return fmt.Errorf("netns: bringing lo up: %s", err)
	}
	return nil
}

// RenameUp gives the moved peer device its stable inner name and
// brings it up. Runs inside the container network namespace.
func RenameUp(peer, name string) error {
	link, err := linkByName(peer)
	if err != nil {
		return fmt.Errorf("device %s: %s", peer, err)
	}
	if err := linkSetName(link, name); err != nil {
		return fmt.Errorf("renaming %s to %s: %s", peer, name, err)
	}
	link, err = linkByName(name)
	if err != nil {
		return fmt.Errorf("device %s: %s", name, err)
	}
	if err := linkSetUp(link); err != nil {
		return fmt.Errorf("bringing %s up: %s", name, err)
	}
	return nil
}
