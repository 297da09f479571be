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
	"os"
	"os/exec"

	"github.com/raalkml/build-container/pkg/sylog"
)

// dhcpScript is the udhcpc event hook. It configures the interface and
// the default route on bound/renew (the onlink route is needed for /32
// leases) and maintains a bind-mounted resolv.conf so the file on the
// host stays untouched.
const dhcpScript = `#!/bin/sh
case "$1" in
bound|renew)
    rc=$(mktemp -t resolv.XXXXXXX.conf) || exit 1
    ip link set dev "$interface" ${mtu:+mtu $mtu}
    ip -4 address add dev "$interface" "$ip/$mask" ${broadcast:+broadcast $broadcast}
    ip -4 route flush exact 0.0.0.0/0 dev "$interface"
    [ ".$subnet" = .255.255.255.255 ] && onlink=onlink || onlink=
    ip -4 route add default via "$router" dev "$interface" $onlink
    > "$rc"
    [ -n "$domain" ] && echo "domain $domain" >> "$rc"
    for i in $dns; do
	echo "nameserver $i" >> "$rc"
    done
    umount /etc/resolv.conf 2>/dev/null
    chmod 0644 "$rc"
    mount --bind "$rc" /etc/resolv.conf
    rm -f "$rc"
    echo >&2 "$interface: ipv4: $ip/mask dns: $dns"
    ;;
deconfig)
    umount /etc/resolv.conf
    ;;
leasefail|nak)
    echo >&2 "$0: $1: $message"
    ;;
*)
    echo >&2 "$0: unknown command $1"
esac
`

// WriteDHCPScript writes the udhcpc event hook to a temporary
// executable file and returns its path. The caller removes the file
// once the client exits.
func WriteDHCPScript() (string, error) {
	f, err := os.CreateTemp("", "dhcp")
	if err != nil {
		return "", fmt.Errorf("dhcp setup script: %s", err)
	}
	if _, err := f.WriteString(dhcpScript); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("dhcp setup script: %s", err)
	}
	if err := f.Chmod(0o755); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("dhcp setup script: %s", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("dhcp setup script: %s", err)
	}
	return f.Name(), nil
}

// RunDHCP obtains a lease for the inner device with udhcpc in
// foreground mode, driving the interface configuration through the
// temporary event hook.
func RunDHCP(dev string) error {
	script, err := WriteDHCPScript()
	if err != nil {
		return err
	}
	defer os.Remove(script)

	cmd := exec.Command("udhcpc", "-f", "-i", dev, "-s", script, "-q")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	sylog.Debugf("Running %v", cmd.Args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("udhcpc on %s: %w", dev, err)
	}
	return nil
}
