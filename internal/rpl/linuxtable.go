// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package rpl

import (
	"net/netip"

	"github.com/vishvananda/netlink"
)

// LinuxRoutingTable reads the kernel's IPv6 unicast routing table over
// netlink, used when ravelid runs against a border router bridging to the
// mesh over a 6lowpan/SLIP interface rather than against a simulated RPL
// stack.
type LinuxRoutingTable struct {
	linkIndex int // restrict to the mesh-facing interface; 0 means "any"
}

// NewLinuxRoutingTable builds a reader scoped to the named interface, or to
// every interface if ifaceName is empty.
func NewLinuxRoutingTable(ifaceName string) (*LinuxRoutingTable, error) {
	t := &LinuxRoutingTable{}
	if ifaceName != "" {
		link, err := netlink.LinkByName(ifaceName)
		if err != nil {
			return nil, err
		}
		t.linkIndex = link.Attrs().Index
	}
	return t, nil
}

// Entries implements RoutingTable by listing IPv6 unicast routes.
func (t *LinuxRoutingTable) Entries() []RouteEntry {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V6)
	if err != nil {
		return nil
	}

	entries := make([]RouteEntry, 0, len(routes))
	for _, r := range routes {
		if t.linkIndex != 0 && r.LinkIndex != t.linkIndex {
			continue
		}
		if r.Dst == nil {
			continue
		}
		ip, ok := netip.AddrFromSlice(r.Dst.IP.To16())
		if !ok {
			continue
		}
		next := ip
		if r.Gw != nil {
			if gw, ok := netip.AddrFromSlice(r.Gw.To16()); ok {
				next = gw
			}
		}
		entries = append(entries, RouteEntry{
			IPAddr:  ip,
			NextHop: next,
			Metric:  metricByte(r.Priority),
			InUse:   true,
		})
	}
	return entries
}

func metricByte(priority int) uint8 {
	if priority < 0 {
		return 0
	}
	if priority > 255 {
		return 255
	}
	return uint8(priority)
}

// LinuxLocalAddrs resolves the root's own link-local and global addresses
// on ifaceName via netlink.
type LinuxLocalAddrs struct {
	ifaceName string
}

// NewLinuxLocalAddrs returns a LocalAddrs reader for ifaceName.
func NewLinuxLocalAddrs(ifaceName string) *LinuxLocalAddrs {
	return &LinuxLocalAddrs{ifaceName: ifaceName}
}

func (l *LinuxLocalAddrs) addrs() ([]netlink.Addr, error) {
	link, err := netlink.LinkByName(l.ifaceName)
	if err != nil {
		return nil, err
	}
	return netlink.AddrList(link, netlink.FAMILY_V6)
}

// LinkLocal implements LocalAddrs.
func (l *LinuxLocalAddrs) LinkLocal() (netip.Addr, bool) {
	addrs, err := l.addrs()
	if err != nil {
		return netip.Addr{}, false
	}
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP.To16())
		if ok && ip.IsLinkLocalUnicast() {
			return ip, true
		}
	}
	return netip.Addr{}, false
}

// Global implements LocalAddrs.
func (l *LinuxLocalAddrs) Global() (netip.Addr, bool) {
	addrs, err := l.addrs()
	if err != nil {
		return netip.Addr{}, false
	}
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP.To16())
		if ok && !ip.IsLinkLocalUnicast() && !ip.IsLoopback() {
			return ip, true
		}
	}
	return netip.Addr{}, false
}

// StaticInstanceTable sources the RPL instance/DAG table from configuration
// rather than from the kernel: the real instance/DAG state lives inside the
// embedded RPL stack on the mesh nodes, which the Linux border router does
// not itself run, so there is no netlink (or any other kernel) table to read
// it from.
type StaticInstanceTable struct {
	instances []Instance
}

// NewStaticInstanceTable wraps a fixed instance/DAG list.
func NewStaticInstanceTable(instances []Instance) *StaticInstanceTable {
	return &StaticInstanceTable{instances: instances}
}

// Instances implements InstanceTable.
func (s *StaticInstanceTable) Instances() []Instance {
	out := make([]Instance, len(s.instances))
	copy(out, s.instances)
	return out
}
