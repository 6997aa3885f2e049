// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package rpl

import (
	"net/netip"

	"ravelid.dev/ravelid/internal/errors"
)

// LinuxRoutingTable is a stub on non-Linux systems; ravelid's Linux route
// reader only makes sense on the border router itself.
type LinuxRoutingTable struct{}

// NewLinuxRoutingTable always fails on non-Linux systems.
func NewLinuxRoutingTable(ifaceName string) (*LinuxRoutingTable, error) {
	return nil, errors.New(errors.KindUnavailable, "rpl: netlink routing table is only supported on linux")
}

// Entries implements RoutingTable and always returns nil on non-Linux.
func (t *LinuxRoutingTable) Entries() []RouteEntry { return nil }

// LinuxLocalAddrs is a stub on non-Linux systems.
type LinuxLocalAddrs struct{}

// NewLinuxLocalAddrs returns a no-op reader on non-Linux.
func NewLinuxLocalAddrs(ifaceName string) *LinuxLocalAddrs { return &LinuxLocalAddrs{} }

// LinkLocal always reports no address on non-Linux.
func (l *LinuxLocalAddrs) LinkLocal() (netip.Addr, bool) { return netip.Addr{}, false }

// Global always reports no address on non-Linux.
func (l *LinuxLocalAddrs) Global() (netip.Addr, bool) { return netip.Addr{}, false }

// StaticInstanceTable sources the RPL instance/DAG table from configuration
// on every platform, Linux included (see linuxtable.go's copy of this type).
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
