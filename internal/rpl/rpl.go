// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rpl defines the read-only contracts ravelid consumes from the
// RPL routing subsystem. RPL itself (route computation, rank assignment,
// DAG maintenance) belongs to the routing stack: this package only
// describes the tables the mapping engine and detector are allowed to
// read, and ships two implementations — a Linux netlink-backed reader for
// a real border router, and an in-memory double for tests and the
// simulator.
package rpl

import "net/netip"

// RouteEntry mirrors a single row of the RPL routing table: destination,
// next hop, link metric, and whether the slot is in use.
type RouteEntry struct {
	IPAddr  netip.Addr
	NextHop netip.Addr
	Metric  uint8
	InUse   bool
}

// RoutingTable is the read-only view of RPL's routing table. Entries may be
// added or removed by RPL between calls; implementations must return a
// point-in-time snapshot, never a live reference a caller could race with.
type RoutingTable interface {
	// Entries returns every slot, used or not, bounded to NB entries.
	Entries() []RouteEntry
}

// Parent is one candidate parent of a DAG, as RPL tracks it.
type Parent struct {
	Addr netip.Addr
	Rank uint16
}

// DAG is one DODAG of an instance, as RPL tracks it.
type DAG struct {
	Used            bool
	DAGID           netip.Addr
	Version         uint8
	Rank            uint16
	Parents         []Parent
	PreferredParent *Parent
}

// Instance is one RPL instance and its DODAGs.
type Instance struct {
	Used          bool
	InstanceID    uint8
	MinHopRankInc uint16
	DAGs          []DAG
}

// InstanceTable is the read-only view of RPL's instance/DAG tables.
type InstanceTable interface {
	Instances() []Instance
}

// LocalAddrs exposes the root's own interface addresses.
type LocalAddrs interface {
	LinkLocal() (netip.Addr, bool)
	Global() (netip.Addr, bool)
}
