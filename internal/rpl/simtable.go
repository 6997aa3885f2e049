// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rpl

import "net/netip"

// SimTable is an in-memory RoutingTable + InstanceTable + LocalAddrs
// double. It backs every graph/mapping/detector test and cmd/ravelid's
// -sim mode, standing in for the tables a live RPL stack would otherwise
// own.
type SimTable struct {
	routes    []RouteEntry
	instances []Instance
	linkLocal netip.Addr
	global    netip.Addr
}

// NewSimTable returns an empty simulated table rooted at root.
func NewSimTable(root netip.Addr) *SimTable {
	return &SimTable{global: root, linkLocal: root}
}

// Entries implements RoutingTable.
func (s *SimTable) Entries() []RouteEntry {
	out := make([]RouteEntry, len(s.routes))
	copy(out, s.routes)
	return out
}

// Instances implements InstanceTable.
func (s *SimTable) Instances() []Instance {
	out := make([]Instance, len(s.instances))
	copy(out, s.instances)
	return out
}

// LinkLocal implements LocalAddrs.
func (s *SimTable) LinkLocal() (netip.Addr, bool) {
	return s.linkLocal, s.linkLocal.IsValid()
}

// Global implements LocalAddrs.
func (s *SimTable) Global() (netip.Addr, bool) {
	return s.global, s.global.IsValid()
}

// AddRoute registers a reachable descendant. nextHop equal to ipaddr marks a
// direct, single-hop neighbor of the root (what ResetRootNeighbors looks
// for).
func (s *SimTable) AddRoute(ip, nextHop netip.Addr, metric uint8) {
	s.routes = append(s.routes, RouteEntry{IPAddr: ip, NextHop: nextHop, Metric: metric, InUse: true})
}

// RemoveUnused marks the route to ip unused without deleting the slot,
// the way RPL retires an entry while the graph may still reference it.
func (s *SimTable) RemoveUnused(ip netip.Addr) {
	for i := range s.routes {
		if s.routes[i].IPAddr == ip {
			s.routes[i].InUse = false
		}
	}
}

// SetInstance installs a single (instance, dag) pair, the common case in
// a mesh with one DODAG.
func (s *SimTable) SetInstance(instanceID uint8, minHopRankInc uint16, dagID netip.Addr, version uint8) {
	s.instances = []Instance{{
		Used:          true,
		InstanceID:    instanceID,
		MinHopRankInc: minHopRankInc,
		DAGs: []DAG{{
			Used:    true,
			DAGID:   dagID,
			Version: version,
		}},
	}}
}
