// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package firewall is the firewall aggregator and filter datapath: it
// turns per-destination filter-install complaints from sensor nodes into
// either a small per-destination filter or, when two distinct destinations
// complain about the same external source, a global filter. FilterSet also
// implements the O(G+S) validity predicate consulted once per inbound
// packet.
package firewall

import (
	"net/netip"
	"sync"

	"ravelid.dev/ravelid/internal/compress"
)

// SlotState is the occupancy of a small-filter slot.
type SlotState uint8

const (
	Unused SlotState = iota
	Used
)

// SmallFilter is a per-destination packet filter keyed by (src, dest).
type SmallFilter struct {
	Src   netip.Addr
	Dest  uint16
	State SlotState
}

// Action classifies what HandleInstall did with one install request, for
// logging and metrics.
type Action int

const (
	// ActionRejectedSpoof: dest_short did not match compress(packet source).
	ActionRejectedSpoof Action = iota
	// ActionAlreadyGlobal: src_ip was already covered by a global filter.
	ActionAlreadyGlobal
	// ActionDuplicateSmall: the same (src, dest) pair was already installed.
	ActionDuplicateSmall
	// ActionPromoted: a second, distinct destination complained about src_ip;
	// the matching small filter was replaced by a global one.
	ActionPromoted
	// ActionNewSmall: a fresh small filter was installed into a free slot.
	ActionNewSmall
	// ActionReplacedSmall: the small table was full; a round-robin slot was
	// overwritten.
	ActionReplacedSmall
)

// String names an Action for logging.
func (a Action) String() string {
	switch a {
	case ActionRejectedSpoof:
		return "rejected_spoof"
	case ActionAlreadyGlobal:
		return "already_global"
	case ActionDuplicateSmall:
		return "duplicate_small"
	case ActionPromoted:
		return "promoted"
	case ActionNewSmall:
		return "new_small"
	case ActionReplacedSmall:
		return "replaced_small"
	default:
		return "unknown"
	}
}

// FilterSet holds the global filters (a round-robin ring of full
// addresses) and the small filters (a linear table with round-robin
// eviction).
//
// Unlike the rest of this daemon's single-goroutine model, FilterSet is
// read from the kernel ingress hook's own goroutine (the Linux datapath)
// while being written from the install-request listener goroutine, so it
// guards its state with a mutex.
type FilterSet struct {
	mu sync.Mutex

	global      []netip.Addr
	globalIndex int

	small      []SmallFilter
	smallIndex int
}

// NewFilterSet builds a FilterSet with globalCap global slots and
// smallCap small slots.
func NewFilterSet(globalCap, smallCap int) *FilterSet {
	if globalCap < 1 {
		globalCap = 1
	}
	if smallCap < 1 {
		smallCap = 1
	}
	return &FilterSet{
		global: make([]netip.Addr, globalCap),
		small:  make([]SmallFilter, smallCap),
	}
}

// inGlobal reports whether ip is already covered by a global filter. Caller
// must hold f.mu.
func (f *FilterSet) inGlobal(ip netip.Addr) bool {
	for _, g := range f.global {
		if g == ip {
			return true
		}
	}
	return false
}

// addGlobal inserts ip into the ring and advances the round-robin cursor.
// Caller must hold f.mu.
func (f *FilterSet) addGlobal(ip netip.Addr) {
	f.global[f.globalIndex] = ip
	f.globalIndex = (f.globalIndex + 1) % len(f.global)
}

// HandleInstall processes one filter-install request. pktSrcIP is the
// IPv6 source address the request datagram actually arrived from (used for
// the anti-spoof check); destShort and srcIP are the request payload's
// dest_short and src_ip fields.
//
// Classification order: existing-global and duplicate-small are checked
// first; the promotion path runs before falling through to
// new-local/replace-local, and within new-local the first-unused slot is
// always preferred over the round-robin cursor.
func (f *FilterSet) HandleInstall(pktSrcIP netip.Addr, destShort uint16, srcIP netip.Addr) Action {
	// TODO Make this secure, that is authenticate the sender or the IP header.
	if compress.Compress(pktSrcIP) != destShort {
		return ActionRejectedSpoof
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inGlobal(srcIP) {
		return ActionAlreadyGlobal
	}

	firstUnused := -1
	for i, s := range f.small {
		if s.State != Used {
			if firstUnused == -1 {
				firstUnused = i
			}
			continue
		}
		if s.Src != srcIP {
			continue
		}
		if s.Dest == destShort {
			return ActionDuplicateSmall
		}
		// Two distinct destinations complaining about the same external
		// source: promote to a global filter and free the small slot.
		f.addGlobal(srcIP)
		f.small[i] = SmallFilter{}
		return ActionPromoted
	}

	if firstUnused != -1 {
		f.small[firstUnused] = SmallFilter{Src: srcIP, Dest: destShort, State: Used}
		return ActionNewSmall
	}

	f.small[f.smallIndex] = SmallFilter{Src: srcIP, Dest: destShort, State: Used}
	f.smallIndex = (f.smallIndex + 1) % len(f.small)
	return ActionReplacedSmall
}

// Valid is the datapath predicate: it returns false (drop) if pktSrc is
// covered by any global filter, or by a used small filter whose
// destination matches the compressed pktDest; otherwise true (accept).
// O(G+S) per packet.
func (f *FilterSet) Valid(pktSrc, pktDest netip.Addr) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inGlobal(pktSrc) {
		return false
	}
	destShort := compress.Compress(pktDest)
	for _, s := range f.small {
		if s.State == Used && s.Src == pktSrc && s.Dest == destShort {
			return false
		}
	}
	return true
}

// GlobalSnapshot returns a copy of the current global-filter ring contents
// (only valid, non-zero addresses), for the Linux datapath's nftables set
// sync and for the operator/metrics layers.
func (f *FilterSet) GlobalSnapshot() []netip.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]netip.Addr, 0, len(f.global))
	for _, g := range f.global {
		if g.IsValid() {
			out = append(out, g)
		}
	}
	return out
}

// Counts returns the number of occupied global and small slots, for the
// metrics gauges.
func (f *FilterSet) Counts() (globalUsed, smallUsed int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, g := range f.global {
		if g.IsValid() {
			globalUsed++
		}
	}
	for _, s := range f.small {
		if s.State == Used {
			smallUsed++
		}
	}
	return globalUsed, smallUsed
}
