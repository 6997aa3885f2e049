// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rpl

import (
	"net/netip"
	"testing"
)

func TestSimTableRoutesAndInstances(t *testing.T) {
	root := netip.MustParseAddr("aaaa::1")
	s := NewSimTable(root)
	s.SetInstance(1, 256, netip.MustParseAddr("::1"), 1)
	s.AddRoute(netip.MustParseAddr("aaaa::2"), netip.MustParseAddr("aaaa::2"), 0)

	entries := s.Entries()
	if len(entries) != 1 || !entries[0].InUse {
		t.Fatalf("expected one in-use route, got %+v", entries)
	}

	instances := s.Instances()
	if len(instances) != 1 || instances[0].MinHopRankInc != 256 {
		t.Fatalf("expected one instance with min_hoprankinc 256, got %+v", instances)
	}

	if g, ok := s.Global(); !ok || g != root {
		t.Errorf("Global() = %s, %v; want %s, true", g, ok, root)
	}
}

func TestSimTableRemoveUnused(t *testing.T) {
	s := NewSimTable(netip.MustParseAddr("aaaa::1"))
	ip := netip.MustParseAddr("aaaa::2")
	s.AddRoute(ip, ip, 0)
	s.RemoveUnused(ip)

	if s.Entries()[0].InUse {
		t.Error("expected route to be marked unused")
	}
}
