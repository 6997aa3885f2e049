// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package graph

import (
	"net/netip"
	"strings"
	"testing"

	"ravelid.dev/ravelid/internal/rpl"
)

func addr(s string) netip.Addr { return netip.MustParseAddr(s) }

func TestUpsertIdempotent(t *testing.T) {
	table := rpl.NewSimTable(addr("aaaa::1"))
	table.AddRoute(addr("aaaa::2"), addr("aaaa::2"), 0)

	g := New(13, 8)
	n1, i1, ok := g.Upsert(0x0002, table)
	if !ok {
		t.Fatal("expected upsert to succeed")
	}
	n2, i2, ok := g.Upsert(0x0002, table)
	if !ok {
		t.Fatal("expected second upsert to succeed")
	}
	if n1 != n2 || i1 != i2 {
		t.Errorf("repeated upsert allocated a second slot: (%p,%d) vs (%p,%d)", n1, i1, n2, i2)
	}
}

func TestUpsertNoMatchingRoute(t *testing.T) {
	table := rpl.NewSimTable(addr("aaaa::1"))
	g := New(13, 8)
	if _, _, ok := g.Upsert(0xdead, table); ok {
		t.Fatal("expected upsert to fail with no matching routing-table entry")
	}
}

func TestUpsertOutOfCapacity(t *testing.T) {
	table := rpl.NewSimTable(addr("aaaa::1"))
	table.AddRoute(addr("aaaa::2"), addr("aaaa::2"), 0)
	table.AddRoute(addr("aaaa::3"), addr("aaaa::3"), 0)

	// Capacity 1: only the pre-allocated root slot exists.
	g := New(1, 8)
	if _, _, ok := g.Upsert(0x0002, table); ok {
		t.Fatal("expected upsert to fail: no free slot beyond the root")
	}
}

func TestNoTwoNodesShareShortID(t *testing.T) {
	table := rpl.NewSimTable(addr("aaaa::1"))
	ids := []uint16{0x0002, 0x0003, 0x0004, 0x0002, 0x0003}
	for _, id := range ids {
		table.AddRoute(netip.AddrFrom16(func() [16]byte {
			a := addr("aaaa::1").As16()
			a[14] = byte(id >> 8)
			a[15] = byte(id)
			return a
		}()), addr("aaaa::1"), 0)
	}

	g := New(13, 8)
	seen := map[uint16]int{}
	for _, id := range ids {
		_, i, ok := g.Upsert(id, table)
		if !ok {
			continue
		}
		if prev, dup := seen[id]; dup && prev != i {
			t.Fatalf("short id %#x allocated at two different slots: %d and %d", id, prev, i)
		}
		seen[id] = i
	}

	byID := map[uint16]int{}
	g.Walk(func(i int, n *Node) {
		if i == 0 {
			return // root has no meaningful short id for this check
		}
		byID[n.ShortID]++
	})
	for id, count := range byID {
		if count > 1 {
			t.Errorf("short id %#x allocated to %d slots, want at most 1", id, count)
		}
	}
}

func TestResetRootNeighbors(t *testing.T) {
	table := rpl.NewSimTable(addr("aaaa::1"))
	table.AddRoute(addr("aaaa::2"), addr("aaaa::2"), 0) // direct neighbor
	table.AddRoute(addr("aaaa::3"), addr("aaaa::2"), 0) // two hops away

	g := New(13, 8)
	g.ResetRootNeighbors(table)

	root := g.Root()
	if root.NeighborCount != 1 {
		t.Fatalf("NeighborCount = %d, want 1 (only aaaa::2 is a direct neighbor)", root.NeighborCount)
	}
	neighbor := g.Node(root.Neighbors[0].Index)
	if neighbor == nil || neighbor.ShortID != 0x0002 {
		t.Errorf("root's neighbor = %+v, want short id 0x0002", neighbor)
	}
}

func TestAddNeighborRespectsDensity(t *testing.T) {
	g := New(13, 2)
	owner := g.Node(0)
	g.AddNeighbor(owner, 1, 100)
	g.AddNeighbor(owner, 2, 200)
	g.AddNeighbor(owner, 3, 300) // beyond density, silently dropped

	if owner.NeighborCount != 2 {
		t.Fatalf("NeighborCount = %d, want 2 (clamped to density)", owner.NeighborCount)
	}
}

func TestSnapshotRendersSubtree(t *testing.T) {
	table := rpl.NewSimTable(addr("aaaa::1"))
	table.AddRoute(addr("aaaa::2"), addr("aaaa::2"), 0)

	g := New(13, 8)
	g.Root().Addr = rpl.RouteEntry{IPAddr: addr("aaaa::1"), InUse: true}
	g.Root().ShortID = 0x0001

	child, ci, _ := g.Upsert(0x0002, table)
	child.Timestamp = 3
	child.Rank = 512
	child.ParentIndex = 0
	g.AddNeighbor(g.Root(), ci, 512)

	out := g.Snapshot(3)
	if !strings.HasPrefix(out, "Network graph at timestamp 3:\n") {
		t.Fatalf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "aaaa::1") || !strings.Contains(out, "\n  aaaa::2") {
		t.Fatalf("expected root line and indented child line:\n%s", out)
	}
	if !strings.Contains(out, "r: 512") {
		t.Fatalf("expected the child's rank in its line:\n%s", out)
	}
}

func TestResetClearsAllocations(t *testing.T) {
	table := rpl.NewSimTable(addr("aaaa::1"))
	table.AddRoute(addr("aaaa::2"), addr("aaaa::2"), 0)

	g := New(13, 8)
	g.Upsert(0x0002, table)
	g.Reset()

	if _, _, ok := g.Find(0x0002); ok {
		t.Fatal("expected Find to fail after Reset")
	}
	if !g.Root().InUse() {
		t.Fatal("expected root slot to remain allocated after Reset")
	}
}
