// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package graph is the network graph store: a fixed-capacity arena of Node
// records and Neighbor slots rebuilt from root observations each mapping
// round. Node-to-node links are cyclic (a node's parent points back up the
// DAG, its neighbors point sideways), so the arena links slots by index and
// clears indices on reset instead of freeing memory.
package graph

import (
	"fmt"
	"strings"

	"ravelid.dev/ravelid/internal/compress"
	"ravelid.dev/ravelid/internal/rpl"
)

// Status is the per-node error bitset.
type Status uint8

const (
	// StatusTempError is a phase-scratch flag, set during a detector phase
	// and resolved into RankError/RelativeError before the phase ends.
	StatusTempError Status = 1 << iota
	StatusRankError
	StatusRelativeError
)

// Has reports whether all bits in want are set.
func (s Status) Has(want Status) bool { return s&want == want }

// noParent marks the absence of a parent link in ParentIndex and
// ParentSlot; 0 cannot serve, since it is both the root's slot index and
// the first neighbor slot.
const noParent = -1

// Neighbor is a claimed edge from the owning Node to another Node, carrying
// the rank the owner believes that neighbor has — which may disagree with
// the neighbor's own self-reported rank, the very disagreement the detector
// looks for.
type Neighbor struct {
	Index int // slot index into Graph.nodes, or -1 if unallocated
	Rank  uint16
}

// Node is one sensor known to the root, or the root itself at index 0.
type Node struct {
	allocated bool

	ShortID       uint16
	Addr          rpl.RouteEntry // borrowed copy; Addr.IPAddr is the full address
	Timestamp     uint8
	ParentIndex   int // slot index of the parent Node, or -1
	ParentSlot    int // index into Neighbors naming the parent, or -1
	Rank          uint16
	Neighbors     []Neighbor
	NeighborCount int
	Visited       int // traversal/inconsistency scratch counter
	Status        Status
}

// InUse reports whether this slot holds a real node.
func (n *Node) InUse() bool { return n.allocated }

// Graph is the fixed-capacity (N nodes x D neighbors) arena. Index 0 is
// always the root.
type Graph struct {
	nodes   []Node
	density int // D: max neighbors per node
}

// New allocates a Graph with room for capacity nodes (N) and density
// neighbors per node (D). Index 0 is reserved for the root and is
// pre-allocated.
func New(capacity, density int) *Graph {
	if capacity < 1 {
		capacity = 1
	}
	g := &Graph{nodes: make([]Node, capacity), density: density}
	g.nodes[0].allocated = true
	g.nodes[0].ParentIndex = noParent
	g.nodes[0].ParentSlot = noParent
	return g
}

// Density returns D, the per-node neighbor capacity.
func (g *Graph) Density() int { return g.density }

// Capacity returns N, the node slot count.
func (g *Graph) Capacity() int { return len(g.nodes) }

// Root returns the root node (index 0).
func (g *Graph) Root() *Node { return &g.nodes[0] }

// Node returns the node at slot index i, or nil if i is out of range.
func (g *Graph) Node(i int) *Node {
	if i < 0 || i >= len(g.nodes) {
		return nil
	}
	return &g.nodes[i]
}

// Find does a linear scan for the node with the given short id.
func (g *Graph) Find(shortID uint16) (*Node, int, bool) {
	for i := range g.nodes {
		if g.nodes[i].allocated && g.nodes[i].ShortID == shortID {
			return &g.nodes[i], i, true
		}
	}
	return nil, -1, false
}

// Upsert returns the existing node for shortID if present; otherwise it
// locates the first routing-table entry whose compressed address equals
// shortID, allocates the first unused slot, and initializes it zeroed.
// Returns (nil, -1, false) if no slot is free or no routing entry matches.
func (g *Graph) Upsert(shortID uint16, table rpl.RoutingTable) (*Node, int, bool) {
	if n, i, ok := g.Find(shortID); ok {
		return n, i, true
	}

	var entry rpl.RouteEntry
	found := false
	for _, e := range table.Entries() {
		if !e.InUse {
			continue
		}
		if compress.Compress(e.IPAddr) == shortID {
			entry = e
			found = true
			break
		}
	}
	if !found {
		return nil, -1, false
	}

	for i := range g.nodes {
		if g.nodes[i].allocated {
			continue
		}
		g.nodes[i] = Node{
			allocated:   true,
			ShortID:     shortID,
			Addr:        entry,
			ParentIndex: noParent,
			ParentSlot:  noParent,
		}
		return &g.nodes[i], i, true
	}
	return nil, -1, false
}

// ResetRootNeighbors walks the routing table and adds a zero-rank Neighbor
// to the root for every entry whose globalized next hop equals its own
// destination, i.e. every direct link-layer neighbor of the root. Called
// once per round, before mapping begins.
func (g *Graph) ResetRootNeighbors(table rpl.RoutingTable) {
	root := &g.nodes[0]
	root.Neighbors = root.Neighbors[:0]
	root.NeighborCount = 0

	for _, e := range table.Entries() {
		if !e.InUse {
			continue
		}
		if compress.Globalize(e.NextHop) != e.IPAddr {
			continue
		}
		shortID := compress.Compress(e.IPAddr)
		_, i, ok := g.Upsert(shortID, table)
		if !ok {
			continue
		}
		g.addNeighbor(root, i, 0)
	}
}

// AddNeighbor records that node owner claims neighborIndex has the given
// rank, honoring the D-per-node capacity. Excess neighbors beyond D are
// silently dropped.
func (g *Graph) AddNeighbor(owner *Node, neighborIndex int, rank uint16) {
	g.addNeighbor(owner, neighborIndex, rank)
}

func (g *Graph) addNeighbor(owner *Node, neighborIndex int, rank uint16) {
	if g.density > 0 && owner.NeighborCount >= g.density {
		return
	}
	owner.Neighbors = append(owner.Neighbors, Neighbor{Index: neighborIndex, Rank: rank})
	owner.NeighborCount++
}

// Reset clears every slot, including the root, back to its zero state
// (used between independent test cases and at root boot).
func (g *Graph) Reset() {
	for i := range g.nodes {
		g.nodes[i] = Node{}
	}
	g.nodes[0].allocated = true
	g.nodes[0].ParentIndex = noParent
	g.nodes[0].ParentSlot = noParent
}

// Walk visits every allocated node in slot order, root first, calling fn
// with its slot index. Used by the detector and the operator subtree dump.
func (g *Graph) Walk(fn func(index int, n *Node)) {
	for i := range g.nodes {
		if g.nodes[i].allocated {
			fn(i, &g.nodes[i])
		}
	}
}

// Snapshot renders the whole graph as the operator log's per-round dump:
// a "Network graph at timestamp T:" header, the root's subtree indented by
// depth, then any nodes unreachable from the root as their own subtrees.
func (g *Graph) Snapshot(timestamp uint8) string {
	visited := make([]bool, len(g.nodes))

	var b strings.Builder
	fmt.Fprintf(&b, "Network graph at timestamp %d:\n", timestamp)
	g.subtree(&b, 0, 0, visited)
	for i := range g.nodes {
		if g.nodes[i].allocated && !visited[i] {
			g.subtree(&b, i, 0, visited)
		}
	}
	return b.String()
}

func (g *Graph) subtree(b *strings.Builder, index, depth int, visited []bool) {
	n := &g.nodes[index]
	fmt.Fprintf(b, "%*s%s", depth*2, "", n.Addr.IPAddr)
	if visited[index] {
		b.WriteByte('\n')
		return
	}
	visited[index] = true

	parentID := uint16(0)
	if p := g.Node(n.ParentIndex); p != nil {
		parentID = p.ShortID
	}
	fmt.Fprintf(b, " (t: %d, p: %x, r: %d)    {", n.Timestamp, parentID, n.Rank)
	for _, nb := range n.Neighbors {
		if neighbor := g.Node(nb.Index); neighbor != nil {
			fmt.Fprintf(b, "%s (%d) ,", neighbor.Addr.IPAddr, nb.Rank)
		}
	}
	b.WriteString("}\n")

	for _, nb := range n.Neighbors {
		child := g.Node(nb.Index)
		if child != nil && child.allocated && child.ParentIndex == index {
			g.subtree(b, nb.Index, depth+1, visited)
		}
	}
}
