// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package detector implements the rank-consistency, child-parent relation,
// flag-decay, and missing-info checks that run once per mapping round over
// the network graph. Run is a pure function of the graph snapshot plus the
// RPL instance table and round state; its only side effect is rewriting
// node fields inside the graph it is given (rank correction, status bits).
package detector

import (
	"ravelid.dev/ravelid/internal/graph"
	"ravelid.dev/ravelid/internal/rpl"
)

// Config carries the round-local values the detector needs but does not
// own: the timestamp this round stamped onto every node it heard from, the
// RPL instance currently being mapped, and the two tunable thresholds.
type Config struct {
	CurrentTimestamp       uint8
	CurrentInstanceID      uint8
	RecentWindow           int // rounds; default 1
	InconsistencyThreshold int // default 2
}

// DefaultConfig returns the stock thresholds with the given round
// timestamp and instance id filled in.
func DefaultConfig(timestamp, instanceID uint8) Config {
	return Config{
		CurrentTimestamp:       timestamp,
		CurrentInstanceID:      instanceID,
		RecentWindow:           1,
		InconsistencyThreshold: 2,
	}
}

// Verdict is the detector's operator-facing output for one round.
type Verdict struct {
	// Liars holds the short ids of nodes with both RankError and
	// RelativeError set simultaneously, the combined verdict required
	// before a node is ever announced as a route-lier.
	Liars []uint16
	// MissingInfo holds the short ids of nodes with stale or absent
	// timestamps this round.
	MissingInfo []uint16
}

// isOutdated is the wrap-aware 8-bit timestamp comparison: both "too far
// in the past" and "apparently in the future" count as stale.
func isOutdated(current, ts uint8, margin int) bool {
	diff := int(current - ts) // wraps mod 256 via uint8 subtraction
	return diff > margin || diff > 127
}

func isFresh(n *graph.Node, currentTimestamp uint8) bool {
	return n.InUse() && n.Timestamp == currentTimestamp
}

func minHopRankInc(instances rpl.InstanceTable, instanceID uint8) uint16 {
	for _, inst := range instances.Instances() {
		if inst.Used && inst.InstanceID == instanceID {
			return inst.MinHopRankInc
		}
	}
	return 0
}

// Run executes one full detector pass over g and returns the round's
// verdict. Each phase sets the scratch flag on offending nodes and is
// immediately followed by its own flag-decay step, promoting the scratch
// flag into that phase's saved flag (RankError for rank-consistency,
// RelativeError for child-parent) and clearing the saved flag on nodes
// that did not re-offend this round. The decay is a repeat-offender gate:
// a node is only ever announced as a route-lier when both saved flags land
// on it, which requires both phases to flag it in the same run.
func Run(g *graph.Graph, instances rpl.InstanceTable, cfg Config) Verdict {
	rankConsistency(g, cfg)
	decayPhase(g, graph.StatusRankError)

	childParentRelation(g, instances, cfg)
	decayPhase(g, graph.StatusRelativeError)

	return report(g, cfg)
}

// decayPhase promotes the scratch flag into saved (RankError or
// RelativeError), clears saved on nodes that did not re-offend, and clears
// the scratch flag for the next phase.
func decayPhase(g *graph.Graph, saved graph.Status) {
	g.Walk(func(i int, n *graph.Node) {
		if n.Status.Has(graph.StatusTempError) {
			n.Status |= saved
		} else {
			n.Status &^= saved
		}
		n.Status &^= graph.StatusTempError
	})
}

// rankConsistency is the mutual-observation phase: for every fresh
// non-root node A and every fresh neighbor B it claims (B itself not the
// root), compare the rank A attributes to B against B's own self-reported
// rank. A difference exceeding 20% of their average (computed in integer
// arithmetic) marks both A and B as having disagreed once this round by
// bumping their Visited counters.
func rankConsistency(g *graph.Graph, cfg Config) {
	// Visited is a per-round scratch counter; it must start at zero each
	// pass or a node that stops reoffending would stay flagged forever.
	g.Walk(func(i int, n *graph.Node) {
		if i == 0 {
			return
		}
		n.Visited = 0
	})

	g.Walk(func(ai int, a *graph.Node) {
		if ai == 0 || !isFresh(a, cfg.CurrentTimestamp) {
			return
		}
		for _, nb := range a.Neighbors {
			if nb.Index == 0 || nb.Index < 0 {
				continue
			}
			b := g.Node(nb.Index)
			if b == nil || !isFresh(b, cfg.CurrentTimestamp) {
				continue
			}
			r1, r2 := nb.Rank, b.Rank
			var delta uint32
			if r1 > r2 {
				delta = uint32(r1 - r2)
			} else {
				delta = uint32(r2 - r1)
			}
			threshold := (uint32(r1) + uint32(r2)) / 10
			if delta > threshold {
				a.Visited++
				b.Visited++
			}
		}
	})

	// Nodes whose disagreement counter exceeds the threshold are deemed
	// lying: correct their rank and their neighbor claims using trusted
	// (non-flagged) neighbors, and mark them.
	g.Walk(func(i int, n *graph.Node) {
		if i == 0 || n.Visited <= cfg.InconsistencyThreshold {
			return
		}
		n.Status |= graph.StatusTempError

		// A trusted neighbor that itself observes n replaces n's own
		// claimed rank with what it saw.
		corrected := false
		for _, nb := range n.Neighbors {
			neighbor := g.Node(nb.Index)
			if neighbor == nil || neighbor.Visited > cfg.InconsistencyThreshold {
				continue
			}
			for _, back := range neighbor.Neighbors {
				if back.Index == i {
					n.Rank = back.Rank
					corrected = true
					break
				}
			}
			if corrected {
				break
			}
		}
		if !corrected {
			return
		}

		// The node's own claims about its neighbors are equally suspect;
		// replace each with the neighbor's self-reported rank, for
		// neighbors that were themselves not flagged.
		for j, nb := range n.Neighbors {
			neighbor := g.Node(nb.Index)
			if neighbor == nil || neighbor.Visited > cfg.InconsistencyThreshold {
				continue
			}
			n.Neighbors[j].Rank = neighbor.Rank
		}
	})
}

// childParentRelation checks that every fresh non-root node's claimed rank
// is at least its parent's rank (as the node itself reported it) plus the
// current instance's min_hoprankinc; a smaller claim means the node is
// advertising a rank better than RPL allows.
func childParentRelation(g *graph.Graph, instances rpl.InstanceTable, cfg Config) {
	minInc := minHopRankInc(instances, cfg.CurrentInstanceID)

	g.Walk(func(ai int, a *graph.Node) {
		if ai == 0 || !isFresh(a, cfg.CurrentTimestamp) {
			return
		}
		if a.ParentIndex < 0 || a.ParentSlot < 0 || a.ParentSlot >= len(a.Neighbors) {
			return
		}
		parent := g.Node(a.ParentIndex)
		if parent == nil {
			return
		}
		parentRankAsReported := a.Neighbors[a.ParentSlot].Rank
		if a.Rank < parentRankAsReported+minInc {
			a.Status |= graph.StatusTempError
			parent.Status |= graph.StatusTempError
		}
	})
}

// report reads the post-decay status bits and timestamps to produce the
// round's operator-facing verdict; it does not mutate status.
func report(g *graph.Graph, cfg Config) Verdict {
	var v Verdict
	missingMargin := 2 * cfg.RecentWindow

	g.Walk(func(i int, n *graph.Node) {
		if i == 0 {
			return
		}

		if n.Status.Has(graph.StatusRankError | graph.StatusRelativeError) {
			v.Liars = append(v.Liars, n.ShortID)
		}

		if n.Timestamp == 0 || isOutdated(cfg.CurrentTimestamp, n.Timestamp, missingMargin) {
			v.MissingInfo = append(v.MissingInfo, n.ShortID)
		}
	})

	return v
}
