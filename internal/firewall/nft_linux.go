// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package firewall

import (
	"github.com/google/nftables"
	"github.com/google/nftables/expr"

	"ravelid.dev/ravelid/internal/errors"
	"ravelid.dev/ravelid/internal/logging"
)

const globalSetName = "ravelid-global"

// ipv6SrcOffset/ipv6SrcLen locate the source address within an IPv6 header:
// 4 bytes version/traffic-class/flow-label, 2 bytes payload length, 1 byte
// next header, 1 byte hop limit, then the 16-byte source address.
const (
	ipv6SrcOffset = 8
	ipv6SrcLen    = 16
)

// dropIfInGlobalSetExprs builds the rule "ip6 saddr @ravelid-global
// counter drop", the kernel-side half of the global-filter check.
func dropIfInGlobalSetExprs(set *nftables.Set) []expr.Any {
	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       ipv6SrcOffset,
			Len:          ipv6SrcLen,
		},
		&expr.Lookup{
			SourceRegister: 1,
			SetName:        set.Name,
			SetID:          set.ID,
		},
		&expr.Counter{},
		&expr.Verdict{Kind: expr.VerdictDrop},
	}
}

// queueToNFQueueExprs builds "queue num <num>" for the packets the global
// set did not already drop — handed to userspace so Datapath can additionally
// apply the small-filter (per-destination) half of the check.
func queueToNFQueueExprs(num uint16) []expr.Any {
	return []expr.Any{
		&expr.Counter{},
		&expr.Queue{Num: num},
	}
}

// NFTSync keeps an nftables named set mirroring FilterSet's global-filter
// ring, the real ingress hook for the global half of the packet check: a
// border router can drop globally-filtered sources entirely in the kernel
// instead of round-tripping every forwarded packet through userspace. The
// small-filter half still needs the per-destination check Valid performs,
// which is why Datapath (nfqueue_linux.go) also queues everything the set
// doesn't already catch.
type NFTSync struct {
	tableName string
	queueNum  uint16
	filters   *FilterSet
	logger    *logging.Logger

	conn  *nftables.Conn
	table *nftables.Table
	set   *nftables.Set
}

// NewNFTSync opens an nftables connection and ensures the inet table, the
// named set, and the forward-chain rules (global-set drop, then queue to
// queueNum for the small-filter check) exist.
func NewNFTSync(tableName string, queueNum uint16, filters *FilterSet, logger *logging.Logger) (*NFTSync, error) {
	if tableName == "" {
		tableName = "ravelid"
	}
	conn, err := nftables.New()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "firewall: nftables connection")
	}

	s := &NFTSync{tableName: tableName, queueNum: queueNum, filters: filters, logger: logger, conn: conn}
	if err := s.ensureTable(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *NFTSync) ensureTable() error {
	s.table = s.conn.AddTable(&nftables.Table{Name: s.tableName, Family: nftables.TableFamilyINet})

	s.set = &nftables.Set{
		Table:   s.table,
		Name:    globalSetName,
		KeyType: nftables.TypeIP6Addr,
	}
	if err := s.conn.AddSet(s.set, nil); err != nil {
		return errors.Wrap(err, errors.KindInternal, "firewall: create global filter set")
	}

	chain := s.conn.AddChain(&nftables.Chain{
		Name:     "ravelid-forward",
		Table:    s.table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookForward,
		Priority: nftables.ChainPriorityFilter,
	})
	s.conn.AddRule(&nftables.Rule{
		Table: s.table,
		Chain: chain,
		Exprs: dropIfInGlobalSetExprs(s.set),
	})
	s.conn.AddRule(&nftables.Rule{
		Table: s.table,
		Chain: chain,
		Exprs: queueToNFQueueExprs(s.queueNum),
	})

	return errors.Wrap(s.conn.Flush(), errors.KindInternal, "firewall: apply nftables base ruleset")
}

// Sync replaces the named set's contents with the current global-filter
// ring snapshot. It is called after every accepted install that promotes a
// filter to global, and once at startup.
func (s *NFTSync) Sync() error {
	current, err := s.conn.GetSetElements(s.set)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "firewall: read nftables set elements")
	}
	if len(current) > 0 {
		if err := s.conn.SetDeleteElements(s.set, current); err != nil {
			return errors.Wrap(err, errors.KindInternal, "firewall: clear nftables set")
		}
	}

	snapshot := s.filters.GlobalSnapshot()
	elems := make([]nftables.SetElement, 0, len(snapshot))
	for _, ip := range snapshot {
		a := ip.As16()
		elems = append(elems, nftables.SetElement{Key: a[:]})
	}
	if len(elems) > 0 {
		if err := s.conn.SetAddElements(s.set, elems); err != nil {
			return errors.Wrap(err, errors.KindInternal, "firewall: populate nftables set")
		}
	}
	return errors.Wrap(s.conn.Flush(), errors.KindInternal, "firewall: commit nftables set update")
}

// Close does nothing and always returns nil. The ruleset itself is left in
// place: the datapath should keep dropping known-bad sources even if the
// control-plane process restarts.
func (s *NFTSync) Close() error { return nil }
