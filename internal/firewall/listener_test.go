// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"testing"

	"ravelid.dev/ravelid/internal/audit"
	"ravelid.dev/ravelid/internal/logging"
	"ravelid.dev/ravelid/internal/wire"
)

func TestListenerHandleDatagramInstallsSmallFilter(t *testing.T) {
	fs := NewFilterSet(10, 10)
	l := NewListener("", fs, nil, nil, nil, nil)

	req := wire.FirewallInstall{DestShort: 0x0002, SrcIP: addr("2001::dead")}
	data, err := req.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	l.HandleDatagram(data, addr("aaaa::2"))

	if g, s := fs.Counts(); g != 0 || s != 1 {
		t.Fatalf("expected a new small filter, got global=%d small=%d", g, s)
	}
}

func TestListenerHandleDatagramRejectsSpoof(t *testing.T) {
	fs := NewFilterSet(10, 10)
	l := NewListener("", fs, nil, nil, nil, nil)

	req := wire.FirewallInstall{DestShort: 0x0003, SrcIP: addr("2001::dead")}
	data, _ := req.MarshalBinary()

	l.HandleDatagram(data, addr("aaaa::2")) // compress(aaaa::2) != 0x0003

	if g, s := fs.Counts(); g != 0 || s != 0 {
		t.Fatalf("expected no filter installed on spoofed dest, got global=%d small=%d", g, s)
	}
}

func TestListenerHandleDatagramDropsMalformed(t *testing.T) {
	fs := NewFilterSet(10, 10)
	l := NewListener("", fs, nil, nil, nil, nil)

	l.HandleDatagram([]byte{0x01, 0x02}, addr("aaaa::2"))

	if g, s := fs.Counts(); g != 0 || s != 0 {
		t.Fatalf("expected malformed datagram to be dropped, got global=%d small=%d", g, s)
	}
}

type fakeResyncer struct{ calls int }

func (f *fakeResyncer) Resync() { f.calls++ }

func TestListenerHandleDatagramResyncsDatapathOnPromotion(t *testing.T) {
	fs := NewFilterSet(10, 10)
	dp := &fakeResyncer{}
	l := NewListener("", fs, nil, nil, nil, dp)

	req1 := wire.FirewallInstall{DestShort: 0x0002, SrcIP: addr("2001::dead")}
	data1, _ := req1.MarshalBinary()
	l.HandleDatagram(data1, addr("aaaa::2"))

	if dp.calls != 0 {
		t.Fatalf("expected no resync on a fresh small filter, got %d calls", dp.calls)
	}

	req2 := wire.FirewallInstall{DestShort: 0x0003, SrcIP: addr("2001::dead")}
	data2, _ := req2.MarshalBinary()
	l.HandleDatagram(data2, addr("aaaa::3")) // second distinct dest complains: promotes to global

	if dp.calls != 1 {
		t.Fatalf("expected promotion to trigger exactly one resync, got %d calls", dp.calls)
	}
}

func TestListenerHandleDatagramLogsEvictionOnFullTable(t *testing.T) {
	fs := NewFilterSet(10, 1)
	al := audit.NewLogger(logging.New(logging.DefaultConfig()))
	l := NewListener("", fs, nil, al, nil, nil)

	req1 := wire.FirewallInstall{DestShort: 0x0002, SrcIP: addr("2001::dead:1")}
	data1, _ := req1.MarshalBinary()
	l.HandleDatagram(data1, addr("aaaa::2"))

	req2 := wire.FirewallInstall{DestShort: 0x0003, SrcIP: addr("2001::dead:2")}
	data2, _ := req2.MarshalBinary()
	l.HandleDatagram(data2, addr("aaaa::3")) // table full (cap 1): evicts the first slot

	if g, s := fs.Counts(); g != 0 || s != 1 {
		t.Fatalf("expected small table to stay at capacity 1, got global=%d small=%d", g, s)
	}
}
