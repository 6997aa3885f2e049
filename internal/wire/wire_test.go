// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package wire

import (
	"net/netip"
	"testing"
)

func TestMappingRequestRoundTrip(t *testing.T) {
	want := MappingRequest{InstanceID: 1, DAGIDShort: 0xbeef, DAGVersion: 3, Timestamp: 42}
	buf, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(buf) != MappingRequestLen {
		t.Fatalf("len = %d, want %d", len(buf), MappingRequestLen)
	}

	var got MappingRequest
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestMappingRequestTooShort(t *testing.T) {
	var r MappingRequest
	if err := r.UnmarshalBinary([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error on short buffer")
	}
}

func TestMappingReplyRoundTrip(t *testing.T) {
	want := MappingReply{
		SrcShort:    0x0002,
		InstanceID:  1,
		DAGIDShort:  0x0001,
		DAGVersion:  1,
		Timestamp:   10,
		Rank:        256,
		ParentShort: 0x0001,
		NNeighbors:  2,
		Neighbors: []NeighborObservation{
			{Short: 0x0001, Rank: 256},
			{Short: 0x0003, Rank: 512},
		},
	}
	buf, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got MappingReply
	if err := got.UnmarshalBinary(buf, 0); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.SrcShort != want.SrcShort || got.Rank != want.Rank || len(got.Neighbors) != 2 {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.Neighbors[1].Short != 0x0003 || got.Neighbors[1].Rank != 512 {
		t.Errorf("neighbor[1] = %+v", got.Neighbors[1])
	}
}

func TestMappingReplyClampsToDensity(t *testing.T) {
	want := MappingReply{
		NNeighbors: 4,
		Neighbors: []NeighborObservation{
			{Short: 1, Rank: 1}, {Short: 2, Rank: 2}, {Short: 3, Rank: 3}, {Short: 4, Rank: 4},
		},
	}
	buf, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got MappingReply
	if err := got.UnmarshalBinary(buf, 2); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if len(got.Neighbors) != 2 {
		t.Fatalf("len(Neighbors) = %d, want 2 (clamped to density)", len(got.Neighbors))
	}
}

func TestMappingReplyTruncatedNeighborsDoesNotError(t *testing.T) {
	want := MappingReply{
		NNeighbors: 5,
		Neighbors:  []NeighborObservation{{Short: 1, Rank: 1}},
	}
	buf, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got MappingReply
	if err := got.UnmarshalBinary(buf, 0); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if len(got.Neighbors) != 1 {
		t.Fatalf("len(Neighbors) = %d, want 1 (only what fit on the wire)", len(got.Neighbors))
	}
}

func TestMappingReplyTooShort(t *testing.T) {
	var r MappingReply
	if err := r.UnmarshalBinary([]byte{1, 2, 3}, 0); err == nil {
		t.Fatal("expected error on short buffer")
	}
}

func TestFirewallInstallRoundTrip(t *testing.T) {
	want := FirewallInstall{
		DestShort: 0x1234,
		SrcIP:     netip.MustParseAddr("aaaa::2"),
	}
	buf, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(buf) != FirewallInstallLen {
		t.Fatalf("len = %d, want %d", len(buf), FirewallInstallLen)
	}

	var got FirewallInstall
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.DestShort != want.DestShort || got.SrcIP != want.SrcIP {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFirewallInstallTooShort(t *testing.T) {
	var f FirewallInstall
	if err := f.UnmarshalBinary(make([]byte, 10)); err == nil {
		t.Fatal("expected error on short buffer")
	}
}
