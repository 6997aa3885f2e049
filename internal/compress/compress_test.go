// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package compress

import (
	"net/netip"
	"testing"
)

func TestCompress(t *testing.T) {
	ip := netip.MustParseAddr("aaaa::2")
	if got := Compress(ip); got != 0x0002 {
		t.Errorf("Compress(aaaa::2) = %#x, want 0x0002", got)
	}

	ip2 := netip.MustParseAddr("2001:db8::dead")
	if got := Compress(ip2); got != 0xdead {
		t.Errorf("Compress(2001:db8::dead) = %#x, want 0xdead", got)
	}
}

func TestGlobalize(t *testing.T) {
	ll := netip.MustParseAddr("fe80::1234")
	got := Globalize(ll)
	want := netip.MustParseAddr("aaaa::1234")
	if got != want {
		t.Errorf("Globalize(fe80::1234) = %s, want %s", got, want)
	}
}

func TestCompressUniqueAcrossSequence(t *testing.T) {
	addrs := []string{"aaaa::1", "aaaa::2", "aaaa::3", "aaaa::dead"}
	seen := map[uint16]bool{}
	for _, a := range addrs {
		id := Compress(netip.MustParseAddr(a))
		if seen[id] {
			t.Errorf("collision for %s: id %#x already seen", a, id)
		}
		seen[id] = true
	}
}
