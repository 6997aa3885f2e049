// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package compress implements the address compressor: the pure mapping from
// a 128-bit IPv6 address to the 16-bit short id ravelid uses as a node key
// on the wire and in the network graph.
package compress

import "net/netip"

// globalPrefix is the well-known first 16-bit word used when promoting a
// link-local address seen in the routing table into the prefixed form the
// graph expects.
const globalPrefix = 0xAAAA

// Compress returns the last 16-bit word of ip, used as the node's short
// id. Uniqueness across the managed subnet is a property of the
// deployment's RPL prefix, not of this function.
func Compress(ip netip.Addr) uint16 {
	a := ip.As16()
	return uint16(a[14])<<8 | uint16(a[15])
}

// Globalize rewrites the first 16-bit word of ip to the well-known global
// prefix, turning a link-local address from the routing table into the
// prefixed form used throughout the graph.
func Globalize(ip netip.Addr) netip.Addr {
	a := ip.As16()
	a[0] = globalPrefix >> 8
	a[1] = globalPrefix & 0xff
	return netip.AddrFrom16(a)
}
