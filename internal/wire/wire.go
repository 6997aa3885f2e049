// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package wire encodes and decodes the three fixed/semi-fixed layout UDP
// datagrams ravelid exchanges with sensor nodes: the mapping request, the
// mapping reply, and the firewall-install request. All multi-byte fields
// are little-endian, the host byte order of the sensor-node hardware
// class, not network byte order.
package wire

import (
	"encoding/binary"
	"net/netip"

	"ravelid.dev/ravelid/internal/errors"
)

// MappingRequestLen is the fixed length of a mapping request datagram.
const MappingRequestLen = 5

// MappingRequest is the root-to-node mapping poll:
// instance_id(1) | dag_id_short(2) | dag_version(1) | timestamp(1).
type MappingRequest struct {
	InstanceID uint8
	DAGIDShort uint16
	DAGVersion uint8
	Timestamp  uint8
}

// MarshalBinary encodes the request to its 5-byte wire form.
func (r MappingRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, MappingRequestLen)
	buf[0] = r.InstanceID
	binary.LittleEndian.PutUint16(buf[1:3], r.DAGIDShort)
	buf[3] = r.DAGVersion
	buf[4] = r.Timestamp
	return buf, nil
}

// UnmarshalBinary decodes a 5-byte mapping request.
func (r *MappingRequest) UnmarshalBinary(data []byte) error {
	if len(data) < MappingRequestLen {
		return errors.Errorf(errors.KindValidation, "wire: mapping request too short: %d bytes", len(data))
	}
	r.InstanceID = data[0]
	r.DAGIDShort = binary.LittleEndian.Uint16(data[1:3])
	r.DAGVersion = data[3]
	r.Timestamp = data[4]
	return nil
}

// NeighborObservation is one (neighbor_short, neighbor_rank) pair reported
// in a mapping reply.
type NeighborObservation struct {
	Short uint16
	Rank  uint16
}

// mappingReplyFixedLen is the length of everything in a MappingReply before
// the variable-length neighbor array.
const mappingReplyFixedLen = 2 + 1 + 2 + 1 + 1 + 2 + 2 + 2

// MappingReply is the node-to-root mapping response:
//
//	src_short(2) | instance_id(1) | dag_id_short(2) | dag_version(1) |
//	timestamp(1) | rank(2) | parent_short(2) | n_neighbors(2) |
//	[ neighbor_short(2) | neighbor_rank(2) ] x n_neighbors
type MappingReply struct {
	SrcShort    uint16
	InstanceID  uint8
	DAGIDShort  uint16
	DAGVersion  uint8
	Timestamp   uint8
	Rank        uint16
	ParentShort uint16
	// NNeighbors is the claimed count from the wire, which may exceed
	// len(Neighbors) when the sender has more neighbors than its own
	// density cap allows it to enumerate.
	NNeighbors uint16
	Neighbors  []NeighborObservation
}

// MarshalBinary encodes the reply, including len(Neighbors) neighbor pairs.
// NNeighbors is written as given, even if it does not match len(Neighbors)
// (callers constructing test fixtures for the truncation edge case rely on
// this).
func (r MappingReply) MarshalBinary() ([]byte, error) {
	buf := make([]byte, mappingReplyFixedLen+4*len(r.Neighbors))
	o := 0
	binary.LittleEndian.PutUint16(buf[o:], r.SrcShort)
	o += 2
	buf[o] = r.InstanceID
	o++
	binary.LittleEndian.PutUint16(buf[o:], r.DAGIDShort)
	o += 2
	buf[o] = r.DAGVersion
	o++
	buf[o] = r.Timestamp
	o++
	binary.LittleEndian.PutUint16(buf[o:], r.Rank)
	o += 2
	binary.LittleEndian.PutUint16(buf[o:], r.ParentShort)
	o += 2
	binary.LittleEndian.PutUint16(buf[o:], r.NNeighbors)
	o += 2
	for _, n := range r.Neighbors {
		binary.LittleEndian.PutUint16(buf[o:], n.Short)
		o += 2
		binary.LittleEndian.PutUint16(buf[o:], n.Rank)
		o += 2
	}
	return buf, nil
}

// UnmarshalBinary decodes a mapping reply. The neighbor read loop is
// clamped to min(n_neighbors, density, bytes remaining) rather than
// trusting n_neighbors outright: a short or truncated datagram yields as
// many neighbor pairs as actually fit, not an error. density <= 0 means
// unbounded.
func (r *MappingReply) UnmarshalBinary(data []byte, density int) error {
	if len(data) < mappingReplyFixedLen {
		return errors.Errorf(errors.KindValidation, "wire: mapping reply too short: %d bytes", len(data))
	}
	o := 0
	r.SrcShort = binary.LittleEndian.Uint16(data[o:])
	o += 2
	r.InstanceID = data[o]
	o++
	r.DAGIDShort = binary.LittleEndian.Uint16(data[o:])
	o += 2
	r.DAGVersion = data[o]
	o++
	r.Timestamp = data[o]
	o++
	r.Rank = binary.LittleEndian.Uint16(data[o:])
	o += 2
	r.ParentShort = binary.LittleEndian.Uint16(data[o:])
	o += 2
	r.NNeighbors = binary.LittleEndian.Uint16(data[o:])
	o += 2

	max := int(r.NNeighbors)
	if density > 0 && density < max {
		max = density
	}
	r.Neighbors = nil
	for i := 0; i < max; i++ {
		if o+4 > len(data) {
			break
		}
		r.Neighbors = append(r.Neighbors, NeighborObservation{
			Short: binary.LittleEndian.Uint16(data[o:]),
			Rank:  binary.LittleEndian.Uint16(data[o+2:]),
		})
		o += 4
	}
	return nil
}

// FirewallInstallLen is the fixed length of a firewall-install request.
const FirewallInstallLen = 18

// FirewallInstall is the node-to-root filter-install request:
// dest_short(2) | src_ip(16).
type FirewallInstall struct {
	DestShort uint16
	SrcIP     netip.Addr
}

// MarshalBinary encodes the request to its 18-byte wire form.
func (f FirewallInstall) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FirewallInstallLen)
	binary.LittleEndian.PutUint16(buf[0:2], f.DestShort)
	a := f.SrcIP.As16()
	copy(buf[2:18], a[:])
	return buf, nil
}

// UnmarshalBinary decodes an 18-byte firewall-install request.
func (f *FirewallInstall) UnmarshalBinary(data []byte) error {
	if len(data) < FirewallInstallLen {
		return errors.Errorf(errors.KindValidation, "wire: firewall install too short: %d bytes", len(data))
	}
	f.DestShort = binary.LittleEndian.Uint16(data[0:2])
	var a [16]byte
	copy(a[:], data[2:18])
	f.SrcIP = netip.AddrFrom16(a)
	return nil
}
