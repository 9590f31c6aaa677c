// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package recorder

import (
	"encoding/binary"
	"net"
)

// ipToUint32 converts a dotted-quad IPv4 address to its big-endian
// 32-bit representation, matching the Event DB schema (spec.md §3.4).
// An empty or unparsable/non-IPv4 address maps to the placeholder 0.
func ipToUint32(ip string) uint32 {
	if ip == "" {
		return 0
	}
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return 0
	}
	return binary.BigEndian.Uint32(parsed)
}

// uint32ToIP reverses ipToUint32; 0 maps back to the empty placeholder.
func uint32ToIP(v uint32) string {
	if v == 0 {
		return ""
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return net.IP(b[:]).String()
}
