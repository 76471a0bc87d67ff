package main

import (
	"strconv"
	"strings"
)

// All address math is exact unsigned 32-bit integer arithmetic over
// big-endian octets. String comparisons are never used for ordering.

func ipv4ToU32(o [4]byte) uint32 {
	return uint32(o[0])<<24 | uint32(o[1])<<16 | uint32(o[2])<<8 | uint32(o[3])
}

func u32ToIPv4(v uint32) [4]byte {
	return [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// parseIPv4 accepts dotted-decimal with 1-3 digit octets, 0-255 each.
// The param name is carried into the error so callers can report which
// option held the bad value.
func parseIPv4(raw, param string) ([4]byte, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ".")
	if len(parts) != 4 {
		return [4]byte{}, opErrorf(KindInvalidFormat, "%s: %q is not a valid IPv4 address", param, raw)
	}
	var out [4]byte
	for i, part := range parts {
		if len(part) == 0 || len(part) > 3 {
			return [4]byte{}, opErrorf(KindInvalidFormat, "%s: %q is not a valid IPv4 address", param, raw)
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return [4]byte{}, opErrorf(KindInvalidFormat, "%s: %q is not a valid IPv4 address", param, raw)
			}
		}
		v, err := strconv.Atoi(part)
		if err != nil || v > 255 {
			return [4]byte{}, opErrorf(KindInvalidFormat, "%s: octet %q of %q is out of range", param, part, raw)
		}
		out[i] = byte(v)
	}
	return out, nil
}

func ipString(o [4]byte) string {
	return itoa(int(o[0])) + "." + itoa(int(o[1])) + "." + itoa(int(o[2])) + "." + itoa(int(o[3]))
}

func networkMask(cidr int) [4]byte {
	if cidr <= 0 {
		return [4]byte{}
	}
	if cidr >= 32 {
		return u32ToIPv4(^uint32(0))
	}
	return u32ToIPv4(^uint32(0) << (32 - cidr))
}

// ipRange yields the inclusive [network, broadcast] range for start under mask.
func ipRange(start, mask [4]byte) (lo, hi [4]byte) {
	s := ipv4ToU32(start)
	m := ipv4ToU32(mask)
	return u32ToIPv4(s & m), u32ToIPv4(s&m | ^m)
}

func ipInRange(lo, hi, candidate [4]byte) bool {
	v := ipv4ToU32(candidate)
	return v >= ipv4ToU32(lo) && v <= ipv4ToU32(hi)
}

// cidrFromHostCount returns the tightest prefix whose block holds
// n hosts plus the network and broadcast addresses.
func cidrFromHostCount(n int, param string) (int, error) {
	if n <= 0 {
		return 0, opErrorf(KindInvalidArgument, "%s: host count must be a positive integer, got %d", param, n)
	}
	need := uint64(n) + 2
	if need > 1<<32 {
		return 0, opErrorf(KindInvalidArgument, "%s: host count %d exceeds the IPv4 address space", param, n)
	}
	for p := 32; p >= 0; p-- {
		if uint64(1)<<(32-p) >= need {
			return p, nil
		}
	}
	return 0, opErrorf(KindInvalidArgument, "%s: host count %d exceeds the IPv4 address space", param, n)
}

// hostCountForCidr is zero at /31 and /32 (point-to-point and host routes
// have no usable network/broadcast split), never negative.
func hostCountForCidr(cidr int) int {
	if cidr >= 31 {
		return 0
	}
	if cidr < 0 {
		cidr = 0
	}
	return int(uint64(1)<<(32-cidr)) - 2
}

func verifyCidr(cidr, startCidr, endCidr int, param string) error {
	if cidr < startCidr || cidr > endCidr {
		return opErrorf(KindOutOfRange, "%s: cidr %d is not in the allowed range [%d, %d]", param, cidr, startCidr, endCidr)
	}
	return nil
}

// defaultSubnetCidr derives a subnet prefix when the caller gave neither a
// subnet cidr nor a subnet host count: three bits narrower than the address
// space (eight subnets), clamped to the descriptor's narrowest allowed prefix.
func defaultSubnetCidr(addressSpaceCidr, endCidr int) int {
	cidr := addressSpaceCidr + 3
	if cidr > endCidr {
		return endCidr
	}
	return cidr
}

type PrivateSpace struct {
	Name        string
	Start       [4]byte
	End         [4]byte
	DefaultCidr int
	StartCidr   int
	EndCidr     int
}

var privateSpaces = []PrivateSpace{
	{Name: "10.0.0.0/8", Start: [4]byte{10, 0, 0, 0}, End: [4]byte{10, 255, 255, 255}, DefaultCidr: 8, StartCidr: 8, EndCidr: 29},
	{Name: "172.16.0.0/12", Start: [4]byte{172, 16, 0, 0}, End: [4]byte{172, 31, 255, 255}, DefaultCidr: 12, StartCidr: 12, EndCidr: 29},
	{Name: "192.168.0.0/16", Start: [4]byte{192, 168, 0, 0}, End: [4]byte{192, 168, 255, 255}, DefaultCidr: 16, StartCidr: 16, EndCidr: 29},
}

func classifyPrivateSpace(addr [4]byte) (PrivateSpace, bool) {
	for _, s := range privateSpaces {
		if ipInRange(s.Start, s.End, addr) {
			return s, true
		}
	}
	return PrivateSpace{}, false
}

func privateSpaceNames() []string {
	out := make([]string, 0, len(privateSpaces))
	for _, s := range privateSpaces {
		out = append(out, s.Name)
	}
	return out
}

func itoa(i int) string { return itoa64(int64(i)) }
func itoa64(i int64) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [32]byte
	n := len(buf)
	for i > 0 {
		n--
		buf[n] = byte('0' + (i % 10))
		i /= 10
	}
	if neg {
		n--
		buf[n] = '-'
	}
	return string(buf[n:])
}
