// Package codec converts external value representations to and from the
// compact internal forms stored in records.
//
// Three families are covered: IP addresses (text to a 128-bit unsigned
// integer and back), timestamps (epoch numbers, text or time.Time to int64
// Unix seconds and back), and binary payloads (bytes to base64 text and
// back). All conversions are exact round-trips; malformed input always
// fails with a typed error and is never silently defaulted or truncated.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"time"
)

var (
	ErrBadAddress   = errors.New("invalid IP address")
	ErrBadTimestamp = errors.New("invalid timestamp")
	ErrBadBinary    = errors.New("invalid base64 payload")
)

// Addr is the internal form of an IP address: an unsigned 128-bit integer.
// IPv4 addresses are embedded in the IPv4-mapped range (::ffff:0:0/96), so
// every address is totally ordered and range queries work across families.
type Addr struct {
	Hi, Lo uint64
}

// ParseAddr converts an IPv4 or IPv6 literal to its internal form.
func ParseAddr(s string) (Addr, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return Addr{}, fmt.Errorf("%w: %q", ErrBadAddress, s)
	}
	return FromNetip(ip), nil
}

// FromNetip converts a parsed address to its internal form.
func FromNetip(ip netip.Addr) Addr {
	b := netip.AddrFrom16(ip.As16()).As16()
	var a Addr
	for i := range 8 {
		a.Hi = a.Hi<<8 | uint64(b[i])
		a.Lo = a.Lo<<8 | uint64(b[i+8])
	}
	return a
}

// Netip returns the address as a netip.Addr, unmapped to 4-byte form when
// it lies in the IPv4-mapped range.
func (a Addr) Netip() netip.Addr {
	var b [16]byte
	for i := range 8 {
		b[7-i] = byte(a.Hi >> (8 * i))
		b[15-i] = byte(a.Lo >> (8 * i))
	}
	return netip.AddrFrom16(b).Unmap()
}

// String returns the canonical text form (dotted quad for IPv4-mapped
// addresses, RFC 5952 for IPv6).
func (a Addr) String() string {
	return a.Netip().String()
}

// Cmp compares two addresses by integer value: -1, 0 or +1.
func (a Addr) Cmp(b Addr) int {
	switch {
	case a.Hi < b.Hi:
		return -1
	case a.Hi > b.Hi:
		return 1
	case a.Lo < b.Lo:
		return -1
	case a.Lo > b.Lo:
		return 1
	}
	return 0
}

// IsIPv4 reports whether the address lies in the IPv4-mapped range.
func (a Addr) IsIPv4() bool {
	return a.Hi == 0 && a.Lo>>32 == 0xffff
}

// MaskPrefix zeroes all but the first bits of the embedded IPv4 address.
// Only meaningful for IPv4-mapped addresses with 0 <= bits <= 32.
func (a Addr) MaskPrefix(bits int) Addr {
	mask := uint64(math.MaxUint32) << (32 - bits) & math.MaxUint32
	return Addr{Hi: a.Hi, Lo: a.Lo&^math.MaxUint32 | a.Lo&mask}
}

// IPv4 range bounds, used to restrict filters to IPv4-mapped addresses.
var (
	MinIPv4 = Addr{Hi: 0, Lo: 0xffff << 32}
	MaxIPv4 = Addr{Hi: 0, Lo: 0xffff<<32 | math.MaxUint32}
)

// textTimeLayouts are the accepted textual timestamp forms, tried in order.
var textTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ToTimestamp normalizes any accepted timestamp form to the canonical
// internal representation, Unix seconds. The resolution is one second:
// fractional seconds in float or text input are truncated toward zero.
func ToTimestamp(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case time.Time:
		return t.Unix(), nil
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return int64(f), nil
		}
		for _, layout := range textTimeLayouts {
			if ts, err := time.ParseInLocation(layout, t, time.UTC); err == nil {
				return ts.Unix(), nil
			}
		}
		return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, t)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrBadTimestamp, v)
	}
}

// FromTimestamp converts the internal form back to a time value (UTC).
func FromTimestamp(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

// ToBinary encodes a binary payload as base64 text for storage.
func ToBinary(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromBinary decodes a stored base64 payload.
func FromBinary(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBinary, err)
	}
	return data, nil
}
