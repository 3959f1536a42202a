// Package netutil provides the network object primitives used by the
// policy layer and the translation engine: version-tagged prefixes that
// remember the symbolic token they were defined under, containment tests,
// and CIDR exclusion arithmetic.
package netutil

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// Net is a concrete network object: a prefix plus the symbolic parent
// token it was resolved from. Bare addresses parse as /32 or /128.
type Net struct {
	Prefix  netip.Prefix
	Token   string
	Comment string
}

// ParseNet parses a CIDR string or a bare IP address.
func ParseNet(s string) (Net, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return Net{}, fmt.Errorf("parse network %q: %w", s, err)
		}
		return Net{Prefix: p.Masked()}, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return Net{}, fmt.Errorf("parse network %q: %w", s, err)
	}
	return Net{Prefix: netip.PrefixFrom(a, a.BitLen())}, nil
}

// MustParseNet is ParseNet for tests and static tables.
func MustParseNet(s string) Net {
	n, err := ParseNet(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Version reports the IP version, 4 or 6.
func (n Net) Version() int {
	if n.Prefix.Addr().Is4() {
		return 4
	}
	return 6
}

// String renders the canonical CIDR form, e.g. "10.0.0.0/8".
func (n Net) String() string {
	return n.Prefix.String()
}

// IsValid reports whether the underlying prefix is set.
func (n Net) IsValid() bool {
	return n.Prefix.IsValid()
}

// Contains reports whether other lies entirely within n. A prefix
// contains itself.
func (n Net) Contains(other Net) bool {
	if n.Prefix.Addr().Is4() != other.Prefix.Addr().Is4() {
		return false
	}
	return n.Prefix.Bits() <= other.Prefix.Bits() && n.Prefix.Contains(other.Prefix.Addr())
}

// SupernetOf reports whether n strictly contains other.
func (n Net) SupernetOf(other Net) bool {
	return n.Contains(other) && n.Prefix != other.Prefix
}

// WithToken returns a copy of n tagged with the given parent token.
func (n Net) WithToken(token string) Net {
	n.Token = token
	return n
}

// ExcludeFromList removes excl from every member of nets. Members fully
// covered by excl are dropped, members containing excl are split into
// the prefixes covering the remainder, and disjoint members pass
// through unchanged. Survivor order is preserved; split fragments are
// emitted in ascending address order and inherit the member's token.
func ExcludeFromList(nets []Net, excl Net) []Net {
	var out []Net
	for _, n := range nets {
		if n.Version() != excl.Version() {
			out = append(out, n)
			continue
		}
		if excl.Contains(n) {
			continue
		}
		if n.SupernetOf(excl) {
			for _, p := range subtractPrefix(n.Prefix, excl.Prefix) {
				out = append(out, Net{Prefix: p, Token: n.Token, Comment: n.Comment})
			}
			continue
		}
		out = append(out, n)
	}
	return out
}

// subtractPrefix returns the prefixes covering p minus excl, where excl
// is a strict subnet of p. Walks from p toward excl, keeping the
// sibling half at each split.
func subtractPrefix(p, excl netip.Prefix) []netip.Prefix {
	var kept []netip.Prefix
	cur := p
	for cur.Bits() < excl.Bits() {
		lo, hi, ok := splitPrefix(cur)
		if !ok {
			break
		}
		if lo.Contains(excl.Addr()) {
			kept = append(kept, hi)
			cur = lo
		} else {
			kept = append(kept, lo)
			cur = hi
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if c := kept[i].Addr().Compare(kept[j].Addr()); c != 0 {
			return c < 0
		}
		return kept[i].Bits() < kept[j].Bits()
	})
	return kept
}

// splitPrefix halves p into its two child prefixes.
func splitPrefix(p netip.Prefix) (lo, hi netip.Prefix, ok bool) {
	bits := p.Bits()
	addr := p.Masked().Addr()
	if bits >= addr.BitLen() {
		return netip.Prefix{}, netip.Prefix{}, false
	}
	lo = netip.PrefixFrom(addr, bits+1)
	if addr.Is4() {
		b := addr.As4()
		b[bits/8] |= 0x80 >> (bits % 8)
		hi = netip.PrefixFrom(netip.AddrFrom4(b), bits+1)
	} else {
		b := addr.As16()
		b[bits/8] |= 0x80 >> (bits % 8)
		hi = netip.PrefixFrom(netip.AddrFrom16(b), bits+1)
	}
	return lo, hi, true
}
