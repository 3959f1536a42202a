package naming

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/psaab/panpol/pkg/netutil"
)

// GetNetAddr resolves a network token to concrete network objects,
// expanding nested token references transitively. Every returned
// object carries the queried token as its parent token.
func (d *Definitions) GetNetAddr(token string) ([]netutil.Net, error) {
	nets, err := d.resolveNet(token, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	for i := range nets {
		nets[i].Token = token
	}
	return nets, nil
}

func (d *Definitions) resolveNet(token string, visited map[string]bool) ([]netutil.Net, error) {
	if visited[token] {
		return nil, fmt.Errorf("cycle detected in network %q", token)
	}
	def, ok := d.networks[token]
	if !ok {
		return nil, fmt.Errorf("undefined network %q", token)
	}
	visited[token] = true
	defer delete(visited, token)

	var nets []netutil.Net
	for _, v := range def.Values {
		if n, err := netutil.ParseNet(v); err == nil {
			n.Comment = def.Comment
			nets = append(nets, n)
			continue
		}
		nested, err := d.resolveNet(v, visited)
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", token, err)
		}
		nets = append(nets, nested...)
	}
	return nets, nil
}

// GetServiceByProto resolves a service token to the port pairs defined
// for the given protocol, expanding nested service references. A token
// with no entries for the protocol yields an empty result, not an
// error.
func (d *Definitions) GetServiceByProto(token, protocol string) ([][2]int, error) {
	return d.resolveService(token, protocol, make(map[string]bool))
}

func (d *Definitions) resolveService(token, protocol string, visited map[string]bool) ([][2]int, error) {
	if visited[token] {
		return nil, fmt.Errorf("cycle detected in service %q", token)
	}
	entries, ok := d.services[token]
	if !ok {
		return nil, fmt.Errorf("undefined service %q", token)
	}
	visited[token] = true
	defer delete(visited, token)

	var ports [][2]int
	for _, e := range entries {
		if e.Service != "" {
			nested, err := d.resolveService(e.Service, protocol, visited)
			if err != nil {
				return nil, fmt.Errorf("service %q: %w", token, err)
			}
			ports = append(ports, nested...)
			continue
		}
		if e.Protocol != protocol {
			continue
		}
		pair, err := parsePortSpec(e.Port)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", token, err)
		}
		ports = append(ports, pair)
	}
	return ports, nil
}

// parsePortSpec parses "25" or "1024-65535" into an inclusive pair.
func parsePortSpec(s string) ([2]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return [2]int{}, fmt.Errorf("empty port")
	}
	if lo, hi, found := strings.Cut(s, "-"); found {
		l, err := parsePort(lo)
		if err != nil {
			return [2]int{}, err
		}
		h, err := parsePort(hi)
		if err != nil {
			return [2]int{}, err
		}
		if l > h {
			return [2]int{}, fmt.Errorf("inverted port range %q", s)
		}
		return [2]int{l, h}, nil
	}
	p, err := parsePort(s)
	if err != nil {
		return [2]int{}, err
	}
	return [2]int{p, p}, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 0 || p > 65535 {
		return 0, fmt.Errorf("bad port %q", s)
	}
	return p, nil
}

// FindContaining returns the network tokens whose resolved objects
// contain the given address, with the matching objects. Used by the
// console's grep command.
func (d *Definitions) FindContaining(addr netip.Addr) map[string][]netutil.Net {
	probe := netutil.Net{Prefix: netip.PrefixFrom(addr, addr.BitLen())}
	matches := make(map[string][]netutil.Net)
	for _, token := range d.NetworkTokens() {
		nets, err := d.GetNetAddr(token)
		if err != nil {
			continue
		}
		for _, n := range nets {
			if n.Contains(probe) {
				matches[token] = append(matches[token], n)
			}
		}
	}
	return matches
}
