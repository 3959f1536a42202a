package paloalto

import (
	"fmt"
	"sort"

	"github.com/psaab/panpol/pkg/netutil"
)

// AddressBook accumulates network objects per zone. Objects are
// bucketed by their defining token and named token_N in registration
// order, so a token turns into one address-group whose members are
// the individual address entries.
type AddressBook struct {
	zoneOrder []string
	zones     map[string]map[string][]bookEntry
}

type bookEntry struct {
	net  netutil.Net
	name string
}

func NewAddressBook() *AddressBook {
	return &AddressBook{zones: make(map[string]map[string][]bookEntry)}
}

// Register files a network object under zone. Registration is a no-op
// when the bucket already holds the same prefix or a covering one.
func (b *AddressBook) Register(zone string, n netutil.Net) {
	tokens, ok := b.zones[zone]
	if !ok {
		tokens = make(map[string][]bookEntry)
		b.zones[zone] = tokens
		b.zoneOrder = append(b.zoneOrder, zone)
	}
	bucket := tokens[n.Token]
	for _, e := range bucket {
		if e.net.Contains(n) {
			return
		}
	}
	name := fmt.Sprintf("%s_%d", n.Token, len(bucket))
	tokens[n.Token] = append(bucket, bookEntry{net: n, name: name})
}

// RenderedBook is the flattened view used to emit address and
// address-group sections.
type RenderedBook struct {
	Names     []string               // entry names, natural sort order
	Objects   map[string]netutil.Net // entry name to prefix
	GroupKeys []string               // group names, sorted
	Groups    map[string][]string    // group name to member entry names
}

// Render flattens the per-zone buckets. When two zones produced the
// same entry name for different prefixes, the later one wins only if
// it covers the earlier one.
func (b *AddressBook) Render() RenderedBook {
	out := RenderedBook{
		Objects: make(map[string]netutil.Net),
		Groups:  make(map[string][]string),
	}
	for _, zone := range b.zoneOrder {
		tokens := b.zones[zone]
		groups := make([]string, 0, len(tokens))
		for token := range tokens {
			groups = append(groups, token)
		}
		sort.Strings(groups)
		for _, token := range groups {
			names := make([]string, 0, len(tokens[token]))
			for _, e := range tokens[token] {
				names = append(names, e.name)
				if prev, ok := out.Objects[e.name]; ok {
					if e.net.Contains(prev) {
						out.Objects[e.name] = e.net
					}
					continue
				}
				out.Objects[e.name] = e.net
			}
			out.Groups[token] = names
		}
	}
	out.Names = make([]string, 0, len(out.Objects))
	for name := range out.Objects {
		out.Names = append(out.Names, name)
	}
	sort.Slice(out.Names, func(i, j int) bool {
		return netutil.NaturalLess(out.Names[i], out.Names[j])
	})
	out.GroupKeys = make([]string, 0, len(out.Groups))
	for key := range out.Groups {
		out.GroupKeys = append(out.GroupKeys, key)
	}
	sort.Strings(out.GroupKeys)
	return out
}
