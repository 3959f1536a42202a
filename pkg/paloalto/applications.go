package paloalto

import (
	"fmt"

	"github.com/psaab/panpol/pkg/policy"
)

const (
	appCategory    = "networking"
	appSubcategory = "ip-protocol"
	appTechnology  = "network-protocol"

	// Default PAN-OS risk levels for ICMP and ICMPv6 applications.
	icmpRisk  = 4
	icmp6Risk = 2
)

// Application is a custom application object synthesized for one ICMP
// or ICMPv6 type.
type Application struct {
	Name         string
	Category     string
	Subcategory  string
	Technology   string
	Description  string
	IdentKeyword string
	TypeCode     int
	Risk         int
}

// ApplicationCatalog accumulates custom ICMP applications. Each type
// is defined once; entries render in first-use order.
type ApplicationCatalog struct {
	order   []string
	entries map[string]*Application
}

func NewApplicationCatalog() *ApplicationCatalog {
	return &ApplicationCatalog{entries: make(map[string]*Application)}
}

// genericICMPApp is the built-in application matching all ICMP traffic
// of one version. Built-ins are referenced by name, never defined.
func genericICMPApp(version int) string {
	if version == 6 {
		return "ipv6-icmp"
	}
	return "icmp"
}

// EnsureType returns the application name for an ICMP type of the
// given version, defining the custom application on first use. A type
// name outside the version's table is a hard error.
func (c *ApplicationCatalog) EnsureType(version int, typeName string) (string, error) {
	name := "icmp-" + typeName
	keyword := "ident-by-icmp-type"
	risk := icmpRisk
	if version == 6 {
		name = "icmp6-" + typeName
		keyword = "ident-by-icmp6-type"
		risk = icmp6Risk
	}
	code, ok := policy.ICMPTypes[version][typeName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrBadICMPType, typeName)
	}
	if _, ok := c.entries[name]; ok {
		return name, nil
	}
	c.entries[name] = &Application{
		Name:         name,
		Category:     appCategory,
		Subcategory:  appSubcategory,
		Technology:   appTechnology,
		Description:  name,
		IdentKeyword: keyword,
		TypeCode:     code,
		Risk:         risk,
	}
	c.order = append(c.order, name)
	return name, nil
}

// Entries lists defined applications in first-use order.
func (c *ApplicationCatalog) Entries() []*Application {
	out := make([]*Application, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name])
	}
	return out
}

func (c *ApplicationCatalog) Len() int { return len(c.order) }
