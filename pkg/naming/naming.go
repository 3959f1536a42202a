// Package naming loads and resolves the symbolic network and service
// definitions referenced by policy files. Definitions live in YAML
// files; tokens may reference other tokens, and resolution expands
// them transitively.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// NetworkDef is one named set of networks. Values are CIDR strings,
// bare addresses, or other network tokens.
type NetworkDef struct {
	Values  []string `yaml:"values"`
	Comment string   `yaml:"comment,omitempty"`
}

// ServiceEntry is one element of a service definition: either a
// port/protocol pair or a reference to another service token.
type ServiceEntry struct {
	Port     string `yaml:"port,omitempty"`
	Protocol string `yaml:"protocol,omitempty"`
	Service  string `yaml:"service,omitempty"`
	Comment  string `yaml:"comment,omitempty"`
}

// Definitions is the merged symbolic name database.
type Definitions struct {
	networks map[string]*NetworkDef
	services map[string][]ServiceEntry
}

type defsFile struct {
	Networks map[string]*NetworkDef    `yaml:"networks"`
	Services map[string][]ServiceEntry `yaml:"services"`
}

// New returns an empty Definitions.
func New() *Definitions {
	return &Definitions{
		networks: make(map[string]*NetworkDef),
		services: make(map[string][]ServiceEntry),
	}
}

// Load reads every .yaml/.yml file in dir into one Definitions. A token
// defined in more than one file is an error.
func Load(dir string) (*Definitions, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read definitions dir: %w", err)
	}
	defs := New()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if err := defs.merge(data); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return defs, nil
}

// ParseBytes parses a single YAML definitions document.
func ParseBytes(data []byte) (*Definitions, error) {
	defs := New()
	if err := defs.merge(data); err != nil {
		return nil, err
	}
	return defs, nil
}

func (d *Definitions) merge(data []byte) error {
	var f defsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse definitions: %w", err)
	}
	for name, def := range f.Networks {
		if _, ok := d.networks[name]; ok {
			return fmt.Errorf("network %q defined more than once", name)
		}
		d.networks[name] = def
	}
	for name, entries := range f.Services {
		if _, ok := d.services[name]; ok {
			return fmt.Errorf("service %q defined more than once", name)
		}
		d.services[name] = entries
	}
	return nil
}

// NetworkTokens returns all defined network token names, sorted.
func (d *Definitions) NetworkTokens() []string {
	names := make([]string, 0, len(d.networks))
	for name := range d.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceTokens returns all defined service token names, sorted.
func (d *Definitions) ServiceTokens() []string {
	names := make([]string, 0, len(d.services))
	for name := range d.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Network returns the raw definition for a network token.
func (d *Definitions) Network(token string) (*NetworkDef, bool) {
	def, ok := d.networks[token]
	return def, ok
}

// Service returns the raw entries for a service token.
func (d *Definitions) Service(token string) ([]ServiceEntry, bool) {
	entries, ok := d.services[token]
	return entries, ok
}
