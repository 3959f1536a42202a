// Package paloalto translates parsed security policies into PAN-OS
// firewall configuration. The translator walks headers and terms in
// declaration order, resolves per-term address family applicability,
// accumulates address, service, and application objects, and renders
// the nested XML document the device expects.
package paloalto

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/psaab/panpol/pkg/netutil"
	"github.com/psaab/panpol/pkg/policy"
)

// Platform is the target name headers use to select this generator.
const Platform = "paloalto"

const (
	maxTermNameLength        = 31
	maxRuleDescriptionLength = 1024

	// DefaultExpirationWeeks is the look-ahead window for expiration
	// notices.
	DefaultExpirationWeeks = 2
)

var supportedProtocols = map[string]bool{
	"tcp":    true,
	"udp":    true,
	"icmp":   true,
	"icmpv6": true,
	"sctp":   true,
	"igmp":   true,
}

var panActions = map[policy.Action]string{
	policy.ActionAccept:           "allow",
	policy.ActionDeny:             "deny",
	policy.ActionReject:           "reset-client",
	policy.ActionRejectWithTCPRST: "reset-client",
}

// Rule is one security rule entry, ready for rendering.
type Rule struct {
	Name         string
	Description  string
	FromZone     string
	ToZone       string
	Source       []string
	Destination  []string
	Services     []string
	Applications []string
	Action       string
	LogDisable   bool
	LogStart     bool
	LogEnd       bool
}

// Stats summarizes one translation pass.
type Stats struct {
	Filters      int `json:"filters"`
	Terms        int `json:"terms"`
	Rules        int `json:"rules"`
	DroppedTerms int `json:"dropped_terms"`
	Addresses    int `json:"addresses"`
	Services     int `json:"services"`
	Applications int `json:"applications"`
}

// Document is the product of one translation pass. Render serializes
// it into device configuration.
type Document struct {
	Rules             []*Rule
	ApplicationGroups []string
	Stats             Stats

	book     *AddressBook
	services *ServiceRegistry
	catalog  *ApplicationCatalog
	rendered RenderedBook
}

// Options configure a Translator.
type Options struct {
	Logger *slog.Logger
	// ExpirationWeeks overrides the expiration notice look-ahead.
	ExpirationWeeks int
	// Now supplies the clock used for expiration checks.
	Now func() time.Time
}

// Translator converts parsed policies into PAN-OS configuration.
type Translator struct {
	log      *slog.Logger
	expWeeks int
	now      func() time.Time
}

func NewTranslator(opts Options) *Translator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	weeks := opts.ExpirationWeeks
	if weeks <= 0 {
		weeks = DefaultExpirationWeeks
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Translator{log: log, expWeeks: weeks, now: now}
}

// Translate walks every filter targeting this platform and produces
// the assembled document. Any fatal term error aborts the pass; the
// partially built document is discarded.
func (tr *Translator) Translate(pol *policy.Policy) (*Document, error) {
	doc := &Document{
		book:     NewAddressBook(),
		services: NewServiceRegistry(),
		catalog:  NewApplicationCatalog(),
	}
	for i := range pol.Filters {
		if err := tr.translateFilter(doc, &pol.Filters[i]); err != nil {
			return nil, err
		}
	}
	doc.rendered = doc.book.Render()
	doc.Stats.Addresses = len(doc.rendered.Names)
	doc.Stats.Services = doc.services.Len()
	doc.Stats.Applications = doc.catalog.Len()
	return doc, nil
}

type filterSpec struct {
	fromZone string
	toZone   string
	ftype    FilterType
}

func parseFilterOptions(opts []string) (filterSpec, error) {
	var spec filterSpec
	if len(opts) < 4 || opts[0] != "from-zone" || opts[2] != "to-zone" {
		return spec, fmt.Errorf("%w: filter arguments must specify from-zone and to-zone", ErrUnsupportedFilter)
	}
	spec.fromZone = opts[1]
	spec.toZone = opts[3]
	if spec.fromZone == "" || spec.toZone == "" {
		return spec, fmt.Errorf("%w: source or destination zone is empty", ErrUnsupportedFilter)
	}
	spec.ftype = FilterInet
	if len(opts) > 4 {
		ft, ok := ParseFilterType(opts[4])
		if !ok {
			return spec, fmt.Errorf("%w: address family %q is not supported", ErrUnsupportedHeader, opts[4])
		}
		spec.ftype = ft
	}
	return spec, nil
}

func (tr *Translator) translateFilter(doc *Document, f *policy.Filter) error {
	if !f.Header.HasPlatform(Platform) {
		return nil
	}
	spec, err := parseFilterOptions(f.Header.FilterOptions(Platform))
	if err != nil {
		return err
	}
	doc.Stats.Filters++

	now := tr.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	notice := today.AddDate(0, 0, 7*tr.expWeeks)

	seen := make(map[string]bool)
	for _, t := range f.Terms {
		doc.Stats.Terms++
		rule, err := tr.translateTerm(doc, spec, seen, t, today, notice)
		if err != nil {
			return err
		}
		if rule == nil {
			doc.Stats.DroppedTerms++
			continue
		}
		doc.Rules = append(doc.Rules, rule)
		doc.Stats.Rules++
	}
	return nil
}

// translateTerm runs one term through the translation pipeline. A nil
// rule with nil error means the term was dropped with a warning.
func (tr *Translator) translateTerm(doc *Document, spec filterSpec, seen map[string]bool, t *policy.Term, today, notice time.Time) (*Rule, error) {
	if t.StatelessReply {
		tr.log.Warn("term is a stateless reply term and will not be rendered",
			"term", t.Name, "from_zone", spec.fromZone, "to_zone", spec.toZone)
		return nil, nil
	}
	if t.HasOption(policy.OptEstablished) {
		tr.log.Warn("term is an established term and will not be rendered",
			"term", t.Name, "from_zone", spec.fromZone, "to_zone", spec.toZone)
		return nil, nil
	}
	if t.HasOption(policy.OptTCPEstablished) {
		tr.log.Warn("term is a tcp-established term and will not be rendered",
			"term", t.Name, "from_zone", spec.fromZone, "to_zone", spec.toZone)
		return nil, nil
	}

	if len(t.Name) > maxTermNameLength {
		return nil, fmt.Errorf("%w: term name %q exceeds %d characters", ErrNameTooLong, t.Name, maxTermNameLength)
	}
	if seen[t.Name] {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTerm, t.Name)
	}
	seen[t.Name] = true

	if t.Expiration != nil {
		if !t.Expiration.After(notice) {
			tr.log.Info("term expires soon",
				"term", t.Name, "from_zone", spec.fromZone, "to_zone", spec.toZone,
				"expiration", t.Expiration.Format("2006-01-02"))
		}
		if !t.Expiration.After(today) {
			tr.log.Warn("term is expired and will not be rendered",
				"term", t.Name, "from_zone", spec.fromZone, "to_zone", spec.toZone,
				"expiration", t.Expiration.Format("2006-01-02"))
			return nil, nil
		}
	}

	src := t.SourceAddress
	for _, ex := range t.SourceExclude {
		src = netutil.ExcludeFromList(src, ex)
	}
	dst := t.DestinationAddress
	for _, ex := range t.DestinationExclude {
		dst = netutil.ExcludeFromList(dst, ex)
	}

	fam := resolveAddressFamilies(tr.log, t, src, dst, spec.ftype)
	if fam.drop {
		return nil, nil
	}

	var ruleSrc, ruleDst []netutil.Net
	for _, a := range src {
		if fam.excludes(a.Version()) {
			continue
		}
		doc.book.Register(spec.fromZone, a)
		ruleSrc = append(ruleSrc, a)
	}
	for _, a := range dst {
		if fam.excludes(a.Version()) {
			continue
		}
		doc.book.Register(spec.toZone, a)
		ruleDst = append(ruleDst, a)
	}

	apps := append([]string(nil), t.PanApplication...)

	if len(t.ICMPType) > 0 && !t.HasProtocol("icmp") && !t.HasProtocol("icmpv6") {
		return nil, fmt.Errorf("%w: term %q uses icmp-type without icmp or icmpv6 protocol", ErrUnsupportedFilter, t.Name)
	}
	if t.HasProtocol("icmp") || t.HasProtocol("icmpv6") {
		for _, version := range []int{4, 6} {
			if version == 4 {
				if !fam.flows.has(FlowIP4IP4) || spec.ftype == FilterInet6 {
					continue
				}
			} else {
				if !fam.flows.has(FlowIP6IP6) || spec.ftype == FilterInet {
					continue
				}
			}
			if len(t.ICMPType) == 0 {
				apps = append(apps, genericICMPApp(version))
				continue
			}
			for _, typeName := range t.ICMPType {
				name, err := doc.catalog.EnsureType(version, typeName)
				if err != nil {
					return nil, fmt.Errorf("term %q: %w", t.Name, err)
				}
				if !containsString(apps, name) {
					apps = append(apps, name)
				}
			}
		}
	}

	for _, proto := range t.Protocol {
		if !supportedProtocols[proto] {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, proto)
		}
	}

	var services []string
	if len(t.DestinationPort) > 0 {
		for _, proto := range t.Protocol {
			name, err := doc.services.GetOrCreate(t.Name, proto, t.DestinationPort)
			if err != nil {
				return nil, err
			}
			services = append(services, name)
		}
	}

	// Every non-ICMP protocol needs an application: igmp and sctp map
	// to themselves, tcp and udp to any.
	for _, proto := range t.Protocol {
		switch proto {
		case "icmp", "icmpv6":
		case "igmp", "sctp":
			if !containsString(apps, proto) {
				apps = append(apps, proto)
			}
		case "tcp", "udp":
			if !containsString(apps, "any") {
				apps = append(apps, "any")
			}
		}
	}

	action, ok := panActions[t.Action]
	if !ok {
		return nil, fmt.Errorf("%w: term %q has no usable action", ErrUnsupportedFilter, t.Name)
	}

	disable, start, end := deriveLogging(t.Logging)
	return &Rule{
		Name:         t.Name,
		Description:  strings.Join(t.Comment, " "),
		FromZone:     spec.fromZone,
		ToZone:       spec.toZone,
		Source:       memberTokens(ruleSrc),
		Destination:  memberTokens(ruleDst),
		Services:     services,
		Applications: apps,
		Action:       action,
		LogDisable:   disable,
		LogStart:     start,
		LogEnd:       end,
	}, nil
}

// deriveLogging folds a term's logging directives into the rule's
// log switches. disable wins over everything else.
func deriveLogging(directives []policy.LogDirective) (disable, start, end bool) {
	for _, d := range directives {
		switch d {
		case policy.LogDisable:
			return true, false, false
		case policy.LogBoth:
			start = true
			end = true
		case policy.LogTrue, policy.LogSyslog, policy.LogLocal:
			end = true
		}
	}
	return false, start, end
}

// memberTokens collapses addresses into their sorted unique defining
// tokens, the names the rule references as address groups.
func memberTokens(nets []netutil.Net) []string {
	if len(nets) == 0 {
		return []string{"any"}
	}
	seen := make(map[string]bool)
	var tokens []string
	for _, n := range nets {
		if !seen[n.Token] {
			seen[n.Token] = true
			tokens = append(tokens, n.Token)
		}
	}
	sort.Strings(tokens)
	return tokens
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
