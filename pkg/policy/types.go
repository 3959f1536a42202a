// Package policy implements the vendor-neutral security policy language:
// the data model for headers and terms, the lexer and parser for the
// policy source format, and the ICMP type tables shared by generators.
package policy

import (
	"fmt"
	"time"

	"github.com/psaab/panpol/pkg/netutil"
)

// Action is the disposition a term applies to matching traffic.
type Action int

const (
	ActionUnspecified Action = iota
	ActionAccept
	ActionDeny
	ActionReject
	ActionRejectWithTCPRST
)

var actionNames = map[Action]string{
	ActionAccept:           "accept",
	ActionDeny:             "deny",
	ActionReject:           "reject",
	ActionRejectWithTCPRST: "reject-with-tcp-rst",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unspecified"
}

// ParseAction maps an action keyword to its Action value.
func ParseAction(s string) (Action, bool) {
	for a, name := range actionNames {
		if s == name {
			return a, true
		}
	}
	return ActionUnspecified, false
}

// LogDirective is one logging keyword on a term. A term may carry
// several.
type LogDirective int

const (
	LogTrue LogDirective = iota
	LogDisable
	LogBoth
	LogSyslog
	LogLocal
)

func (d LogDirective) String() string {
	switch d {
	case LogTrue:
		return "true"
	case LogDisable:
		return "disable"
	case LogBoth:
		return "log-both"
	case LogSyslog:
		return "syslog"
	case LogLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ParseLogDirective maps a logging keyword to its LogDirective value.
// "True" is accepted alongside "true" for compatibility with older
// policy files.
func ParseLogDirective(s string) (LogDirective, bool) {
	switch s {
	case "true", "True":
		return LogTrue, true
	case "disable":
		return LogDisable, true
	case "log-both":
		return LogBoth, true
	case "syslog":
		return LogSyslog, true
	case "local":
		return LogLocal, true
	default:
		return 0, false
	}
}

// Term options understood by the language.
const (
	OptEstablished    = "established"
	OptTCPEstablished = "tcp-established"
)

// Target names one platform a header renders for, with the
// platform-specific option words that followed it.
type Target struct {
	Platform string
	Options  []string
}

// Header introduces a filter: one or more platform targets plus the
// options each target carries.
type Header struct {
	Comment []string
	Targets []Target
}

// HasPlatform reports whether the header targets the given platform.
func (h *Header) HasPlatform(platform string) bool {
	for _, t := range h.Targets {
		if t.Platform == platform {
			return true
		}
	}
	return false
}

// FilterOptions returns the option words for the given platform, or nil
// when the header does not target it.
func (h *Header) FilterOptions(platform string) []string {
	for _, t := range h.Targets {
		if t.Platform == platform {
			return t.Options
		}
	}
	return nil
}

// Term is one policy statement. Addresses arrive resolved to concrete
// network objects; ports to inclusive (low, high) pairs.
type Term struct {
	Name               string
	Comment            []string
	Owner              string
	SourceAddress      []netutil.Net
	SourceExclude      []netutil.Net
	DestinationAddress []netutil.Net
	DestinationExclude []netutil.Net
	Protocol           []string
	SourcePort         [][2]int
	DestinationPort    [][2]int
	PanApplication     []string
	ICMPType           []string
	Action             Action
	Options            []string
	Logging            []LogDirective
	Timeout            int
	Expiration         *time.Time
	StatelessReply     bool
}

// HasProtocol reports whether the term's protocol set names proto.
func (t *Term) HasProtocol(proto string) bool {
	for _, p := range t.Protocol {
		if p == proto {
			return true
		}
	}
	return false
}

// HasOption reports whether the term carries the given option flag.
func (t *Term) HasOption(opt string) bool {
	for _, o := range t.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// Filter is one header plus its terms, in declaration order.
type Filter struct {
	Header *Header
	Terms  []*Term
}

// Policy is a parsed policy file: filters in file order.
type Policy struct {
	Filters []Filter
}

// Resolver supplies symbolic name resolution to the parser. The naming
// package provides the production implementation.
type Resolver interface {
	GetNetAddr(token string) ([]netutil.Net, error)
	GetServiceByProto(token, protocol string) ([][2]int, error)
}

// ParseError reports a syntax or reference error with its position in
// the policy source.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}
