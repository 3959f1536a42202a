package paloalto

import (
	"log/slog"

	"github.com/psaab/panpol/pkg/netutil"
	"github.com/psaab/panpol/pkg/policy"
)

// FilterType selects which address families a filter emits.
type FilterType int

const (
	FilterInet FilterType = iota
	FilterInet6
	FilterMixed
)

var filterTypeNames = map[FilterType]string{
	FilterInet:  "inet",
	FilterInet6: "inet6",
	FilterMixed: "mixed",
}

func (ft FilterType) String() string {
	if s, ok := filterTypeNames[ft]; ok {
		return s
	}
	return "unknown"
}

// ParseFilterType maps a header option to a FilterType.
func ParseFilterType(s string) (FilterType, bool) {
	switch s {
	case "inet":
		return FilterInet, true
	case "inet6":
		return FilterInet6, true
	case "mixed":
		return FilterMixed, true
	}
	return FilterInet, false
}

// Flow tags describe which source/destination family combinations a
// term can match, given its resolved addresses. An empty address list
// on either side matches any family.
type Flow string

const (
	FlowIP4IP4     Flow = "ip4-ip4"
	FlowIP6IP6     Flow = "ip6-ip6"
	FlowIP4SrcOnly Flow = "ip4-src-only"
	FlowIP4DstOnly Flow = "ip4-dst-only"
	FlowIP4Only    Flow = "ip4-only"
	FlowIP6SrcOnly Flow = "ip6-src-only"
	FlowIP6DstOnly Flow = "ip6-dst-only"
	FlowIP6Only    Flow = "ip6-only"
)

type flowSet map[Flow]bool

func (s flowSet) add(f Flow) { s[f] = true }

func (s flowSet) has(f Flow) bool { return s[f] }

func (s flowSet) list() []string {
	out := make([]string, 0, len(s))
	for _, f := range []Flow{
		FlowIP4IP4, FlowIP6IP6,
		FlowIP4SrcOnly, FlowIP4DstOnly, FlowIP4Only,
		FlowIP6SrcOnly, FlowIP6DstOnly, FlowIP6Only,
	} {
		if s[f] {
			out = append(out, string(f))
		}
	}
	return out
}

func countFamily(nets []netutil.Net, version int) int {
	n := 0
	for _, net := range nets {
		if net.Version() == version {
			n++
		}
	}
	return n
}

// computeFlows derives the flow tags for a term's resolved source and
// destination addresses.
func computeFlows(src, dst []netutil.Net) flowSet {
	srcAny := len(src) == 0
	dstAny := len(dst) == 0
	flows := flowSet{}
	for _, v := range []int{4, 6} {
		dual, srcOnly, dstOnly, only := FlowIP4IP4, FlowIP4SrcOnly, FlowIP4DstOnly, FlowIP4Only
		if v == 6 {
			dual, srcOnly, dstOnly, only = FlowIP6IP6, FlowIP6SrcOnly, FlowIP6DstOnly, FlowIP6Only
		}
		if srcAny && dstAny {
			flows.add(dual)
			continue
		}
		srcN := countFamily(src, v)
		dstN := countFamily(dst, v)
		switch {
		case (srcN > 0 || srcAny) && (dstN > 0 || dstAny):
			flows.add(dual)
		case (srcN > 0 || srcAny) && dstN == 0:
			flows.add(srcOnly)
			flows.add(only)
		case srcN == 0 && (dstN > 0 || dstAny):
			flows.add(dstOnly)
			flows.add(only)
		}
	}
	return flows
}

// familyResult is the outcome of address family resolution for one
// term: either the term is dropped, or translation continues with the
// listed IP versions excluded from address book and rule emission.
type familyResult struct {
	drop    bool
	exclude []int
	flows   flowSet
}

func (r familyResult) excludes(version int) bool {
	for _, v := range r.exclude {
		if v == version {
			return true
		}
	}
	return false
}

// resolveAddressFamilies gates a term against the filter's address
// family mode. Terms that cannot match any traffic under the mode are
// dropped with a warning; terms that partially match have the
// unmatchable family excluded.
func resolveAddressFamilies(log *slog.Logger, term *policy.Term, src, dst []netutil.Net, ft FilterType) familyResult {
	flows := computeFlows(src, dst)
	res := familyResult{flows: flows}

	switch ft {
	case FilterInet:
		if term.HasProtocol("icmpv6") {
			log.Warn("term dropped: icmpv6 protocol is not supported in inet filters",
				"term", term.Name)
			res.drop = true
			return res
		}
		if !flows.has(FlowIP4IP4) {
			log.Warn("term dropped: no ip4-ip4 flow in inet filter",
				"term", term.Name, "flows", flows.list())
			res.drop = true
			return res
		}
		res.exclude = []int{6}
	case FilterInet6:
		if term.HasProtocol("icmp") {
			log.Warn("term dropped: icmp protocol is not supported in inet6 filters",
				"term", term.Name)
			res.drop = true
			return res
		}
		if !flows.has(FlowIP6IP6) {
			log.Warn("term dropped: no ip6-ip6 flow in inet6 filter",
				"term", term.Name, "flows", flows.list())
			res.drop = true
			return res
		}
		res.exclude = []int{4}
	case FilterMixed:
		switch {
		case flows.has(FlowIP4IP4) && !flows.has(FlowIP6IP6):
			res.exclude = []int{6}
		case flows.has(FlowIP6IP6) && !flows.has(FlowIP4IP4):
			res.exclude = []int{4}
		case flows.has(FlowIP4IP4) && flows.has(FlowIP6IP6):
		case flows.has(FlowIP4Only) && flows.has(FlowIP6Only):
			log.Warn("term dropped: source and destination address families do not overlap",
				"term", term.Name, "flows", flows.list())
			res.drop = true
			return res
		default:
			log.Warn("term has a partial address family mismatch",
				"term", term.Name, "flows", flows.list())
			if flows.has(FlowIP4IP4) {
				res.exclude = []int{6}
			} else {
				res.exclude = []int{4}
			}
		}
	}
	return res
}
