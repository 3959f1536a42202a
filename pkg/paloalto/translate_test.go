package paloalto

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/psaab/panpol/pkg/netutil"
	"github.com/psaab/panpol/pkg/policy"
)

const goodHeader = `
header {
  comment:: "This is a test acl with a comment"
  target:: paloalto from-zone trust to-zone untrust
}
`

const goodHeaderMixed = `
header {
  target:: paloalto from-zone trust to-zone untrust mixed
}
`

const goodHeaderInet6 = `
header {
  target:: paloalto from-zone trust to-zone untrust inet6
}
`

const goodTerm1 = `
term good-term-1 {
  comment:: "This header is very very very very very very very very very very very very very very very very very very very very large"
  destination-address:: FOOBAR
  destination-port:: SMTP
  protocol:: tcp
  action:: accept
}
`

const icmpTypeTerm = `
term test-icmp {
  protocol:: icmp
  icmp-type:: echo-request echo-reply
  action:: accept
}
`

const icmpOnlyTerm = `
term test-icmp-only {
  protocol:: icmp
  action:: accept
}
`

const ipv6ICMPTerm = `
term test-ipv6-icmp {
  protocol:: icmpv6
  action:: accept
}
`

const defaultTerm = `
term default-term-1 {
  action:: deny
}
`

type stubResolver struct {
	nets  map[string][]string
	ports map[string]map[string][][2]int
}

func (r *stubResolver) GetNetAddr(token string) ([]netutil.Net, error) {
	specs, ok := r.nets[token]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", token)
	}
	out := make([]netutil.Net, 0, len(specs))
	for _, s := range specs {
		out = append(out, netutil.MustParseNet(s))
	}
	return out, nil
}

func (r *stubResolver) GetServiceByProto(token, protocol string) ([][2]int, error) {
	svc, ok := r.ports[token]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", token)
	}
	return svc[protocol], nil
}

func testResolver() *stubResolver {
	return &stubResolver{
		nets: map[string][]string{
			"FOOBAR":    {"10.0.0.0/8", "2001:4860:8000::/33"},
			"SOME_HOST": {"10.0.1.1/32"},
			"INTERNAL":  {"10.0.0.0/24"},
			"EXCLUDED":  {"10.0.0.0/26"},
		},
		ports: map[string]map[string][][2]int{
			"SMTP": {"tcp": {{25, 25}}},
			"DNS":  {"tcp": {{53, 53}}, "udp": {{53, 53}}},
		},
	}
}

func mustTranslate(t *testing.T, src string) *Document {
	t.Helper()
	pol, err := policy.NewParser(src, testResolver()).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tr := NewTranslator(Options{
		Logger: discardLogger(),
		Now:    func() time.Time { return time.Date(2016, 1, 1, 12, 0, 0, 0, time.UTC) },
	})
	doc, err := tr.Translate(pol)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	return doc
}

func render(t *testing.T, src string) string {
	t.Helper()
	return mustTranslate(t, src).Render()
}

func translateErr(t *testing.T, src string) error {
	t.Helper()
	pol, err := policy.NewParser(src, testResolver()).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tr := NewTranslator(Options{
		Logger: discardLogger(),
		Now:    func() time.Time { return time.Date(2016, 1, 1, 12, 0, 0, 0, time.UTC) },
	})
	_, err = tr.Translate(pol)
	if err == nil {
		t.Fatal("translate succeeded, want error")
	}
	return err
}

func TestTermAndFilterName(t *testing.T) {
	output := render(t, goodHeader+goodTerm1)
	if !strings.Contains(output, `<entry name="good-term-1">`) {
		t.Errorf("missing rule entry:\n%s", output)
	}
}

func TestServiceCreation(t *testing.T) {
	output := render(t, goodHeader+goodTerm1)
	for _, want := range []string{
		`<entry name="service-good-term-1-tcp">`,
		"<port>25</port>",
		"<member>service-good-term-1-tcp</member>",
		"<tcp>",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in output:\n%s", want, output)
		}
	}
}

func TestAddressBookOutput(t *testing.T) {
	output := render(t, goodHeader+goodTerm1)
	for _, want := range []string{
		`<entry name="FOOBAR_0">`,
		"<ip-netmask>10.0.0.0/8</ip-netmask>",
		`<entry name="FOOBAR">`,
		"<member>FOOBAR_0</member>",
		"<member>FOOBAR</member>",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in output:\n%s", want, output)
		}
	}
	// The inet default excludes the token's IPv6 prefix.
	if strings.Contains(output, "2001:4860:8000::/33") {
		t.Errorf("IPv6 prefix should be excluded from inet filter:\n%s", output)
	}
}

func TestMixedFilterKeepsBothFamilies(t *testing.T) {
	output := render(t, goodHeaderMixed+goodTerm1)
	if !strings.Contains(output, "<ip-netmask>10.0.0.0/8</ip-netmask>") {
		t.Errorf("missing IPv4 address entry:\n%s", output)
	}
	if !strings.Contains(output, "<ip-netmask>2001:4860:8000::/33</ip-netmask>") {
		t.Errorf("missing IPv6 address entry:\n%s", output)
	}
}

func TestDefaultDeny(t *testing.T) {
	output := render(t, goodHeader+defaultTerm)
	if !strings.Contains(output, "<action>deny</action>") {
		t.Errorf("missing deny action:\n%s", output)
	}
}

func TestIcmpTypes(t *testing.T) {
	output := render(t, goodHeader+icmpTypeTerm)
	for _, want := range []string{
		"<member>icmp-echo-request</member>",
		"<member>icmp-echo-reply</member>",
		`<entry name="icmp-echo-request">`,
		`<entry name="icmp-echo-reply">`,
		"<type>8</type>",
		"<type>0</type>",
		"<risk>4</risk>",
		"<ident-by-icmp-type>",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in output:\n%s", want, output)
		}
	}
}

func TestIcmp6Types(t *testing.T) {
	src := goodHeaderInet6 + `
term test-icmp6 {
  protocol:: icmpv6
  icmp-type:: packet-too-big
  action:: accept
}
`
	output := render(t, src)
	for _, want := range []string{
		"<member>icmp6-packet-too-big</member>",
		`<entry name="icmp6-packet-too-big">`,
		"<type>2</type>",
		"<risk>2</risk>",
		"<ident-by-icmp6-type>",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in output:\n%s", want, output)
		}
	}
}

func TestICMPTypeWithoutProtocol(t *testing.T) {
	src := goodHeader + `
term test-icmp-type {
  icmp-type:: echo-request echo-reply
  action:: accept
}
`
	err := translateErr(t, src)
	if !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("err = %v, want ErrUnsupportedFilter", err)
	}
}

func TestICMPTypeWrongVersion(t *testing.T) {
	// packet-too-big exists only in the ICMPv6 table.
	src := goodHeader + `
term test-icmp {
  protocol:: icmp
  icmp-type:: packet-too-big
  action:: accept
}
`
	err := translateErr(t, src)
	if !errors.Is(err, ErrBadICMPType) {
		t.Fatalf("err = %v, want ErrBadICMPType", err)
	}
	if !strings.Contains(err.Error(), "packet-too-big") {
		t.Errorf("err %q does not name the bad type", err)
	}
}

func TestICMPProtocolOnly(t *testing.T) {
	output := render(t, goodHeader+icmpOnlyTerm)
	if !strings.Contains(output, "<member>icmp</member>") {
		t.Errorf("missing generic icmp application:\n%s", output)
	}
}

func TestIPv6ICMPOnly(t *testing.T) {
	output := render(t, goodHeaderInet6+ipv6ICMPTerm)
	if !strings.Contains(output, "<member>ipv6-icmp</member>") {
		t.Errorf("missing generic ipv6-icmp application:\n%s", output)
	}
}

func TestSkipStatelessReply(t *testing.T) {
	src := goodHeader + `
term good-term-stateless-reply {
  comment:: "ThisIsAStatelessReply"
  destination-address:: SOME_HOST
  protocol:: tcp
  stateless-reply:: true
  action:: accept
}
`
	output := render(t, src)
	if strings.Contains(output, "good-term-stateless-reply") {
		t.Errorf("stateless reply term should not render:\n%s", output)
	}
}

func TestSkipEstablished(t *testing.T) {
	src := goodHeader + `
term tcp-established-term {
  destination-address:: SOME_HOST
  protocol:: tcp
  option:: tcp-established
  action:: accept
}
term udp-established-term {
  destination-address:: SOME_HOST
  protocol:: udp
  option:: established
  action:: accept
}
`
	output := render(t, src)
	if strings.Contains(output, "tcp-established-term") {
		t.Errorf("tcp-established term should not render:\n%s", output)
	}
	if strings.Contains(output, "udp-established-term") {
		t.Errorf("established term should not render:\n%s", output)
	}
}

func TestExpiredTerm(t *testing.T) {
	src := goodHeader + `
term expired-test {
  expiration:: 2000-1-1
  action:: deny
}
`
	output := render(t, src)
	if strings.Contains(output, "expired-test") {
		t.Errorf("expired term should not render:\n%s", output)
	}
}

func TestExpiringTermStillRenders(t *testing.T) {
	// Inside the notice window but not yet expired.
	src := goodHeader + `
term is-expiring {
  expiration:: 2016-1-10
  action:: accept
}
`
	output := render(t, src)
	if !strings.Contains(output, `<entry name="is-expiring">`) {
		t.Errorf("expiring term should still render:\n%s", output)
	}
}

func TestLoggingBoth(t *testing.T) {
	src := goodHeader + `
term test-log-both {
  protocol:: tcp
  logging:: log-both
  action:: accept
}
`
	output := render(t, src)
	if !strings.Contains(output, "<log-start>yes</log-start>") {
		t.Errorf("missing log-start:\n%s", output)
	}
	if !strings.Contains(output, "<log-end>yes</log-end>") {
		t.Errorf("missing log-end:\n%s", output)
	}
}

func TestDisableLogging(t *testing.T) {
	src := goodHeader + `
term test-disabled-log {
  protocol:: tcp
  logging:: disable
  action:: accept
}
`
	output := render(t, src)
	if !strings.Contains(output, "<log-start>no</log-start>") {
		t.Errorf("missing log-start no:\n%s", output)
	}
	if !strings.Contains(output, "<log-end>no</log-end>") {
		t.Errorf("missing log-end no:\n%s", output)
	}
}

func TestLoggingEndOnly(t *testing.T) {
	for _, keyword := range []string{"syslog", "local", "true", "True"} {
		src := goodHeader + `
term test-log {
  protocol:: udp
  logging:: ` + keyword + `
  action:: accept
}
`
		output := render(t, src)
		if strings.Contains(output, "<log-start>yes</log-start>") {
			t.Errorf("logging:: %s should not enable log-start:\n%s", keyword, output)
		}
		if !strings.Contains(output, "<log-end>yes</log-end>") {
			t.Errorf("logging:: %s should enable log-end:\n%s", keyword, output)
		}
	}
}

func TestActions(t *testing.T) {
	tests := []struct {
		action string
		want   string
	}{
		{"accept", "<action>allow</action>"},
		{"deny", "<action>deny</action>"},
		{"reject", "<action>reset-client</action>"},
		{"reject-with-tcp-rst", "<action>reset-client</action>"},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			src := goodHeader + `
term test-action {
  protocol:: tcp
  action:: ` + tt.action + `
}
`
			output := render(t, src)
			if !strings.Contains(output, tt.want) {
				t.Errorf("action %q: missing %q:\n%s", tt.action, tt.want, output)
			}
		})
	}
}

func TestUnsupportedProtocol(t *testing.T) {
	src := goodHeader + `
term test-gre {
  protocol:: gre
  action:: accept
}
`
	err := translateErr(t, src)
	if !errors.Is(err, ErrUnsupportedProtocol) {
		t.Fatalf("err = %v, want ErrUnsupportedProtocol", err)
	}
}

func TestDuplicateTermName(t *testing.T) {
	src := goodHeader + defaultTerm + defaultTerm
	err := translateErr(t, src)
	if !errors.Is(err, ErrDuplicateTerm) {
		t.Fatalf("err = %v, want ErrDuplicateTerm", err)
	}
}

func TestTermNameTooLong(t *testing.T) {
	src := goodHeader + `
term this-term-name-is-too-long-to-render {
  action:: deny
}
`
	err := translateErr(t, src)
	if !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("err = %v, want ErrNameTooLong", err)
	}
}

func TestHeaderValidation(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   error
	}{
		{
			name: "missing zones",
			header: `
header {
  target:: paloalto from-zone trust
}
`,
			want: ErrUnsupportedFilter,
		},
		{
			name: "misordered arguments",
			header: `
header {
  target:: paloalto to-zone untrust from-zone trust
}
`,
			want: ErrUnsupportedFilter,
		},
		{
			name: "unknown address family",
			header: `
header {
  target:: paloalto from-zone trust to-zone untrust bridge
}
`,
			want: ErrUnsupportedHeader,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateErr(t, tt.header+defaultTerm)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInterzoneMarker(t *testing.T) {
	output := render(t, goodHeader+defaultTerm)
	if !strings.Contains(output, "<rule-type>interzone</rule-type>") {
		t.Errorf("missing interzone marker:\n%s", output)
	}

	intrazone := `
header {
  target:: paloalto from-zone trust to-zone trust
}
`
	output = render(t, intrazone+defaultTerm)
	if strings.Contains(output, "<rule-type>interzone</rule-type>") {
		t.Errorf("unexpected interzone marker for same zones:\n%s", output)
	}
}

func TestApplicationDefault(t *testing.T) {
	src := goodHeader + `
term only-pan-app {
  pan-application:: ssl
  action:: accept
}
`
	output := render(t, src)
	if !strings.Contains(output, "<member>application-default</member>") {
		t.Errorf("missing application-default service:\n%s", output)
	}
	if !strings.Contains(output, "<member>ssl</member>") {
		t.Errorf("missing pan application member:\n%s", output)
	}
}

func TestGenericApplications(t *testing.T) {
	src := goodHeader + `
term multi-proto {
  protocol:: tcp udp icmp
  action:: accept
}
`
	output := render(t, src)
	if !strings.Contains(output, "<member>icmp</member>") {
		t.Errorf("missing icmp application:\n%s", output)
	}
	if strings.Count(output, "<member>any</member>") < 1 {
		t.Errorf("missing any application:\n%s", output)
	}

	src = goodHeader + `
term sctp-term {
  protocol:: sctp
  action:: accept
}
`
	output = render(t, src)
	if !strings.Contains(output, "<member>sctp</member>") {
		t.Errorf("missing sctp application:\n%s", output)
	}
}

func TestServiceDedupAcrossTerms(t *testing.T) {
	src := goodHeader + `
term term-a {
  destination-address:: SOME_HOST
  destination-port:: SMTP
  protocol:: tcp
  action:: accept
}
term term-b {
  destination-address:: INTERNAL
  destination-port:: SMTP
  protocol:: tcp
  action:: accept
}
`
	output := render(t, src)
	if got := strings.Count(output, `<entry name="service-`); got != 1 {
		t.Errorf("service entries = %d, want 1:\n%s", got, output)
	}
	if strings.Contains(output, "service-term-b-tcp") {
		t.Errorf("second term should reuse the first service:\n%s", output)
	}
	if got := strings.Count(output, "<member>service-term-a-tcp</member>"); got != 2 {
		t.Errorf("service member references = %d, want 2:\n%s", got, output)
	}
}

func TestSourceExclusion(t *testing.T) {
	src := goodHeader + `
term carve-out {
  source-address:: INTERNAL
  source-exclude:: EXCLUDED
  protocol:: tcp
  action:: accept
}
`
	output := render(t, src)
	if strings.Contains(output, "<ip-netmask>10.0.0.0/24</ip-netmask>") {
		t.Errorf("excluded range should be carved out:\n%s", output)
	}
	for _, want := range []string{
		"<ip-netmask>10.0.0.64/26</ip-netmask>",
		"<ip-netmask>10.0.0.128/25</ip-netmask>",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "<ip-netmask>10.0.0.0/26</ip-netmask>") {
		t.Errorf("excluded subnet must not appear:\n%s", output)
	}
}

func TestMultipleHeaders(t *testing.T) {
	second := `
header {
  target:: paloalto from-zone untrust to-zone dmz
}
term second-term {
  protocol:: udp
  action:: deny
}
`
	output := render(t, goodHeader+defaultTerm+second)
	first := strings.Index(output, `<entry name="default-term-1">`)
	next := strings.Index(output, `<entry name="second-term">`)
	if first < 0 || next < 0 {
		t.Fatalf("missing rules:\n%s", output)
	}
	if first > next {
		t.Errorf("rules out of header order:\n%s", output)
	}
	if !strings.Contains(output, "<member>dmz</member>") {
		t.Errorf("missing dmz zone member:\n%s", output)
	}
}

func TestTranslateStats(t *testing.T) {
	src := goodHeader + goodTerm1 + `
term expired-stat {
  expiration:: 2000-1-1
  action:: deny
}
`
	doc := mustTranslate(t, src)
	if doc.Stats.Filters != 1 {
		t.Errorf("Filters = %d, want 1", doc.Stats.Filters)
	}
	if doc.Stats.Terms != 2 {
		t.Errorf("Terms = %d, want 2", doc.Stats.Terms)
	}
	if doc.Stats.Rules != 1 {
		t.Errorf("Rules = %d, want 1", doc.Stats.Rules)
	}
	if doc.Stats.DroppedTerms != 1 {
		t.Errorf("DroppedTerms = %d, want 1", doc.Stats.DroppedTerms)
	}
	if doc.Stats.Services != 1 {
		t.Errorf("Services = %d, want 1", doc.Stats.Services)
	}
	if doc.Stats.Addresses != 1 {
		t.Errorf("Addresses = %d, want 1", doc.Stats.Addresses)
	}
}

func TestNonPaloAltoHeaderSkipped(t *testing.T) {
	src := `
header {
  target:: juniper edge-filter
}
term other-platform {
  action:: deny
}
`
	doc := mustTranslate(t, src)
	if len(doc.Rules) != 0 {
		t.Errorf("Rules = %d, want 0", len(doc.Rules))
	}
	if doc.Stats.Filters != 0 {
		t.Errorf("Filters = %d, want 0", doc.Stats.Filters)
	}
}
