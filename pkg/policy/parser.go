package policy

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/psaab/panpol/pkg/netutil"
)

// Parser builds a Policy from lexer tokens, resolving symbolic address
// and service tokens through a Resolver as it goes.
type Parser struct {
	lex  *Lexer
	defs Resolver
	buf  []Token
}

// NewParser creates a Parser over the given source text.
func NewParser(src string, defs Resolver) *Parser {
	return &Parser{lex: NewLexer(src), defs: defs}
}

// Parse parses a complete policy source string.
func Parse(src string, defs Resolver) (*Policy, error) {
	return NewParser(src, defs).Parse()
}

// ParseFile reads and parses a policy file.
func ParseFile(path string, defs Resolver) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(string(data), defs)
}

// Parse consumes the token stream and returns the policy.
func (p *Parser) Parse() (*Policy, error) {
	pol := &Policy{}
	for {
		tok := p.next()
		switch {
		case tok.Type == TokenEOF:
			if len(pol.Filters) == 0 {
				return nil, &ParseError{Line: tok.Line, Column: tok.Column, Msg: "no header block found"}
			}
			return pol, nil
		case tok.Type == TokenIdentifier && tok.Value == "header":
			hdr, err := p.parseHeader(tok)
			if err != nil {
				return nil, err
			}
			terms, err := p.parseTerms()
			if err != nil {
				return nil, err
			}
			pol.Filters = append(pol.Filters, Filter{Header: hdr, Terms: terms})
		default:
			return nil, p.errorf(tok, "expected 'header', got %s", tok)
		}
	}
}

func (p *Parser) parseHeader(at Token) (*Header, error) {
	if err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	hdr := &Header{}
	for {
		tok := p.next()
		switch tok.Type {
		case TokenRBrace:
			if len(hdr.Targets) == 0 {
				return nil, p.errorf(at, "header has no target")
			}
			return hdr, nil
		case TokenIdentifier:
			keyword := tok
			if err := p.expect(TokenKeywordSep); err != nil {
				return nil, err
			}
			values, err := p.readValues()
			if err != nil {
				return nil, err
			}
			switch keyword.Value {
			case "comment":
				hdr.Comment = append(hdr.Comment, values...)
			case "target":
				if len(values) == 0 {
					return nil, p.errorf(keyword, "target needs a platform name")
				}
				hdr.Targets = append(hdr.Targets, Target{
					Platform: values[0],
					Options:  values[1:],
				})
			default:
				return nil, p.errorf(keyword, "unknown header keyword %q", keyword.Value)
			}
		default:
			return nil, p.errorf(tok, "expected keyword or '}', got %s", tok)
		}
	}
}

// parseTerms reads term blocks until the next header or EOF.
func (p *Parser) parseTerms() ([]*Term, error) {
	var terms []*Term
	for {
		tok := p.peek(0)
		if tok.Type != TokenIdentifier || tok.Value != "term" {
			return terms, nil
		}
		p.next()
		name := p.next()
		if name.Type != TokenIdentifier {
			return nil, p.errorf(name, "expected term name, got %s", name)
		}
		term, err := p.parseTerm(name)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
}

func (p *Parser) parseTerm(name Token) (*Term, error) {
	if err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	term := &Term{Name: name.Value}
	var (
		srcTokens, dstTokens   []string
		srcExcl, dstExcl       []string
		srcPortTok, dstPortTok []string
	)
	for {
		tok := p.next()
		switch tok.Type {
		case TokenRBrace:
			if term.Action == ActionUnspecified {
				return nil, p.errorf(name, "term %q has no action", term.Name)
			}
			if err := p.resolveTerm(term, name,
				srcTokens, dstTokens, srcExcl, dstExcl, srcPortTok, dstPortTok); err != nil {
				return nil, err
			}
			return term, nil
		case TokenIdentifier:
			keyword := tok
			if err := p.expect(TokenKeywordSep); err != nil {
				return nil, err
			}
			values, err := p.readValues()
			if err != nil {
				return nil, err
			}
			if err := p.termStatement(term, keyword, values,
				&srcTokens, &dstTokens, &srcExcl, &dstExcl, &srcPortTok, &dstPortTok); err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf(tok, "expected keyword or '}', got %s", tok)
		}
	}
}

func (p *Parser) termStatement(term *Term, keyword Token, values []string,
	srcTokens, dstTokens, srcExcl, dstExcl, srcPortTok, dstPortTok *[]string) error {
	switch keyword.Value {
	case "comment":
		term.Comment = append(term.Comment, values...)
	case "owner":
		if len(values) != 1 {
			return p.errorf(keyword, "owner takes one value")
		}
		term.Owner = values[0]
	case "source-address":
		*srcTokens = append(*srcTokens, values...)
	case "destination-address":
		*dstTokens = append(*dstTokens, values...)
	case "source-exclude":
		*srcExcl = append(*srcExcl, values...)
	case "destination-exclude":
		*dstExcl = append(*dstExcl, values...)
	case "protocol":
		if len(values) == 0 {
			return p.errorf(keyword, "protocol needs at least one value")
		}
		term.Protocol = append(term.Protocol, values...)
	case "source-port":
		*srcPortTok = append(*srcPortTok, values...)
	case "destination-port":
		*dstPortTok = append(*dstPortTok, values...)
	case "icmp-type":
		for _, v := range values {
			if !KnownICMPType(v) {
				return p.errorf(keyword, "unknown icmp-type %q", v)
			}
			term.ICMPType = append(term.ICMPType, v)
		}
	case "pan-application":
		term.PanApplication = append(term.PanApplication, values...)
	case "action":
		if len(values) != 1 {
			return p.errorf(keyword, "action takes one value")
		}
		a, ok := ParseAction(values[0])
		if !ok {
			return p.errorf(keyword, "unknown action %q", values[0])
		}
		if term.Action != ActionUnspecified {
			return p.errorf(keyword, "term %q has more than one action", term.Name)
		}
		term.Action = a
	case "option":
		for _, v := range values {
			if v != OptEstablished && v != OptTCPEstablished {
				return p.errorf(keyword, "unknown option %q", v)
			}
			term.Options = append(term.Options, v)
		}
	case "logging":
		for _, v := range values {
			d, ok := ParseLogDirective(v)
			if !ok {
				return p.errorf(keyword, "unknown logging keyword %q", v)
			}
			term.Logging = append(term.Logging, d)
		}
	case "timeout":
		if len(values) != 1 {
			return p.errorf(keyword, "timeout takes one value")
		}
		n, err := strconv.Atoi(values[0])
		if err != nil || n < 0 {
			return p.errorf(keyword, "bad timeout %q", values[0])
		}
		term.Timeout = n
	case "expiration":
		if len(values) != 1 {
			return p.errorf(keyword, "expiration takes one value")
		}
		t, err := time.Parse("2006-1-2", values[0])
		if err != nil {
			return p.errorf(keyword, "bad expiration date %q", values[0])
		}
		term.Expiration = &t
	case "stateless-reply":
		if len(values) != 1 || values[0] != "true" {
			return p.errorf(keyword, "stateless-reply takes the value true")
		}
		term.StatelessReply = true
	default:
		return p.errorf(keyword, "unknown keyword %q in term %q", keyword.Value, term.Name)
	}
	return nil
}

// resolveTerm turns the collected symbolic tokens into concrete
// addresses and port pairs. Runs once the whole block is read, because
// port resolution needs the term's protocol list.
func (p *Parser) resolveTerm(term *Term, at Token,
	srcTokens, dstTokens, srcExcl, dstExcl, srcPortTok, dstPortTok []string) error {
	if p.defs == nil {
		if len(srcTokens)+len(dstTokens)+len(srcExcl)+len(dstExcl)+
			len(srcPortTok)+len(dstPortTok) > 0 {
			return p.errorf(at, "term %q references symbolic names but no definitions are loaded", term.Name)
		}
		return nil
	}
	var err error
	if term.SourceAddress, err = p.resolveNets(at, term.Name, srcTokens); err != nil {
		return err
	}
	if term.DestinationAddress, err = p.resolveNets(at, term.Name, dstTokens); err != nil {
		return err
	}
	if term.SourceExclude, err = p.resolveNets(at, term.Name, srcExcl); err != nil {
		return err
	}
	if term.DestinationExclude, err = p.resolveNets(at, term.Name, dstExcl); err != nil {
		return err
	}
	if term.SourcePort, err = p.resolvePorts(at, term, srcPortTok); err != nil {
		return err
	}
	if term.DestinationPort, err = p.resolvePorts(at, term, dstPortTok); err != nil {
		return err
	}
	return nil
}

func (p *Parser) resolveNets(at Token, termName string, tokens []string) ([]netutil.Net, error) {
	var nets []netutil.Net
	for _, tok := range tokens {
		resolved, err := p.defs.GetNetAddr(tok)
		if err != nil {
			return nil, p.errorf(at, "term %q: %v", termName, err)
		}
		for _, n := range resolved {
			nets = append(nets, n.WithToken(tok))
		}
	}
	return nets, nil
}

// resolvePorts resolves service tokens against every protocol the term
// names, deduplicating identical pairs while keeping first-seen order.
func (p *Parser) resolvePorts(at Token, term *Term, tokens []string) ([][2]int, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if len(term.Protocol) == 0 {
		return nil, p.errorf(at, "term %q names ports but no protocol", term.Name)
	}
	var (
		ports [][2]int
		seen  = make(map[[2]int]bool)
	)
	for _, tok := range tokens {
		for _, proto := range term.Protocol {
			pairs, err := p.defs.GetServiceByProto(tok, proto)
			if err != nil {
				return nil, p.errorf(at, "term %q: %v", term.Name, err)
			}
			for _, pr := range pairs {
				if seen[pr] {
					continue
				}
				seen[pr] = true
				ports = append(ports, pr)
			}
		}
	}
	return ports, nil
}

// readValues collects statement values: identifiers and quoted strings
// up to the next keyword (an identifier followed by '::'), '}', or EOF.
func (p *Parser) readValues() ([]string, error) {
	var values []string
	for {
		tok := p.peek(0)
		switch tok.Type {
		case TokenString:
			p.next()
			values = append(values, tok.Value)
		case TokenIdentifier:
			if p.peek(1).Type == TokenKeywordSep {
				return values, nil
			}
			p.next()
			values = append(values, tok.Value)
		case TokenError:
			return nil, p.errorf(tok, "%s", tok.Value)
		default:
			return values, nil
		}
	}
}

func (p *Parser) next() Token {
	if len(p.buf) > 0 {
		tok := p.buf[0]
		p.buf = p.buf[1:]
		return tok
	}
	return p.lex.Next()
}

func (p *Parser) peek(n int) Token {
	for len(p.buf) <= n {
		p.buf = append(p.buf, p.lex.Next())
	}
	return p.buf[n]
}

func (p *Parser) expect(want TokenType) error {
	tok := p.next()
	if tok.Type != want {
		return p.errorf(tok, "expected %s, got %s", want, tok)
	}
	return nil
}

func (p *Parser) errorf(tok Token, format string, args ...any) error {
	return &ParseError{
		Line:   tok.Line,
		Column: tok.Column,
		Msg:    fmt.Sprintf(format, args...),
	}
}
