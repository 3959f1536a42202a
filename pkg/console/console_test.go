package console

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/psaab/panpol/pkg/naming"
)

const testDefs = `
networks:
  RFC1918:
    values: [10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16]
    comment: private address space
  MAILSERVER:
    values: [10.1.1.1]
services:
  SMTP:
    - port: 25
      protocol: tcp
`

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer) {
	t.Helper()
	defs, err := naming.ParseBytes([]byte(testDefs))
	if err != nil {
		t.Fatalf("parse definitions: %v", err)
	}
	c := New(defs, 2)
	var buf bytes.Buffer
	c.out = &buf
	return c, &buf
}

func TestShowNetworksList(t *testing.T) {
	c, buf := newTestConsole(t)
	if err := c.Dispatch("show networks"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "RFC1918") || !strings.Contains(got, "MAILSERVER") {
		t.Errorf("missing tokens in listing: %q", got)
	}
}

func TestShowNetworkDetail(t *testing.T) {
	c, buf := newTestConsole(t)
	if err := c.Dispatch("show networks RFC1918"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "# private address space") {
		t.Errorf("missing comment: %q", got)
	}
	if !strings.Contains(got, "10.0.0.0/8") {
		t.Errorf("missing value: %q", got)
	}
}

func TestShowServiceDetail(t *testing.T) {
	c, buf := newTestConsole(t)
	if err := c.Dispatch("show services SMTP"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(buf.String(), "25/tcp") {
		t.Errorf("missing port/protocol: %q", buf.String())
	}
}

func TestShowUndefinedToken(t *testing.T) {
	c, _ := newTestConsole(t)
	if err := c.Dispatch("show networks NOPE"); err == nil {
		t.Error("expected error for undefined token")
	}
}

func TestResolve(t *testing.T) {
	c, buf := newTestConsole(t)
	if err := c.Dispatch("resolve MAILSERVER"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(buf.String(), "10.1.1.1/32") {
		t.Errorf("resolve output = %q", buf.String())
	}
}

func TestGrep(t *testing.T) {
	c, buf := newTestConsole(t)
	if err := c.Dispatch("grep 10.1.1.1"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "RFC1918") || !strings.Contains(got, "MAILSERVER") {
		t.Errorf("grep output = %q", got)
	}

	buf.Reset()
	if err := c.Dispatch("grep 8.8.8.8"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(buf.String(), "no token contains") {
		t.Errorf("grep miss output = %q", buf.String())
	}
}

func TestGrepRejectsNonIP(t *testing.T) {
	c, _ := newTestConsole(t)
	if err := c.Dispatch("grep not-an-ip"); err == nil {
		t.Error("expected error for non-IP argument")
	}
}

func TestCompile(t *testing.T) {
	c, buf := newTestConsole(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.pol")
	pol := `
header {
  target:: paloalto from-zone trust to-zone untrust
}
term allow-smtp {
  destination-address:: MAILSERVER
  destination-port:: SMTP
  protocol:: tcp
  action:: accept
}
`
	if err := os.WriteFile(path, []byte(pol), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := c.Dispatch("compile " + path); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, `<entry name="allow-smtp">`) {
		t.Errorf("missing rule entry: %q", got)
	}
	if !strings.Contains(got, "service-allow-smtp-tcp") {
		t.Errorf("missing generated service: %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	c, _ := newTestConsole(t)
	if err := c.Dispatch("frobnicate"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestExit(t *testing.T) {
	c, _ := newTestConsole(t)
	if err := c.Dispatch("exit"); err != errExit {
		t.Errorf("Dispatch(exit) = %v, want errExit", err)
	}
}
