// Package console implements the interactive definitions console for
// panpol: a readline loop for exploring the symbolic name database and
// compiling policies ad hoc.
package console

import (
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/psaab/panpol/pkg/cmdtree"
	"github.com/psaab/panpol/pkg/naming"
	"github.com/psaab/panpol/pkg/paloalto"
	"github.com/psaab/panpol/pkg/policy"
)

// Console is the interactive definitions console.
type Console struct {
	rl       *readline.Instance
	defs     *naming.Definitions
	expWeeks int
	out      io.Writer
}

// New creates a console over the given definitions. expWeeks is passed
// through to the translator for the compile command.
func New(defs *naming.Definitions, expWeeks int) *Console {
	return &Console{
		defs:     defs,
		expWeeks: expWeeks,
		out:      os.Stdout,
	}
}

// historyFile returns the readline history path under the user cache
// dir, or empty if no cache dir is available.
func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "panpol")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "console_history")
}

// Run starts the interactive loop and blocks until exit or EOF.
func (c *Console) Run() error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "panpol> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    &completer{c: c},
		Listener:        readline.FuncListener(c.helpListener),
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer c.rl.Close()
	c.out = c.rl.Stdout()

	fmt.Fprintln(c.out, "panpol definitions console")
	fmt.Fprintln(c.out, "Type '?' for help")
	fmt.Fprintln(c.out)

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.Dispatch(line); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

var errExit = fmt.Errorf("exit")

// Dispatch executes one console command line.
func (c *Console) Dispatch(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "show":
		return c.handleShow(parts[1:])

	case "resolve":
		if len(parts) != 2 {
			return fmt.Errorf("usage: resolve <TOKEN>")
		}
		return c.handleResolve(parts[1])

	case "grep":
		if len(parts) != 2 {
			return fmt.Errorf("usage: grep <IP>")
		}
		return c.handleGrep(parts[1])

	case "compile":
		if len(parts) != 2 {
			return fmt.Errorf("usage: compile <policy-file>")
		}
		return c.handleCompile(parts[1])

	case "?", "help":
		cmdtree.WriteHelp(c.out, cmdtree.HelpCandidates(cmdtree.ConsoleTree))
		return nil

	case "quit", "exit":
		return errExit

	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
}

func (c *Console) handleShow(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: show networks|services [TOKEN]")
	}
	switch args[0] {
	case "networks":
		if len(args) > 1 {
			return c.showNetwork(args[1])
		}
		for _, token := range c.defs.NetworkTokens() {
			fmt.Fprintln(c.out, token)
		}
		return nil

	case "services":
		if len(args) > 1 {
			return c.showService(args[1])
		}
		for _, token := range c.defs.ServiceTokens() {
			fmt.Fprintln(c.out, token)
		}
		return nil

	default:
		return fmt.Errorf("show: unknown target %q", args[0])
	}
}

func (c *Console) showNetwork(token string) error {
	def, ok := c.defs.Network(token)
	if !ok {
		return fmt.Errorf("undefined network token %q", token)
	}
	if def.Comment != "" {
		fmt.Fprintf(c.out, "%s  # %s\n", token, def.Comment)
	} else {
		fmt.Fprintln(c.out, token)
	}
	for _, v := range def.Values {
		fmt.Fprintf(c.out, "  %s\n", v)
	}
	return nil
}

func (c *Console) showService(token string) error {
	entries, ok := c.defs.Service(token)
	if !ok {
		return fmt.Errorf("undefined service token %q", token)
	}
	fmt.Fprintln(c.out, token)
	for _, e := range entries {
		switch {
		case e.Service != "":
			fmt.Fprintf(c.out, "  service %s\n", e.Service)
		case e.Comment != "":
			fmt.Fprintf(c.out, "  %s/%s  # %s\n", e.Port, e.Protocol, e.Comment)
		default:
			fmt.Fprintf(c.out, "  %s/%s\n", e.Port, e.Protocol)
		}
	}
	return nil
}

func (c *Console) handleResolve(token string) error {
	nets, err := c.defs.GetNetAddr(token)
	if err != nil {
		return err
	}
	for _, n := range nets {
		fmt.Fprintln(c.out, n.String())
	}
	return nil
}

func (c *Console) handleGrep(arg string) error {
	addr, err := netip.ParseAddr(arg)
	if err != nil {
		return fmt.Errorf("grep: %q is not an IP address", arg)
	}
	matches := c.defs.FindContaining(addr)
	if len(matches) == 0 {
		fmt.Fprintf(c.out, "no token contains %s\n", addr)
		return nil
	}
	tokens := make([]string, 0, len(matches))
	for token := range matches {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		strs := make([]string, len(matches[token]))
		for i, n := range matches[token] {
			strs[i] = n.String()
		}
		fmt.Fprintf(c.out, "%s: %s\n", token, strings.Join(strs, " "))
	}
	return nil
}

func (c *Console) handleCompile(path string) error {
	pol, err := policy.ParseFile(path, c.defs)
	if err != nil {
		return err
	}
	tr := paloalto.NewTranslator(paloalto.Options{ExpirationWeeks: c.expWeeks})
	doc, err := tr.Translate(pol)
	if err != nil {
		return err
	}
	fmt.Fprint(c.out, doc.Render())
	return nil
}
