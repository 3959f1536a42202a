package console

import (
	"fmt"
	"strings"

	"github.com/psaab/panpol/pkg/cmdtree"
)

// completer implements readline.AutoCompleter over the console tree.
type completer struct {
	c *Console
}

// splitLine breaks the input into completed words and the partial last
// word being typed.
func splitLine(text string) (words []string, partial string) {
	words = strings.Fields(text)
	trailingSpace := len(text) > 0 && text[len(text)-1] == ' '
	if !trailingSpace && len(words) > 0 {
		partial = words[len(words)-1]
		words = words[:len(words)-1]
	}
	return words, partial
}

func (cp *completer) Do(line []rune, pos int) ([][]rune, int) {
	words, partial := splitLine(string(line[:pos]))

	candidates := cmdtree.Complete(cmdtree.ConsoleTree, words, partial, cp.c.defs)
	if len(candidates) == 0 {
		return nil, 0
	}

	if len(candidates) == 1 {
		suffix := candidates[0][len(partial):]
		return [][]rune{[]rune(suffix + " ")}, len(partial)
	}

	// Multiple matches: extend to the common prefix if any, otherwise
	// offer all suffixes.
	cp2 := cmdtree.CommonPrefix(candidates)
	if suffix := cp2[len(partial):]; suffix != "" {
		return [][]rune{[]rune(suffix)}, len(partial)
	}
	out := make([][]rune, len(candidates))
	for i, cand := range candidates {
		out[i] = []rune(cand[len(partial):])
	}
	return out, len(partial)
}

// helpListener intercepts '?' to print contextual help above the
// prompt, the way network-device CLIs do.
func (c *Console) helpListener(line []rune, pos int, key rune) ([]rune, int, bool) {
	if key != '?' || pos < 1 {
		return line, pos, false
	}

	// Strip the '?' that readline already inserted.
	cleanLine := make([]rune, 0, len(line)-1)
	cleanLine = append(cleanLine, line[:pos-1]...)
	cleanLine = append(cleanLine, line[pos:]...)
	text := string(cleanLine[:pos-1])

	words, partial := splitLine(text)
	candidates := cmdtree.CompleteWithDesc(cmdtree.ConsoleTree, words, partial, c.defs)
	if len(candidates) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "  (no help available)")
		return cleanLine, pos - 1, true
	}
	cmdtree.WriteHelp(c.rl.Stdout(), candidates)
	return cleanLine, pos - 1, true
}
