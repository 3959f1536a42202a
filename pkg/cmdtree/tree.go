// Package cmdtree defines the command tree for the panpol definitions
// console. The tree drives tab completion and the '?' help display in
// pkg/console.
package cmdtree

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/psaab/panpol/pkg/naming"
)

// Node is one completion tree node: a description, static children,
// and an optional function producing dynamic values (token names from
// the loaded definitions).
type Node struct {
	Desc      string
	Children  map[string]*Node
	DynamicFn func(defs *naming.Definitions) []string
}

// Candidate holds a command name and its description for display.
type Candidate struct {
	Name string
	Desc string
}

func networkTokens(defs *naming.Definitions) []string {
	if defs == nil {
		return nil
	}
	return defs.NetworkTokens()
}

func serviceTokens(defs *naming.Definitions) []string {
	if defs == nil {
		return nil
	}
	return defs.ServiceTokens()
}

// ConsoleTree defines tab completion for the definitions console.
var ConsoleTree = map[string]*Node{
	"show": {Desc: "Show definitions", Children: map[string]*Node{
		"networks": {Desc: "List network tokens or show one definition", DynamicFn: networkTokens},
		"services": {Desc: "List service tokens or show one definition", DynamicFn: serviceTokens},
	}},
	"resolve": {Desc: "Recursively expand a network token to CIDRs", DynamicFn: networkTokens},
	"grep":    {Desc: "Find network tokens containing an IP address"},
	"compile": {Desc: "Compile a policy file against the loaded definitions"},
	"help":    {Desc: "Show command help"},
	"exit":    {Desc: "Exit the console"},
	"quit":    {Desc: "Exit the console"},
}

// Complete walks the tree and returns completion candidates for the
// given preceding words and partial last word.
func Complete(tree map[string]*Node, words []string, partial string, defs *naming.Definitions) []string {
	current := tree
	var currentNode *Node
	dynamicConsumed := false
	for _, w := range words {
		dynamicConsumed = false
		node, ok := current[w]
		if !ok {
			// Word not in static children — if the parent has a
			// DynamicFn, treat it as a dynamic value and stay at the
			// same children level.
			if currentNode != nil && currentNode.DynamicFn != nil {
				dynamicConsumed = true
				continue
			}
			return nil
		}
		currentNode = node
		if node.Children == nil {
			if node.DynamicFn != nil {
				return FilterPrefix(node.DynamicFn(defs), partial)
			}
			return nil
		}
		current = node.Children
	}
	candidates := keysOf(current)
	if !dynamicConsumed && currentNode != nil && currentNode.DynamicFn != nil {
		candidates = append(candidates, currentNode.DynamicFn(defs)...)
	}
	return FilterPrefix(candidates, partial)
}

// CompleteWithDesc walks the tree returning name+description pairs for
// the '?' help display.
func CompleteWithDesc(tree map[string]*Node, words []string, partial string, defs *naming.Definitions) []Candidate {
	current := tree
	var currentNode *Node
	dynamicConsumed := false
	for _, w := range words {
		dynamicConsumed = false
		node, ok := current[w]
		if !ok {
			if currentNode != nil && currentNode.DynamicFn != nil {
				dynamicConsumed = true
				continue
			}
			return nil
		}
		currentNode = node
		if node.Children == nil {
			if node.DynamicFn != nil {
				var candidates []Candidate
				for _, name := range node.DynamicFn(defs) {
					if strings.HasPrefix(name, partial) {
						candidates = append(candidates, Candidate{Name: name, Desc: "(defined)"})
					}
				}
				return candidates
			}
			return nil
		}
		current = node.Children
	}

	var candidates []Candidate
	for name, node := range current {
		if strings.HasPrefix(name, partial) {
			candidates = append(candidates, Candidate{Name: name, Desc: node.Desc})
		}
	}
	if !dynamicConsumed && currentNode != nil && currentNode.DynamicFn != nil {
		for _, name := range currentNode.DynamicFn(defs) {
			if strings.HasPrefix(name, partial) {
				candidates = append(candidates, Candidate{Name: name, Desc: "(defined)"})
			}
		}
	}
	return candidates
}

// HelpCandidates returns Candidates from a tree's top level.
func HelpCandidates(tree map[string]*Node) []Candidate {
	candidates := make([]Candidate, 0, len(tree))
	for name, node := range tree {
		candidates = append(candidates, Candidate{Name: name, Desc: node.Desc})
	}
	return candidates
}

// WriteHelp prints aligned completion candidates to w. The output is
// built as a single string and written in one call so that readline's
// wrapped writer triggers only one refresh cycle.
func WriteHelp(w io.Writer, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}

// CommonPrefix returns the longest shared prefix among the given strings.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// FilterPrefix returns only items that start with the given prefix.
func FilterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	var result []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			result = append(result, item)
		}
	}
	return result
}

func keysOf(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
