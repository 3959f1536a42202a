// panpolc compiles a vendor-neutral security policy into a PAN-OS XML
// configuration document.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/psaab/panpol/pkg/naming"
	"github.com/psaab/panpol/pkg/paloalto"
	"github.com/psaab/panpol/pkg/policy"
)

var (
	policyFile  string
	defsDir     string
	outFile     string
	expWeeks    int
	logLevel    string
	againstFile string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "panpolc",
		Short: "Compile security policies to PAN-OS configuration",
		Long: `panpolc translates a vendor-neutral network security policy into a
PAN-OS XML firewall configuration. Symbolic network and service names
are resolved through a YAML definitions directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&policyFile, "policy", "", "policy file (required)")
	rootCmd.PersistentFlags().StringVar(&defsDir, "definitions", "", "definitions directory (required)")
	rootCmd.PersistentFlags().IntVar(&expWeeks, "exp-weeks", 2, "warn about terms expiring within this many weeks")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.MarkPersistentFlagRequired("policy")
	rootCmd.MarkPersistentFlagRequired("definitions")

	compileCmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the policy and write the XML document",
		RunE:  runCompile,
	}
	compileCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default: stdout)")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Compile the policy and report ok/fail without writing output",
		RunE:  runCheck,
	}

	diffCmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare the compiled document against an existing file",
		RunE:  runDiff,
	}
	diffCmd.Flags().StringVar(&againstFile, "against", "", "file to compare against (required)")
	diffCmd.MarkFlagRequired("against")

	rootCmd.AddCommand(compileCmd, checkCmd, diffCmd)
	return rootCmd
}

func setupLogging(level string) error {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

// compile runs the full pipeline: load definitions, parse the policy,
// translate, render.
func compile() (*paloalto.Document, error) {
	defs, err := naming.Load(defsDir)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	pol, err := policy.ParseFile(policyFile, defs)
	if err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	tr := paloalto.NewTranslator(paloalto.Options{ExpirationWeeks: expWeeks})
	return tr.Translate(pol)
}

func runCompile(cmd *cobra.Command, args []string) error {
	doc, err := compile()
	if err != nil {
		return err
	}
	rendered := doc.Render()
	if outFile == "" {
		fmt.Print(rendered)
		return nil
	}
	if err := os.WriteFile(outFile, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("wrote document",
		"path", outFile,
		"rules", doc.Stats.Rules,
		"dropped_terms", doc.Stats.DroppedTerms)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	doc, err := compile()
	if err != nil {
		fmt.Printf("fail: %v\n", err)
		return err
	}
	fmt.Printf("ok: %d rules, %d terms dropped\n", doc.Stats.Rules, doc.Stats.DroppedTerms)
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	doc, err := compile()
	if err != nil {
		return err
	}
	existing, err := os.ReadFile(againstFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", againstFile, err)
	}

	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(existing)),
		B:        difflib.SplitLines(doc.Render()),
		FromFile: againstFile,
		ToFile:   "generated",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Println("no changes")
		return nil
	}
	fmt.Print(text)
	return fmt.Errorf("document differs from %s", againstFile)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "panpolc: %v\n", err)
		os.Exit(1)
	}
}
