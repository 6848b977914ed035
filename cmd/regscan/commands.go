package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/rorkai/21st-sub000/analyzer"
	"github.com/rorkai/21st-sub000/bundle"
	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/graph"
	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/rorkai/21st-sub000/processor/ast/ts"
	"github.com/spf13/cobra"
)

func exportsCmd(a *app) *cobra.Command {
	var demo, asJSON bool

	cmd := &cobra.Command{
		Use:   "exports <file>",
		Short: "List the symbols a source exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			tree, err := ts.ParseFile(cmd.Context(), args[0], code)
			if err != nil {
				return err
			}
			defer tree.Close()

			exports := ast.Names(ts.ExtractExportedSymbols(tree))
			entry, _ := ts.ExtractDemoEntryName(tree)
			if asJSON {
				out := map[string]any{"exports": exports}
				if demo {
					out["demo_entry"] = entry
					out["demo_names"] = ts.ExtractDemoNames(tree)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			for _, name := range exports {
				fmt.Fprintln(w, name)
			}
			if demo {
				if entry == "" {
					fmt.Fprintln(w, color.YellowString("no demo entry"))
				} else {
					fmt.Fprintf(w, "entry: %s\n", color.CyanString(entry))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "Also report the demo entry and demo names")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func importsCmd(a *app) *cobra.Command {
	var demo, asJSON bool

	cmd := &cobra.Command{
		Use:   "imports <file>",
		Short: "Classify the imports of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			tree, err := ts.ParseFile(cmd.Context(), args[0], code)
			if err != nil {
				return err
			}
			defer tree.Close()

			kind := ast.KindComponent
			if demo {
				kind = ast.KindDemo
			}
			deps := ast.CollectDependencies(ts.NewClassifier(a.cfg.Classifier).Classify(tree), kind)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), deps)
			}

			w := cmd.OutOrStdout()
			for _, name := range deps.Libraries.Names() {
				fmt.Fprintf(w, "library   %s@%s\n", name, deps.Libraries[name])
			}
			for _, d := range deps.Direct {
				fmt.Fprintf(w, "direct    %s/%s\n", d.Owner, d.Slug)
			}
			for _, u := range deps.Ambiguous {
				fmt.Fprintf(w, "%s %s/%s\n", color.YellowString("ambiguous"), u.Category, u.SlugWithOwnerMissing)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "Treat the source as a demo")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func stripCmd(a *app) *cobra.Command {
	var (
		selfNames []string
		write     bool
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "strip <demo-file>",
		Short: "Remove imports of the component's own symbols from a demo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(selfNames) == 0 {
				return fmt.Errorf("at least one --self name is required")
			}
			code, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			result, err := ts.StripSelfImports(cmd.Context(), code, selfNames)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !write || args[0] == "-" {
				fmt.Fprint(w, result.ModifiedText)
				return nil
			}
			if len(result.Removed) == 0 {
				fmt.Fprintln(w, "Nothing to strip")
				return nil
			}

			red := color.New(color.FgRed)
			for _, line := range result.Removed {
				red.Fprintf(w, "- %s\n", line)
			}
			if !yes {
				confirmed := false
				prompt := &survey.Confirm{
					Message: fmt.Sprintf("Remove %d import(s) from %s?", len(result.Removed), args[0]),
				}
				if err := survey.AskOne(prompt, &confirmed); err != nil {
					return err
				}
				if !confirmed {
					return nil
				}
			}
			if err := os.WriteFile(args[0], []byte(result.ModifiedText), 0644); err != nil {
				return fmt.Errorf("write %s: %w", args[0], err)
			}
			color.New(color.FgGreen).Fprintf(w, "✓ Stripped %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&selfNames, "self", nil, "Exported names of the component (repeatable)")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Rewrite the file in place")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func analyzeCmd(a *app) *cobra.Command {
	var (
		self        string
		strip       bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <component-file> [demo-file...]",
		Short: "Analyze a component submission",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub := analyzer.Submission{ComponentName: args[0], StripDemos: strip}
			if self != "" {
				ref, err := catalog.ParseRef(self)
				if err != nil {
					return err
				}
				sub.Self = ref
			}

			var err error
			if sub.Component, err = readSource(cmd, args[0]); err != nil {
				return err
			}
			for _, path := range args[1:] {
				code, err := readSource(cmd, path)
				if err != nil {
					return err
				}
				sub.Demos = append(sub.Demos, analyzer.Demo{Name: path, Code: code})
			}

			report, err := analyzer.New(a.cfg.Classifier, a.logger).Analyze(cmd.Context(), sub)
			if err != nil {
				return err
			}
			if interactive {
				if err := promptOwners(report); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&self, "self", "", "Identity the component is published under (owner/slug)")
	cmd.Flags().BoolVar(&strip, "strip", false, "Strip self imports from the demos")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Ask for the canonical URL of each ambiguous dependency")
	return cmd
}

// promptOwners asks for the canonical URL of each ambiguous dependency and
// promotes the ones answered. Empty answers leave the dependency pending.
func promptOwners(report *analyzer.Report) error {
	pending := append([]ast.UnknownDependency(nil), report.AmbiguousDeps...)
	for _, dep := range pending {
		where := "component"
		if dep.IsDemoDependency {
			where = "demo"
		}
		var answer string
		prompt := &survey.Input{
			Message: fmt.Sprintf("Canonical URL for %s/%s (%s):", dep.Category, dep.SlugWithOwnerMissing, where),
			Help:    "e.g. https://21st.dev/shadcn/button; leave empty to skip",
		}
		validate := func(v interface{}) error {
			s, _ := v.(string)
			if strings.TrimSpace(s) == "" {
				return nil
			}
			_, err := catalog.ParseCanonicalURL(s)
			return err
		}
		if err := survey.AskOne(prompt, &answer, survey.WithValidator(validate)); err != nil {
			return err
		}
		if strings.TrimSpace(answer) == "" {
			continue
		}
		if err := report.PromoteURL(dep, answer); err != nil {
			return err
		}
	}
	return nil
}

func resolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <owner/slug>...",
		Short: "Resolve the transitive catalog dependencies of entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := make([]catalog.Ref, 0, len(args))
			for _, arg := range args {
				ref, err := catalog.ParseRef(arg)
				if err != nil {
					return err
				}
				refs = append(refs, ref)
			}

			stack, err := openCatalog(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			resolver := graph.NewResolver(stack.lookup, a.cfg.Resolver, graph.WithLogger(a.logger))
			g, err := resolver.Resolve(cmd.Context(), refs)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), g)
		},
	}
}

func bundleCmd(a *app) *cobra.Command {
	var (
		self   string
		deps   []string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "bundle <component-file> <demo-file>",
		Short: "Build the preview bundle for a component and its demo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bundle.BuildInput{}
			if self != "" {
				ref, err := catalog.ParseRef(self)
				if err != nil {
					return err
				}
				in.Self = ref
			} else {
				in.Self = catalog.Ref{Slug: strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))}
			}
			for _, d := range deps {
				ref, err := catalog.ParseRef(d)
				if err != nil {
					return err
				}
				in.Dependencies = append(in.Dependencies, ref)
			}

			var err error
			if in.Component, err = readSource(cmd, args[0]); err != nil {
				return err
			}
			if in.Demo, err = readSource(cmd, args[1]); err != nil {
				return err
			}

			stack, err := openCatalog(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			resolver := graph.NewResolver(stack.lookup, a.cfg.Resolver, graph.WithLogger(a.logger))
			classifier := ts.NewClassifier(a.cfg.Classifier)
			m, err := bundle.NewBuilder(resolver, classifier, a.cfg.Bundle, a.logger).Build(cmd.Context(), in)
			if err != nil {
				return err
			}

			if outDir == "" {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			if err := writeBundle(outDir, m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d files to %s\n", len(m.Files), outDir)
			for _, b := range m.Broken {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", color.YellowString("broken"), b.To, b.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&self, "self", "", "Identity of the component (owner/slug)")
	cmd.Flags().StringSliceVar(&deps, "dep", nil, "Catalog dependency owner/slug (repeatable)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write the files under this directory instead of printing JSON")
	return cmd
}

// writeBundle writes the manifest files plus package.json under dir.
func writeBundle(dir string, m *bundle.Manifest) error {
	for p, code := range m.Files {
		rel := filepath.FromSlash(strings.TrimPrefix(p, "/"))
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("bundle file %q is outside %s", p, dir)
		}
		target := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, []byte(code), 0644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
	}
	pkg, err := json.MarshalIndent(map[string]any{
		"name":         "preview",
		"private":      true,
		"main":         m.Entry,
		"dependencies": m.Dependencies,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "package.json"), append(pkg, '\n'), 0644)
}

// readSource reads path, or stdin when path is "-".
func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("source file not found: %s", path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
