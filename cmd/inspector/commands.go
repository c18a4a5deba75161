package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"
	tp "github.com/xlab/treeprint"
	"go.uber.org/zap"

	"styleinspect/internal/config"
	"styleinspect/internal/css"
	"styleinspect/internal/html"
	"styleinspect/internal/resolver"
	"styleinspect/pkg/inspector"
)

var errArgs = errors.New("wrong number of arguments")

func loadDocument(ctx context.Context, cmd *cli.Command, want int) (*inspector.Inspector, error) {
	if cmd.NArg() != want {
		return nil, fmt.Errorf("%w: expected %s", errArgs, cmd.ArgsUsage)
	}
	e := envFromContext(ctx)
	insp := inspector.New(e.cfg, e.log)
	if _, err := insp.LoadFile(cmd.Args().Get(0)); err != nil {
		return nil, fmt.Errorf("unable to load document: %w", err)
	}
	return insp, nil
}

func runRules(ctx context.Context, cmd *cli.Command) error {
	insp, err := loadDocument(ctx, cmd, 2)
	if err != nil {
		return err
	}
	selector := cmd.Args().Get(1)
	w := cmd.Root().Writer

	if cmd.Bool("cascade") {
		styles, err := insp.Styles(selector)
		if err != nil {
			return err
		}
		writeStyles(w, insp, styles)
		return nil
	}

	rules, err := insp.RulesFor(selector)
	if err != nil {
		return err
	}
	writeRules(w, insp, rules)
	return nil
}

func runMatch(ctx context.Context, cmd *cli.Command) error {
	insp, err := loadDocument(ctx, cmd, 2)
	if err != nil {
		return err
	}
	nodes, err := insp.Match(cmd.Args().Get(1))
	if err != nil {
		return err
	}
	for _, n := range nodes {
		fmt.Fprintln(cmd.Root().Writer, html.Describe(n))
	}
	envFromContext(ctx).log.Debug("Matched", zap.Int("count", len(nodes)))
	return nil
}

func runSheets(ctx context.Context, cmd *cli.Command) error {
	insp, err := loadDocument(ctx, cmd, 1)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.Root().Writer, sheetTree(cmd.Args().Get(0), insp))
	return nil
}

func runParse(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("%w: expected %s", errArgs, cmd.ArgsUsage)
	}
	fname := cmd.Args().Get(0)
	data, err := os.ReadFile(fname)
	if err != nil {
		return fmt.Errorf("unable to read stylesheet '%s': %w", fname, err)
	}
	text := string(data)
	root := css.NewParser(envFromContext(ctx).log).Parse(text, cmd.Int("start-line"))
	fmt.Fprint(cmd.Root().Writer, css.Dump(root, text))
	return nil
}

func runSpecificity(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return fmt.Errorf("%w: expected %s", errArgs, cmd.ArgsUsage)
	}
	writeSpecificity(cmd.Root().Writer, cmd.Args().Slice(), envFromContext(ctx).cfg.SpecificityMode())
	return nil
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	if cmd.Args().Len() > 1 {
		e.log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	data, err := config.Dump(e.cfg)
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	fname := cmd.Args().Get(0)
	if fname == "" {
		_, err = cmd.Root().Writer.Write(data)
	} else {
		err = os.WriteFile(fname, data, 0644)
	}
	if err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}

func origin(insp *inspector.Inspector, r *resolver.CompiledRule) string {
	for _, s := range insp.Stylesheets() {
		if s.ID != r.StylesheetID {
			continue
		}
		name := s.Source.Origin.String()
		if r.Line > 0 {
			name = fmt.Sprintf("%s:%d", name, r.Line)
		}
		return name
	}
	return "?"
}

func ruleLine(insp *inspector.Inspector, spec css.Specificity, r *resolver.CompiledRule) string {
	line := fmt.Sprintf("  %s %s  [%s]", spec, r.SelectorText, origin(insp, r))
	if r.Condition != "" {
		line += "  " + r.Condition
	}
	return line
}

func writeRules(w io.Writer, insp *inspector.Inspector, elements []inspector.ElementRules) {
	for _, el := range elements {
		fmt.Fprintln(w, html.Describe(el.Element))
		for _, m := range el.Rules {
			fmt.Fprintln(w, ruleLine(insp, m.Specificity, m.Rule))
		}
	}
}

func writeStyles(w io.Writer, insp *inspector.Inspector, elements []inspector.ElementStyles) {
	for _, el := range elements {
		fmt.Fprintln(w, html.Describe(el.Element))
		for _, s := range el.Styles {
			if s.Inline {
				fmt.Fprintln(w, "  style attribute")
			} else {
				fmt.Fprintln(w, ruleLine(insp, s.Specificity, s.Rule))
			}
			for _, d := range s.Declarations {
				mark := ""
				if d.Overridden {
					mark = "  (overridden)"
				}
				fmt.Fprintf(w, "      %s;%s\n", d.Declaration, mark)
			}
		}
	}
}

func writeSpecificity(w io.Writer, selectors []string, mode css.SpecificityMode) {
	for _, sel := range selectors {
		branches := css.SplitGroup(css.NormalizeSelector(sel))
		if len(branches) > 1 {
			fmt.Fprintf(w, "%s  max %s\n", sel, css.MaxSpecificity(branches, mode))
		}
		for _, b := range branches {
			s := css.Calculate(b)
			fmt.Fprintf(w, "%s  %s  weight %d\n", b, s, s.Weight())
		}
	}
}

// sheetTree renders the stylesheets of the document with their imports
// nested below the importing sheet.
func sheetTree(name string, insp *inspector.Inspector) string {
	counts := make(map[resolver.StylesheetID]int)
	for _, r := range insp.Rules() {
		counts[r.StylesheetID]++
	}

	byID := make(map[resolver.StylesheetID]*resolver.Stylesheet)
	for _, s := range insp.Stylesheets() {
		byID[s.ID] = s
	}

	label := func(s *resolver.Stylesheet) string {
		var sb strings.Builder
		fmt.Fprintf(&sb, "#%d %s %s", s.ID, s.Source.Origin, s.State)
		switch s.State {
		case resolver.Restricted:
			fmt.Fprintf(&sb, ": %v", s.Err)
		case resolver.Indexed:
			fmt.Fprintf(&sb, ", %d rules", counts[s.ID])
		}
		return sb.String()
	}

	var add func(t tp.Tree, s *resolver.Stylesheet)
	add = func(t tp.Tree, s *resolver.Stylesheet) {
		if len(s.Imports) == 0 {
			t.AddNode(label(s))
			return
		}
		b := t.AddBranch(label(s))
		for _, id := range s.Imports {
			add(b, byID[id])
		}
	}

	tree := tp.New()
	tree.SetValue(name)
	for _, s := range insp.Stylesheets() {
		if s.Parent == 0 {
			add(tree, s)
		}
	}
	return tree.String()
}
