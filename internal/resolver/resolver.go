package resolver

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"styleinspect/internal/config"
	"styleinspect/internal/css"
	"styleinspect/internal/cssom"
	"styleinspect/internal/html"
	"styleinspect/internal/match"
)

// RuleID indexes the engine's rule arena.
type RuleID int

// CompiledRule is one style rule of an indexed stylesheet.
type CompiledRule struct {
	ID           RuleID
	StylesheetID StylesheetID
	RuleIndex    int // position among the style rules of its stylesheet
	GlobalOrder  int
	// Specificity is computed eagerly for non-grouped rules only; grouped
	// rules are ranked per element.
	Specificity      css.Specificity
	Grouped          bool
	Branches         []string
	SelectorText     string
	DeclarationsText string
	Declarations     []css.Declaration
	Line             int // 0 when no source position is known
	Condition        string
	Err              error // selector compile error, the rule matches nothing

	selector *match.Selector
	branches []*match.Selector
}

// MatchedRule is a rule as it applies to one element.
type MatchedRule struct {
	Rule        *CompiledRule
	Specificity css.Specificity
	// Branch is the selector branch the specificity was taken from.
	Branch string
}

// Engine indexes the stylesheets of one document and answers which rules
// apply to an element. It is not safe for concurrent use.
type Engine struct {
	log      *zap.Logger
	doc      html.Document
	matcher  *match.Matcher
	registry *Registry
	loader   Loader
	parser   *css.Parser
	om       *cssom.Parser

	mode           css.SpecificityMode
	maxImportDepth int
	inlineStyle    bool

	rules []*CompiledRule
	index map[html.Handle][]RuleID
	order int
}

// New creates an engine over doc. A nil loader reads files relative to the
// configured base directory.
func New(doc html.Document, cfg *config.Config, loader Loader, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	if loader == nil {
		loader = FileLoader{BaseDir: cfg.BaseDir}
	}
	return &Engine{
		log:            log.Named("resolver"),
		doc:            doc,
		matcher:        match.New(doc, log, match.WithIDFastPath(cfg.IDFastPath)),
		registry:       NewRegistry(),
		loader:         loader,
		parser:         css.NewParser(log),
		om:             cssom.NewParser(log),
		mode:           cfg.SpecificityMode(),
		maxImportDepth: cfg.MaxImportDepth,
		inlineStyle:    cfg.InlineStyle,
		index:          make(map[html.Handle][]RuleID),
	}
}

// Registry returns the stylesheet registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Matcher returns the selector matcher bound to the engine's document.
func (e *Engine) Matcher() *match.Matcher { return e.matcher }

// Rules returns the rule arena in global order.
func (e *Engine) Rules() []*CompiledRule { return e.rules }

// RegisterStylesheet adds a top-level stylesheet without indexing it.
func (e *Engine) RegisterStylesheet(src Source) StylesheetID {
	return e.registry.Register(src).ID
}

// RegisterUnreadable adds a top-level stylesheet whose content could not be
// read. It is reported by UnreadableStylesheets and never indexed.
func (e *Engine) RegisterUnreadable(origin Origin, err error) StylesheetID {
	e.log.Warn("Stylesheet is not readable", zap.Stringer("origin", origin), zap.Error(err))
	return e.registry.RegisterUnreadable(origin, err).ID
}

// IndexStylesheet parses the stylesheet, expands its imports and adds every
// style rule to the element index. Restricted and already indexed sheets are
// left alone.
func (e *Engine) IndexStylesheet(id StylesheetID) error {
	sheet, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStylesheet, id)
	}
	switch sheet.State {
	case Restricted:
		e.log.Debug("Skipping restricted stylesheet", zap.Int("id", int(id)))
		return nil
	case Indexed:
		return nil
	}
	e.indexSheet(sheet)
	return nil
}

func (e *Engine) indexSheet(sheet *Stylesheet) {
	sheet.State = Indexed
	text := sheet.Source.Text

	// positions come from the scanner, rule objects from the tokenizer; they
	// are paired per selector in source order
	queues := make(map[string][]*css.ParsedRule)
	e.parser.Parse(text, sheet.Source.StartLine).Walk(func(r *css.ParsedRule) {
		if !r.Import {
			queues[r.SelectorText] = append(queues[r.SelectorText], r)
		}
	})

	om, err := e.om.Parse(text)
	if err != nil {
		e.log.Warn("Stylesheet parsed partially", zap.Stringer("origin", sheet.Source.Origin), zap.Error(err))
	}

	before := len(e.rules)
	var n int
	e.indexRules(sheet, om.Rules, "", queues, &n)
	e.log.Debug("Indexed stylesheet",
		zap.Int("id", int(sheet.ID)),
		zap.Stringer("origin", sheet.Source.Origin),
		zap.Int("rules", len(e.rules)-before),
		zap.Int("own_rules", om.StyleRuleCount()))
}

func (e *Engine) indexRules(sheet *Stylesheet, rules []*cssom.Rule, cond string, queues map[string][]*css.ParsedRule, n *int) {
	for _, r := range rules {
		switch r.Kind {
		case cssom.StyleRule:
			e.addRule(sheet, r, cond, queues, *n)
			*n++
		case cssom.ImportRule:
			e.expandImport(sheet, r.Href)
		case cssom.GroupingRule:
			inner := r.Prelude
			if cond != "" {
				inner = cond + " " + r.Prelude
			}
			e.indexRules(sheet, r.Rules, inner, queues, n)
		default:
			e.log.Debug("Dropping at-rule", zap.String("prelude", r.Prelude))
		}
	}
}

func (e *Engine) addRule(sheet *Stylesheet, r *cssom.Rule, cond string, queues map[string][]*css.ParsedRule, ruleIndex int) {
	e.order++
	rule := &CompiledRule{
		ID:           RuleID(len(e.rules)),
		StylesheetID: sheet.ID,
		RuleIndex:    ruleIndex,
		GlobalOrder:  e.order,
		SelectorText: r.SelectorText,
		Declarations: r.Declarations,
		Condition:    cond,
	}
	e.rules = append(e.rules, rule)

	if q := queues[r.SelectorText]; len(q) > 0 {
		pos := q[0]
		queues[r.SelectorText] = q[1:]
		rule.Line = pos.Line
		rule.DeclarationsText = pos.Body(sheet.Source.Text)
		if pos.Condition != "" {
			rule.Condition = pos.Condition // source spelling
		}
	} else {
		rule.DeclarationsText = css.FormatDeclarations(r.Declarations)
		e.log.Debug("No source position for rule", zap.String("selector", r.SelectorText))
	}

	sel, err := match.Compile(r.SelectorText)
	if err != nil {
		rule.Err = err
		rule.Branches = css.SplitGroup(r.SelectorText)
		rule.Grouped = len(rule.Branches) > 1
		e.log.Warn("Rule selector does not compile",
			zap.String("selector", r.SelectorText),
			zap.Stringer("origin", sheet.Source.Origin),
			zap.Error(err))
		return
	}
	rule.selector = sel
	rule.Grouped = sel.Grouped()
	if rule.Grouped {
		rule.branches = sel.Branches()
		for _, b := range rule.branches {
			rule.Branches = append(rule.Branches, b.String())
		}
	} else {
		rule.Branches = []string{sel.String()}
		rule.Specificity = css.Calculate(sel.String())
	}

	for _, n := range e.matcher.MatchSelector(sel, nil, nil) {
		e.index[n.Handle()] = append(e.index[n.Handle()], rule.ID)
	}
}

func (e *Engine) expandImport(parent *Stylesheet, href string) {
	if href == "" {
		return
	}
	if child, ok := e.registry.FindImport(parent.ID, href); ok {
		if child.State == Registered {
			e.indexSheet(child)
		}
		return
	}
	if parent.Depth+1 > e.maxImportDepth {
		e.log.Warn("Import nesting too deep, skipping",
			zap.String("href", href), zap.Int("max", e.maxImportDepth))
		return
	}

	src, err := e.loader.Load(href, parent.Source.Location)
	if err != nil {
		if !errors.Is(err, ErrUnreadable) {
			err = fmt.Errorf("%w: %w", ErrUnreadable, err)
		}
		e.log.Warn("Imported stylesheet is not readable", zap.String("href", href), zap.Error(err))
		// parent is registered, this cannot fail
		_, _ = e.registry.RegisterUnreadableImport(parent.ID, Origin{Href: href}, err)
		return
	}
	if e.registry.Imports(parent.ID, src.Location) {
		e.log.Warn("Import cycle, skipping", zap.String("href", href), zap.String("location", src.Location))
		return
	}
	src.Origin.Href = href
	child, err := e.registry.RegisterImport(parent.ID, src)
	if err != nil {
		e.log.Error("Unable to register import", zap.String("href", href), zap.Error(err))
		return
	}
	e.indexSheet(child)
}

// RulesFor returns the rules matching n ordered from lowest to highest
// precedence: by specificity under the configured mode, then by global order.
// A grouped rule ranks with the highest specificity among its branches that
// match n.
func (e *Engine) RulesFor(n html.Node) ([]MatchedRule, error) {
	if n == nil {
		return nil, errors.New("no element given")
	}
	ids := e.index[n.Handle()]
	out := make([]MatchedRule, 0, len(ids))
	for _, id := range ids {
		r := e.rules[id]
		m := MatchedRule{Rule: r, Specificity: r.Specificity, Branch: r.SelectorText}
		if r.Grouped {
			found := false
			for _, b := range r.branches {
				if !e.matcher.MatchesSelector(b, n) {
					continue
				}
				s := css.Calculate(b.String())
				if !found || e.mode.Compare(s, m.Specificity) > 0 {
					m.Specificity, m.Branch, found = s, b.String(), true
				}
			}
		}
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b MatchedRule) int {
		if c := e.mode.Compare(a.Specificity, b.Specificity); c != 0 {
			return c
		}
		return cmp.Compare(a.Rule.GlobalOrder, b.Rule.GlobalOrder)
	})
	return out, nil
}

// UnreadableStylesheets lists stylesheets whose content could not be read,
// imports included, in document order.
func (e *Engine) UnreadableStylesheets() []Unreadable {
	return e.registry.Unreadable()
}

// Invalidate recomputes the index entry of one element against every
// compiled rule.
func (e *Engine) Invalidate(h html.Handle) {
	delete(e.index, h)
	n := e.doc.Node(h)
	if n == nil {
		return
	}
	for _, r := range e.rules {
		if r.selector != nil && e.matcher.MatchesSelector(r.selector, n) {
			e.index[h] = append(e.index[h], r.ID)
		}
	}
}

// ReindexAll drops every compiled rule and indexes all readable stylesheets
// again. Imports already registered are reused, not reloaded.
func (e *Engine) ReindexAll() error {
	e.rules = nil
	clear(e.index)
	for _, s := range e.registry.Ordered() {
		if s.State == Indexed {
			s.State = Registered
		}
	}
	var errs error
	for _, s := range e.registry.TopLevel() {
		errs = multierr.Append(errs, e.IndexStylesheet(s.ID))
	}
	return errs
}

// Clear forgets every stylesheet and rule.
func (e *Engine) Clear() {
	e.registry.Clear()
	e.rules = nil
	clear(e.index)
}
