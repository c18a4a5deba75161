package inspector

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"styleinspect/internal/config"
	"styleinspect/internal/html"
	"styleinspect/internal/resolver"
)

// ErrNoDocument is returned by queries issued before a document is loaded.
var ErrNoDocument = errors.New("no document loaded")

// Inspector loads an HTML document, indexes its stylesheets and answers
// which rules apply to which elements.
type Inspector struct {
	cfg        *config.Config
	log        *zap.Logger
	htmlParser *html.GoQueryParser
	loader     resolver.Loader

	doc    *html.GoQueryDocument
	engine *resolver.Engine
	stats  Stats
}

// Stats describes the last load or reprocess.
type Stats struct {
	Elements    int // elements in the document
	Stylesheets int // registered stylesheets, imports included
	Unreadable  int
	Rules       int // compiled style rules
	Elapsed     time.Duration
}

// ElementRules pairs an element with the rules matching it, lowest
// precedence first.
type ElementRules struct {
	Element html.Node
	Rules   []resolver.MatchedRule
}

// ElementStyles pairs an element with its cascade.
type ElementStyles struct {
	Element html.Node
	Styles  []resolver.RuleStyle
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithLoader replaces the filesystem loader used for linked and imported
// stylesheets.
func WithLoader(l resolver.Loader) Option {
	return func(i *Inspector) { i.loader = l }
}

// New creates an inspector. A nil cfg uses the defaults.
func New(cfg *config.Config, log *zap.Logger, opts ...Option) *Inspector {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	if log == nil {
		log = zap.NewNop()
	}
	i := &Inspector{
		cfg:        cfg,
		log:        log.Named("inspector"),
		htmlParser: html.NewParser(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Load parses htmlContent and indexes its stylesheets. Relative hrefs are
// resolved against the configured base directory.
func (i *Inspector) Load(htmlContent string) (*Stats, error) {
	doc, err := i.htmlParser.Parse(htmlContent)
	if err != nil {
		return nil, err
	}
	return i.load(doc, i.cfg.BaseDir)
}

// LoadFile is Load for a file on disk. Without a configured base directory
// hrefs are resolved against the file's directory.
func (i *Inspector) LoadFile(path string) (*Stats, error) {
	doc, err := i.htmlParser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	base := i.cfg.BaseDir
	if base == "" {
		base = filepath.Dir(path)
	}
	return i.load(doc, base)
}

func (i *Inspector) load(doc *html.GoQueryDocument, baseDir string) (*Stats, error) {
	start := time.Now()

	loader := i.loader
	if loader == nil {
		loader = resolver.FileLoader{BaseDir: baseDir}
	}
	i.doc = doc
	i.engine = resolver.New(doc, i.cfg, loader, i.log)

	var ids []resolver.StylesheetID
	for _, el := range doc.StyleElements() {
		if el.Inline {
			ids = append(ids, i.engine.RegisterStylesheet(resolver.Source{
				Origin:    resolver.Origin{Inline: true, Offset: el.Offset},
				Text:      el.Text,
				StartLine: el.StartLine,
			}))
			continue
		}
		src, err := loader.Load(el.Href, "")
		if err != nil {
			if !errors.Is(err, resolver.ErrUnreadable) {
				err = fmt.Errorf("%w: %w", resolver.ErrUnreadable, err)
			}
			i.engine.RegisterUnreadable(resolver.Origin{Href: el.Href}, err)
			continue
		}
		ids = append(ids, i.engine.RegisterStylesheet(src))
	}

	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, i.engine.IndexStylesheet(id))
	}
	i.updateStats(start)

	i.log.Info("Document loaded",
		zap.Int("elements", i.stats.Elements),
		zap.Int("stylesheets", i.stats.Stylesheets),
		zap.Int("unreadable", i.stats.Unreadable),
		zap.Int("rules", i.stats.Rules),
		zap.Duration("elapsed", i.stats.Elapsed))
	return &i.stats, errs
}

// Reprocess drops every compiled rule and indexes the registered
// stylesheets again.
func (i *Inspector) Reprocess() (*Stats, error) {
	if i.engine == nil {
		return nil, ErrNoDocument
	}
	start := time.Now()
	err := i.engine.ReindexAll()
	i.updateStats(start)
	return &i.stats, err
}

func (i *Inspector) updateStats(start time.Time) {
	i.stats = Stats{
		Elements:    i.doc.Len(),
		Stylesheets: i.engine.Registry().Len(),
		Unreadable:  len(i.engine.UnreadableStylesheets()),
		Rules:       len(i.engine.Rules()),
		Elapsed:     time.Since(start),
	}
}

// Stats returns the statistics of the last load or reprocess.
func (i *Inspector) Stats() Stats { return i.stats }

// Document returns the loaded document, or nil.
func (i *Inspector) Document() *html.GoQueryDocument { return i.doc }

// Match returns the elements matching selector in document order.
func (i *Inspector) Match(selector string) ([]html.Node, error) {
	if i.engine == nil {
		return nil, ErrNoDocument
	}
	return i.engine.Matcher().Match(selector, nil)
}

// RulesFor returns the matching rules of every element selected by selector.
func (i *Inspector) RulesFor(selector string) ([]ElementRules, error) {
	nodes, err := i.Match(selector)
	if err != nil {
		return nil, err
	}
	out := make([]ElementRules, 0, len(nodes))
	for _, n := range nodes {
		rules, err := i.engine.RulesFor(n)
		if err != nil {
			return nil, fmt.Errorf("resolving rules for %s: %w", html.Describe(n), err)
		}
		out = append(out, ElementRules{Element: n, Rules: rules})
	}
	return out, nil
}

// Styles returns the cascade of every element selected by selector.
func (i *Inspector) Styles(selector string) ([]ElementStyles, error) {
	nodes, err := i.Match(selector)
	if err != nil {
		return nil, err
	}
	out := make([]ElementStyles, 0, len(nodes))
	for _, n := range nodes {
		styles, err := i.engine.Styles(n)
		if err != nil {
			return nil, fmt.Errorf("resolving styles for %s: %w", html.Describe(n), err)
		}
		out = append(out, ElementStyles{Element: n, Styles: styles})
	}
	return out, nil
}

// Stylesheets returns every registered stylesheet in document order.
func (i *Inspector) Stylesheets() []*resolver.Stylesheet {
	if i.engine == nil {
		return nil
	}
	return i.engine.Registry().Ordered()
}

// Unreadable returns the stylesheets whose content could not be read.
func (i *Inspector) Unreadable() []resolver.Unreadable {
	if i.engine == nil {
		return nil
	}
	return i.engine.UnreadableStylesheets()
}

// Rules returns every compiled rule in global order.
func (i *Inspector) Rules() []*resolver.CompiledRule {
	if i.engine == nil {
		return nil
	}
	return i.engine.Rules()
}
