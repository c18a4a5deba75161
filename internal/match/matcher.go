package match

import (
	"slices"

	"go.uber.org/zap"

	"styleinspect/internal/html"
)

// memoLimit bounds the walk memo; it is dropped wholesale when exceeded.
const memoLimit = 1 << 16

type memoKey struct {
	h html.Handle
	p *part
}

type memoEntry struct {
	gen     uint64
	matched bool
}

// Matcher runs selectors against one document. It holds no results between
// calls: memo entries are stamped with a per-call generation and ignored
// once the call returns. A Matcher is not safe for concurrent use.
type Matcher struct {
	doc        html.Document
	log        *zap.Logger
	idFastPath bool

	gen   uint64
	memo  map[memoKey]memoEntry
	stamp uint64
	seen  map[html.Handle]uint64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithIDFastPath enables or disables resolving a left-most #id part first
// when the document implements html.IDIndex. It is enabled by default.
func WithIDFastPath(enabled bool) Option {
	return func(m *Matcher) { m.idFastPath = enabled }
}

// New creates a matcher over doc.
func New(doc html.Document, log *zap.Logger, opts ...Option) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Matcher{
		doc:        doc,
		log:        log.Named("matcher"),
		idFastPath: true,
		memo:       make(map[memoKey]memoEntry),
		seen:       make(map[html.Handle]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match returns the elements matching selector in document order without
// duplicates. A nil ctx searches the whole document including the root
// element; otherwise only descendants of ctx are returned.
func (m *Matcher) Match(selector string, ctx html.Node) ([]html.Node, error) {
	return m.MatchInto(selector, ctx, nil)
}

// MatchInto is Match with the result unioned into seed.
func (m *Matcher) MatchInto(selector string, ctx html.Node, seed []html.Node) ([]html.Node, error) {
	sel, err := Compile(selector)
	if err != nil {
		return nil, err
	}
	return m.MatchSelector(sel, ctx, seed), nil
}

// Matches reports whether n matches selector.
func (m *Matcher) Matches(selector string, n html.Node) (bool, error) {
	sel, err := Compile(selector)
	if err != nil {
		return false, err
	}
	return m.MatchesSelector(sel, n), nil
}

// MatchSelector runs a compiled selector. Comma branches are matched
// independently and their results unioned with seed.
func (m *Matcher) MatchSelector(sel *Selector, ctx html.Node, seed []html.Node) []html.Node {
	m.begin()

	out := slices.Clone(seed)
	for _, g := range sel.groups {
		switch {
		case g.positional:
			out = append(out, m.forward(g, ctx)...)
		case m.idFastPath && len(g.parts) > 1 && g.parts[0].id != "" && m.hasIDIndex():
			out = append(out, m.forward(g, ctx)...)
		default:
			out = append(out, m.backward(g, ctx)...)
		}
	}
	out = html.SortNodes(m.doc, out)

	m.log.Debug("Matched selector", zap.String("selector", sel.text), zap.Int("count", len(out)))
	return out
}

// MatchesSelector reports whether n matches any branch of sel.
func (m *Matcher) MatchesSelector(sel *Selector, n html.Node) bool {
	if n == nil {
		return false
	}
	m.begin()
	for _, g := range sel.groups {
		if g.positional {
			// positional filters depend on the whole result set
			for _, r := range m.forward(g, nil) {
				if r.Handle() == n.Handle() {
					return true
				}
			}
			continue
		}
		if m.matchesComplex(g, n) {
			return true
		}
	}
	return false
}

// begin starts a new top-level call.
func (m *Matcher) begin() {
	m.gen++
	if len(m.memo) > memoLimit {
		clear(m.memo)
	}
	if len(m.seen) > memoLimit {
		clear(m.seen)
	}
}

func (m *Matcher) hasIDIndex() bool {
	_, ok := m.doc.(html.IDIndex)
	return ok
}

// backward resolves the right-most part by anchor lookup and validates each
// candidate against the parts to its left.
func (m *Matcher) backward(g *complexSelector, ctx html.Node) []html.Node {
	last := len(g.parts) - 1
	var out []html.Node
	for _, n := range m.anchors(&g.parts[last].compound, ctx) {
		if m.matchesAt(g, last, n) {
			out = append(out, n)
		}
	}
	return out
}

// forward resolves the left-most part first and expands the set through each
// combinator in turn. Positional filters are applied to the ordered set of
// the part that carries them.
func (m *Matcher) forward(g *complexSelector, ctx html.Node) []html.Node {
	last := len(g.parts) - 1

	scope := ctx
	if last > 0 {
		scope = nil // the chain may start outside ctx
	}
	set := m.anchors(&g.parts[0].compound, scope)
	set = html.SortNodes(m.doc, set)
	if last == 0 {
		return applyPositionals(set, g.parts[0].positionals)
	}
	set = applyPositionals(set, g.parts[0].positionals)

	for i := 1; i <= last; i++ {
		p := g.parts[i]
		m.stamp++
		var next []html.Node
		for _, n := range set {
			m.expand(n, p.combinator, func(c html.Node) {
				if m.matchesCompound(&p.compound, c) {
					next = append(next, c)
				}
			})
		}
		next = html.SortNodes(m.doc, next)
		if i == last && ctx != nil {
			next = slices.DeleteFunc(next, func(n html.Node) bool { return !isDescendant(n, ctx) })
		}
		set = applyPositionals(next, p.positionals)
	}
	return set
}

// expand calls fn for every element related to n by comb that has not been
// visited during the current expansion step.
func (m *Matcher) expand(n html.Node, comb byte, fn func(html.Node)) {
	visit := func(c html.Node) bool {
		if m.seen[c.Handle()] == m.stamp {
			return false
		}
		m.seen[c.Handle()] = m.stamp
		fn(c)
		return true
	}

	switch comb {
	case '>':
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			visit(c)
		}
	case ' ':
		// a visited element's subtree has been walked already
		var walk func(html.Node)
		walk = func(p html.Node) {
			for c := p.FirstChild(); c != nil; c = c.NextSibling() {
				if visit(c) {
					walk(c)
				}
			}
		}
		walk(n)
	case '+':
		if s := n.NextSibling(); s != nil {
			visit(s)
		}
	case '~':
		for s := n.NextSibling(); s != nil; s = s.NextSibling() {
			if !visit(s) {
				break // the remaining siblings were visited from an earlier one
			}
		}
	}
}

// anchors returns the candidates for c using the fastest structural index
// the document offers, restricted to scope and filtered by c.
func (m *Matcher) anchors(c *compound, scope html.Node) []html.Node {
	candidates, indexed := m.lookup(c)
	if !indexed {
		candidates = subtree(m.doc, scope)
	}

	out := candidates[:0:0]
	for _, n := range candidates {
		if indexed && scope != nil && !isDescendant(n, scope) {
			continue
		}
		if m.matchesCompound(c, n) {
			out = append(out, n)
		}
	}
	return out
}

// lookup tries the by-id, by-class and by-tag indexes in that order.
func (m *Matcher) lookup(c *compound) ([]html.Node, bool) {
	if idx, ok := m.doc.(html.IDIndex); ok && c.id != "" {
		return idx.ElementsByID(c.id), true
	}
	if idx, ok := m.doc.(html.ClassIndex); ok && len(c.classes) > 0 {
		return idx.ElementsByClass(c.classes[0]), true
	}
	if idx, ok := m.doc.(html.TagIndex); ok && c.tag != "" {
		return idx.ElementsByTag(c.tag), true
	}
	return nil, false
}

// matchesComplex reports whether n is the subject of g.
func (m *Matcher) matchesComplex(g *complexSelector, n html.Node) bool {
	last := len(g.parts) - 1
	return m.matchesCompound(&g.parts[last].compound, n) && m.matchesAt(g, last, n)
}

// matchesAt reports whether n, already known to match part i, has the
// relatives required by the parts to the left of i.
func (m *Matcher) matchesAt(g *complexSelector, i int, n html.Node) bool {
	if i == 0 {
		return true
	}
	switch g.parts[i].combinator {
	case '>':
		p := n.Parent()
		return p != nil && m.matchesPart(g, i-1, p)
	case ' ':
		for p := n.Parent(); p != nil; p = p.Parent() {
			if m.matchesPart(g, i-1, p) {
				return true
			}
		}
	case '+':
		s := n.PrevSibling()
		return s != nil && m.matchesPart(g, i-1, s)
	case '~':
		for s := n.PrevSibling(); s != nil; s = s.PrevSibling() {
			if m.matchesPart(g, i-1, s) {
				return true
			}
		}
	}
	return false
}

// matchesPart is the memoized test of n against parts[0..i] ending at n.
func (m *Matcher) matchesPart(g *complexSelector, i int, n html.Node) bool {
	key := memoKey{h: n.Handle(), p: g.parts[i]}
	if e, ok := m.memo[key]; ok && e.gen == m.gen {
		return e.matched
	}
	matched := m.matchesCompound(&g.parts[i].compound, n) && m.matchesAt(g, i, n)
	m.memo[key] = memoEntry{gen: m.gen, matched: matched}
	return matched
}

// matchesCompound applies every non-positional predicate of c to n.
func (m *Matcher) matchesCompound(c *compound, n html.Node) bool {
	if c.tag != "" && n.TagName() != c.tag {
		return false
	}
	if c.id != "" && n.ID() != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := n.Classes()
		for _, want := range c.classes {
			if !slices.Contains(have, want) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		if !matchAttr(a, n) {
			return false
		}
	}
	for _, ps := range c.pseudos {
		if !ps.match(m, n) {
			return false
		}
	}
	return true
}

func applyPositionals(nodes []html.Node, filters []positional) []html.Node {
	for _, f := range filters {
		nodes = f.apply(nodes)
	}
	return nodes
}

// subtree enumerates the elements below scope in preorder, or the whole
// document including its root when scope is nil.
func subtree(doc html.Document, scope html.Node) []html.Node {
	var out []html.Node
	var walk func(html.Node)
	walk = func(p html.Node) {
		for c := p.FirstChild(); c != nil; c = c.NextSibling() {
			out = append(out, c)
			walk(c)
		}
	}
	if scope != nil {
		walk(scope)
		return out
	}
	if root := doc.Root(); root != nil {
		out = append(out, root)
		walk(root)
	}
	return out
}

// isDescendant reports whether n is a proper descendant of ancestor.
func isDescendant(n, ancestor html.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Handle() == ancestor.Handle() {
			return true
		}
	}
	return false
}
