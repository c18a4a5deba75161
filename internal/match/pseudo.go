package match

import (
	"strings"

	"golang.org/x/net/html/atom"

	"styleinspect/internal/html"
)

var pseudoElements = map[string]bool{
	"before":       true,
	"after":        true,
	"first-line":   true,
	"first-letter": true,
	"selection":    true,
	"placeholder":  true,
	"marker":       true,
	"backdrop":     true,
}

// legacyPseudoElements may be written with a single colon.
var legacyPseudoElements = map[string]bool{
	"before":       true,
	"after":        true,
	"first-line":   true,
	"first-letter": true,
}

// positionalFilters without arguments; :eq(), :lt() and :gt() take one.
var positionalFilters = map[string]string{
	"first": "first",
	"last":  "last",
	"even":  "even",
	"odd":   "odd",
}

var simplePseudoClasses = map[string]func(m *Matcher, n html.Node) bool{
	"first-child": func(_ *Matcher, n html.Node) bool { return n.PrevSibling() == nil },
	"last-child":  func(_ *Matcher, n html.Node) bool { return n.NextSibling() == nil },
	"only-child": func(_ *Matcher, n html.Node) bool {
		return n.PrevSibling() == nil && n.NextSibling() == nil
	},
	"first-of-type": func(_ *Matcher, n html.Node) bool { return siblingIndex(n, true, false) == 1 },
	"last-of-type":  func(_ *Matcher, n html.Node) bool { return siblingIndex(n, true, true) == 1 },
	"only-of-type": func(_ *Matcher, n html.Node) bool {
		return siblingIndex(n, true, false) == 1 && siblingIndex(n, true, true) == 1
	},
	"root":  func(_ *Matcher, n html.Node) bool { return n.Parent() == nil },
	"empty": func(_ *Matcher, n html.Node) bool { return n.FirstChild() == nil && n.Text() == "" },

	"checked":  func(_ *Matcher, n html.Node) bool { return isChecked(n) },
	"selected": func(_ *Matcher, n html.Node) bool { return isSelected(n) },
	"disabled": func(_ *Matcher, n html.Node) bool { return isFormControl(n) && isDisabled(n) },
	"enabled":  func(_ *Matcher, n html.Node) bool { return isFormControl(n) && !isDisabled(n) },
	"link":     isLink,
	"any-link": isLink,

	// dynamic states never hold in a static tree
	"hover":         never,
	"focus":         never,
	"focus-within":  never,
	"focus-visible": never,
	"active":        never,
	"visited":       never,
	"target":        never,
}

func never(*Matcher, html.Node) bool { return false }

func isLink(_ *Matcher, n html.Node) bool {
	switch atom.Lookup([]byte(n.TagName())) {
	case atom.A, atom.Area, atom.Link:
		_, ok := n.Attr("href")
		return ok
	}
	return false
}

func isChecked(n html.Node) bool {
	switch atom.Lookup([]byte(n.TagName())) {
	case atom.Input:
		typ, _ := n.Attr("type")
		switch strings.ToLower(typ) {
		case "checkbox", "radio":
			_, ok := n.Attr("checked")
			return ok
		}
	case atom.Option:
		return isSelected(n)
	}
	return false
}

func isSelected(n html.Node) bool {
	if atom.Lookup([]byte(n.TagName())) != atom.Option {
		return false
	}
	_, ok := n.Attr("selected")
	return ok
}

func isFormControl(n html.Node) bool {
	switch atom.Lookup([]byte(n.TagName())) {
	case atom.Button, atom.Input, atom.Select, atom.Textarea,
		atom.Optgroup, atom.Option, atom.Fieldset:
		return true
	}
	return false
}

// isDisabled reports whether n carries disabled itself or sits inside a
// disabled fieldset or optgroup.
func isDisabled(n html.Node) bool {
	if _, ok := n.Attr("disabled"); ok {
		return true
	}
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch atom.Lookup([]byte(p.TagName())) {
		case atom.Fieldset, atom.Optgroup:
			if _, ok := p.Attr("disabled"); ok {
				return true
			}
		}
	}
	return false
}

// siblingIndex returns the 1-based position of n among its element siblings,
// counted from the end when fromEnd is set and among same-tag siblings when
// ofType is set.
func siblingIndex(n html.Node, ofType, fromEnd bool) int {
	step := html.Node.PrevSibling
	if fromEnd {
		step = html.Node.NextSibling
	}
	tag := n.TagName()
	i := 1
	for s := step(n); s != nil; s = step(s) {
		if !ofType || s.TagName() == tag {
			i++
		}
	}
	return i
}

func nthMatcher(name string, a, b int) func(*Matcher, html.Node) bool {
	ofType := strings.HasSuffix(name, "of-type")
	fromEnd := strings.HasPrefix(name, "nth-last")
	return func(_ *Matcher, n html.Node) bool {
		return nthMatch(a, b, siblingIndex(n, ofType, fromEnd))
	}
}

// nthMatch reports whether index = a*k + b for some k >= 0.
func nthMatch(a, b, index int) bool {
	if a == 0 {
		return index == b
	}
	d := index - b
	return d%a == 0 && d/a >= 0
}

func containsMatcher(text string) func(*Matcher, html.Node) bool {
	return func(_ *Matcher, n html.Node) bool {
		return strings.Contains(n.Text(), text)
	}
}

func anyOf(groups []*complexSelector) func(*Matcher, html.Node) bool {
	return func(m *Matcher, n html.Node) bool {
		for _, g := range groups {
			if m.matchesComplex(g, n) {
				return true
			}
		}
		return false
	}
}

func noneOf(groups []*complexSelector) func(*Matcher, html.Node) bool {
	match := anyOf(groups)
	return func(m *Matcher, n html.Node) bool { return !match(m, n) }
}

// positional is a jQuery-style filter over an ordered result set.
type positional struct {
	kind string
	n    int
}

func (f positional) apply(nodes []html.Node) []html.Node {
	pick := func(keep func(i int) bool) []html.Node {
		var out []html.Node
		for i, n := range nodes {
			if keep(i) {
				out = append(out, n)
			}
		}
		return out
	}

	switch f.kind {
	case "first":
		return pick(func(i int) bool { return i == 0 })
	case "last":
		return pick(func(i int) bool { return i == len(nodes)-1 })
	case "even":
		return pick(func(i int) bool { return i%2 == 0 })
	case "odd":
		return pick(func(i int) bool { return i%2 == 1 })
	case "eq":
		idx := f.n
		if idx < 0 {
			idx += len(nodes)
		}
		return pick(func(i int) bool { return i == idx })
	case "lt":
		idx := f.n
		if idx < 0 {
			idx += len(nodes)
		}
		return pick(func(i int) bool { return i < idx })
	case "gt":
		idx := f.n
		if idx < 0 {
			idx += len(nodes)
		}
		return pick(func(i int) bool { return i > idx })
	}
	return nodes
}

// matchAttr applies one attribute selector.
func matchAttr(a attrSelector, n html.Node) bool {
	val, ok := n.Attr(a.name)
	if a.op == "" {
		return ok
	}
	if a.op == "!=" {
		return !ok || !equalFold(val, a.value, a.foldCase)
	}
	if !ok {
		return false
	}

	want := a.value
	if a.foldCase {
		val, want = strings.ToLower(val), strings.ToLower(want)
	}
	switch a.op {
	case "=":
		return val == want
	case "^=":
		return want != "" && strings.HasPrefix(val, want)
	case "$=":
		return want != "" && strings.HasSuffix(val, want)
	case "*=":
		return want != "" && strings.Contains(val, want)
	case "~=":
		if want == "" || strings.ContainsAny(want, " \t\n\r\f") {
			return false
		}
		for _, f := range strings.Fields(val) {
			if f == want {
				return true
			}
		}
		return false
	case "|=":
		return val == want || strings.HasPrefix(val, want+"-")
	}
	return false
}

func equalFold(a, b string, fold bool) bool {
	if fold {
		return strings.EqualFold(a, b)
	}
	return a == b
}
