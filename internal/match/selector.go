// Package match finds the elements of a document tree that match a selector.
package match

import (
	"fmt"
	"strconv"
	"strings"

	"styleinspect/internal/html"
)

// SelectorSyntaxError reports a selector that could not be parsed.
type SelectorSyntaxError struct {
	Selector string
	Offset   int
	Msg      string
}

func (e *SelectorSyntaxError) Error() string {
	return fmt.Sprintf("invalid selector %q at offset %d: %s", e.Selector, e.Offset, e.Msg)
}

// Selector is a compiled, possibly grouped, selector.
type Selector struct {
	text   string
	groups []*complexSelector
}

// String returns the source text of the selector.
func (s *Selector) String() string { return s.text }

// Grouped reports whether the selector has more than one comma branch.
func (s *Selector) Grouped() bool { return len(s.groups) > 1 }

// Branches returns one Selector per comma branch, in source order.
func (s *Selector) Branches() []*Selector {
	out := make([]*Selector, len(s.groups))
	for i, g := range s.groups {
		out[i] = &Selector{text: g.text, groups: []*complexSelector{g}}
	}
	return out
}

// positional reports whether any branch uses a positional filter.
func (s *Selector) positional() bool {
	for _, g := range s.groups {
		if g.positional {
			return true
		}
	}
	return false
}

// complexSelector is one comma branch: compounds joined by combinators.
type complexSelector struct {
	text       string
	parts      []*part
	positional bool
}

// part is a compound selector with the combinator relating it to the part
// on its left. The left-most part has combinator 0.
type part struct {
	combinator byte
	compound
}

type compound struct {
	tag           string // "" matches any element
	id            string
	classes       []string
	attrs         []attrSelector
	pseudos       []pseudoClass
	positionals   []positional
	pseudoElement string
}

type attrSelector struct {
	name     string
	op       string // "" tests presence
	value    string
	foldCase bool
}

type pseudoClass struct {
	name  string
	match func(m *Matcher, n html.Node) bool
}

// Compile parses a selector.
func Compile(selector string) (*Selector, error) {
	p := &parser{s: selector}
	groups, err := p.parseSelectorGroup()
	if err != nil {
		return nil, err
	}
	if p.i < len(p.s) {
		return nil, p.errorf("unexpected %q", p.s[p.i])
	}
	return &Selector{text: strings.TrimSpace(selector), groups: groups}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(selector string) *Selector {
	s, err := Compile(selector)
	if err != nil {
		panic(err)
	}
	return s
}

// a parser for selectors
type parser struct {
	s    string // the source text
	i    int    // the current position
	base int    // offset of s within the selector reported in errors
	full string // the selector reported in errors
}

func (p *parser) errorf(format string, args ...any) error {
	full := p.full
	if full == "" {
		full = p.s
	}
	return &SelectorSyntaxError{Selector: full, Offset: p.base + p.i, Msg: fmt.Sprintf(format, args...)}
}

// sub returns a parser over the argument text s starting at offset start
// of p.s.
func (p *parser) sub(s string, start int) *parser {
	full := p.full
	if full == "" {
		full = p.s
	}
	return &parser{s: s, base: p.base + start, full: full}
}

func (p *parser) eof() bool { return p.i >= len(p.s) }

// skipWhitespace consumes whitespace and reports whether any was found.
func (p *parser) skipWhitespace() bool {
	start := p.i
	for p.i < len(p.s) && isSpace(p.s[p.i]) {
		p.i++
	}
	return p.i > start
}

// parseSelectorGroup parses comma-separated complex selectors.
func (p *parser) parseSelectorGroup() ([]*complexSelector, error) {
	var groups []*complexSelector
	for {
		p.skipWhitespace()
		start := p.i
		c, err := p.parseComplex()
		if err != nil {
			return nil, err
		}
		c.text = strings.TrimSpace(p.s[start:p.i])
		groups = append(groups, c)

		p.skipWhitespace()
		if p.eof() || p.s[p.i] != ',' {
			return groups, nil
		}
		p.i++
	}
}

func (p *parser) parseComplex() (*complexSelector, error) {
	c := &complexSelector{}
	var comb byte
	for {
		cp, err := p.parseCompound()
		if err != nil {
			return nil, err
		}
		c.parts = append(c.parts, &part{combinator: comb, compound: *cp})
		if len(cp.positionals) > 0 {
			c.positional = true
		}

		space := p.skipWhitespace()
		if p.eof() || p.s[p.i] == ',' {
			return c, nil
		}
		if cp.pseudoElement != "" {
			return nil, p.errorf("pseudo-element must be in the last compound selector")
		}
		switch ch := p.s[p.i]; ch {
		case '>', '+', '~':
			comb = ch
			p.i++
			p.skipWhitespace()
		default:
			if !space {
				return nil, p.errorf("expected combinator, found %q", ch)
			}
			comb = ' '
		}
	}
}

func (p *parser) parseCompound() (*compound, error) {
	c := &compound{}
	start := p.i

	if !p.eof() {
		switch ch := p.s[p.i]; {
		case ch == '*':
			p.i++
		case nameStart(ch) || ch == '-' || ch == '\\':
			tag, err := p.parseIdentifier()
			if err != nil {
				return nil, err
			}
			c.tag = strings.ToLower(tag)
		}
	}

loop:
	for !p.eof() {
		if c.pseudoElement != "" && p.s[p.i] != ':' {
			break
		}
		switch p.s[p.i] {
		case '#':
			p.i++
			id, err := p.parseName()
			if err != nil {
				return nil, err
			}
			c.id = id
		case '.':
			p.i++
			class, err := p.parseIdentifier()
			if err != nil {
				return nil, err
			}
			c.classes = append(c.classes, class)
		case '[':
			attr, err := p.parseAttribute()
			if err != nil {
				return nil, err
			}
			c.attrs = append(c.attrs, attr)
		case ':':
			if c.pseudoElement != "" {
				return nil, p.errorf("pseudo-element must be the last simple selector")
			}
			if err := p.parsePseudo(c); err != nil {
				return nil, err
			}
		default:
			break loop
		}
	}

	if p.i == start {
		if p.eof() {
			return nil, p.errorf("expected selector, found end of input")
		}
		return nil, p.errorf("expected selector, found %q", p.s[p.i])
	}
	return c, nil
}

// parseAttribute parses [name], [name=value] and the operator forms.
func (p *parser) parseAttribute() (attrSelector, error) {
	var a attrSelector
	p.i++ // [
	p.skipWhitespace()
	name, err := p.parseIdentifier()
	if err != nil {
		return a, err
	}
	a.name = strings.ToLower(name)
	p.skipWhitespace()
	if p.eof() {
		return a, p.errorf("unterminated attribute selector")
	}
	if p.s[p.i] == ']' {
		p.i++
		return a, nil
	}

	for _, op := range []string{"=", "!=", "^=", "$=", "*=", "~=", "|="} {
		if strings.HasPrefix(p.s[p.i:], op) {
			a.op = op
			p.i += len(op)
			break
		}
	}
	if a.op == "" {
		return a, p.errorf("unknown attribute operator %q", p.s[p.i])
	}

	p.skipWhitespace()
	if p.eof() {
		return a, p.errorf("expected attribute value, found end of input")
	}
	if c := p.s[p.i]; c == '"' || c == '\'' {
		a.value, err = p.parseString()
	} else {
		a.value, err = p.parseName()
	}
	if err != nil {
		return a, err
	}

	p.skipWhitespace()
	if !p.eof() && (p.s[p.i] == 'i' || p.s[p.i] == 'I' || p.s[p.i] == 's' || p.s[p.i] == 'S') {
		a.foldCase = p.s[p.i] == 'i' || p.s[p.i] == 'I'
		p.i++
		p.skipWhitespace()
	}
	if p.eof() || p.s[p.i] != ']' {
		return a, p.errorf("expected ']'")
	}
	p.i++
	return a, nil
}

// parsePseudo parses a pseudo-class, positional filter or pseudo-element
// into c.
func (p *parser) parsePseudo(c *compound) error {
	start := p.i
	p.i++ // :
	double := !p.eof() && p.s[p.i] == ':'
	if double {
		p.i++
	}
	name, err := p.parseIdentifier()
	if err != nil {
		return err
	}
	name = strings.ToLower(name)

	if double || legacyPseudoElements[name] {
		if !pseudoElements[name] {
			p.i = start
			return p.errorf("unknown pseudo-element %q", name)
		}
		c.pseudoElement = name
		return nil
	}

	if !p.eof() && p.s[p.i] == '(' {
		argStart := p.i + 1
		args, err := p.parseArgs()
		if err != nil {
			return err
		}
		return p.parseFunctionalPseudo(c, name, args, argStart, start)
	}

	if pos, ok := positionalFilters[name]; ok {
		c.positionals = append(c.positionals, positional{kind: pos})
		return nil
	}
	fn, ok := simplePseudoClasses[name]
	if !ok {
		p.i = start
		return p.errorf("unsupported pseudo-class %q", ":"+name)
	}
	c.pseudos = append(c.pseudos, pseudoClass{name: name, match: fn})
	return nil
}

func (p *parser) parseFunctionalPseudo(c *compound, name, args string, argStart, start int) error {
	switch name {
	case "nth-child", "nth-last-child", "nth-of-type", "nth-last-of-type":
		a, b, err := parseNth(args)
		if err != nil {
			p.i = argStart
			return p.errorf("%s", err)
		}
		c.pseudos = append(c.pseudos, pseudoClass{name: name, match: nthMatcher(name, a, b)})

	case "not", "is", "matches", "where":
		inner := p.sub(args, argStart)
		groups, err := inner.parseSelectorGroup()
		if err != nil {
			return err
		}
		if !inner.eof() {
			return inner.errorf("unexpected %q", inner.s[inner.i])
		}
		for _, g := range groups {
			if g.positional {
				p.i = start
				return p.errorf("positional filters are not allowed inside :%s()", name)
			}
			if g.parts[len(g.parts)-1].pseudoElement != "" {
				p.i = start
				return p.errorf("pseudo-elements are not allowed inside :%s()", name)
			}
		}
		fn := anyOf(groups)
		if name == "not" {
			fn = noneOf(groups)
		}
		c.pseudos = append(c.pseudos, pseudoClass{name: name, match: fn})

	case "contains":
		text := strings.TrimSpace(args)
		if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') && text[len(text)-1] == text[0] {
			text = text[1 : len(text)-1]
		}
		c.pseudos = append(c.pseudos, pseudoClass{name: name, match: containsMatcher(text)})

	case "eq", "lt", "gt":
		n, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil {
			p.i = argStart
			return p.errorf("invalid index %q for :%s()", args, name)
		}
		c.positionals = append(c.positionals, positional{kind: name, n: n})

	default:
		p.i = start
		return p.errorf("unsupported pseudo-class %q", ":"+name+"()")
	}
	return nil
}

// parseArgs consumes a parenthesized argument list and returns its content.
func (p *parser) parseArgs() (string, error) {
	start := p.i + 1
	depth := 0
	var quote byte
	for i := p.i; i < len(p.s); i++ {
		c := p.s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\\':
			i++
		case '"', '\'':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				p.i = i + 1
				return p.s[start:i], nil
			}
		}
	}
	return "", p.errorf("unterminated parenthesis")
}

// parseEscape parses a backslash escape.
func (p *parser) parseEscape() (string, error) {
	if len(p.s) < p.i+2 || p.s[p.i] != '\\' {
		return "", p.errorf("invalid escape sequence")
	}

	start := p.i + 1
	c := p.s[start]
	switch {
	case c == '\r' || c == '\n' || c == '\f':
		return "", p.errorf("escaped line ending outside string")
	case hexDigit(c):
		// unicode escape (hex)
		i := start
		for i < start+6 && i < len(p.s) && hexDigit(p.s[i]) {
			i++
		}
		v, _ := strconv.ParseUint(p.s[start:i], 16, 64)
		if len(p.s) > i {
			switch p.s[i] {
			case '\r':
				i++
				if len(p.s) > i && p.s[i] == '\n' {
					i++
				}
			case ' ', '\t', '\n', '\f':
				i++
			}
		}
		p.i = i
		return string(rune(v)), nil
	}

	// Return the literal character after the backslash.
	p.i += 2
	return p.s[start : start+1], nil
}

// parseIdentifier parses an identifier.
func (p *parser) parseIdentifier() (string, error) {
	startingDash := false
	if !p.eof() && p.s[p.i] == '-' {
		startingDash = true
		p.i++
	}
	if p.eof() {
		return "", p.errorf("expected identifier, found end of input")
	}
	if c := p.s[p.i]; !(nameStart(c) || c == '\\' || (startingDash && c == '-')) {
		return "", p.errorf("expected identifier, found %q", c)
	}
	name, err := p.parseName()
	if startingDash && err == nil {
		name = "-" + name
	}
	return name, err
}

// parseName parses a name (which is like an identifier, but doesn't have
// extra restrictions on the first character).
func (p *parser) parseName() (string, error) {
	var sb strings.Builder
loop:
	for !p.eof() {
		c := p.s[p.i]
		switch {
		case nameChar(c):
			start := p.i
			for p.i < len(p.s) && nameChar(p.s[p.i]) {
				p.i++
			}
			sb.WriteString(p.s[start:p.i])
		case c == '\\':
			val, err := p.parseEscape()
			if err != nil {
				return "", err
			}
			sb.WriteString(val)
		default:
			break loop
		}
	}
	if sb.Len() == 0 {
		if p.eof() {
			return "", p.errorf("expected name, found end of input")
		}
		return "", p.errorf("expected name, found %q", p.s[p.i])
	}
	return sb.String(), nil
}

// parseString parses a single- or double-quoted string.
func (p *parser) parseString() (string, error) {
	quote := p.s[p.i]
	var sb strings.Builder
	for i := p.i + 1; i < len(p.s); i++ {
		c := p.s[i]
		switch {
		case c == quote:
			p.i = i + 1
			return sb.String(), nil
		case c == '\\' && i+1 < len(p.s):
			i++
			sb.WriteByte(p.s[i])
		default:
			sb.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

// parseNth parses the argument of the :nth-* pseudo-classes:
// an+b, even, odd or a bare integer.
func parseNth(s string) (a, b int, err error) {
	s = strings.ToLower(strings.Join(strings.Fields(s), ""))
	switch s {
	case "even":
		return 2, 0, nil
	case "odd":
		return 2, 1, nil
	case "":
		return 0, 0, fmt.Errorf("empty nth expression")
	}

	n := strings.IndexByte(s, 'n')
	if n < 0 {
		b, err = strconv.Atoi(s)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid nth expression %q", s)
		}
		return 0, b, nil
	}

	switch coef := s[:n]; coef {
	case "", "+":
		a = 1
	case "-":
		a = -1
	default:
		if a, err = strconv.Atoi(coef); err != nil {
			return 0, 0, fmt.Errorf("invalid nth expression %q", s)
		}
	}
	if rest := s[n+1:]; rest != "" {
		if rest[0] != '+' && rest[0] != '-' {
			return 0, 0, fmt.Errorf("invalid nth expression %q", s)
		}
		if b, err = strconv.Atoi(rest); err != nil {
			return 0, 0, fmt.Errorf("invalid nth expression %q", s)
		}
	}
	return a, b, nil
}

func hexDigit(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// nameStart returns whether c can be the first character of an identifier
// (not counting an initial hyphen, or an escape sequence).
func nameStart(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || c == '_' || c > 127
}

// nameChar returns whether c can be a character within an identifier
// (not counting an escape sequence).
func nameChar(c byte) bool {
	return nameStart(c) || c == '-' || '0' <= c && c <= '9'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
