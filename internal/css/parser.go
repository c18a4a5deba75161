package css

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// importRegex matches an @import statement at the scan position:
// @import url("a.css") screen; or @import "a.css";
var importRegex = regexp.MustCompile(`^(?i:@import)\s*(?:url\(\s*["']?([^"')]*?)["']?\s*\)|"([^"]*)"|'([^']*)')[^;{}]*;?`)

// groupingAtRules are at-rules whose body holds further rules. Their
// children are hoisted into the enclosing rule list during preprocessing.
var groupingAtRules = map[string]bool{
	"media":         true,
	"supports":      true,
	"document":      true,
	"-moz-document": true,
	"layer":         true,
	"container":     true,
}

// IsGroupingAtRule reports whether the at-rule keyword (without "@") holds
// nested rules.
func IsGroupingAtRule(name string) bool {
	return groupingAtRules[strings.ToLower(strings.TrimPrefix(name, "@"))]
}

// Parser turns stylesheet text into a tree of positioned rules.
// It never fails: unbalanced braces truncate the open rules at end of text.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new rule parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse scans text and returns a synthetic root whose children are the
// top-level rules. startLine is the number of document lines preceding the
// text (0 for external stylesheets); reported lines are 1-based.
func (p *Parser) Parse(text string, startLine int) *ParsedRule {
	root := &ParsedRule{End: len(text)}

	p.scan(text, root)
	root.Children = p.preprocess(root.Children, "")

	starts := lineStarts(text)
	root.Line = startLine + 1
	root.Walk(func(r *ParsedRule) {
		r.Line = startLine + 1 + lineIndex(starts, r.Start)
	})

	p.log.Debug("Parsed stylesheet",
		zap.Int("bytes", len(text)),
		zap.Int("rules", len(root.Children)),
		zap.Int("startLine", startLine))
	return root
}

// scan is the single forward pass. It tracks comment depth, the offset where
// the current statement began and a stack of open rule bodies.
func (p *Parser) scan(text string, root *ParsedRule) {
	var (
		stack   = []*ParsedRule{root}
		stmt    = -1 // first byte of the current statement, -1 between statements
		comment = 0  // comment depth; "/*" inside a comment nests
		n       = len(text)
	)

	for i := 0; i < n; i++ {
		c := text[i]

		if comment > 0 {
			switch {
			case c == '*' && i+1 < n && text[i+1] == '/':
				comment--
				i++
			case c == '/' && i+1 < n && text[i+1] == '*':
				comment++
				i++
			}
			continue
		}

		switch {
		case c == '/' && i+1 < n && text[i+1] == '*':
			comment++
			i++

		case c == '\\':
			if stmt < 0 {
				stmt = i
			}
			i++ // escaped byte never opens or closes a body

		case c == '{':
			start := stmt
			if start < 0 {
				start = i
			}
			stack = append(stack, &ParsedRule{
				Start:        start,
				BodyStart:    i,
				SelectorText: text[start:i],
			})
			stmt = -1

		case c == '}':
			if len(stack) > 1 {
				r := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				r.End = i + 1
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, r)
			}
			stmt = -1

		case c == ';':
			stmt = -1

		case c == '@' && stmt < 0:
			m := importRegex.FindStringSubmatchIndex(text[i:])
			if m == nil {
				stmt = i
				continue
			}
			end := i + m[1]
			leaf := &ParsedRule{
				Start:        i,
				BodyStart:    end,
				End:          end,
				Import:       true,
				Href:         importHref(text[i:], m),
				SelectorText: strings.TrimSuffix(strings.TrimSpace(text[i:end]), ";"),
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, leaf)
			i = end - 1

		case isSpace(c):

		default:
			if stmt < 0 {
				stmt = i
			}
		}
	}

	if len(stack) > 1 {
		p.log.Debug("Unbalanced braces, truncating open rules", zap.Int("open", len(stack)-1))
	}
	for len(stack) > 1 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		r.End = n
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, r)
	}
}

// importHref returns the first non-empty capture of importRegex.
func importHref(s string, m []int) string {
	for g := 1; g*2+1 < len(m); g++ {
		if m[g*2] >= 0 {
			return strings.TrimSpace(s[m[g*2]:m[g*2+1]])
		}
	}
	return ""
}

// preprocess normalizes selector text, hoists the children of grouping
// at-rules in place and drops every other at-rule except @import. Hoisted
// rules carry the at-rule prelude in Condition instead of being pruned with
// their @media or @supports parent, so they keep a line for the rule join.
func (p *Parser) preprocess(rules []*ParsedRule, cond string) []*ParsedRule {
	out := make([]*ParsedRule, 0, len(rules))
	for _, r := range rules {
		if r.Import {
			r.Condition = cond
			out = append(out, r)
			continue
		}

		sel := strings.TrimSpace(stripComments(r.SelectorText))
		if strings.HasPrefix(sel, "@") {
			name := atRuleName(sel)
			if !groupingAtRules[name] {
				p.log.Debug("Dropping at-rule", zap.String("rule", "@"+name), zap.Int("offset", r.Start))
				continue
			}
			out = append(out, p.preprocess(r.Children, joinCondition(cond, collapseSpace(sel)))...)
			continue
		}

		r.SelectorText = NormalizeSelector(sel)
		r.Condition = cond
		r.Children = p.preprocess(r.Children, cond)
		out = append(out, r)
	}
	return out
}

// atRuleName returns the lower-cased keyword of an at-rule prelude without "@".
func atRuleName(prelude string) string {
	name := prelude[1:]
	if i := strings.IndexFunc(name, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '(' || r == '"' || r == '\''
	}); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

func joinCondition(outer, inner string) string {
	if outer == "" {
		return inner
	}
	return outer + " " + inner
}

// lineStarts returns the offsets at which each line of text begins.
func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineIndex returns the zero-based index of the line containing offset.
func lineIndex(starts []int, offset int) int {
	return sort.Search(len(starts), func(j int) bool { return starts[j] > offset }) - 1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
