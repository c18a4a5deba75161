// Package cssom builds the engine's view of a stylesheet: rule objects with
// normalized selector text and parsed declarations but no source positions.
package cssom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	tdcss "github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"

	"styleinspect/internal/css"
)

// RuleKind classifies a rule object.
type RuleKind int

const (
	StyleRule RuleKind = iota
	ImportRule
	GroupingRule
	OtherRule
)

func (k RuleKind) String() string {
	switch k {
	case StyleRule:
		return "style"
	case ImportRule:
		return "import"
	case GroupingRule:
		return "grouping"
	default:
		return "other"
	}
}

// Rule is a single rule object.
type Rule struct {
	Kind         RuleKind
	SelectorText string // normalized; style rules only
	Prelude      string // at-rule keyword and prelude, e.g. "@media print"
	Href         string // import target
	Declarations []css.Declaration
	Rules        []*Rule // children of grouping rules
}

// Sheet is the rule list of one stylesheet.
type Sheet struct {
	Rules []*Rule
}

// StyleRuleCount returns the number of style rules, including those nested
// inside grouping rules.
func (s *Sheet) StyleRuleCount() int {
	var n int
	var walk func([]*Rule)
	walk = func(rules []*Rule) {
		for _, r := range rules {
			switch r.Kind {
			case StyleRule:
				n++
			case GroupingRule:
				walk(r.Rules)
			}
		}
	}
	walk(s.Rules)
	return n
}

// Parser builds rule objects with the tdewolff CSS grammar.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new rule object parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("cssom")}
}

// Parse returns the rule objects of text. On a tokenizer error the rules
// collected so far are returned together with the error.
func (p *Parser) Parse(text string) (*Sheet, error) {
	parser := tdcss.NewParser(parse.NewInput(bytes.NewReader([]byte(text))), false)

	root := &Rule{Kind: GroupingRule}
	stack := []*Rule{root}
	top := func() *Rule { return stack[len(stack)-1] }
	push := func(r *Rule) {
		parent := top()
		parent.Rules = append(parent.Rules, r)
		stack = append(stack, r)
	}
	pop := func() {
		if len(stack) > 1 {
			stack = stack[:len(stack)-1]
		}
	}

	var selector []string

	for {
		gt, _, data := parser.Next()

		switch gt {
		case tdcss.ErrorGrammar:
			err := parser.Err()
			if err == nil {
				p.log.Debug("Skipping malformed CSS", zap.String("near", tokensText(parser.Values())))
				continue
			}
			sheet := &Sheet{Rules: root.Rules}
			if errors.Is(err, io.EOF) {
				return sheet, nil
			}
			return sheet, fmt.Errorf("parsing stylesheet: %w", err)

		case tdcss.AtRuleGrammar:
			name := strings.ToLower(string(data))
			r := &Rule{Kind: OtherRule, Prelude: prelude(name, parser.Values())}
			if name == "@import" {
				r.Kind = ImportRule
				r.Href = importURL(parser.Values())
			}
			top().Rules = append(top().Rules, r)

		case tdcss.BeginAtRuleGrammar:
			name := strings.ToLower(string(data))
			kind := OtherRule
			if css.IsGroupingAtRule(name) {
				kind = GroupingRule
			}
			push(&Rule{Kind: kind, Prelude: prelude(name, parser.Values())})

		case tdcss.EndAtRuleGrammar, tdcss.EndRulesetGrammar:
			pop()

		case tdcss.QualifiedRuleGrammar:
			selector = append(selector, selectorPart(data, parser.Values()))

		case tdcss.BeginRulesetGrammar:
			selector = append(selector, selectorPart(data, parser.Values()))
			push(&Rule{
				Kind:         StyleRule,
				SelectorText: css.NormalizeSelector(strings.Join(selector, ",")),
			})
			selector = selector[:0]

		case tdcss.DeclarationGrammar, tdcss.CustomPropertyGrammar:
			if d, ok := css.DeclarationFromTokens(string(data), parser.Values()); ok {
				top().Declarations = append(top().Declarations, d)
			}
		}
	}
}

// selectorPart rebuilds one comma-separated selector from the grammar data
// and its tokens. The data of a ruleset or qualified rule is the brace or
// comma that ended it.
func selectorPart(data []byte, values []tdcss.Token) string {
	var sb strings.Builder
	if len(data) > 0 && data[0] != '{' && data[0] != ',' {
		sb.Write(data)
	}
	sb.WriteString(tokensText(values))
	return strings.TrimSpace(sb.String())
}

func prelude(name string, values []tdcss.Token) string {
	rest := strings.Join(strings.Fields(tokensText(values)), " ")
	if rest == "" {
		return name
	}
	return name + " " + rest
}

func tokensText(values []tdcss.Token) string {
	var sb strings.Builder
	for _, v := range values {
		sb.Write(v.Data)
	}
	return sb.String()
}

// importURL extracts the target of @import "x"; or @import url(x);
func importURL(tokens []tdcss.Token) string {
	for _, t := range tokens {
		switch t.TokenType {
		case tdcss.StringToken:
			return unquote(string(t.Data))
		case tdcss.URLToken:
			s := strings.TrimSuffix(strings.TrimPrefix(string(t.Data), "url("), ")")
			return unquote(strings.TrimSpace(s))
		}
	}
	return ""
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
