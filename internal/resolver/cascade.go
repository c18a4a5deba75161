package resolver

import (
	"cmp"
	"slices"
	"strings"

	"styleinspect/internal/css"
	"styleinspect/internal/html"
)

// StyledDeclaration is a declaration together with its cascade outcome.
type StyledDeclaration struct {
	css.Declaration
	Overridden bool
}

// RuleStyle is one entry of an element's cascade.
type RuleStyle struct {
	Rule         *CompiledRule // nil for the inline style attribute
	Specificity  css.Specificity
	Inline       bool
	Declarations []StyledDeclaration
}

// Styles returns the cascade of n from lowest to highest precedence: the
// matching rules as ordered by RulesFor, followed by the element's style
// attribute when inline styles are enabled. Every declaration that loses to
// a later one for the same property is marked overridden.
func (e *Engine) Styles(n html.Node) ([]RuleStyle, error) {
	matched, err := e.RulesFor(n)
	if err != nil {
		return nil, err
	}

	out := make([]RuleStyle, 0, len(matched)+1)
	for _, m := range matched {
		out = append(out, RuleStyle{
			Rule:         m.Rule,
			Specificity:  m.Specificity,
			Declarations: styled(m.Rule.Declarations),
		})
	}
	if e.inlineStyle {
		if style, ok := n.Attr("style"); ok && strings.TrimSpace(style) != "" {
			out = append(out, RuleStyle{Inline: true, Declarations: styled(css.ParseDeclarations(style))})
		}
	}

	applyCascade(out)
	return out, nil
}

// Winning returns the declarations that survive the cascade, sorted by
// property.
func Winning(styles []RuleStyle) []css.Declaration {
	var out []css.Declaration
	for _, s := range styles {
		for _, d := range s.Declarations {
			if !d.Overridden {
				out = append(out, d.Declaration)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b css.Declaration) int { return cmp.Compare(a.Property, b.Property) })
	return out
}

func styled(decls []css.Declaration) []StyledDeclaration {
	out := make([]StyledDeclaration, len(decls))
	for i, d := range decls {
		out[i] = StyledDeclaration{Declaration: d}
	}
	return out
}

// cascadeEntry locates the current winner of a property.
type cascadeEntry struct {
	rule      int
	decl      int
	important bool
}

// applyCascade marks losing declarations. styles is in ascending precedence.
func applyCascade(styles []RuleStyle) {
	winners := make(map[string]cascadeEntry)
	for i := range styles {
		for j := range styles[i].Declarations {
			d := &styles[i].Declarations[j]
			entry := cascadeEntry{rule: i, decl: j, important: d.Important}

			existing, ok := winners[d.Property]
			if !ok {
				winners[d.Property] = entry
				continue
			}
			if shouldReplace(entry, existing) {
				styles[existing.rule].Declarations[existing.decl].Overridden = true
				winners[d.Property] = entry
			} else {
				d.Overridden = true
			}
		}
	}
}

// shouldReplace reports whether a later declaration beats the current
// winner. Only !important lets an earlier declaration hold.
func shouldReplace(next, existing cascadeEntry) bool {
	return next.important || !existing.important
}
