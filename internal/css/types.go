package css

import (
	"fmt"
	"strings"
)

// Specificity represents CSS specificity with individual components
// Counts are kept per CSS category: IDs, classes/attributes/pseudo-classes, elements/pseudo-elements
type Specificity struct {
	IDs      int // #id selectors
	Classes  int // .class, [attr], :pseudo-class
	Elements int // element, ::pseudo-element
}

// Weight collapses the three counts into one sortable integer:
// Elements + 10*Classes + 100*IDs.
// Counts of ten or more bleed into the next column, so eleven classes
// outweigh a single id. Use Compare for the exact ordering.
func (s Specificity) Weight() int {
	return s.Elements + 10*s.Classes + 100*s.IDs
}

// Compare returns -1 if s < other, 0 if equal, 1 if s > other
// Components are compared lexicographically: IDs, then classes, then elements.
func (s Specificity) Compare(other Specificity) int {
	if s.IDs != other.IDs {
		if s.IDs > other.IDs {
			return 1
		}
		return -1
	}
	if s.Classes != other.Classes {
		if s.Classes > other.Classes {
			return 1
		}
		return -1
	}
	if s.Elements != other.Elements {
		if s.Elements > other.Elements {
			return 1
		}
		return -1
	}

	return 0 // Equal specificity
}

// Add returns the component-wise sum of s and other.
func (s Specificity) Add(other Specificity) Specificity {
	return Specificity{
		IDs:      s.IDs + other.IDs,
		Classes:  s.Classes + other.Classes,
		Elements: s.Elements + other.Elements,
	}
}

func (s Specificity) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.IDs, s.Classes, s.Elements)
}

// SpecificityMode selects how two specificities are ordered in the cascade.
type SpecificityMode int

const (
	// SpecificityWeighted orders by Weight().
	SpecificityWeighted SpecificityMode = iota
	// SpecificityTuple orders by Compare().
	SpecificityTuple
)

// ParseSpecificityMode maps a configuration value to a SpecificityMode.
func ParseSpecificityMode(s string) (SpecificityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "weighted":
		return SpecificityWeighted, nil
	case "tuple":
		return SpecificityTuple, nil
	default:
		return SpecificityWeighted, fmt.Errorf("unknown specificity mode %q (valid: weighted, tuple)", s)
	}
}

func (m SpecificityMode) String() string {
	if m == SpecificityTuple {
		return "tuple"
	}
	return "weighted"
}

// Compare orders a and b according to the mode.
func (m SpecificityMode) Compare(a, b Specificity) int {
	if m == SpecificityTuple {
		return a.Compare(b)
	}
	wa, wb := a.Weight(), b.Weight()
	switch {
	case wa < wb:
		return -1
	case wa > wb:
		return 1
	}
	return 0
}

// Declaration represents a single CSS property declaration
type Declaration struct {
	Property  string // CSS property name (normalized)
	Value     string // CSS property value
	Important bool   // !important flag
}

func (d Declaration) String() string {
	if d.Important {
		return d.Property + ": " + d.Value + " !important"
	}
	return d.Property + ": " + d.Value
}

// ParsedRule is a node of the positioned rule tree produced by Parser.Parse.
// Offsets are byte offsets into the parsed text: text[Start:BodyStart] is the
// selector (or at-rule prelude) and text[BodyStart:End] is the body including
// both braces. Import leaves have BodyStart == End.
type ParsedRule struct {
	Start        int
	BodyStart    int
	End          int
	Line         int    // 1-based, already shifted by the parse start line
	SelectorText string // normalized once the tree is returned
	Import       bool
	Href         string // @import target
	Condition    string // prelude of the grouping at-rule this rule was hoisted from
	Children     []*ParsedRule
}

// Body returns the declarations text between the braces, trimmed.
func (r *ParsedRule) Body(text string) string {
	if r.Import || r.End <= r.BodyStart || r.End > len(text) {
		return ""
	}
	body := text[r.BodyStart+1 : r.End]
	body = strings.TrimSuffix(body, "}")
	return strings.TrimSpace(body)
}

// Walk visits r's descendants depth-first in source order.
func (r *ParsedRule) Walk(fn func(*ParsedRule)) {
	for _, c := range r.Children {
		fn(c)
		c.Walk(fn)
	}
}
