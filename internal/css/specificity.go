package css

import (
	"regexp"
	"strings"
)

// Specificity calculation regexes (RE2 compatible). They run over a selector
// whose escapes, attribute blocks and function arguments have already been
// masked.
const nameChars = `(?:[a-zA-Z0-9_-]|[^\x00-\x7f])+`

var (
	idRegex            = regexp.MustCompile(`#` + nameChars)
	classRegex         = regexp.MustCompile(`\.` + nameChars)
	pseudoElementRegex = regexp.MustCompile(`(?i)::` + nameChars + `|:(?:before|after|first-line|first-letter)\b`)
	pseudoClassRegex   = regexp.MustCompile(`:` + nameChars)
	elementRegex       = regexp.MustCompile(`(?:[a-zA-Z_]|[^\x00-\x7f])(?:[a-zA-Z0-9_-]|[^\x00-\x7f])*`)
	trailingPseudo     = regexp.MustCompile(`::?` + nameChars + `$`)
)

// Calculate returns the specificity of a single (non-grouped) selector.
//
// Ids, classes/attributes/pseudo-classes and type names/pseudo-elements are
// counted by independent scans. :not(), :is() and :has() contribute the
// largest specificity among their arguments, :where() contributes nothing.
// The arguments are always ranked against each other as tuples, whatever
// mode the cascade compares rules with.
func Calculate(selector string) Specificity {
	rest, spec := maskSelector(stripComments(selector))

	count := func(re *regexp.Regexp) int {
		n := len(re.FindAllStringIndex(rest, -1))
		if n > 0 {
			rest = re.ReplaceAllString(rest, " ")
		}
		return n
	}

	spec.Elements += count(pseudoElementRegex)
	spec.Classes += count(pseudoClassRegex)
	spec.IDs += count(idRegex)
	spec.Classes += count(classRegex)
	spec.Elements += count(elementRegex)

	return spec
}

// MaxSpecificity returns the largest specificity among branches under mode.
func MaxSpecificity(branches []string, mode SpecificityMode) Specificity {
	var best Specificity
	for i, b := range branches {
		s := Calculate(b)
		if i == 0 || mode.Compare(s, best) > 0 {
			best = s
		}
	}
	return best
}

// maskSelector removes attribute blocks and function arguments from sel and
// replaces every escape with a plain name character, so `.md\:flex` is one
// class. Each attribute block is counted as a class. Arguments of the logical
// pseudo-classes are evaluated recursively and returned as extra specificity.
func maskSelector(sel string) (string, Specificity) {
	var (
		out   = make([]byte, 0, len(sel))
		extra Specificity
	)
	for i := 0; i < len(sel); i++ {
		c := sel[i]
		switch c {
		case '\\':
			out = append(out, '_')
			i = escapeEnd(sel, i) - 1

		case '[':
			extra.Classes++
			i = closing(sel, i, '[', ']')

		case '(':
			end := closing(sel, i, '(', ')')
			args := sel[i+1 : min(end, len(sel))]
			loc := trailingPseudo.FindIndex(out)
			if loc != nil {
				switch strings.ToLower(string(out[loc[0]:])) {
				case ":not", ":is", ":matches", ":has", ":-webkit-any", ":-moz-any":
					extra = extra.Add(MaxSpecificity(SplitGroup(args), SpecificityTuple))
					out = out[:loc[0]]
				case ":where":
					out = out[:loc[0]]
				}
			}
			i = end

		default:
			out = append(out, c)
		}
	}
	return string(out), extra
}

// escapeEnd returns the index just past the escape starting at sel[start]:
// up to six hex digits and one optional whitespace (CRLF counts as one), or
// a single escaped byte.
func escapeEnd(sel string, start int) int {
	i := start + 1
	if i >= len(sel) {
		return i
	}
	if !isHex(sel[i]) {
		return i + 1
	}
	for i < start+7 && i < len(sel) && isHex(sel[i]) {
		i++
	}
	if i < len(sel) {
		switch sel[i] {
		case '\r':
			i++
			if i < len(sel) && sel[i] == '\n' {
				i++
			}
		case ' ', '\t', '\n', '\f':
			i++
		}
	}
	return i
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// closing returns the index of the bracket closing the one at sel[open],
// honouring nesting and quotes, or len(sel) when it is never closed.
func closing(sel string, open int, lb, rb byte) int {
	depth := 0
	var quote byte
	for i := open; i < len(sel); i++ {
		c := sel[i]
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
		case lb:
			depth++
		case rb:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(sel)
}
