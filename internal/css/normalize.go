package css

import (
	"strings"
)

// NormalizeSelector canonicalizes selector text so that the same selector
// written with different whitespace, comments or comma spacing yields the
// same string. It is the join key between positioned rules and engine rule
// objects.
//
// Top-level whitespace collapses to one space, combinators are surrounded by
// single spaces, commas are followed by one space. Inside [] and () spaces
// survive only between two name characters. Quoted strings are copied as is.
func NormalizeSelector(sel string) string {
	sel = stripComments(sel)

	var (
		b       strings.Builder
		depth   int
		quote   byte
		pending bool
	)
	b.Grow(len(sel))

	last := func() byte {
		s := b.String()
		if s == "" {
			return 0
		}
		return s[len(s)-1]
	}
	flush := func(next byte) {
		if !pending {
			return
		}
		pending = false
		if b.Len() == 0 {
			return
		}
		if depth > 0 {
			if nameByte(last()) && nameByte(next) {
				b.WriteByte(' ')
			}
			return
		}
		b.WriteByte(' ')
	}

	for i := 0; i < len(sel); i++ {
		c := sel[i]

		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(sel) {
				i++
				b.WriteByte(sel[i])
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case isSpace(c):
			pending = true

		case c == '"' || c == '\'':
			flush(c)
			quote = c
			b.WriteByte(c)

		case c == '\\':
			flush(c)
			b.WriteByte(c)
			if i+1 < len(sel) {
				i++
				b.WriteByte(sel[i])
			}

		case depth == 0 && c == ',':
			pending = false
			b.WriteByte(',')
			pending = true

		case depth == 0 && (c == '>' || c == '+' || c == '~'):
			pending = false
			if b.Len() > 0 && last() != ' ' {
				b.WriteByte(' ')
			}
			b.WriteByte(c)
			pending = true

		case c == '[' || c == '(':
			flush(c)
			depth++
			b.WriteByte(c)

		case c == ']' || c == ')':
			pending = false
			if depth > 0 {
				depth--
			}
			b.WriteByte(c)

		default:
			flush(c)
			b.WriteByte(c)
		}
	}

	return strings.TrimSpace(b.String())
}

// SplitGroup splits a grouped selector on its top-level commas.
// Commas inside [], () or quotes do not split. Empty branches are dropped.
func SplitGroup(sel string) []string {
	var (
		out   []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(sel); i++ {
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
		case '[', '(':
			depth++
		case ']', ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				if part := strings.TrimSpace(sel[start:i]); part != "" {
					out = append(out, part)
				}
				start = i + 1
			}
		}
	}
	if start <= len(sel) {
		if part := strings.TrimSpace(sel[start:]); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// stripComments removes /* ... */ comments. An unterminated comment runs to
// the end of the string.
func stripComments(s string) string {
	if !strings.Contains(s, "/*") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "/*")
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		j := strings.Index(s[i+2:], "*/")
		if j < 0 {
			break
		}
		b.WriteByte(' ')
		s = s[i+2+j+2:]
	}
	return b.String()
}

// collapseSpace trims s and reduces every whitespace run to one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nameByte(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '_' || c >= 0x80
}
