package css

import (
	"bytes"
	"regexp"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	tdcss "github.com/tdewolff/parse/v2/css"
)

var importantRegex = regexp.MustCompile(`!\s*important\s*$`)

// ParseDeclarations parses a declaration block body (without braces) or an
// inline style attribute. Malformed declarations are skipped. Declarations
// keep their source order and duplicates are preserved.
func ParseDeclarations(text string) []Declaration {
	p := tdcss.NewParser(parse.NewInput(bytes.NewReader([]byte(text))), true)

	var out []Declaration
	for {
		gt, _, data := p.Next()
		switch gt {
		case tdcss.ErrorGrammar:
			// recoverable grammar errors leave Err() nil; EOF ends the block
			if p.Err() != nil {
				return out
			}
		case tdcss.DeclarationGrammar, tdcss.CustomPropertyGrammar:
			if d, ok := DeclarationFromTokens(string(data), p.Values()); ok {
				out = append(out, d)
			}
		}
	}
}

// DeclarationFromTokens builds a Declaration from a property name and the
// value tokens reported by the tokenizer. Property names are lower-cased
// except custom properties.
func DeclarationFromTokens(property string, values []tdcss.Token) (Declaration, bool) {
	property = strings.TrimSpace(property)
	if !strings.HasPrefix(property, "--") {
		property = strings.ToLower(property)
	}

	var sb strings.Builder
	for _, v := range values {
		if v.TokenType == tdcss.WhitespaceToken {
			sb.WriteByte(' ')
			continue
		}
		sb.Write(v.Data)
	}
	value := strings.TrimSpace(sb.String())

	important := importantRegex.MatchString(value)
	if important {
		value = strings.TrimSpace(importantRegex.ReplaceAllString(value, ""))
	}
	if property == "" || value == "" {
		return Declaration{}, false
	}

	return Declaration{
		Property:  property,
		Value:     value,
		Important: important,
	}, true
}

// FormatDeclarations renders declarations back to block-body text.
func FormatDeclarations(decls []Declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.String()+";")
	}
	return strings.Join(parts, " ")
}
