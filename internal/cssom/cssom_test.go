package cssom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"styleinspect/internal/css"
)

func TestParse(t *testing.T) {
	text := `@import url("a.css");
h1,
p.note { color: red; margin: 0 !important }
@media print { .a { x: y } }
@font-face { font-family: f }
`
	sheet, err := NewParser(zaptest.NewLogger(t)).Parse(text)
	require.NoError(t, err)
	require.Len(t, sheet.Rules, 4)

	imp := sheet.Rules[0]
	assert.Equal(t, ImportRule, imp.Kind)
	assert.Equal(t, "a.css", imp.Href)

	style := sheet.Rules[1]
	assert.Equal(t, StyleRule, style.Kind)
	assert.Equal(t, "h1, p.note", style.SelectorText)
	assert.Equal(t, []css.Declaration{
		{Property: "color", Value: "red"},
		{Property: "margin", Value: "0", Important: true},
	}, style.Declarations)

	media := sheet.Rules[2]
	assert.Equal(t, GroupingRule, media.Kind)
	assert.Equal(t, "@media print", media.Prelude)
	require.Len(t, media.Rules, 1)
	assert.Equal(t, ".a", media.Rules[0].SelectorText)

	assert.Equal(t, OtherRule, sheet.Rules[3].Kind)
	assert.Equal(t, 2, sheet.StyleRuleCount())
}

func TestParseSelectorMatchesPositionalKey(t *testing.T) {
	text := "div   >  p.x ,\n a[href] { x: y }"
	sheet, err := NewParser(nil).Parse(text)
	require.NoError(t, err)
	require.Len(t, sheet.Rules, 1)

	root := css.NewParser(nil).Parse(text, 0)
	require.Len(t, root.Children, 1)
	assert.Equal(t, root.Children[0].SelectorText, sheet.Rules[0].SelectorText)
}

func TestParseEmpty(t *testing.T) {
	sheet, err := NewParser(nil).Parse("")
	require.NoError(t, err)
	assert.Empty(t, sheet.Rules)
	assert.Equal(t, "style", StyleRule.String())
}
