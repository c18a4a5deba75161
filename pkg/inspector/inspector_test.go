package inspector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"styleinspect/internal/css"
	"styleinspect/internal/match"
	"styleinspect/internal/resolver"
)

const page = `<html>
<head>
<link rel="stylesheet" href="site.css">
<link rel="stylesheet" href="https://cdn.example.com/x.css">
<style>
p { color: red }
.lead { color: blue }
</style>
</head>
<body><p class="lead">hi</p><p>x</p></body>
</html>`

func loadFixture(t *testing.T) *Inspector {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte(page), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site.css"), []byte("p { margin: 0 }"), 0644))

	i := New(nil, zaptest.NewLogger(t))
	stats, err := i.LoadFile(filepath.Join(dir, "page.html"))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Stylesheets)
	assert.Equal(t, 1, stats.Unreadable)
	assert.Equal(t, 3, stats.Rules)
	return i
}

func TestLoadFileRules(t *testing.T) {
	i := loadFixture(t)

	got, err := i.RulesFor("p.lead")
	require.NoError(t, err)
	require.Len(t, got, 1)

	var sels []string
	var lines []int
	for _, r := range got[0].Rules {
		sels = append(sels, r.Rule.SelectorText)
		lines = append(lines, r.Rule.Line)
	}
	assert.Equal(t, []string{"p", "p", ".lead"}, sels)
	assert.Equal(t, []int{1, 6, 7}, lines, "inline rules carry document lines")

	unreadable := i.Unreadable()
	require.Len(t, unreadable, 1)
	assert.Equal(t, "https://cdn.example.com/x.css", unreadable[0].Href)
	assert.ErrorIs(t, unreadable[0].Err, resolver.ErrUnreadable)

	var origins []string
	for _, s := range i.Stylesheets() {
		origins = append(origins, s.Source.Origin.Href)
	}
	assert.Equal(t, []string{"site.css", "https://cdn.example.com/x.css", ""}, origins)
}

func TestStyles(t *testing.T) {
	i := loadFixture(t)

	got, err := i.Styles("p")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "color: blue; margin: 0;", css.FormatDeclarations(resolver.Winning(got[0].Styles)))
	assert.Equal(t, "color: red; margin: 0;", css.FormatDeclarations(resolver.Winning(got[1].Styles)))
}

func TestReprocess(t *testing.T) {
	i := loadFixture(t)
	before := i.Rules()

	stats, err := i.Reprocess()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Rules)
	assert.Equal(t, 3, stats.Stylesheets)

	after := i.Rules()
	for k := range before {
		assert.Equal(t, before[k].SelectorText, after[k].SelectorText)
		assert.Less(t, before[k].GlobalOrder, after[k].GlobalOrder)
	}
}

func TestLoadString(t *testing.T) {
	i := New(nil, nil)

	_, err := i.Match("p")
	assert.ErrorIs(t, err, ErrNoDocument)
	_, err = i.Reprocess()
	assert.ErrorIs(t, err, ErrNoDocument)
	assert.Nil(t, i.Stylesheets())

	stats, err := i.Load(`<style>div > p { color: red }</style><div><p>a</p></div><p>b</p>`)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rules)
	assert.Equal(t, stats.Elements, i.Document().Len())

	nodes, err := i.Match("p")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	got, err := i.RulesFor("p")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Len(t, got[0].Rules, 1)
	assert.Empty(t, got[1].Rules)

	_, err = i.RulesFor("p:bogus")
	var syntaxErr *match.SelectorSyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}

type mapLoader map[string]string

func (m mapLoader) Load(href, _ string) (resolver.Source, error) {
	text, ok := m[href]
	if !ok {
		return resolver.Source{}, fmt.Errorf("%w: %s", resolver.ErrUnreadable, href)
	}
	return resolver.Source{Origin: resolver.Origin{Href: href}, Text: text, Location: href}, nil
}

func TestWithLoader(t *testing.T) {
	loader := mapLoader{
		"a.css": `@import "b.css"; .x { color: red }`,
		"b.css": `div .x { color: blue }`,
	}
	i := New(nil, zaptest.NewLogger(t), WithLoader(loader))

	_, err := i.Load(`<link rel="stylesheet" href="a.css"><link rel="stylesheet" href="gone.css"><div><span class="x"></span></div>`)
	require.NoError(t, err)

	stats := i.Stats()
	assert.Equal(t, 3, stats.Stylesheets)
	assert.Equal(t, 1, stats.Unreadable)
	assert.Equal(t, 2, stats.Rules)

	got, err := i.RulesFor(".x")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Rules, 2)
	assert.Equal(t, ".x", got[0].Rules[0].Rule.SelectorText)
	assert.Equal(t, "div .x", got[0].Rules[1].Rule.SelectorText)
	assert.Less(t, got[0].Rules[1].Rule.GlobalOrder, got[0].Rules[0].Rule.GlobalOrder, "imported rules come first in source order")
}
