package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"styleinspect/internal/config"
	"styleinspect/internal/css"
	"styleinspect/internal/html"
)

const page = `<html><head></head><body>
<h1 id="t" class="a b c d e f g h i j k">T</h1>
<p class="note" style="margin: 1px; color: black">n</p>
<p>plain</p>
</body></html>`

const sheet = `h1, p.note { color: red }
.note { color: blue; margin: 0 !important }
p { color: green }
@media print {
  p { font-size: 10pt }
}
p:unknown { color: pink }
`

func newEngine(t *testing.T, mutate func(*config.Config)) (*Engine, *html.GoQueryDocument) {
	t.Helper()
	doc, err := html.NewParser().Parse(page)
	require.NoError(t, err)
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(doc, &cfg, nil, zaptest.NewLogger(t)), doc
}

func selectors(rules []MatchedRule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Rule.SelectorText)
	}
	return out
}

func TestRulesForOrdering(t *testing.T) {
	e, doc := newEngine(t, nil)
	id := e.RegisterStylesheet(Source{Origin: Origin{Inline: true}, Text: sheet, StartLine: 2})
	require.NoError(t, e.IndexStylesheet(id))

	note := doc.ElementsByClass("note")[0]
	rules, err := e.RulesFor(note)
	require.NoError(t, err)
	assert.Equal(t, []string{"p", "p", ".note", "h1, p.note"}, selectors(rules))

	grouped := rules[3]
	assert.True(t, grouped.Rule.Grouped)
	assert.Equal(t, []string{"h1", "p.note"}, grouped.Rule.Branches)
	assert.Equal(t, css.Specificity{Classes: 1, Elements: 1}, grouped.Specificity)
	assert.Equal(t, "p.note", grouped.Branch)
	assert.Equal(t, 3, grouped.Rule.Line)
	assert.Equal(t, "color: red", grouped.Rule.DeclarationsText)

	media := rules[1]
	assert.Equal(t, "@media print", media.Rule.Condition)
	assert.Equal(t, 7, media.Rule.Line)
	assert.Equal(t, 3, media.Rule.RuleIndex)

	// the same grouped rule ranks by its other branch on h1
	h1 := doc.ElementsByTag("h1")[0]
	rules, err = e.RulesFor(h1)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, css.Specificity{Elements: 1}, rules[0].Specificity)
	assert.Equal(t, "h1", rules[0].Branch)

	again, err := e.RulesFor(note)
	require.NoError(t, err)
	first, _ := e.RulesFor(note)
	assert.Equal(t, first, again)
}

func TestBrokenSelectorMatchesNothing(t *testing.T) {
	e, _ := newEngine(t, nil)
	id := e.RegisterStylesheet(Source{Text: sheet})
	require.NoError(t, e.IndexStylesheet(id))

	rules := e.Rules()
	require.Len(t, rules, 5)
	broken := rules[4]
	assert.Equal(t, "p:unknown", broken.SelectorText)
	assert.Error(t, broken.Err)

	for _, r := range rules {
		assert.Equal(t, id, r.StylesheetID)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, []int{
		rules[0].GlobalOrder, rules[1].GlobalOrder, rules[2].GlobalOrder, rules[3].GlobalOrder, rules[4].GlobalOrder,
	})
}

func TestSpecificityModes(t *testing.T) {
	const text = `#t { color: red } .a.b.c.d.e.f.g.h.i.j.k { color: blue }`

	for _, tt := range []struct {
		mode string
		want []string
	}{
		{"weighted", []string{"#t", ".a.b.c.d.e.f.g.h.i.j.k"}},
		{"tuple", []string{".a.b.c.d.e.f.g.h.i.j.k", "#t"}},
	} {
		t.Run(tt.mode, func(t *testing.T) {
			e, doc := newEngine(t, func(c *config.Config) { c.Specificity = tt.mode })
			require.NoError(t, e.IndexStylesheet(e.RegisterStylesheet(Source{Text: text})))

			rules, err := e.RulesFor(doc.ElementsByID("t")[0])
			require.NoError(t, err)
			assert.Equal(t, tt.want, selectors(rules))
		})
	}
}

func TestRulesForFollowsSourceOrder(t *testing.T) {
	doc, err := html.NewParser().Parse(`<p class="md:flex x a b">p</p>`)
	require.NoError(t, err)
	p := doc.ElementsByTag("p")[0]

	for _, tt := range []struct {
		name          string
		first, second string
	}{
		{"classes", ".a", ".b"},
		{"escaped class", `.md\:flex`, ".x"},
		{"compound", "p.a", "p.b"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			for _, order := range [][2]string{{tt.first, tt.second}, {tt.second, tt.first}} {
				e := New(doc, nil, nil, zaptest.NewLogger(t))
				text := order[0] + " { color: red }\n" + order[1] + " { color: blue }\n"
				require.NoError(t, e.IndexStylesheet(e.RegisterStylesheet(Source{Text: text})))

				rules, err := e.RulesFor(p)
				require.NoError(t, err)
				require.Len(t, rules, 2)
				assert.Equal(t, rules[0].Specificity, rules[1].Specificity)
				assert.Equal(t, []string{order[0], order[1]}, selectors(rules))
			}
		})
	}
}

func TestStyles(t *testing.T) {
	e, doc := newEngine(t, nil)
	require.NoError(t, e.IndexStylesheet(e.RegisterStylesheet(Source{Text: sheet})))

	styles, err := e.Styles(doc.ElementsByClass("note")[0])
	require.NoError(t, err)
	require.Len(t, styles, 5)

	inline := styles[4]
	assert.True(t, inline.Inline)
	assert.Nil(t, inline.Rule)
	require.Len(t, inline.Declarations, 2)
	assert.True(t, inline.Declarations[0].Overridden, "margin loses to !important")
	assert.False(t, inline.Declarations[1].Overridden, "inline color wins")

	important := styles[2]
	assert.Equal(t, ".note", important.Rule.SelectorText)
	assert.True(t, important.Declarations[0].Overridden)
	assert.False(t, important.Declarations[1].Overridden)

	assert.Equal(t, "color: black; font-size: 10pt; margin: 0 !important;", css.FormatDeclarations(Winning(styles)))

	e, doc = newEngine(t, func(c *config.Config) { c.InlineStyle = false })
	require.NoError(t, e.IndexStylesheet(e.RegisterStylesheet(Source{Text: sheet})))
	styles, err = e.Styles(doc.ElementsByClass("note")[0])
	require.NoError(t, err)
	assert.Len(t, styles, 4)
	assert.Equal(t, "color: red; font-size: 10pt; margin: 0 !important;", css.FormatDeclarations(Winning(styles)))
}

func TestRestrictedStylesheets(t *testing.T) {
	e, doc := newEngine(t, nil)
	restricted := e.RegisterUnreadable(Origin{Href: "https://cdn.example.com/x.css"}, ErrUnreadable)
	readable := e.RegisterStylesheet(Source{Text: "p { color: red }"})

	require.NoError(t, e.IndexStylesheet(restricted))
	require.NoError(t, e.IndexStylesheet(readable))
	assert.ErrorIs(t, e.IndexStylesheet(999), ErrUnknownStylesheet)

	rules, err := e.RulesFor(doc.ElementsByTag("p")[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, selectors(rules))

	unreadable := e.UnreadableStylesheets()
	require.Len(t, unreadable, 1)
	assert.Equal(t, restricted, unreadable[0].ID)
	assert.Equal(t, "https://cdn.example.com/x.css", unreadable[0].Href)

	s, ok := e.Registry().Get(restricted)
	require.True(t, ok)
	assert.Equal(t, Restricted, s.State)

	// indexing twice adds nothing
	require.NoError(t, e.IndexStylesheet(readable))
	assert.Len(t, e.Rules(), 1)
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

var importFiles = map[string]string{
	"base.css": `@import "a.css";
p { color: red }`,
	"a.css": `@import url(b.css);
@import "base.css";
@import "http://example.com/x.css";
p { color: blue }`,
	"b.css": `p { color: green }`,
}

func TestImports(t *testing.T) {
	dir := writeFiles(t, importFiles)
	e, doc := newEngine(t, func(c *config.Config) { c.BaseDir = dir })

	src, err := FileLoader{BaseDir: dir}.Load("base.css", "")
	require.NoError(t, err)
	require.NoError(t, e.IndexStylesheet(e.RegisterStylesheet(src)))

	rules, err := e.RulesFor(doc.ElementsByTag("p")[1])
	require.NoError(t, err)
	var values []string
	for _, r := range rules {
		values = append(values, r.Rule.Declarations[0].Value)
	}
	assert.Equal(t, []string{"green", "blue", "red"}, values, "imported rules precede the importer")

	var hrefs []string
	for _, s := range e.Registry().Ordered() {
		hrefs = append(hrefs, s.Source.Origin.Href)
	}
	assert.Equal(t, []string{"base.css", "a.css", "b.css", "http://example.com/x.css"}, hrefs)

	unreadable := e.UnreadableStylesheets()
	require.Len(t, unreadable, 1)
	assert.ErrorIs(t, unreadable[0].Err, ErrUnreadable)

	a, ok := e.Registry().FindImport(1, "a.css")
	require.True(t, ok)
	assert.Equal(t, 1, a.Depth)
	assert.Equal(t, Indexed, a.State)

	// reindexing reuses the registered imports
	before := e.Registry().Len()
	require.NoError(t, e.ReindexAll())
	assert.Equal(t, before, e.Registry().Len())
	again, err := e.RulesFor(doc.ElementsByTag("p")[1])
	require.NoError(t, err)
	assert.Len(t, again, 3)
}

func TestImportDepth(t *testing.T) {
	dir := writeFiles(t, importFiles)
	e, doc := newEngine(t, func(c *config.Config) { c.MaxImportDepth = 1 })

	src, err := FileLoader{BaseDir: dir}.Load("base.css", "")
	require.NoError(t, err)
	require.NoError(t, e.IndexStylesheet(e.RegisterStylesheet(src)))

	rules, err := e.RulesFor(doc.ElementsByTag("p")[1])
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "blue", rules[0].Rule.Declarations[0].Value)
	assert.Equal(t, "red", rules[1].Rule.Declarations[0].Value)
}

func TestInvalidateAndClear(t *testing.T) {
	e, doc := newEngine(t, nil)
	require.NoError(t, e.IndexStylesheet(e.RegisterStylesheet(Source{Text: sheet})))

	note := doc.ElementsByClass("note")[0]
	before, err := e.RulesFor(note)
	require.NoError(t, err)

	e.Invalidate(note.Handle())
	after, err := e.RulesFor(note)
	require.NoError(t, err)
	assert.Equal(t, selectors(before), selectors(after))

	e.Clear()
	assert.Empty(t, e.Rules())
	assert.Zero(t, e.Registry().Len())
	rules, err := e.RulesFor(note)
	require.NoError(t, err)
	assert.Empty(t, rules)

	// ids are never reused
	assert.Equal(t, StylesheetID(2), e.RegisterStylesheet(Source{Text: "p {}"}))

	_, err = e.RulesFor(nil)
	assert.Error(t, err)
}

func TestFileLoader(t *testing.T) {
	dir := writeFiles(t, map[string]string{"b.css": "p {}"})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	l := FileLoader{BaseDir: filepath.Join(dir, "sub")}

	for _, href := range []string{"http://x/y.css", "//cdn/y.css", "data:text/css,p{}", "missing.css"} {
		_, err := l.Load(href, "")
		assert.ErrorIs(t, err, ErrUnreadable, href)
	}

	src, err := l.Load("../b.css", "")
	require.NoError(t, err)
	assert.Equal(t, "p {}", src.Text)
	assert.Equal(t, "../b.css", src.Origin.Href)

	// relative to the importing sheet, not the base directory
	src, err = l.Load("b.css?v=2", filepath.Join(dir, "main.css"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b.css"), src.Location)

	src, err = l.Load("file://"+filepath.ToSlash(filepath.Join(dir, "b.css")), "")
	require.NoError(t, err)
	assert.Equal(t, "p {}", src.Text)
}
