package html

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<html><head><title>t</title></head><body>` +
	`<div id="a" class="x y"><p>one</p><p class="x">two</p></div>` +
	`<ul><li>1</li><li>2</li></ul>` +
	`</body></html>`

func parseSample(t *testing.T, src string) *GoQueryDocument {
	t.Helper()
	doc, err := NewParser().Parse(src)
	require.NoError(t, err)
	return doc
}

func tags(nodes []Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, Describe(n))
	}
	return out
}

func TestDocumentArena(t *testing.T) {
	doc := parseSample(t, sample)

	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, "html", root.TagName())
	assert.Nil(t, root.Parent())
	assert.Equal(t, Handle(0), root.Handle())
	assert.Equal(t, 10, doc.Len())

	div := doc.ElementsByID("a")
	require.Len(t, div, 1)
	assert.Equal(t, "div#a.x.y", Describe(div[0]))
	assert.Equal(t, "onetwo", div[0].Text())

	first := div[0].FirstChild()
	require.NotNil(t, first)
	assert.Equal(t, "p", first.TagName())
	assert.Nil(t, first.PrevSibling())
	second := first.NextSibling()
	require.NotNil(t, second)
	assert.Equal(t, []string{"x"}, second.Classes())
	assert.Nil(t, second.NextSibling())
	assert.Equal(t, div[0].Handle(), second.Parent().Handle())

	assert.Equal(t, []string{"div#a.x.y", "p.x"}, tags(doc.ElementsByClass("x")))
	assert.Len(t, doc.ElementsByTag("LI"), 2)
	assert.Nil(t, doc.ElementsByID("missing"))
	assert.Nil(t, doc.Node(Handle(99)))

	v, ok := div[0].Attr("CLASS")
	assert.True(t, ok)
	assert.Equal(t, "x y", v)
}

// treeOnly hides every optional capability of the wrapped document.
type treeOnly struct {
	Document
}

func TestCompareTreeOrderAgreesWithHandles(t *testing.T) {
	doc := parseSample(t, sample)

	for i := 0; i < doc.Len(); i++ {
		for j := 0; j < doc.Len(); j++ {
			a, b := doc.Node(Handle(i)), doc.Node(Handle(j))
			assert.Equal(t, sign(doc.Compare(a, b)), sign(CompareTreeOrder(a, b)), "%d vs %d", i, j)
		}
	}
}

func TestSortNodes(t *testing.T) {
	doc := parseSample(t, sample)
	li := doc.ElementsByTag("li")
	p := doc.ElementsByTag("p")
	mixed := []Node{li[1], p[0], li[0], p[0], doc.Root(), li[1]}

	for name, d := range map[string]Document{"native": doc, "tree walk": treeOnly{doc}} {
		t.Run(name, func(t *testing.T) {
			in := append([]Node(nil), mixed...)
			got := SortNodes(d, in)
			assert.Equal(t, []string{"html", "p", "li", "li"}, tags(got))
			assert.Equal(t, li[0].Handle(), got[2].Handle())
		})
	}
}

func TestStyleElements(t *testing.T) {
	src := "<html>\n<head>\n<style>\na { x: y }\n</style>\n" +
		"<link rel=\"Stylesheet\" href=\" main.css \" media=\"print\">\n" +
		"<link rel=\"icon\" href=\"x.ico\">\n" +
		"<!-- <style>b{}</style> -->\n" +
		"</head>\n<body><style>p{}</style></body></html>"
	doc := parseSample(t, src)

	els := doc.StyleElements()
	require.Len(t, els, 3)

	assert.True(t, els[0].Inline)
	assert.Equal(t, "\na { x: y }\n", els[0].Text)
	assert.Equal(t, 2, els[0].StartLine)
	assert.Equal(t, "\na", src[els[0].Offset:els[0].Offset+2])

	assert.False(t, els[1].Inline)
	assert.Equal(t, "main.css", els[1].Href)
	assert.Equal(t, "print", els[1].Media)

	assert.True(t, els[2].Inline)
	assert.Equal(t, "p{}", els[2].Text)
	assert.Equal(t, 9, els[2].StartLine)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
