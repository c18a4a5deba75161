package html

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StyleElement is a <style> or <link rel=stylesheet> element found in the
// document.
type StyleElement struct {
	Node   Node
	Inline bool   // <style> element
	Href   string // <link> target
	Media  string
	Text   string // <style> content
	// Offset is the byte offset of the <style> content in the raw markup
	// and StartLine the number of lines preceding it. Both are zero when
	// the content could not be located.
	Offset    int
	StartLine int
}

// StyleElements returns the document's <style> elements and stylesheet
// links in document order.
func (d *GoQueryDocument) StyleElements() []StyleElement {
	offsets := d.styleOffsets()

	var (
		out    []StyleElement
		styles int
	)
	d.doc.Find("style, link").Each(func(_ int, s *goquery.Selection) {
		node, ok := d.Lookup(s.Get(0))
		if !ok {
			return
		}
		media, _ := s.Attr("media")

		switch goquery.NodeName(s) {
		case "style":
			el := StyleElement{
				Node:   node,
				Inline: true,
				Media:  media,
				Text:   s.Text(),
			}
			if styles < len(offsets) {
				el.Offset = offsets[styles]
				el.StartLine = strings.Count(d.source[:el.Offset], "\n")
			}
			styles++
			out = append(out, el)

		case "link":
			href, ok := s.Attr("href")
			if !ok || !isStylesheetLink(s) {
				return
			}
			out = append(out, StyleElement{
				Node:  node,
				Href:  strings.TrimSpace(href),
				Media: media,
			})
		}
	})
	return out
}

// styleOffsets returns the offset just past every opening <style> tag in the
// raw markup. Content inside comments is skipped.
func (d *GoQueryDocument) styleOffsets() []int {
	src := d.source
	var out []int
	for _, m := range styleOpenRegex.FindAllStringIndex(src, -1) {
		if insideComment(src, m[0]) {
			continue
		}
		out = append(out, m[1])
	}
	return out
}

func insideComment(src string, offset int) bool {
	open := strings.LastIndex(src[:offset], "<!--")
	if open < 0 {
		return false
	}
	return !strings.Contains(src[open:offset], "-->")
}

func isStylesheetLink(s *goquery.Selection) bool {
	rel, _ := s.Attr("rel")
	for _, r := range strings.Fields(rel) {
		if strings.EqualFold(r, "stylesheet") {
			return true
		}
	}
	return false
}
