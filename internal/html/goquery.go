package html

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const noHandle Handle = -1

// styleOpenRegex finds the opening <style> tags in raw markup so inline
// sheets can be given their document line offset.
var styleOpenRegex = regexp.MustCompile(`(?is)<style\b[^>]*>`)

// GoQueryDocument wraps goquery.Document and lays its elements out in a
// preorder arena. A node's handle is its preorder index, so document order
// is handle order.
type GoQueryDocument struct {
	doc    *goquery.Document
	source string
	nodes  []*GoQueryNode
	byNode map[*html.Node]Handle

	byID    map[string][]Handle
	byClass map[string][]Handle
	byTag   map[string][]Handle
}

// GoQueryNode is one element of a GoQueryDocument.
type GoQueryNode struct {
	doc     *GoQueryDocument
	node    *html.Node
	handle  Handle
	parent  Handle
	prev    Handle
	next    Handle
	first   Handle
	classes []string
}

// GoQueryParser builds GoQueryDocuments.
type GoQueryParser struct{}

// NewParser creates a new GoQuery-based HTML parser
func NewParser() *GoQueryParser {
	return &GoQueryParser{}
}

// Parse parses HTML string into a Document
func (p *GoQueryParser) Parse(htmlStr string) (*GoQueryDocument, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return newDocument(doc, htmlStr), nil
}

// ParseFile parses HTML file into a Document
func (p *GoQueryParser) ParseFile(filename string) (*GoQueryDocument, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return p.Parse(string(content))
}

func newDocument(doc *goquery.Document, source string) *GoQueryDocument {
	d := &GoQueryDocument{
		doc:     doc,
		source:  source,
		byNode:  make(map[*html.Node]Handle),
		byID:    make(map[string][]Handle),
		byClass: make(map[string][]Handle),
		byTag:   make(map[string][]Handle),
	}
	for _, n := range doc.Nodes {
		d.build(n, noHandle)
	}
	return d
}

// build appends the element children of n (and their subtrees) in preorder
// and links them to parent.
func (d *GoQueryDocument) build(n *html.Node, parent Handle) {
	prev := noHandle
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			// the document node and unknown wrappers are transparent
			if c.Type == html.DocumentNode {
				d.build(c, parent)
			}
			continue
		}

		h := Handle(len(d.nodes))
		e := &GoQueryNode{
			doc:    d,
			node:   c,
			handle: h,
			parent: parent,
			prev:   prev,
			next:   noHandle,
			first:  noHandle,
		}
		d.nodes = append(d.nodes, e)
		d.byNode[c] = h

		if prev != noHandle {
			d.nodes[prev].next = h
		} else if parent != noHandle {
			d.nodes[parent].first = h
		}
		prev = h

		tag := strings.ToLower(c.Data)
		d.byTag[tag] = append(d.byTag[tag], h)
		for _, a := range c.Attr {
			if a.Namespace != "" {
				continue
			}
			switch a.Key {
			case "id":
				if a.Val != "" {
					d.byID[a.Val] = append(d.byID[a.Val], h)
				}
			case "class":
				e.classes = strings.Fields(a.Val)
				for _, cl := range uniqueStrings(e.classes) {
					d.byClass[cl] = append(d.byClass[cl], h)
				}
			}
		}

		d.build(c, h)
	}
}

// Document implementation

// Root returns the root HTML element
func (d *GoQueryDocument) Root() Node {
	if len(d.nodes) == 0 {
		return nil
	}
	return d.nodes[0]
}

// Node returns the element with handle h.
func (d *GoQueryDocument) Node(h Handle) Node {
	if h < 0 || int(h) >= len(d.nodes) {
		return nil
	}
	return d.nodes[h]
}

// Len returns the number of elements in the document.
func (d *GoQueryDocument) Len() int {
	return len(d.nodes)
}

// Lookup returns the element wrapping n, if n is an element of d.
func (d *GoQueryDocument) Lookup(n *html.Node) (Node, bool) {
	h, ok := d.byNode[n]
	if !ok {
		return nil, false
	}
	return d.nodes[h], true
}

// ElementsByID implements IDIndex.
func (d *GoQueryDocument) ElementsByID(id string) []Node {
	return d.list(d.byID[id])
}

// ElementsByClass implements ClassIndex.
func (d *GoQueryDocument) ElementsByClass(class string) []Node {
	return d.list(d.byClass[class])
}

// ElementsByTag implements TagIndex.
func (d *GoQueryDocument) ElementsByTag(tag string) []Node {
	return d.list(d.byTag[strings.ToLower(tag)])
}

// Compare implements Comparer with preorder handles.
func (d *GoQueryDocument) Compare(a, b Node) int {
	return int(a.Handle()) - int(b.Handle())
}

// Selection returns the underlying goquery selection of the whole document.
func (d *GoQueryDocument) Selection() *goquery.Selection {
	return d.doc.Selection
}

func (d *GoQueryDocument) list(hs []Handle) []Node {
	if len(hs) == 0 {
		return nil
	}
	out := make([]Node, len(hs))
	for i, h := range hs {
		out[i] = d.nodes[h]
	}
	return out
}

func (d *GoQueryDocument) at(h Handle) Node {
	if h == noHandle {
		return nil
	}
	return d.nodes[h]
}

// Node implementation

// Handle returns the element's arena index.
func (n *GoQueryNode) Handle() Handle { return n.handle }

// TagName returns the element's tag name
func (n *GoQueryNode) TagName() string {
	return strings.ToLower(n.node.Data)
}

// ID returns the element's ID attribute
func (n *GoQueryNode) ID() string {
	id, _ := n.Attr("id")
	return id
}

// Classes returns the element's class list
func (n *GoQueryNode) Classes() []string {
	return n.classes
}

// Attr returns the value of the named attribute.
func (n *GoQueryNode) Attr(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, a := range n.node.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// Text returns the text content
func (n *GoQueryNode) Text() string {
	return n.selection().Text()
}

// Parent returns the parent element
func (n *GoQueryNode) Parent() Node { return n.doc.at(n.parent) }

// PrevSibling returns the previous sibling element
func (n *GoQueryNode) PrevSibling() Node { return n.doc.at(n.prev) }

// NextSibling returns the next sibling element
func (n *GoQueryNode) NextSibling() Node { return n.doc.at(n.next) }

// FirstChild returns the first child element
func (n *GoQueryNode) FirstChild() Node { return n.doc.at(n.first) }

func (n *GoQueryNode) selection() *goquery.Selection {
	return n.doc.doc.FindNodes(n.node)
}

// Describe renders a short label for n such as div#main.note.
func Describe(n Node) string {
	if n == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(n.TagName())
	if id := n.ID(); id != "" {
		sb.WriteString("#" + id)
	}
	for _, c := range n.Classes() {
		sb.WriteString("." + c)
	}
	return sb.String()
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
