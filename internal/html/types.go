package html

// Handle identifies an element within one Document. Handles are arena
// indexes assigned by the document adapter; they are never pointers and stay
// valid for the lifetime of the Document.
type Handle int

// Node represents an HTML element in the DOM tree.
// This interface can be implemented over any HTML tree; the matcher and
// the cascade engine only ever read through it.
type Node interface {
	Handle() Handle

	// Core node information
	TagName() string // lower-case
	ID() string
	Classes() []string
	Attr(name string) (string, bool)

	// Content access
	Text() string

	// Tree navigation, elements only
	Parent() Node
	PrevSibling() Node
	NextSibling() Node
	FirstChild() Node
}

// Document represents the complete element tree.
type Document interface {
	// Root returns the document element, or nil for an empty tree.
	Root() Node
	// Node returns the element with handle h, or nil.
	Node(h Handle) Node
}

// IDIndex is implemented by documents that can look elements up by id.
type IDIndex interface {
	ElementsByID(id string) []Node
}

// ClassIndex is implemented by documents that can look elements up by class.
type ClassIndex interface {
	ElementsByClass(class string) []Node
}

// TagIndex is implemented by documents that can look elements up by tag name.
type TagIndex interface {
	ElementsByTag(tag string) []Node
}

// Comparer is implemented by documents with a native document-order
// comparison. Compare returns a negative number when a precedes b.
type Comparer interface {
	Compare(a, b Node) int
}
