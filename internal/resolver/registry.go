package resolver

import (
	"fmt"
	"strconv"
)

// StylesheetID identifies a registered stylesheet. IDs start at 1 and are
// never reused, not even after Clear.
type StylesheetID int

// State is the indexing state of a stylesheet.
type State int

const (
	Registered State = iota
	Indexed
	Restricted
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case Indexed:
		return "indexed"
	case Restricted:
		return "restricted"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Origin describes where a stylesheet came from: an href, or an inline
// <style> element starting at Offset in the document markup.
type Origin struct {
	Href   string
	Inline bool
	Offset int
}

func (o Origin) String() string {
	if o.Inline {
		return "inline@" + strconv.Itoa(o.Offset)
	}
	return o.Href
}

// Source is the loaded text of a stylesheet.
type Source struct {
	Origin Origin
	Text   string
	// StartLine is the number of document lines preceding Text; zero for
	// external sheets.
	StartLine int
	// Location is the resolved place the text was read from. Relative
	// imports are resolved against it.
	Location string
}

// Stylesheet is a registry entry.
type Stylesheet struct {
	ID      StylesheetID
	Source  Source
	State   State
	Err     error        // why a Restricted sheet could not be read
	Parent  StylesheetID // 0 for top-level sheets
	Depth   int          // import nesting depth, 0 for top-level sheets
	Imports []StylesheetID
}

// Unreadable is a stylesheet whose content could not be read.
type Unreadable struct {
	ID   StylesheetID
	Href string
	Err  error
}

// Registry assigns stable identity to stylesheets and keeps them in
// document order.
type Registry struct {
	sheets map[StylesheetID]*Stylesheet
	top    []StylesheetID
	last   StylesheetID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sheets: make(map[StylesheetID]*Stylesheet)}
}

// Register adds a top-level stylesheet.
func (r *Registry) Register(src Source) *Stylesheet {
	s := r.add(src, nil)
	r.top = append(r.top, s.ID)
	return s
}

// RegisterUnreadable adds a top-level stylesheet whose content could not be
// read. It is tracked but never indexed.
func (r *Registry) RegisterUnreadable(origin Origin, err error) *Stylesheet {
	s := r.Register(Source{Origin: origin})
	s.State = Restricted
	s.Err = err
	return s
}

// RegisterImport adds a stylesheet imported by parent.
func (r *Registry) RegisterImport(parent StylesheetID, src Source) (*Stylesheet, error) {
	p, ok := r.sheets[parent]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStylesheet, parent)
	}
	s := r.add(src, p)
	p.Imports = append(p.Imports, s.ID)
	return s, nil
}

// RegisterUnreadableImport adds an import of parent that could not be read.
func (r *Registry) RegisterUnreadableImport(parent StylesheetID, origin Origin, err error) (*Stylesheet, error) {
	s, rerr := r.RegisterImport(parent, Source{Origin: origin})
	if rerr != nil {
		return nil, rerr
	}
	s.State = Restricted
	s.Err = err
	return s, nil
}

func (r *Registry) add(src Source, parent *Stylesheet) *Stylesheet {
	r.last++
	s := &Stylesheet{ID: r.last, Source: src, State: Registered}
	if parent != nil {
		s.Parent = parent.ID
		s.Depth = parent.Depth + 1
	}
	r.sheets[s.ID] = s
	return s
}

// Get returns the stylesheet with the given id.
func (r *Registry) Get(id StylesheetID) (*Stylesheet, bool) {
	s, ok := r.sheets[id]
	return s, ok
}

// Len returns the number of registered stylesheets, imports included.
func (r *Registry) Len() int {
	return len(r.sheets)
}

// TopLevel returns the top-level stylesheets in registration order.
func (r *Registry) TopLevel() []*Stylesheet {
	out := make([]*Stylesheet, 0, len(r.top))
	for _, id := range r.top {
		out = append(out, r.sheets[id])
	}
	return out
}

// Ordered returns every stylesheet in document order: top-level sheets in
// registration order, each followed depth-first by its imports.
func (r *Registry) Ordered() []*Stylesheet {
	out := make([]*Stylesheet, 0, len(r.sheets))
	var walk func(id StylesheetID)
	walk = func(id StylesheetID) {
		s := r.sheets[id]
		out = append(out, s)
		for _, c := range s.Imports {
			walk(c)
		}
	}
	for _, id := range r.top {
		walk(id)
	}
	return out
}

// FindImport returns the import of parent registered for href.
func (r *Registry) FindImport(parent StylesheetID, href string) (*Stylesheet, bool) {
	p, ok := r.sheets[parent]
	if !ok {
		return nil, false
	}
	for _, id := range p.Imports {
		if s := r.sheets[id]; s.Source.Origin.Href == href {
			return s, true
		}
	}
	return nil, false
}

// Imports reports whether location is already on the import chain ending at
// id, which would make importing it again a cycle.
func (r *Registry) Imports(id StylesheetID, location string) bool {
	if location == "" {
		return false
	}
	for s, ok := r.sheets[id]; ok; s, ok = r.sheets[s.Parent] {
		if s.Source.Location == location {
			return true
		}
	}
	return false
}

// Unreadable returns the restricted stylesheets in document order.
func (r *Registry) Unreadable() []Unreadable {
	var out []Unreadable
	for _, s := range r.Ordered() {
		if s.State == Restricted {
			out = append(out, Unreadable{ID: s.ID, Href: s.Source.Origin.Href, Err: s.Err})
		}
	}
	return out
}

// Clear forgets every stylesheet. IDs keep counting from where they were.
func (r *Registry) Clear() {
	r.sheets = make(map[StylesheetID]*Stylesheet)
	r.top = nil
}
