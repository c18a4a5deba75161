package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnreadable marks a stylesheet whose content cannot be read.
	ErrUnreadable = errors.New("stylesheet unreadable")

	// ErrUnknownStylesheet is returned for ids the registry never issued.
	ErrUnknownStylesheet = errors.New("unknown stylesheet")
)

// Loader fetches the text of an external stylesheet. base is the Location
// of the stylesheet referencing href, or empty for the document itself.
type Loader interface {
	Load(href, base string) (Source, error)
}

// FileLoader reads stylesheets from the local filesystem. Network and data
// URLs are cross-origin and never fetched.
type FileLoader struct {
	BaseDir string
}

// Load implements Loader.
func (l FileLoader) Load(href, base string) (Source, error) {
	path, err := l.resolve(href, base)
	if err != nil {
		return Source{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return Source{
		Origin:   Origin{Href: href},
		Text:     string(data),
		Location: path,
	}, nil
}

func (l FileLoader) resolve(href, base string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("%w: empty href", ErrUnreadable)
	}
	if strings.HasPrefix(href, "//") {
		return "", fmt.Errorf("%w: cross-origin %q", ErrUnreadable, href)
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "":
	case "file":
		return filepath.FromSlash(u.Path), nil
	default:
		// a single letter is a windows drive, not a scheme
		if len(u.Scheme) != 1 {
			return "", fmt.Errorf("%w: cross-origin %q", ErrUnreadable, href)
		}
		return href, nil
	}

	// query and fragment do not name a file
	p, err := url.PathUnescape(u.Path)
	if err != nil {
		p = u.Path
	}
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return p, nil
	}
	dir := l.BaseDir
	if base != "" {
		dir = filepath.Dir(base)
	}
	return filepath.Join(dir, p), nil
}
