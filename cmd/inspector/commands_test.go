package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"styleinspect/internal/css"
	"styleinspect/pkg/inspector"
)

func TestWriteSpecificity(t *testing.T) {
	var buf bytes.Buffer
	writeSpecificity(&buf, []string{"#a .b", "h1,  p.note"}, css.SpecificityWeighted)
	assert.Equal(t, `#a .b  (1,1,0)  weight 110
h1,  p.note  max (0,1,1)
h1  (0,0,1)  weight 1
p.note  (0,1,1)  weight 11
`, buf.String())
}

func TestOutput(t *testing.T) {
	dir := t.TempDir()
	page := `<html><head>
<link rel="stylesheet" href="main.css">
<style>p { color: red !important }</style>
</head><body><p class="x">a</p></body></html>`
	offset := strings.Index(page, "<style>") + len("<style>")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte(page), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.css"), []byte(`@import "extra.css";
.x { color: blue }`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.css"), []byte(`p.x { margin: 0 }`), 0644))

	insp := inspector.New(nil, zaptest.NewLogger(t))
	_, err := insp.LoadFile(filepath.Join(dir, "page.html"))
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf(`page.html
├── #1 main.css indexed, 1 rules
│   └── #3 extra.css indexed, 1 rules
└── #2 inline@%d indexed, 1 rules
`, offset), sheetTree("page.html", insp))

	rules, err := insp.RulesFor("p")
	require.NoError(t, err)
	var buf bytes.Buffer
	writeRules(&buf, insp, rules)
	assert.Equal(t, fmt.Sprintf(`p.x
  (0,0,1) p  [inline@%d:3]
  (0,1,0) .x  [main.css:2]
  (0,1,1) p.x  [extra.css:1]
`, offset), buf.String())

	styles, err := insp.Styles("p")
	require.NoError(t, err)
	buf.Reset()
	writeStyles(&buf, insp, styles)
	assert.Contains(t, buf.String(), "      color: blue;  (overridden)\n")
	assert.Contains(t, buf.String(), "      color: red !important;\n")
}
