package css

import (
	"fmt"

	tp "github.com/xlab/treeprint"
)

// Dump renders the rule tree rooted at root as an indented tree. text is the
// source the tree was parsed from and is used to show rule bodies.
func Dump(root *ParsedRule, text string) string {
	p := tp.New()
	p.SetValue(fmt.Sprintf("stylesheet (%d rules)", len(root.Children)))
	for _, r := range root.Children {
		dumpRule(p, r, text)
	}
	return p.String()
}

func dumpRule(p tp.Tree, r *ParsedRule, text string) {
	label := fmt.Sprintf("L%d [%d:%d:%d] %s", r.Line, r.Start, r.BodyStart, r.End, r.SelectorText)
	if r.Import {
		label = fmt.Sprintf("L%d @import %q", r.Line, r.Href)
	}
	if r.Condition != "" {
		label += "  " + r.Condition
	}

	if len(r.Children) == 0 {
		node := p.AddBranch(label)
		if body := r.Body(text); body != "" {
			node.AddNode(body)
		}
		return
	}
	branch := p.AddBranch(label)
	for _, c := range r.Children {
		dumpRule(branch, c, text)
	}
}
