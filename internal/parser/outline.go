package parser

import (
	"strings"

	"github.com/dgallion1/pdfchat/internal/doctree"
)

// outline assembles a DocTree from a flat stream of headings and paragraphs.
// Headings nest under the nearest preceding heading of a lower level.
type outline struct {
	root    *doctree.DocNode
	stack   []outlineLevel
	pending strings.Builder
}

type outlineLevel struct {
	node  *doctree.DocNode
	level int
}

func newOutline(title string) *outline {
	root := &doctree.DocNode{Title: title}
	return &outline{
		root:  root,
		stack: []outlineLevel{{node: root, level: 0}},
	}
}

func (o *outline) heading(level int, title string) {
	o.flush()
	node := &doctree.DocNode{Title: title}
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	parent := o.stack[len(o.stack)-1].node
	parent.Children = append(parent.Children, node)
	o.stack = append(o.stack, outlineLevel{node: node, level: level})
}

func (o *outline) paragraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if o.pending.Len() > 0 {
		o.pending.WriteString("\n\n")
	}
	o.pending.WriteString(text)
}

func (o *outline) flush() {
	t := strings.TrimSpace(o.pending.String())
	o.pending.Reset()
	if t == "" {
		return
	}
	top := o.stack[len(o.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// finish moves the collected sections onto tree. Text that appeared before
// any heading is kept as a leading untitled node.
func (o *outline) finish(tree *doctree.DocTree) {
	o.flush()
	if o.root.Text != "" {
		tree.Children = append(tree.Children, &doctree.DocNode{Text: o.root.Text})
	}
	tree.Children = append(tree.Children, o.root.Children...)
}
