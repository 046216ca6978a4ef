package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/pdfchat/internal/doctree"
)

// TextParser handles plain text files. Form feeds, as written by most
// PDF-to-text exporters, start a new page.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	tree := &doctree.DocTree{
		Title: strings.TrimSuffix(filename, ".txt"),
	}

	page := 1
	paged := false
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		tree.Children = append(tree.Children, &doctree.DocNode{Text: current.String(), Page: page})
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		for {
			before, after, found := strings.Cut(line, "\f")
			if !found {
				break
			}
			if strings.TrimSpace(before) != "" {
				if current.Len() > 0 {
					current.WriteString("\n")
				}
				current.WriteString(before)
			}
			flush()
			page++
			paged = true
			line = after
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if paged {
		tree.Pages = page
	} else {
		for _, n := range tree.Children {
			n.Page = 0
		}
	}
	return tree, nil
}
