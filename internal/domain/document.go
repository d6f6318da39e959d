package domain

import (
	"regexp"
	"strings"
)

// DocumentBlockKind tags a parsed block of a Document.
type DocumentBlockKind int

const (
	// DocumentBlockText is literal prose, passed through unevaluated.
	DocumentBlockText DocumentBlockKind = iota
	// DocumentBlockVariable is a `@name = expression` binding.
	DocumentBlockVariable
	// DocumentBlockInline is an inline `{{expression}}` substitution.
	DocumentBlockInline
)

// DocumentBlock is one parsed unit of a Document's body.
type DocumentBlock struct {
	Kind DocumentBlockKind
	Name string // set for DocumentBlockVariable
	Expr string // set for DocumentBlockVariable and DocumentBlockInline
	Text string // set for DocumentBlockText
}

// Document is a narrative unit that can declare document-scoped variables
// and embed formula results inline.
type Document struct {
	ID       DocumentID
	Title    string
	FileName string
	Blocks   []DocumentBlock
}

var (
	variableLinePattern = regexp.MustCompile(`^@([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+)$`)
	inlinePattern       = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
)

// ParseDocumentBody splits a raw document body into blocks: lines starting
// with "@name = expr" become DocumentBlockVariable, everything else is
// split on "{{expr}}" inline markers into DocumentBlockText/Inline blocks.
func ParseDocumentBody(body string) []DocumentBlock {
	var blocks []DocumentBlock
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if m := variableLinePattern.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			blocks = append(blocks, DocumentBlock{
				Kind: DocumentBlockVariable,
				Name: m[1],
				Expr: strings.TrimSpace(m[2]),
			})
			continue
		}
		blocks = append(blocks, splitInline(line)...)
		if i != len(lines)-1 {
			blocks = append(blocks, DocumentBlock{Kind: DocumentBlockText, Text: "\n"})
		}
	}
	return blocks
}

func splitInline(line string) []DocumentBlock {
	var blocks []DocumentBlock
	rest := line
	for {
		loc := inlinePattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			if rest != "" {
				blocks = append(blocks, DocumentBlock{Kind: DocumentBlockText, Text: rest})
			}
			return blocks
		}
		if loc[0] > 0 {
			blocks = append(blocks, DocumentBlock{Kind: DocumentBlockText, Text: rest[:loc[0]]})
		}
		blocks = append(blocks, DocumentBlock{
			Kind: DocumentBlockInline,
			Expr: strings.TrimSpace(rest[loc[2]:loc[3]]),
		})
		rest = rest[loc[1]:]
	}
}

// VariableNames returns the names of every variable block this document
// declares, in declaration order.
func (d *Document) VariableNames() []string {
	var names []string
	for _, b := range d.Blocks {
		if b.Kind == DocumentBlockVariable {
			names = append(names, b.Name)
		}
	}
	return names
}

// VariableExpr returns the expression bound to a named document variable.
func (d *Document) VariableExpr(name string) (string, bool) {
	for _, b := range d.Blocks {
		if b.Kind == DocumentBlockVariable && strings.EqualFold(b.Name, name) {
			return b.Expr, true
		}
	}
	return "", false
}
