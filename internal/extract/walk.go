// Package extract implements C2 (Symbol Extractor) and C3
// (Relationship Extractor): a table-driven walk over a tree-sitter AST
// that turns a language-specific node-kind taxonomy into structural
// types.Symbol and types.Edge values, plus the Processor that ties
// parsing (C1), extraction, UID assignment (C4), and persistence (C9)
// together for the worker pool (C13).
//
// Grounded on the pack's own internal/symbollinker/extractor.go
// (BaseExtractor/ScopeManager/ASTTraversal helpers, GetNodeText/
// GetNodeLocation/FindChildByType) generalized from ten separate
// per-language extractor files into one table-driven walker, per
// spec.md §4.2's "language-specific node-kind table" description.
package extract

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/probelabs/probe-sub004/internal/types"
)

// nodeText returns the source slice a node spans.
func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start > uint(len(content)) || end > uint(len(content)) || start > end {
		return ""
	}
	return string(content[start:end])
}

// nodeLocation converts a node's tree-sitter (0-based row/column) span
// into the engine's 1-based line / 0-based column convention (spec.md
// §4.2 step 2: "convert row+1, column+0-based").
func nodeLocation(node *sitter.Node, filePath string) types.Location {
	if node == nil {
		return types.Location{FilePath: filePath}
	}
	start := node.StartPosition()
	end := node.EndPosition()
	return types.Location{
		FilePath:  filePath,
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column),
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column),
	}
}

// findChildByKind returns the first direct child of the given kind.
func findChildByKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}

// findChildByKinds returns the first direct child matching any of the
// given kinds, in priority order (spec.md §4.2 step 1: "a prioritized
// list of child node kinds").
func findChildByKinds(node *sitter.Node, kinds []string) *sitter.Node {
	for _, kind := range kinds {
		if child := findChildByKind(node, kind); child != nil {
			return child
		}
	}
	return nil
}

// normalizedSignature collapses a callable node's text, from its start
// up to the first `{` or `;`, into a single whitespace-separated line
// (spec.md §4.2 step 3).
func normalizedSignature(node *sitter.Node, content []byte) string {
	text := nodeText(node, content)
	cut := len(text)
	if idx := indexAny(text, "{;"); idx >= 0 {
		cut = idx
	}
	text = text[:cut]

	var sb []byte
	lastWasSpace := true
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			if !lastWasSpace {
				sb = append(sb, ' ')
				lastWasSpace = true
			}
			continue
		}
		sb = append(sb, c)
		lastWasSpace = false
	}
	for len(sb) > 0 && sb[len(sb)-1] == ' ' {
		sb = sb[:len(sb)-1]
	}
	return string(sb)
}

func indexAny(s, chars string) int {
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(chars); j++ {
			if s[i] == chars[j] {
				return i
			}
		}
	}
	return -1
}
