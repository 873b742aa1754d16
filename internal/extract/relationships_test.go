package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/probelabs/probe-sub004/internal/astpool"
	"github.com/probelabs/probe-sub004/internal/types"
)

func TestExtractRelationships_Go_CallsFallbackEdge(t *testing.T) {
	src := []byte(`package main

func helper() int {
	return 1
}

func caller() int {
	return helper()
}
`)
	tree := parseWith(t, tree_sitter_go.Language, src)
	root := tree.RootNode()
	symbols := ExtractSymbols("ws1", astpool.Go, "f.go", src, root)
	edges := ExtractRelationships(astpool.Go, "f.go", src, root, symbols)

	var found bool
	for _, e := range edges {
		if e.Relation == types.RelationCalls {
			found = true
			assert.InDelta(t, 0.5, e.Confidence, 0.0001)
		}
	}
	assert.True(t, found, "expected a calls edge from caller to helper")
}

func TestExtractRelationships_Go_ImportsEdge(t *testing.T) {
	src := []byte(`package main

import "fmt"

func main() {
	fmt.Println("hi")
}
`)
	tree := parseWith(t, tree_sitter_go.Language, src)
	root := tree.RootNode()
	symbols := ExtractSymbols("ws1", astpool.Go, "f.go", src, root)
	edges := ExtractRelationships(astpool.Go, "f.go", src, root, symbols)

	var found bool
	for _, e := range edges {
		if e.Relation == types.RelationImports {
			found = true
			assert.Equal(t, "file::f.go", e.SourceUID)
			assert.Equal(t, "fmt", e.TargetUID)
		}
	}
	assert.True(t, found, "expected an imports edge")
}

func TestExtractRelationships_Python_ContainsEdgeForMethod(t *testing.T) {
	src := []byte(`
class Widget:
    def render(self):
        pass
`)
	tree := parseWith(t, tree_sitter_python.Language, src)
	root := tree.RootNode()
	symbols := ExtractSymbols("ws1", astpool.Python, "w.py", src, root)
	edges := ExtractRelationships(astpool.Python, "w.py", src, root, symbols)

	var classUID, methodUID string
	for _, s := range symbols {
		if s.Name == "Widget" {
			classUID = s.UID
		}
		if s.Name == "render" {
			methodUID = s.UID
		}
	}
	require.NotEmpty(t, classUID)
	require.NotEmpty(t, methodUID)

	var found bool
	for _, e := range edges {
		if e.Relation == types.RelationContains && e.SourceUID == classUID && e.TargetUID == methodUID {
			found = true
		}
	}
	assert.True(t, found, "expected Widget contains render")
}

func TestExtractRelationships_UnknownLanguageReturnsNil(t *testing.T) {
	edges := ExtractRelationships(astpool.Language("cobol"), "f.cbl", nil, nil, nil)
	assert.Nil(t, edges)
}

func TestScopeOwner(t *testing.T) {
	owner, ok := scopeOwner("Widget::render", "render")
	require.True(t, ok)
	assert.Equal(t, "Widget", owner)

	_, ok = scopeOwner("render", "render")
	assert.False(t, ok)
}
