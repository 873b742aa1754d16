package lsp

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/probe-sub004/internal/types"
)

type fakeOperations struct {
	callHierarchy map[string]*CallHierarchyResult
	references    map[string]*ReferencesResult
	definition    map[string]*DefinitionResult
}

func key(path string, line, col int) string {
	return path + ":" + strconv.Itoa(line) + ":" + strconv.Itoa(col)
}

func (f *fakeOperations) CallHierarchy(ctx context.Context, path string, line, col int) *CallHierarchyResult {
	if r, ok := f.callHierarchy[key(path, line, col)]; ok {
		return r
	}
	return &CallHierarchyResult{}
}

func (f *fakeOperations) References(ctx context.Context, path string, line, col int, includeDeclaration bool) *ReferencesResult {
	if r, ok := f.references[key(path, line, col)]; ok {
		return r
	}
	return &ReferencesResult{}
}

func (f *fakeOperations) Definition(ctx context.Context, path string, line, col int) *DefinitionResult {
	if r, ok := f.definition[key(path, line, col)]; ok {
		return r
	}
	return &DefinitionResult{}
}

func TestEnhancer_CallHierarchyProducesCallsEdges(t *testing.T) {
	sym := types.Symbol{UID: "sym_callee", Name: "callee", Kind: types.SymbolFunction,
		Location: types.Location{FilePath: "f.go", StartLine: 3, StartCol: 1}}

	fake := &fakeOperations{
		callHierarchy: map[string]*CallHierarchyResult{
			key("f.go", 3, 1): {
				Incoming: []CallHierarchyIncomingCall{{
					From: CallHierarchyItem{Name: "caller", Kind: 12, URI: "file:///f.go", Range: Range{Start: Position{Line: 1, Character: 0}}},
				}},
				Outgoing: []CallHierarchyOutgoingCall{{
					To: CallHierarchyItem{Name: "helper", Kind: 12, URI: "file:///f.go", Range: Range{Start: Position{Line: 9, Character: 0}}},
				}},
			},
		},
	}

	e := NewEnhancer(fake, nil)
	edges := e.Enhance(context.Background(), "ws1", "go", "f.go", []types.Symbol{sym})

	require.Len(t, edges, 2)
	var sawIncoming, sawOutgoing bool
	for _, edge := range edges {
		assert.Equal(t, types.RelationCalls, edge.Relation)
		if edge.TargetUID == sym.UID {
			sawIncoming = true
		}
		if edge.SourceUID == sym.UID {
			sawOutgoing = true
		}
	}
	assert.True(t, sawIncoming)
	assert.True(t, sawOutgoing)
}

func TestEnhancer_ReferencesProduceReferenceEdges(t *testing.T) {
	sym := types.Symbol{UID: "sym_foo", Name: "foo", Kind: types.SymbolVariable,
		Location: types.Location{FilePath: "f.go", StartLine: 2, StartCol: 1}}

	fake := &fakeOperations{
		references: map[string]*ReferencesResult{
			key("f.go", 2, 1): {Locations: []Location{
				{URI: "file:///f.go", Range: Range{Start: Position{Line: 5, Character: 2}}},
			}},
		},
	}

	e := NewEnhancer(fake, nil)
	edges := e.Enhance(context.Background(), "ws1", "go", "f.go", []types.Symbol{sym})

	require.Len(t, edges, 1)
	assert.Equal(t, types.RelationReferences, edges[0].Relation)
	assert.Equal(t, sym.UID, edges[0].TargetUID)
}

func TestEnhancer_DefinitionProducesDefinesEdges(t *testing.T) {
	sym := types.Symbol{UID: "sym_foo", Name: "foo", Kind: types.SymbolVariable,
		Location: types.Location{FilePath: "f.go", StartLine: 2, StartCol: 1}}

	fake := &fakeOperations{
		definition: map[string]*DefinitionResult{
			key("f.go", 2, 1): {Locations: []Location{
				{URI: "file:///f.go", Range: Range{Start: Position{Line: 7, Character: 3}}},
			}},
		},
	}

	e := NewEnhancer(fake, nil)
	edges := e.Enhance(context.Background(), "ws1", "go", "f.go", []types.Symbol{sym})

	require.Len(t, edges, 1)
	assert.Equal(t, types.RelationDefines, edges[0].Relation)
	assert.Equal(t, sym.UID, edges[0].SourceUID)
}

func TestEnhancer_DedupKeepsDistinctTargets(t *testing.T) {
	symA := types.Symbol{UID: "sym_a", Name: "a", Kind: types.SymbolFunction,
		Location: types.Location{FilePath: "f.go", StartLine: 1, StartCol: 1}}
	symB := types.Symbol{UID: "sym_b", Name: "b", Kind: types.SymbolFunction,
		Location: types.Location{FilePath: "f.go", StartLine: 2, StartCol: 1}}

	sharedIncoming := CallHierarchyIncomingCall{
		From: CallHierarchyItem{Name: "caller", Kind: 12, URI: "file:///f.go", Range: Range{Start: Position{Line: 1, Character: 0}}},
	}
	fake := &fakeOperations{
		callHierarchy: map[string]*CallHierarchyResult{
			key("f.go", 1, 1): {Incoming: []CallHierarchyIncomingCall{sharedIncoming}},
			key("f.go", 2, 1): {Incoming: []CallHierarchyIncomingCall{sharedIncoming}},
		},
	}

	e := NewEnhancer(fake, nil)
	edges := e.Enhance(context.Background(), "ws1", "go", "f.go", []types.Symbol{symA, symB})

	// each symbol still gets its own edge (different target), so dedup
	// only collapses truly identical (source,target,relation,site) tuples
	assert.Len(t, edges, 2)
}

func TestEnhancer_BestEffortOnCallHierarchyError(t *testing.T) {
	sym := types.Symbol{UID: "sym_x", Name: "x", Kind: types.SymbolFunction,
		Location: types.Location{FilePath: "f.go", StartLine: 1, StartCol: 1}}

	fake := &fakeOperations{
		callHierarchy: map[string]*CallHierarchyResult{
			key("f.go", 1, 1): {Result: Result{Err: assertErr{}}},
		},
	}

	e := NewEnhancer(fake, nil)
	edges := e.Enhance(context.Background(), "ws1", "go", "f.go", []types.Symbol{sym})
	assert.Empty(t, edges)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
