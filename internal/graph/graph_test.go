package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/probe-sub004/internal/db"
	"github.com/probelabs/probe-sub004/internal/types"
)

func sym(uid, name string) types.Symbol {
	return types.Symbol{
		UID: uid, Name: name, Kind: types.SymbolFunction,
		Location: types.Location{FilePath: "f.go", StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 1},
	}
}

func setupEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	wdb, err := db.Open("ws1", t.TempDir(), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { wdb.Close() })

	symbols := []types.Symbol{sym("foo", "foo"), sym("bar", "bar"), sym("baz", "baz")}
	edges := []types.Edge{
		{Relation: types.RelationCalls, SourceUID: "foo", TargetUID: "bar", Confidence: 1},
		{Relation: types.RelationCalls, SourceUID: "bar", TargetUID: "baz", Confidence: 1},
		{Relation: types.RelationReferences, SourceUID: "foo", TargetUID: "baz", Confidence: 1},
	}
	require.NoError(t, wdb.WriteFileSymbolsAndEdges("ws1", "f.go", 1, symbols, edges))

	return New(wdb.Raw()), "ws1"
}

func TestFindCallPaths_DirectEdgeAtMaxDepthZero(t *testing.T) {
	e, ws := setupEngine(t)
	paths, err := e.FindCallPaths(ws, "foo", "bar", TraversalOptions{MaxDepth: 0, DetectCycles: true, ResultLimit: 10})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"foo", "bar"}, paths[0].Path)
	assert.Equal(t, 1, paths[0].Depth)
	assert.False(t, paths[0].HasCycle)
}

func TestFindCallPaths_ExtendsByOneHopAtMaxDepthOne(t *testing.T) {
	e, ws := setupEngine(t)
	paths, err := e.FindCallPaths(ws, "foo", "baz", TraversalOptions{MaxDepth: 1, DetectCycles: true, ResultLimit: 10})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"foo", "bar", "baz"}, paths[0].Path)
	assert.Equal(t, 2, paths[0].Depth)
}

func TestFindCallPaths_SelfCycleDetectedAndPruned(t *testing.T) {
	wdb, err := db.Open("ws2", t.TempDir(), 1000)
	require.NoError(t, err)
	defer wdb.Close()
	require.NoError(t, wdb.WriteFileSymbolsAndEdges("ws2", "f.go", 1, []types.Symbol{sym("baz", "baz")},
		[]types.Edge{{Relation: types.RelationCalls, SourceUID: "baz", TargetUID: "baz", Confidence: 1}}))
	e := New(wdb.Raw())

	paths, err := e.FindCallPaths("ws2", "baz", "baz", TraversalOptions{MaxDepth: 2, DetectCycles: false, ResultLimit: 10})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.True(t, paths[0].HasCycle)

	pruned, err := e.FindCallPaths("ws2", "baz", "baz", TraversalOptions{MaxDepth: 2, DetectCycles: true, ResultLimit: 10})
	require.NoError(t, err)
	assert.Empty(t, pruned)
}

func TestFindAffectedSymbols_UnionOfCallersAndReferrers(t *testing.T) {
	e, ws := setupEngine(t)
	impacts, err := e.FindAffectedSymbols(ws, "baz", TraversalOptions{ResultLimit: 10})
	require.NoError(t, err)
	require.Len(t, impacts, 2)

	byType := map[string]string{}
	for _, i := range impacts {
		byType[i.ImpactType] = i.UID
	}
	assert.Equal(t, "bar", byType["caller"])
	assert.Equal(t, "foo", byType["reference"])
}

func TestGetSymbolDependencies_CountsEdgesByWeight(t *testing.T) {
	e, ws := setupEngine(t)
	deps, err := e.GetSymbolDependencies(ws, "", TraversalOptions{ResultLimit: 10})
	require.NoError(t, err)
	assert.Len(t, deps, 3)
	for _, d := range deps {
		assert.Equal(t, 1, d.Weight)
	}
}

func TestAnalyzeSymbolHotspots_RanksByHeatScoreThenName(t *testing.T) {
	e, ws := setupEngine(t)
	hotspots, err := e.AnalyzeSymbolHotspots(ws, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hotspots)
	assert.Equal(t, "baz", hotspots[0].UID) // 1 reference + 2*1 call = 3, highest
	assert.Equal(t, 3, hotspots[0].HeatScore)
}
