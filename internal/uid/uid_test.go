package uid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/probelabs/probe-sub004/internal/types"
)

func TestStructural_DeterministicAcrossCalls(t *testing.T) {
	a := Structural("ws1", "go", "/repo/main.go", "Run", types.SymbolFunction, 10, 0)
	b := Structural("ws1", "go", "/repo/main.go", "Run", types.SymbolFunction, 10, 0)
	assert.Equal(t, a, b)
	assert.True(t, IsStructural(a))
	assert.False(t, IsFallback(a))
}

func TestStructural_DiffersOnAnyField(t *testing.T) {
	base := Structural("ws1", "go", "/repo/main.go", "Run", types.SymbolFunction, 10, 0)

	cases := []string{
		Structural("ws2", "go", "/repo/main.go", "Run", types.SymbolFunction, 10, 0),
		Structural("ws1", "python", "/repo/main.go", "Run", types.SymbolFunction, 10, 0),
		Structural("ws1", "go", "/repo/other.go", "Run", types.SymbolFunction, 10, 0),
		Structural("ws1", "go", "/repo/main.go", "Walk", types.SymbolFunction, 10, 0),
		Structural("ws1", "go", "/repo/main.go", "Run", types.SymbolMethod, 10, 0),
		Structural("ws1", "go", "/repo/main.go", "Run", types.SymbolFunction, 11, 0),
		Structural("ws1", "go", "/repo/main.go", "Run", types.SymbolFunction, 10, 1),
	}
	for _, c := range cases {
		assert.NotEqual(t, base, c)
	}
}

func TestStructuralAndFallback_DistinctPrefixes(t *testing.T) {
	s := Structural("ws1", "go", "/repo/main.go", "Run", types.SymbolFunction, 10, 0)
	f := Fallback("ws1", "go", "/repo/main.go", "Run", types.SymbolFunction, 10, 0)
	assert.NotEqual(t, s, f)
	assert.True(t, IsStructural(s))
	assert.True(t, IsFallback(f))
}

func TestNormalizePath_DotSegmentsCollapse(t *testing.T) {
	a := Structural("ws1", "go", "repo/./main.go", "Run", types.SymbolFunction, 1, 0)
	b := Structural("ws1", "go", "repo/main.go", "Run", types.SymbolFunction, 1, 0)
	assert.Equal(t, a, b)
}
