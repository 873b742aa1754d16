package lsp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/probe-sub004/internal/config"
	"github.com/probelabs/probe-sub004/internal/router"
)

func TestLanguageFromPath(t *testing.T) {
	lang, ok := languageFromPath("/a/b/main.go")
	require.True(t, ok)
	assert.Equal(t, "go", lang)

	_, ok = languageFromPath("/a/b/README.md")
	assert.False(t, ok)
}

func TestClient_ResolveFailsWhenDisabled(t *testing.T) {
	r := router.New(config.Router{})
	c := New(config.LSP{Enabled: false}, r, nil)

	dir := t.TempDir()
	file := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main"), 0o644))

	res := c.References(context.Background(), file, 0, 0, false)
	assert.True(t, res.Fallback)
	assert.Error(t, res.Err)
}

func TestClient_ResolveFailsWithoutServerConfigured(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644))
	file := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main"), 0o644))

	r := router.New(config.Router{LookupDepth: 4})
	c := New(config.LSP{Enabled: true, Servers: map[string]config.ServerConfig{}}, r, nil)

	res := c.Definition(context.Background(), file, 0, 0)
	assert.True(t, res.Fallback)
	assert.Error(t, res.Err)
}

func TestClient_CachePutAndGetRoundTrips(t *testing.T) {
	c := New(config.LSP{ResponseCacheTTL: time.Minute, ResponseCacheSize: 10}, router.New(config.Router{}), nil)
	key := cacheKey{op: "hover", digest: "abc", line: 1, col: 2}

	_, ok := c.cacheGet(key)
	assert.False(t, ok)

	c.cachePut(key, &HoverResult{Contents: "docs"})
	val, ok := c.cacheGet(key)
	require.True(t, ok)
	assert.Equal(t, "docs", val.(*HoverResult).Contents)
}

func TestClient_CacheEntryExpiresAfterTTL(t *testing.T) {
	c := New(config.LSP{ResponseCacheTTL: time.Millisecond, ResponseCacheSize: 10}, router.New(config.Router{}), nil)
	key := cacheKey{op: "hover", digest: "abc", line: 1, col: 2}
	c.cachePut(key, &HoverResult{Contents: "docs"})

	time.Sleep(5 * time.Millisecond)
	_, ok := c.cacheGet(key)
	assert.False(t, ok)
}

func TestFlattenHoverContents(t *testing.T) {
	assert.Equal(t, "plain", flattenHoverContents("plain"))
	assert.Equal(t, "markdown body", flattenHoverContents(map[string]any{"kind": "markdown", "value": "markdown body"}))
	assert.Equal(t, "a\nb\n", flattenHoverContents([]any{"a", "b"}))
}
