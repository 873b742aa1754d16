package lsp

import (
	"net/url"
	"path/filepath"
	"strings"
)

// pathToURI renders an absolute filesystem path as a file:// URI.
func pathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.ToSlash(abs)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	return "file://" + (&url.URL{Path: abs}).EscapedPath()
}

// pathFromURI is the inverse of pathToURI, used to turn LSP-reported
// locations back into filesystem paths for UID construction.
func pathFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return strings.TrimPrefix(uri, "file://")
	}
	return filepath.FromSlash(u.Path)
}
