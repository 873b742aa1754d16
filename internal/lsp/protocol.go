// Package lsp implements C6 (LSP Process Manager), C7 (LSP Client
// Wrapper), and C8 (LSP Relationship Enhancer): a per-(workspace,
// language) subprocess manager speaking the Language Server Protocol
// over the shared internal/wire codec, a caching façade over its five
// exposed operations, and a converter from LSP answers into graph
// edges anchored on C4 UIDs.
//
// Grounded on the pack's own LSP client/server reference
// implementation (spawn/pipe wiring, initialize/initialized handshake,
// Content-Length framing, request/response/notification
// discrimination), adapted here to the manager-per-language-server
// shape spec.md §4.6-§4.8 describes and layered on internal/wire
// rather than reimplementing framing inline.
package lsp

// Position is a zero-based line/character offset, as LSP defines it.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a start/end Position pair.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location pairs a document URI with a Range inside it.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// TextDocumentIdentifier names a document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentItem is the payload of a didOpen notification.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// TextDocumentPositionParams is the common shape of definition/hover/
// references/call-hierarchy-prepare requests.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// ReferenceContext toggles whether the declaration site itself is
// included in a textDocument/references result.
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// ReferenceParams is the textDocument/references request payload.
type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

// DidOpenTextDocumentParams is the textDocument/didOpen notification
// payload.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidCloseTextDocumentParams is the textDocument/didClose notification
// payload.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// CallHierarchyItem is one node of a call hierarchy, as returned by
// prepareCallHierarchy and embedded in incoming/outgoing call entries.
type CallHierarchyItem struct {
	Name           string `json:"name"`
	Kind           int    `json:"kind"`
	URI            string `json:"uri"`
	Range          Range  `json:"range"`
	SelectionRange Range  `json:"selectionRange"`
	Detail         string `json:"detail,omitempty"`
}

// CallHierarchyIncomingCall is one entry of a callHierarchy/incomingCalls result.
type CallHierarchyIncomingCall struct {
	From       CallHierarchyItem `json:"from"`
	FromRanges []Range           `json:"fromRanges"`
}

// CallHierarchyOutgoingCall is one entry of a callHierarchy/outgoingCalls result.
type CallHierarchyOutgoingCall struct {
	To         CallHierarchyItem `json:"to"`
	FromRanges []Range           `json:"fromRanges"`
}

// CallHierarchyPrepareParams is the textDocument/prepareCallHierarchy
// request payload (identical shape to TextDocumentPositionParams, kept
// distinct for readability at call sites).
type CallHierarchyPrepareParams = TextDocumentPositionParams

// standardCapabilities is the capability set spec.md §4.6 names:
// call hierarchy, definition, references, hover, completion, and
// work-done progress.
func standardCapabilities() map[string]any {
	return map[string]any{
		"textDocument": map[string]any{
			"callHierarchy": map[string]any{"dynamicRegistration": false},
			"definition":    map[string]any{"dynamicRegistration": false},
			"references":    map[string]any{"dynamicRegistration": false},
			"hover":         map[string]any{"contentFormat": []string{"plaintext", "markdown"}},
			"completion":    map[string]any{"dynamicRegistration": false},
		},
		"workspace": map[string]any{
			"workDoneProgress": true,
		},
	}
}
