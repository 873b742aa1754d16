package lsp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/probelabs/probe-sub004/internal/types"
	"github.com/probelabs/probe-sub004/internal/uid"
)

// callableKinds are the symbol kinds the call-hierarchy side of the
// enhancer issues requests for (spec.md §4.8 "each symbol of callable
// kind").
var callableKinds = map[types.SymbolKind]struct{}{
	types.SymbolFunction:    {},
	types.SymbolMethod:      {},
	types.SymbolConstructor: {},
}

func isCallable(k types.SymbolKind) bool {
	_, ok := callableKinds[k]
	return ok
}

// operations is the subset of Client the enhancer drives; narrowing to
// an interface here (rather than depending on *Client concretely) lets
// tests substitute a fake wrapper without spawning a real subprocess.
type operations interface {
	CallHierarchy(ctx context.Context, path string, line, col int) *CallHierarchyResult
	References(ctx context.Context, path string, line, col int, includeDeclaration bool) *ReferencesResult
	Definition(ctx context.Context, path string, line, col int) *DefinitionResult
}

// Enhancer implements C8: given a structural symbol set, it enriches
// the edge set with call/reference/definition edges sourced from an
// LSP Client Wrapper (C7). Every per-symbol step is best-effort — a
// failure anywhere leaves the structural edges already produced by
// C2/C3 untouched (spec.md §4.8).
type Enhancer struct {
	client operations
	log    *zap.Logger
}

// NewEnhancer constructs an Enhancer bound to the given Client.
func NewEnhancer(client operations, log *zap.Logger) *Enhancer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Enhancer{client: client, log: log}
}

// edgeKey is the (source, target, relation, site) tuple spec.md §4.8
// de-duplicates on.
type edgeKey struct {
	source, target string
	relation        types.EdgeRelation
	site            string
}

// Enhance runs call-hierarchy, references, and definition enhancement
// over symbols (all declared in file, at filePath) and returns the
// resulting de-duplicated edge set. It never returns an error: any
// per-symbol LSP failure is logged and skipped.
func (e *Enhancer) Enhance(ctx context.Context, workspaceID, language, filePath string, symbols []types.Symbol) []types.Edge {
	seen := make(map[edgeKey]struct{})
	var edges []types.Edge

	add := func(edge types.Edge, site string) {
		key := edgeKey{source: edge.SourceUID, target: edge.TargetUID, relation: edge.Relation, site: site}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		edges = append(edges, edge)
	}

	for _, sym := range symbols {
		line, col := sym.Location.StartLine, sym.Location.StartCol

		if isCallable(sym.Kind) {
			ch := e.client.CallHierarchy(ctx, filePath, line, col)
			if ch.Err != nil {
				e.log.Debug("call_hierarchy enhancement skipped", zap.String("symbol", sym.UID), zap.Error(ch.Err))
			} else {
				for _, in := range ch.Incoming {
					callerUID := uid.Fallback(workspaceID, language, pathFromURI(in.From.URI), in.From.Name,
						lspKindToSymbolKind(in.From.Kind), in.From.Range.Start.Line, in.From.Range.Start.Character)
					site := fmt.Sprintf("%s:%d:%d", pathFromURI(in.From.URI), in.From.Range.Start.Line, in.From.Range.Start.Character)
					add(types.Edge{Relation: types.RelationCalls, SourceUID: callerUID, TargetUID: sym.UID,
						Confidence: 0.9, Language: language}, site)
				}
				for _, out := range ch.Outgoing {
					calleeUID := uid.Fallback(workspaceID, language, pathFromURI(out.To.URI), out.To.Name,
						lspKindToSymbolKind(out.To.Kind), out.To.Range.Start.Line, out.To.Range.Start.Character)
					site := fmt.Sprintf("%s:%d:%d", pathFromURI(out.To.URI), out.To.Range.Start.Line, out.To.Range.Start.Character)
					add(types.Edge{Relation: types.RelationCalls, SourceUID: sym.UID, TargetUID: calleeUID,
						Confidence: 0.9, Language: language}, site)
				}
			}
		}

		refs := e.client.References(ctx, filePath, line, col, false)
		if refs.Err != nil {
			e.log.Debug("references enhancement skipped", zap.String("symbol", sym.UID), zap.Error(refs.Err))
		} else {
			for _, loc := range refs.Locations {
				siteUID := uid.Fallback(workspaceID, language, pathFromURI(loc.URI), "",
					types.SymbolAnonymous, loc.Range.Start.Line, loc.Range.Start.Character)
				site := fmt.Sprintf("%s:%d:%d", pathFromURI(loc.URI), loc.Range.Start.Line, loc.Range.Start.Character)
				add(types.Edge{Relation: types.RelationReferences, SourceUID: siteUID, TargetUID: sym.UID,
					Confidence: 0.9, Language: language}, site)
			}
		}

		def := e.client.Definition(ctx, filePath, line, col)
		if def.Err != nil {
			e.log.Debug("definition enhancement skipped", zap.String("symbol", sym.UID), zap.Error(def.Err))
			continue
		}
		for _, loc := range def.Locations {
			defUID := uid.Fallback(workspaceID, language, pathFromURI(loc.URI), sym.Name, sym.Kind,
				loc.Range.Start.Line, loc.Range.Start.Character)
			site := fmt.Sprintf("%s:%d:%d", pathFromURI(loc.URI), loc.Range.Start.Line, loc.Range.Start.Character)
			add(types.Edge{Relation: types.RelationDefines, SourceUID: sym.UID, TargetUID: defUID,
				Confidence: 0.9, Language: language}, site)
		}
	}

	return edges
}

// lspKindToSymbolKind maps the LSP SymbolKind integer enumeration onto
// this module's own SymbolKind taxonomy, for the subset the call
// hierarchy realistically returns.
func lspKindToSymbolKind(k int) types.SymbolKind {
	switch k {
	case 6:
		return types.SymbolMethod
	case 9:
		return types.SymbolConstructor
	case 12:
		return types.SymbolFunction
	case 5:
		return types.SymbolClass
	case 11:
		return types.SymbolInterface
	case 23:
		return types.SymbolStruct
	default:
		return types.SymbolFunction
	}
}
