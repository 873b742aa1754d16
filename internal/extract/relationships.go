package extract

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/probelabs/probe-sub004/internal/astpool"
	"github.com/probelabs/probe-sub004/internal/types"
)

const (
	confidenceInheritsFrom  = 0.95
	confidenceImports       = 0.9
	confidenceContains      = 1.0
	confidenceCallsFallback = 0.5
)

// ExtractRelationships builds C3's two lookup maps (name and qualified
// name) over symbols, then emits inherits-from, imports, contains, and
// fallback calls edges (spec.md §4.3).
func ExtractRelationships(language astpool.Language, filePath string, content []byte, root *sitter.Node, symbols []types.Symbol) []types.Edge {
	spec, ok := SpecFor(language)
	if !ok || root == nil {
		return nil
	}

	byName := make(map[string][]types.Symbol, len(symbols))
	byQualified := make(map[string]types.Symbol, len(symbols))
	for _, sym := range symbols {
		byName[sym.Name] = append(byName[sym.Name], sym)
		byQualified[sym.QualifiedName] = sym
	}

	r := &relationshipWalker{
		spec:       spec,
		language:   string(language),
		filePath:   filePath,
		content:    content,
		byName:     byName,
		byQualified: byQualified,
	}

	r.emitImportEdges(symbols)
	r.emitContainsEdges(symbols)
	r.walk(root, nil)

	return r.edges
}

type relationshipWalker struct {
	spec       LanguageSpec
	language   string
	filePath   string
	content    []byte
	byName     map[string][]types.Symbol
	byQualified map[string]types.Symbol
	edges      []types.Edge
}

func (r *relationshipWalker) emitImportEdges(symbols []types.Symbol) {
	source := "file::" + r.filePath
	for _, sym := range symbols {
		if sym.Kind != types.SymbolImport {
			continue
		}
		r.edges = append(r.edges, types.Edge{
			Relation:   types.RelationImports,
			SourceUID:  source,
			TargetUID:  sym.QualifiedName,
			Confidence: confidenceImports,
			Language:   r.language,
		})
	}
}

// emitContainsEdges emits a contains edge from each class-like symbol
// to every method/field symbol whose qualified name's scope prefix
// names that class.
func (r *relationshipWalker) emitContainsEdges(symbols []types.Symbol) {
	classes := make(map[string]types.Symbol)
	for _, sym := range symbols {
		if isClassLikeSymbolKind(sym.Kind) {
			classes[sym.Name] = sym
		}
	}
	if len(classes) == 0 {
		return
	}

	for _, member := range symbols {
		if member.Kind != types.SymbolMethod && member.Kind != types.SymbolField && member.Kind != types.SymbolConstructor && member.Kind != types.SymbolProperty {
			continue
		}
		owner, ok := scopeOwner(member.QualifiedName, member.Name)
		if !ok {
			continue
		}
		class, ok := classes[owner]
		if !ok || class.UID == member.UID {
			continue
		}
		r.edges = append(r.edges, types.Edge{
			Relation:   types.RelationContains,
			SourceUID:  class.UID,
			TargetUID:  member.UID,
			Confidence: confidenceContains,
			Language:   r.language,
		})
	}
}

func isClassLikeSymbolKind(k types.SymbolKind) bool {
	switch k {
	case types.SymbolClass, types.SymbolStruct, types.SymbolInterface, types.SymbolTrait:
		return true
	default:
		return false
	}
}

// scopeOwner splits "A::B::member" into its immediate enclosing scope
// name ("B"), returning false when member has no enclosing scope.
func scopeOwner(qualifiedName, name string) (string, bool) {
	suffix := "::" + name
	if len(qualifiedName) <= len(suffix) || qualifiedName[len(qualifiedName)-len(suffix):] != suffix {
		return "", false
	}
	prefix := qualifiedName[:len(qualifiedName)-len(suffix)]
	if idx := lastIndexByte(prefix, ':'); idx >= 0 {
		return prefix[idx+1:], true
	}
	return prefix, prefix != ""
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// walk is the single AST pass that emits inherits-from edges (on
// class-like nodes with a base-list child) and the fallback calls
// edges (spec.md §4.3's "fallback walk over call-like node kinds"),
// tracking the enclosing callable/class symbol as it descends.
func (r *relationshipWalker) walk(node *sitter.Node, enclosing *types.Symbol) {
	if node == nil {
		return
	}

	kind := node.Kind()
	nextEnclosing := enclosing
	if declKind, ok := r.spec.Declarations[kind]; ok {
		if sym := r.symbolAtNode(node); sym != nil {
			if isCallableKind(declKind) {
				nextEnclosing = sym
			}
			if _, isClassLike := r.spec.ClassLikeKinds[kind]; isClassLike {
				r.emitInheritsFrom(node, sym)
			}
		}
	}

	if _, isCall := r.spec.CallKinds[kind]; isCall && nextEnclosing != nil {
		if calleeName := r.resolveCalleeName(node); calleeName != "" {
			if callees, ok := r.byName[calleeName]; ok {
				for _, callee := range callees {
					if callee.UID == nextEnclosing.UID {
						continue
					}
					r.edges = append(r.edges, types.Edge{
						Relation:   types.RelationCalls,
						SourceUID:  nextEnclosing.UID,
						TargetUID:  callee.UID,
						CallSite:   locPtr(nodeLocation(node, r.filePath)),
						Confidence: confidenceCallsFallback,
						Language:   r.language,
					})
				}
			}
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		r.walk(node.Child(i), nextEnclosing)
	}
}

// emitInheritsFrom looks for one of the language's base-list child
// kinds under a class-like node, and resolves every identifier-like
// descendant of that child against the name lookup map.
func (r *relationshipWalker) emitInheritsFrom(classNode *sitter.Node, classSym *types.Symbol) {
	baseList := findChildByKinds(classNode, r.spec.BaseListChildKinds)
	if baseList == nil {
		return
	}

	for _, baseName := range collectIdentifierTexts(baseList, r.spec.IdentifierChildKinds, r.content) {
		if baseName == classSym.Name {
			continue
		}
		for _, base := range r.byName[baseName] {
			if base.UID == classSym.UID {
				continue
			}
			r.edges = append(r.edges, types.Edge{
				Relation:   types.RelationInheritsFrom,
				SourceUID:  classSym.UID,
				TargetUID:  base.UID,
				CallSite:   locPtr(nodeLocation(classNode, r.filePath)),
				Confidence: confidenceInheritsFrom,
				Language:   r.language,
			})
		}
	}
}

// collectIdentifierTexts recursively gathers the text of every
// descendant node whose kind is in identifierKinds.
func collectIdentifierTexts(node *sitter.Node, identifierKinds []string, content []byte) []string {
	if node == nil {
		return nil
	}
	var out []string
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		for _, k := range identifierKinds {
			if n.Kind() == k {
				out = append(out, nodeText(n, content))
				return
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			visit(n.Child(i))
		}
	}
	visit(node)
	return out
}

func (r *relationshipWalker) resolveCalleeName(callNode *sitter.Node) string {
	child := findChildByKinds(callNode, r.spec.IdentifierChildKinds)
	if child == nil {
		// Most grammars put the callee as the first named child rather
		// than directly matching the identifier-kind list (e.g. a
		// member expression). Fall back to the first child's text.
		if callNode.ChildCount() == 0 {
			return ""
		}
		child = callNode.Child(0)
	}
	text := nodeText(child, r.content)
	return lastDottedSegment(text)
}

func (r *relationshipWalker) symbolAtNode(node *sitter.Node) *types.Symbol {
	name := r.resolveNameForLookup(node)
	if name == "" {
		return nil
	}
	candidates := r.byName[name]
	loc := nodeLocation(node, r.filePath)
	for i := range candidates {
		if candidates[i].Location.StartLine == loc.StartLine && candidates[i].Location.StartCol == loc.StartCol {
			return &candidates[i]
		}
	}
	if len(candidates) > 0 {
		return &candidates[0]
	}
	return nil
}

func (r *relationshipWalker) resolveNameForLookup(node *sitter.Node) string {
	child := findChildByKinds(node, r.spec.IdentifierChildKinds)
	return nodeText(child, r.content)
}

func locPtr(l types.Location) *types.Location { return &l }
