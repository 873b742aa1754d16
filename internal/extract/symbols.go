package extract

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/probelabs/probe-sub004/internal/astpool"
	"github.com/probelabs/probe-sub004/internal/types"
	"github.com/probelabs/probe-sub004/internal/uid"
)

// structuralUID assigns a symbol's UID via C4's structural mode
// (spec.md §4.2 step 5, §4.4).
func structuralUID(workspaceID, language, filePath, name string, kind types.SymbolKind, loc types.Location) string {
	return uid.Structural(workspaceID, language, filePath, name, kind, loc.StartLine, loc.StartCol)
}

// scopeFrame is one entry of the qualified-name scope stack pushed
// while walking into a scope-introducing construct (spec.md §4.2
// "scope stack is pushed when the current node kind is a
// scope-introducing construct").
type scopeFrame struct {
	name string
	kind types.SymbolKind
}

// ExtractSymbols walks root and returns every symbol the language's
// LanguageSpec recognizes, in encounter order (spec.md §4.2).
func ExtractSymbols(workspaceID string, language astpool.Language, filePath string, content []byte, root *sitter.Node) []types.Symbol {
	spec, ok := SpecFor(language)
	if !ok || root == nil {
		return nil
	}

	w := &symbolWalker{
		spec:        spec,
		language:    string(language),
		workspaceID: workspaceID,
		filePath:    filePath,
		content:     content,
	}
	w.walk(root, nil)
	applyPostPasses(w.symbols, string(language))
	return w.symbols
}

type symbolWalker struct {
	spec        LanguageSpec
	language    string
	workspaceID string
	filePath    string
	content     []byte
	symbols     []types.Symbol
}

func (w *symbolWalker) walk(node *sitter.Node, scopeStack []scopeFrame) {
	if node == nil {
		return
	}

	kind := node.Kind()
	nextScopeStack := scopeStack

	if symKind, matched := w.spec.Declarations[kind]; matched {
		if sym, ok := w.buildSymbol(node, kind, symKind, scopeStack); ok {
			w.symbols = append(w.symbols, sym)
			if _, isScope := w.spec.ScopeKinds[kind]; isScope {
				nextScopeStack = append(append([]scopeFrame{}, scopeStack...), scopeFrame{name: sym.Name, kind: sym.Kind})
			}
		}
	} else if _, isScope := w.spec.ScopeKinds[kind]; isScope {
		// Anonymous scope (e.g. a bare block): it is not a symbol and
		// adds no frame, so its children keep the enclosing
		// qualified-name stack.
		nextScopeStack = scopeStack
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		w.walk(node.Child(i), nextScopeStack)
	}
}

func (w *symbolWalker) buildSymbol(node *sitter.Node, nodeKind string, symKind types.SymbolKind, scopeStack []scopeFrame) (types.Symbol, bool) {
	name := w.resolveName(node, nodeKind)
	if name == "" {
		return types.Symbol{}, false
	}

	loc := nodeLocation(node, w.filePath)
	qualified := qualifiedName(scopeStack, name)

	// A type declaration whose body is a class-like node (Go's
	// `type Greeter struct{...}`) takes that body's kind.
	if symKind == types.SymbolType {
		for i := uint(0); i < node.ChildCount(); i++ {
			bodyKind := node.Child(i).Kind()
			if _, classLike := w.spec.ClassLikeKinds[bodyKind]; classLike {
				if k, ok := w.spec.Declarations[bodyKind]; ok {
					symKind = k
				}
				break
			}
		}
	}

	// A plain function declared directly inside a class-like scope is a
	// method, even in languages (Python) whose grammar has no separate
	// method node kind.
	if symKind == types.SymbolFunction && len(scopeStack) > 0 && isClassLikeSymbolKind(scopeStack[len(scopeStack)-1].kind) {
		symKind = types.SymbolMethod
	}

	var signature string
	if isCallableKind(symKind) {
		signature = normalizedSignature(node, w.content)
	}

	var vis types.SymbolVisibility
	if w.spec.Visibility != nil {
		vis = w.spec.Visibility(name)
	}

	symUID := ""
	if w.workspaceID != "" {
		symUID = structuralUID(w.workspaceID, w.language, w.filePath, name, symKind, loc)
	}

	return types.Symbol{
		UID:           symUID,
		Name:          name,
		QualifiedName: qualified,
		Kind:          symKind,
		Visibility:    vis,
		Location:      loc,
		Signature:     signature,
		Language:      w.language,
	}, true
}

// resolveName locates the identifier per spec.md §4.2 step 1: first try
// the prioritized child-kind list, falling back to kind-specific
// textual parsing for node shapes that don't expose a plain identifier
// child (imports take the last dotted segment, parameters take the
// text before `:`).
func (w *symbolWalker) resolveName(node *sitter.Node, nodeKind string) string {
	if child := findChildByKinds(node, w.spec.IdentifierChildKinds); child != nil {
		return nodeText(child, w.content)
	}

	if _, isImport := w.spec.ImportKinds[nodeKind]; isImport {
		text := nodeText(node, w.content)
		return lastDottedSegment(text)
	}

	text := nodeText(node, w.content)
	if idx := strings.IndexByte(text, ':'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return ""
}

func lastDottedSegment(text string) string {
	text = strings.Trim(text, "\"'; \t\n")
	if text == "" {
		return ""
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '/' || r == ' ' || r == '"'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func qualifiedName(stack []scopeFrame, name string) string {
	if len(stack) == 0 {
		return name
	}
	parts := make([]string, 0, len(stack)+1)
	for _, f := range stack {
		if f.name != "" {
			parts = append(parts, f.name)
		}
	}
	parts = append(parts, name)
	return strings.Join(parts, "::")
}

func isCallableKind(k types.SymbolKind) bool {
	switch k {
	case types.SymbolFunction, types.SymbolMethod, types.SymbolConstructor:
		return true
	default:
		return false
	}
}
