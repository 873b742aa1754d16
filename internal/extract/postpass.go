package extract

import (
	"strings"

	"github.com/probelabs/probe-sub004/internal/types"
)

// applyPostPasses enriches already-extracted symbols with semantic
// tags using purely textual heuristics on the stored signature
// (spec.md §4.2: "these passes MUST NOT change locations or UIDs").
func applyPostPasses(symbols []types.Symbol, language string) {
	for i := range symbols {
		sym := &symbols[i]

		if isDunderName(sym.Name) {
			sym.Tags = append(sym.Tags, types.TagDunder)
		}

		if language == "python" && strings.Contains(sym.Signature, "@property") {
			sym.Kind = types.SymbolField
			sym.Tags = append(sym.Tags, types.TagDecoratedAs)
		}

		if sym.Kind == types.SymbolVariable && isAllCapsName(sym.Name) {
			sym.Kind = types.SymbolConstant
			sym.Tags = append(sym.Tags, types.TagAllCapsConst)
		}
	}
}

func isDunderName(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

func isAllCapsName(name string) bool {
	sawLetter := false
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r == '_', r >= '0' && r <= '9':
			if r >= 'A' && r <= 'Z' {
				sawLetter = true
			}
		default:
			return false
		}
	}
	return sawLetter
}
