package extract

import (
	"strings"

	"github.com/probelabs/probe-sub004/internal/astpool"
	"github.com/probelabs/probe-sub004/internal/types"
)

// LanguageSpec is the "language-specific node-kind table" spec.md §4.2
// requires: a finite enumeration of which tree-sitter node kinds are
// declarations (and what symbol kind they map to), which are scopes,
// which are calls, which are classes-with-bases, and which are
// imports, plus the priority list used to locate a declaration's name.
type LanguageSpec struct {
	Declarations         map[string]types.SymbolKind
	IdentifierChildKinds []string
	ScopeKinds           map[string]struct{}
	CallKinds            map[string]struct{}
	ClassLikeKinds       map[string]struct{}
	BaseListChildKinds   []string
	ImportKinds          map[string]struct{}
	Visibility           func(name string) types.SymbolVisibility
}

// Free-form visibility markers, per types.SymbolVisibility's own doc
// ("public", "private", "internal", ... — language-specific, not a
// closed enum).
const (
	visibilityPublic    types.SymbolVisibility = "public"
	visibilityPrivate   types.SymbolVisibility = "private"
	visibilityProtected types.SymbolVisibility = "protected"
)

func set(kinds ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		m[k] = struct{}{}
	}
	return m
}

// goCapitalization implements Go's name-based export rule, grounded on
// the pack's CommonVisibilityRules.GoCapitalization.
func goCapitalization(name string) types.SymbolVisibility {
	if name != "" && name[0] >= 'A' && name[0] <= 'Z' {
		return visibilityPublic
	}
	return visibilityPrivate
}

// pythonUnderscore implements Python's leading-underscore convention,
// grounded on the pack's CommonVisibilityRules.PythonUnderscore.
func pythonUnderscore(name string) types.SymbolVisibility {
	if strings.HasPrefix(name, "__") && !strings.HasSuffix(name, "__") {
		return visibilityPrivate
	}
	if strings.HasPrefix(name, "_") {
		return visibilityProtected
	}
	return visibilityPublic
}

func alwaysPublic(string) types.SymbolVisibility { return visibilityPublic }

var languageSpecs = map[astpool.Language]LanguageSpec{
	astpool.Go: {
		Declarations: map[string]types.SymbolKind{
			"function_declaration":  types.SymbolFunction,
			"method_declaration":    types.SymbolMethod,
			"type_spec":             types.SymbolType,
			"struct_type":           types.SymbolStruct,
			"interface_type":        types.SymbolInterface,
			"const_spec":            types.SymbolConstant,
			"var_spec":              types.SymbolVariable,
			"field_declaration":     types.SymbolField,
			"import_spec":           types.SymbolImport,
		},
		IdentifierChildKinds: []string{"identifier", "field_identifier", "type_identifier"},
		ScopeKinds:           set("function_declaration", "method_declaration", "func_literal", "block"),
		CallKinds:            set("call_expression"),
		ClassLikeKinds:       set("struct_type", "interface_type"),
		BaseListChildKinds:   []string{"interface_type"}, // Go embeds interfaces/structs as unnamed fields; approximate
		ImportKinds:          set("import_spec"),
		Visibility:           goCapitalization,
	},
	astpool.Python: {
		Declarations: map[string]types.SymbolKind{
			"function_definition": types.SymbolFunction,
			"class_definition":    types.SymbolClass,
			"import_statement":    types.SymbolImport,
			"import_from_statement": types.SymbolImport,
		},
		IdentifierChildKinds: []string{"identifier"},
		ScopeKinds:           set("function_definition", "class_definition", "block"),
		CallKinds:            set("call"),
		ClassLikeKinds:       set("class_definition"),
		BaseListChildKinds:   []string{"argument_list"},
		ImportKinds:          set("import_statement", "import_from_statement"),
		Visibility:           pythonUnderscore,
	},
	astpool.JavaScript: {
		Declarations: map[string]types.SymbolKind{
			"function_declaration": types.SymbolFunction,
			"class_declaration":    types.SymbolClass,
			"method_definition":    types.SymbolMethod,
			"variable_declarator":  types.SymbolVariable,
			"import_statement":     types.SymbolImport,
		},
		IdentifierChildKinds: []string{"identifier", "property_identifier"},
		ScopeKinds:           set("function_declaration", "method_definition", "class_declaration", "arrow_function", "statement_block"),
		CallKinds:            set("call_expression"),
		ClassLikeKinds:       set("class_declaration"),
		BaseListChildKinds:   []string{"class_heritage"},
		ImportKinds:          set("import_statement"),
		Visibility:           alwaysPublic,
	},
	astpool.TypeScript: {
		Declarations: map[string]types.SymbolKind{
			"function_declaration":  types.SymbolFunction,
			"class_declaration":     types.SymbolClass,
			"interface_declaration": types.SymbolInterface,
			"method_definition":     types.SymbolMethod,
			"variable_declarator":   types.SymbolVariable,
			"type_alias_declaration": types.SymbolType,
			"enum_declaration":      types.SymbolEnum,
			"import_statement":      types.SymbolImport,
		},
		IdentifierChildKinds: []string{"identifier", "property_identifier", "type_identifier"},
		ScopeKinds:           set("function_declaration", "method_definition", "class_declaration", "interface_declaration", "arrow_function", "statement_block"),
		CallKinds:            set("call_expression"),
		ClassLikeKinds:       set("class_declaration", "interface_declaration"),
		BaseListChildKinds:   []string{"class_heritage", "extends_clause"},
		ImportKinds:          set("import_statement"),
		Visibility:           alwaysPublic,
	},
	astpool.Rust: {
		Declarations: map[string]types.SymbolKind{
			"function_item": types.SymbolFunction,
			"struct_item":   types.SymbolStruct,
			"enum_item":     types.SymbolEnum,
			"trait_item":    types.SymbolTrait,
			"impl_item":     types.SymbolClass,
			"mod_item":      types.SymbolModule,
			"use_declaration": types.SymbolImport,
			"const_item":    types.SymbolConstant,
		},
		IdentifierChildKinds: []string{"identifier", "type_identifier", "field_identifier"},
		ScopeKinds:           set("function_item", "impl_item", "trait_item", "mod_item", "block"),
		CallKinds:            set("call_expression"),
		ClassLikeKinds:       set("struct_item", "trait_item", "impl_item"),
		BaseListChildKinds:   []string{"trait_bounds"},
		ImportKinds:          set("use_declaration"),
		Visibility:           alwaysPublic, // `pub` is a sibling modifier token, not name-encoded; treated uniformly
	},
	astpool.Java: {
		Declarations: map[string]types.SymbolKind{
			"class_declaration":     types.SymbolClass,
			"interface_declaration": types.SymbolInterface,
			"enum_declaration":      types.SymbolEnum,
			"method_declaration":    types.SymbolMethod,
			"constructor_declaration": types.SymbolConstructor,
			"field_declaration":     types.SymbolField,
			"import_declaration":    types.SymbolImport,
		},
		IdentifierChildKinds: []string{"identifier", "type_identifier"},
		ScopeKinds:           set("class_declaration", "interface_declaration", "method_declaration", "constructor_declaration", "block"),
		CallKinds:            set("method_invocation"),
		ClassLikeKinds:       set("class_declaration", "interface_declaration"),
		BaseListChildKinds:   []string{"superclass", "super_interfaces"},
		ImportKinds:          set("import_declaration"),
		Visibility:           alwaysPublic, // modifiers are sibling tokens (public/private), not name-encoded
	},
	astpool.Cpp: {
		Declarations: map[string]types.SymbolKind{
			"function_definition": types.SymbolFunction,
			"class_specifier":     types.SymbolClass,
			"struct_specifier":    types.SymbolStruct,
			"namespace_definition": types.SymbolNamespace,
			"enum_specifier":      types.SymbolEnum,
			"preproc_include":     types.SymbolImport,
		},
		IdentifierChildKinds: []string{"identifier", "field_identifier", "type_identifier"},
		ScopeKinds:           set("function_definition", "class_specifier", "struct_specifier", "namespace_definition", "compound_statement"),
		CallKinds:            set("call_expression"),
		ClassLikeKinds:       set("class_specifier", "struct_specifier"),
		BaseListChildKinds:   []string{"base_class_clause"},
		ImportKinds:          set("preproc_include"),
		Visibility:           alwaysPublic,
	},
	astpool.CSharp: {
		Declarations: map[string]types.SymbolKind{
			"class_declaration":     types.SymbolClass,
			"interface_declaration": types.SymbolInterface,
			"struct_declaration":    types.SymbolStruct,
			"enum_declaration":      types.SymbolEnum,
			"method_declaration":    types.SymbolMethod,
			"constructor_declaration": types.SymbolConstructor,
			"property_declaration":  types.SymbolProperty,
			"namespace_declaration": types.SymbolNamespace,
			"using_directive":       types.SymbolImport,
		},
		IdentifierChildKinds: []string{"identifier"},
		ScopeKinds:           set("class_declaration", "interface_declaration", "struct_declaration", "namespace_declaration", "method_declaration", "block"),
		CallKinds:            set("invocation_expression"),
		ClassLikeKinds:       set("class_declaration", "interface_declaration", "struct_declaration"),
		BaseListChildKinds:   []string{"base_list"},
		ImportKinds:          set("using_directive"),
		Visibility:           alwaysPublic,
	},
	astpool.PHP: {
		Declarations: map[string]types.SymbolKind{
			"function_definition":   types.SymbolFunction,
			"method_declaration":    types.SymbolMethod,
			"class_declaration":     types.SymbolClass,
			"interface_declaration": types.SymbolInterface,
			"trait_declaration":     types.SymbolTrait,
			"namespace_use_declaration": types.SymbolImport,
		},
		IdentifierChildKinds: []string{"name"},
		ScopeKinds:           set("function_definition", "method_declaration", "class_declaration", "trait_declaration", "compound_statement"),
		CallKinds:            set("function_call_expression", "member_call_expression"),
		ClassLikeKinds:       set("class_declaration", "interface_declaration", "trait_declaration"),
		BaseListChildKinds:   []string{"base_clause", "class_interface_clause"},
		ImportKinds:          set("namespace_use_declaration"),
		Visibility:           alwaysPublic,
	},
	astpool.Zig: {
		// Zig's community tree-sitter grammar has fewer stable, widely
		// documented node-kind names than the other nine languages; this
		// is deliberately the thinnest table in the set (top-level
		// function/container declarations only), noted in DESIGN.md
		// rather than guessed into false precision.
		Declarations: map[string]types.SymbolKind{
			"FnProto":      types.SymbolFunction,
			"ContainerDecl": types.SymbolStruct,
			"VarDecl":      types.SymbolVariable,
		},
		IdentifierChildKinds: []string{"IDENTIFIER", "identifier"},
		ScopeKinds:           set("FnProto", "ContainerDecl", "Block"),
		CallKinds:            set("SuffixExpr"),
		ClassLikeKinds:       set("ContainerDecl"),
		BaseListChildKinds:   nil,
		ImportKinds:          set(),
		Visibility:           alwaysPublic,
	},
}

// SpecFor returns the extraction table for language, and whether one
// is registered.
func SpecFor(language astpool.Language) (LanguageSpec, bool) {
	s, ok := languageSpecs[language]
	return s, ok
}
