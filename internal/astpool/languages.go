package astpool

import (
	"unsafe"

	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// languageFactories builds one fresh *tree_sitter.Parser per language,
// mirroring the teacher's parser_language_setup.go registration, but
// keyed for lazy per-pool construction instead of eager startup setup.
var languageFactories = map[Language]func() (*entry, error){
	Go:         newFactory(tree_sitter_go.Language()),
	Python:     newFactory(tree_sitter_python.Language()),
	JavaScript: newFactory(tree_sitter_javascript.Language()),
	TypeScript: newFactory(tree_sitter_typescript.LanguageTypescript()),
	Rust:       newFactory(tree_sitter_rust.Language()),
	Java:       newFactory(tree_sitter_java.Language()),
	Cpp:        newFactory(tree_sitter_cpp.Language()),
	CSharp:     newFactory(tree_sitter_csharp.Language()),
	PHP:        newFactory(tree_sitter_php.LanguagePHP()),
	Zig:        newFactory(tree_sitter_zig.Language()),
}

// newFactory closes over a raw grammar pointer and returns a factory
// that builds a ready-to-use parser for it on every call.
func newFactory(raw unsafe.Pointer) func() (*entry, error) {
	return func() (*entry, error) {
		parser := tree_sitter.NewParser()
		lang := tree_sitter.NewLanguage(raw)
		if err := parser.SetLanguage(lang); err != nil {
			return nil, err
		}
		return &entry{parser: parser}, nil
	}
}
