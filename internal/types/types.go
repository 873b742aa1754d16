// Package types defines the data model shared by every component of the
// indexing and query engine: workspaces, file versions, symbols, edges,
// and the in-flight indexing task.
package types

import "fmt"

// FileID identifies a file within a single workspace's database.
type FileID uint32

// SymbolKind enumerates the structural kinds a Symbol may take.
type SymbolKind string

const (
	SymbolFunction    SymbolKind = "function"
	SymbolMethod      SymbolKind = "method"
	SymbolConstructor SymbolKind = "constructor"
	SymbolClass       SymbolKind = "class"
	SymbolInterface   SymbolKind = "interface"
	SymbolStruct      SymbolKind = "struct"
	SymbolUnion       SymbolKind = "union"
	SymbolEnum        SymbolKind = "enum"
	SymbolEnumVariant SymbolKind = "enum-variant"
	SymbolTrait       SymbolKind = "trait"
	SymbolType        SymbolKind = "type"
	SymbolField       SymbolKind = "field"
	SymbolProperty    SymbolKind = "property"
	SymbolVariable    SymbolKind = "variable"
	SymbolConstant    SymbolKind = "constant"
	SymbolModule      SymbolKind = "module"
	SymbolNamespace   SymbolKind = "namespace"
	SymbolPackage     SymbolKind = "package"
	SymbolMacro       SymbolKind = "macro"
	SymbolImport      SymbolKind = "import"
	SymbolExport      SymbolKind = "export"
	SymbolAnonymous   SymbolKind = "anonymous"
)

// SymbolVisibility is a free-form, language-specific visibility marker
// ("public", "private", "internal", ...). Empty means unknown/unspecified.
type SymbolVisibility string

// Location pins a symbol or call-site to a byte range in a source file.
// Lines are 1-based, columns are 0-based (spec invariant: tree-sitter's
// 0-based rows are incremented by one on the way in).
type Location struct {
	FilePath   string
	StartLine  int
	StartCol   int
	EndLine    int
	EndCol     int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.FilePath, l.StartLine, l.StartCol)
}

// MetadataValue is a tagged union over the scalar kinds symbol/edge
// metadata may carry, in place of an open json.RawMessage blob.
type MetadataValue struct {
	Kind MetadataKind
	Str  string
	Num  float64
	Bool bool
}

type MetadataKind uint8

const (
	MetaString MetadataKind = iota
	MetaNumber
	MetaBool
)

func StringMeta(s string) MetadataValue  { return MetadataValue{Kind: MetaString, Str: s} }
func NumberMeta(n float64) MetadataValue { return MetadataValue{Kind: MetaNumber, Num: n} }
func BoolMeta(b bool) MetadataValue      { return MetadataValue{Kind: MetaBool, Bool: b} }

// Reserved tag constants, so per-language post-passes don't scatter raw
// string literals across the codebase (SPEC_FULL §9 DESIGN NOTES).
const (
	TagDunder       = "dunder"        // names starting/ending with "__"
	TagDecoratedAs  = "decorated"     // re-kinded via a decorator/annotation heuristic
	TagAllCapsConst = "all-caps-const"
	TagGenerated    = "generated"
	TagTest         = "test"
)

// Symbol is a named code entity discovered by the extractor.
type Symbol struct {
	UID           string
	Name          string
	QualifiedName string
	Kind          SymbolKind
	Visibility    SymbolVisibility
	Location      Location
	Signature     string
	Tags          []string
	Metadata      map[string]MetadataValue
	Language      string
}

// EdgeRelation enumerates the directed relationships between symbols.
type EdgeRelation string

const (
	RelationCalls        EdgeRelation = "calls"
	RelationInheritsFrom EdgeRelation = "inherits-from"
	RelationImplements   EdgeRelation = "implements"
	RelationImports      EdgeRelation = "imports"
	RelationContains     EdgeRelation = "contains"
	RelationReferences   EdgeRelation = "references"
	RelationDefines      EdgeRelation = "defines"
	RelationOverrides    EdgeRelation = "overrides"
	RelationUsesType     EdgeRelation = "uses-type"
	RelationHasField     EdgeRelation = "has-field"
)

// Edge is a typed, directed relationship between two symbol UIDs, or
// between a symbol UID and a symbolic external target (e.g. an import
// path that was never structurally indexed).
type Edge struct {
	Relation   EdgeRelation
	SourceUID  string
	TargetUID  string
	CallSite   *Location
	Confidence float64
	Language   string
	Metadata   map[string]MetadataValue
}

// FileVersion is a content-addressed snapshot of a file's bytes.
type FileVersion struct {
	ID            int64
	ContentDigest string // 64-hex sha256
	FastHash      uint64 // xxhash fast-path fingerprint
	SizeBytes     int64
	GitBlobID     string
	LineCount     int
	Language      string
	MTime         int64 // unix nanos, 0 if unknown
}

// WorkspaceFileLink marks which file-version is currently active for a
// (workspace, file) pair. Superseded links are retained, never resolved.
type WorkspaceFileLink struct {
	WorkspaceID   string
	FilePath      string
	FileVersionID int64
	Active        bool
	LinkedAtUnix  int64
}

// Workspace is a stable identity over a repository/directory tree.
type Workspace struct {
	ID         string
	Root       string
	BranchHint string
	CommitHash string
}

// ChangeKind enumerates how a file changed between index.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
	ChangeMove   ChangeKind = "move"
)

// IndexingTask is a unit of work dequeued by a worker.
type IndexingTask struct {
	Path       string
	MoveFrom   string // only set when Kind == ChangeMove
	Kind       ChangeKind
	Digest     string // pre-computed, optional
	Size       int64
	MTime      int64
	Priority   int
}
