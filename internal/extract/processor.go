package extract

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/probelabs/probe-sub004/internal/astpool"
	"github.com/probelabs/probe-sub004/internal/db"
	"github.com/probelabs/probe-sub004/internal/filestore"
	"github.com/probelabs/probe-sub004/internal/lcierrors"
	"github.com/probelabs/probe-sub004/internal/types"
	"github.com/probelabs/probe-sub004/internal/workerpool"
)

// Enhancer is the narrow slice of lsp.Enhancer the processor needs,
// kept as an interface so tests can run without an lsp.Client.
type Enhancer interface {
	Enhance(ctx context.Context, workspaceID, language, filePath string, symbols []types.Symbol) []types.Edge
}

// Processor is the concrete workerpool.Processor: it parses (C1),
// extracts symbols and structural edges (C2/C3), assigns UIDs (C4,
// inline during extraction), persists a content-addressed file version
// (C5) and the symbol/edge set (C9), and optionally augments the
// structural edges with LSP-derived ones (C8) before returning.
//
// Enhancement runs inline in the same worker slot rather than through
// a second queued pass: the spec does not mandate a separate
// enhancement queue, and re-parsing the same file a second time to
// enhance it would cost more than it saves. workerpool.FileResult's
// EnhancementTask field is therefore always left nil by this
// implementation.
type Processor struct {
	WorkspaceID string
	DB          *db.DB
	Store       *filestore.Store
	Parsers     *astpool.Pool
	Enhancer    Enhancer // nil disables C8
	Log         *zap.Logger
	validator   *headerValidator
}

// NewProcessor constructs a Processor bound to one workspace.
func NewProcessor(workspaceID string, database *db.DB, store *filestore.Store, parsers *astpool.Pool, enhancer Enhancer, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		WorkspaceID: workspaceID,
		DB:          database,
		Store:       store,
		Parsers:     parsers,
		validator:   newHeaderValidator(4 * 1024 * 1024),
		Enhancer:    enhancer,
		Log:         log,
	}
}

// ProcessFile implements workerpool.Processor.
func (p *Processor) ProcessFile(ctx context.Context, task types.IndexingTask) workerpool.FileResult {
	start := time.Now()
	result := workerpool.FileResult{Path: task.Path}

	if task.Kind == types.ChangeDelete {
		if err := p.DB.DeactivateFile(p.WorkspaceID, task.Path); err != nil {
			result.Err = err
		}
		result.Duration = time.Since(start)
		return result
	}

	language, ok := astpool.DetectLanguage(filepath.Ext(task.Path))
	if !ok {
		result.Err = lcierrors.New(lcierrors.KindInvalidContent, "unsupported_language", nil).WithFile(task.Path)
		result.Duration = time.Since(start)
		return result
	}

	if info, err := os.Stat(task.Path); err == nil {
		if verr := p.validator.validateLarge(task.Path, info.Size()); verr != nil {
			result.Err = lcierrors.New(lcierrors.KindInvalidContent, "validate_file", verr).WithFile(task.Path)
			result.Duration = time.Since(start)
			return result
		}
	}

	content, err := os.ReadFile(task.Path)
	if err != nil {
		result.Err = lcierrors.New(lcierrors.KindInvalidContent, "read_file", err).WithFile(task.Path)
		result.Duration = time.Since(start)
		return result
	}
	result.Bytes = int64(len(content))

	ensured, err := p.Store.EnsureFileVersion(task.Path, content, task.MTime, "")
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}
	if err := p.DB.LinkFile(p.WorkspaceID, task.Path, ensured.Version.ID, time.Now().UnixNano()); err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	tree, err := p.Parsers.Parse(ctx, language, task.Path, content)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}
	defer tree.Close()

	root := tree.RootNode()
	symbols := ExtractSymbols(p.WorkspaceID, language, task.Path, content, root)
	edges := ExtractRelationships(language, task.Path, content, root, symbols)

	if p.Enhancer != nil {
		edges = append(edges, p.Enhancer.Enhance(ctx, p.WorkspaceID, string(language), task.Path, symbols)...)
	}

	if err := p.DB.WriteFileSymbolsAndEdges(p.WorkspaceID, task.Path, ensured.Version.ID, symbols, edges); err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	result.Symbols = len(symbols)
	result.Edges = len(edges)
	result.Duration = time.Since(start)
	return result
}
