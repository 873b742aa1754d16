// Package astpool implements C1, the AST Parser Pool: a bounded,
// per-language collection of reusable tree-sitter parser instances with
// a context-bounded timeout per parse so a pathological input cannot
// stall the worker pool that calls it.
package astpool

import (
	"context"
	"errors"
	"sync"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/probelabs/probe-sub004/internal/lcierrors"
)

// errDisabled is the underlying cause reported when Acquire is called
// on a pool that has been explicitly disabled (see Disable).
var errDisabled = errors.New("parser pool disabled")

// Language is the tag used throughout the engine to select a grammar.
type Language string

const (
	Go         Language = "go"
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	Rust       Language = "rust"
	Java       Language = "java"
	Cpp        Language = "cpp"
	CSharp     Language = "csharp"
	PHP        Language = "php"
	Zig        Language = "zig"
)

// ExtensionLanguage maps file extensions to languages, mirroring the
// teacher's per-extension parser registration in parser_language_setup.go.
var ExtensionLanguage = map[string]Language{
	".go":   Go,
	".py":   Python,
	".js":   JavaScript,
	".jsx":  JavaScript,
	".mjs":  JavaScript,
	".ts":   TypeScript,
	".tsx":  TypeScript,
	".rs":   Rust,
	".java": Java,
	".c":    Cpp,
	".h":    Cpp,
	".cc":   Cpp,
	".cpp":  Cpp,
	".hpp":  Cpp,
	".cs":   CSharp,
	".php":  PHP,
	".zig":  Zig,
}

// DetectLanguage returns the language for a file extension (including
// the leading dot), and whether a grammar is registered for it.
func DetectLanguage(ext string) (Language, bool) {
	lang, ok := ExtensionLanguage[ext]
	return lang, ok
}

type entry struct {
	parser *tree_sitter.Parser
}

// perLangPool is a bounded freelist for one language: a mutex-guarded
// slice of idle parsers plus a factory that builds a new one whenever the
// freelist is empty, mirroring the teacher's per-language sync.Pool but
// with an explicit, observable capacity. capacity bounds how many idle
// parsers are kept, not how many exist at once (B3: at capacity, release
// drops the returned parser).
type perLangPool struct {
	mu       sync.Mutex
	free     []*entry
	capacity int
	factory  func() (*entry, error)
}

// Pool is the C1 AST Parser Pool: one perLangPool per registered
// language, created lazily on first acquire.
type Pool struct {
	mu          sync.Mutex
	pools       map[Language]*perLangPool
	capacity    int
	parseBudget time.Duration
	disabled    bool
}

// NewPool constructs a parser pool with the given per-language capacity
// (spec.md default 4) and per-parse timeout.
func NewPool(capacityPerLanguage int, parseTimeout time.Duration) *Pool {
	if capacityPerLanguage <= 0 {
		capacityPerLanguage = 4
	}
	return &Pool{
		pools:       make(map[Language]*perLangPool),
		capacity:    capacityPerLanguage,
		parseBudget: parseTimeout,
	}
}

// Disable turns the pool into ParserDisabled mode for every acquire,
// used by tests that need to exercise the failure path deterministically.
func (p *Pool) Disable() { p.disabled = true }

func (p *Pool) poolFor(lang Language) (*perLangPool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pl, ok := p.pools[lang]; ok {
		return pl, nil
	}

	factory, ok := languageFactories[lang]
	if !ok {
		return nil, lcierrors.ParserDisabled(string(lang))
	}

	pl := &perLangPool{capacity: p.capacity, factory: factory}
	p.pools[lang] = pl
	return pl, nil
}

// acquire returns an idle parser for lang, constructing one lazily with
// the factory when none is free.
func (pl *perLangPool) acquire() (*entry, error) {
	pl.mu.Lock()
	if n := len(pl.free); n > 0 {
		e := pl.free[n-1]
		pl.free = pl.free[:n-1]
		pl.mu.Unlock()
		return e, nil
	}
	pl.mu.Unlock()
	return pl.factory()
}

// release returns e to the pool, or drops it (closing resources) if the
// pool is already at capacity (spec.md B3).
func (pl *perLangPool) release(e *entry) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if len(pl.free) >= pl.capacity {
		e.parser.Close()
		return
	}
	pl.free = append(pl.free, e)
}

// Acquire obtains a parser for language, constructing or reusing one.
// Returns ParserDisabled if no grammar is registered.
func (p *Pool) Acquire(language Language) (*tree_sitter.Parser, error) {
	if p.disabled {
		return nil, lcierrors.New(lcierrors.KindParserNotAvailable, "acquire",
			errDisabled).WithLanguage(string(language))
	}
	pl, err := p.poolFor(language)
	if err != nil {
		return nil, err
	}
	e, err := pl.acquire()
	if err != nil {
		return nil, err
	}
	return e.parser, nil
}

// Release returns parser to language's pool (or drops it at capacity).
func (p *Pool) Release(language Language, parser *tree_sitter.Parser) {
	pl, err := p.poolFor(language)
	if err != nil {
		return
	}
	pl.release(&entry{parser: parser})
}

// Parse parses content on a dedicated goroutine bounded by the pool's
// configured parse timeout, so a pathological input fails only that
// file (spec.md §4.1, §5 cancellation rules) without blocking the
// scheduler. tree-sitter's Parse has no preemptible cancellation (the
// teacher's own ParseFileWithContext is likewise best-effort, see
// internal/parser/context_test.go), so a timed-out parser is not
// recycled: it is dropped once the background goroutine eventually
// returns, and the pool grows a replacement on the next acquire.
func (p *Pool) Parse(ctx context.Context, language Language, path string, content []byte) (*tree_sitter.Tree, error) {
	parser, err := p.Acquire(language)
	if err != nil {
		return nil, err
	}

	deadline := p.parseBudget
	if deadline <= 0 {
		deadline = 5 * time.Second
	}
	parseCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type result struct {
		tree *tree_sitter.Tree
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: lcierrors.ParserPanic(string(language), path, r)}
			}
		}()
		tree := parser.Parse(content, nil)
		resultCh <- result{tree: tree}
	}()

	select {
	case r := <-resultCh:
		// The background goroutine is done with parser; safe to recycle.
		p.Release(language, parser)
		if r.err != nil {
			return nil, r.err
		}
		return r.tree, nil
	case <-parseCtx.Done():
		// parser is still owned by the background goroutine; it must
		// finish (or panic-recover) before the parser object is reused,
		// so it is dropped here rather than recycled. "still returned
		// to the pool" per spec.md §4.1 means the pool's capacity is not
		// permanently reduced, not that this exact instance is reused.
		go func() {
			<-resultCh
		}()
		return nil, lcierrors.ParserTimeout(string(language), path)
	}
}
