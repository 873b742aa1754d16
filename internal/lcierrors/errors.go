// Package lcierrors defines the typed error taxonomy the engine raises.
// Per-file and per-LSP-call errors are absorbed locally by callers and
// folded into progress counters; workspace- and branch-level errors are
// surfaced to the caller unchanged.
package lcierrors

import (
	"fmt"
	"time"
)

// Kind classifies an error for the propagation policy in SPEC_FULL §7.
type Kind string

const (
	KindConfig             Kind = "config"
	KindParserNotAvailable Kind = "parser_not_available"
	KindParserTimeout      Kind = "parser_timeout"
	KindParserPanic        Kind = "parser_panic"
	KindParseError         Kind = "parse_error"
	KindUIDGeneration      Kind = "uid_generation"
	KindFileTooLarge       Kind = "file_too_large"
	KindInvalidContent     Kind = "invalid_content"
	KindWorkspaceNotFound  Kind = "workspace_not_found"
	KindBranchNotFound     Kind = "branch_not_found"
	KindUncommittedChanges Kind = "uncommitted_changes"
	KindBranchConflicts    Kind = "branch_conflicts"
	KindInvalidBranchName  Kind = "invalid_branch_name"
	KindLSPTimeout         Kind = "lsp_timeout"
	KindLSPProtocol        Kind = "lsp_protocol_error"
	KindIndexingStalled    Kind = "indexing_stalled"
	KindShutdownTimeout    Kind = "shutdown_timeout"
	KindDatabase           Kind = "database"
	KindConcurrency        Kind = "concurrency"
)

// EngineError is the common shape for every taxonomy member: a kind, an
// optional operation/file context, the wrapped cause, and whether the
// caller may retry.
type EngineError struct {
	Kind        Kind
	Operation   string
	FilePath    string
	Language    string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

func New(kind Kind, op string, err error) *EngineError {
	return &EngineError{Kind: kind, Operation: op, Underlying: err, Timestamp: time.Now()}
}

func (e *EngineError) WithFile(path string) *EngineError {
	e.FilePath = path
	return e
}

func (e *EngineError) WithLanguage(lang string) *EngineError {
	e.Language = lang
	return e
}

func (e *EngineError) WithRecoverable(r bool) *EngineError {
	e.Recoverable = r
	return e
}

func (e *EngineError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("%s: %s failed for %s: %v", e.Kind, e.Operation, e.FilePath, e.Underlying)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Operation, e.Underlying)
}

func (e *EngineError) Unwrap() error { return e.Underlying }

func (e *EngineError) IsRecoverable() bool { return e.Recoverable }

// Is lets errors.Is(err, lcierrors.KindX) style checks work via a
// sentinel wrapper; most callers instead type-assert *EngineError and
// compare .Kind directly.
func (e *EngineError) Is(target error) bool {
	other, ok := target.(*EngineError)
	return ok && other.Kind == e.Kind
}

// ParserTimeout, ParserDisabled-style convenience constructors used
// directly by the parser pool and extractors (spec.md §4.1/§7).
func ParserTimeout(language, file string) *EngineError {
	return New(KindParserTimeout, "parse", fmt.Errorf("parse of %s timed out", file)).
		WithFile(file).WithLanguage(language)
}

func ParserDisabled(language string) *EngineError {
	return New(KindParserNotAvailable, "acquire", fmt.Errorf("no grammar registered for %q", language)).
		WithLanguage(language)
}

func ParserPanic(language, file string, recovered any) *EngineError {
	return New(KindParserPanic, "parse", fmt.Errorf("panic: %v", recovered)).
		WithFile(file).WithLanguage(language).WithRecoverable(true)
}

func FileTooLarge(path string, size, max int64) *EngineError {
	return New(KindFileTooLarge, "ensure_file_version",
		fmt.Errorf("%d bytes exceeds max file size %d", size, max)).WithFile(path)
}

func WorkspaceNotFound(root string) *EngineError {
	return New(KindWorkspaceNotFound, "resolve_workspace", fmt.Errorf("no workspace at %q", root))
}

func BranchNotFound(name string) *EngineError {
	return New(KindBranchNotFound, "switch_branch", fmt.Errorf("branch %q not found", name))
}

func UncommittedChanges() *EngineError {
	return New(KindUncommittedChanges, "switch_branch", fmt.Errorf("working tree is dirty"))
}

func BranchConflicts(detail string) *EngineError {
	return New(KindBranchConflicts, "switch_branch", fmt.Errorf("checkout conflicts: %s", detail))
}

func InvalidBranchName(name string) *EngineError {
	return New(KindInvalidBranchName, "switch_branch", fmt.Errorf("invalid branch name %q", name))
}

func LSPTimeout(method string) *EngineError {
	return New(KindLSPTimeout, method, fmt.Errorf("timed out waiting for response")).
		WithRecoverable(true)
}

func LSPProtocolError(op string, err error) *EngineError {
	return New(KindLSPProtocol, op, err).WithRecoverable(true)
}

func IndexingStalled(language string) *EngineError {
	return New(KindIndexingStalled, "wait_until_ready", fmt.Errorf("server-side indexing stalled below ready threshold")).
		WithLanguage(language)
}

func ShutdownTimeout(language string) *EngineError {
	return New(KindShutdownTimeout, "shutdown", fmt.Errorf("server did not exit in time")).
		WithLanguage(language)
}

func Database(op string, err error) *EngineError {
	return New(KindDatabase, op, err)
}
