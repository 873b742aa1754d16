// Package filestore implements C5, the Content-Addressed File Version
// Store: ensure_file_version and the process_file_changes batch
// operation. Versions are deduplicated by content digest behind a
// bounded LRU so that re-indexing byte-identical content across many
// files (vendored copies, generated code) costs one stored row instead
// of one per file.
package filestore

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/probelabs/probe-sub004/internal/lcierrors"
	"github.com/probelabs/probe-sub004/internal/types"
)

// Linker is the subset of C9 the store needs to persist a version and
// attach it to a workspace; kept as an interface so filestore has no
// compile-time dependency on the database package.
type Linker interface {
	InsertFileVersion(v *types.FileVersion) (int64, error)
	LinkFile(workspaceID, path string, fileVersionID int64, activeAt int64) error
}

// Store is the C5 implementation: a bounded, digest-keyed LRU in front
// of whatever Linker persists versions durably.
type Store struct {
	mu          sync.Mutex
	byDigest    map[string]*list.Element // content_digest -> lru node
	order       *list.List               // front = most recently used
	capacity    int
	maxFileSize int64
	linker      Linker
}

// entryRecord is the payload stored in each LRU node.
type entryRecord struct {
	digest  string
	version *types.FileVersion
}

// New constructs a Store with the given LRU capacity (entries) and max
// accepted file size in bytes.
func New(linker Linker, capacity int, maxFileSize int64) *Store {
	if capacity <= 0 {
		capacity = 2048
	}
	return &Store{
		byDigest:    make(map[string]*list.Element, capacity),
		order:       list.New(),
		capacity:    capacity,
		maxFileSize: maxFileSize,
		linker:      linker,
	}
}

// EnsureResult is the outcome of EnsureFileVersion.
type EnsureResult struct {
	Version    *types.FileVersion
	IsNewVersion bool
}

// EnsureFileVersion implements spec.md §4.5 ensure_file_version. It is
// safe under concurrent callers: two goroutines racing on the same
// digest both observe the same stored *FileVersion (the digest is
// computed outside the lock, but the cache is re-checked under the lock
// before insertion, so there is never more than one record per digest).
func (s *Store) EnsureFileVersion(path string, content []byte, mtime int64, gitBlobID string) (*EnsureResult, error) {
	if int64(len(content)) > s.maxFileSize {
		return nil, lcierrors.FileTooLarge(path, int64(len(content)), s.maxFileSize)
	}

	digest := digestContent(content)
	fast := xxhash.Sum64(content)

	s.mu.Lock()
	if el, ok := s.byDigest[digest]; ok {
		s.order.MoveToFront(el)
		rec := el.Value.(*entryRecord)
		s.mu.Unlock()
		return &EnsureResult{Version: rec.version, IsNewVersion: false}, nil
	}
	s.mu.Unlock()

	version := &types.FileVersion{
		ContentDigest: digest,
		FastHash:      fast,
		SizeBytes:     int64(len(content)),
		GitBlobID:     gitBlobID,
		LineCount:     countLines(content),
		MTime:         mtime,
	}

	if s.linker != nil {
		id, err := s.linker.InsertFileVersion(version)
		if err != nil {
			return nil, lcierrors.Database("insert_file_version", err).WithFile(path)
		}
		version.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have inserted the same digest while this
	// one was writing to the database; the existing record wins so the
	// cache never holds two *FileVersion values for one digest.
	if el, ok := s.byDigest[digest]; ok {
		s.order.MoveToFront(el)
		rec := el.Value.(*entryRecord)
		return &EnsureResult{Version: rec.version, IsNewVersion: false}, nil
	}

	el := s.order.PushFront(&entryRecord{digest: digest, version: version})
	s.byDigest[digest] = el
	s.evictLocked()

	return &EnsureResult{Version: version, IsNewVersion: true}, nil
}

// evictLocked drops least-recently-used entries past capacity. Must be
// called with s.mu held.
func (s *Store) evictLocked() {
	for s.order.Len() > s.capacity {
		back := s.order.Back()
		if back == nil {
			return
		}
		rec := back.Value.(*entryRecord)
		delete(s.byDigest, rec.digest)
		s.order.Remove(back)
	}
}

func digestContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := 1
	for _, b := range content {
		if b == '\n' {
			n++
		}
	}
	return n
}

// FileChange describes one pending mutation for process_file_changes.
type FileChange struct {
	Path           string
	MoveFrom       string // only for ChangeMove
	Kind           types.ChangeKind
	SuppliedDigest string // optional, verified if present
	WorkspaceID    string
}

// FailedChange records a per-file failure without aborting the batch
// (spec.md §4.5 "Failure of individual files MUST NOT abort the batch").
type FailedChange struct {
	Path  string
	Error string
}

// ProcessingResults summarizes one process_file_changes batch.
type ProcessingResults struct {
	Processed    int
	New          int
	Deduplicated int
	Failed       []FailedChange
	Associations int
	Duration     time.Duration
}

// ProcessFileChanges implements spec.md §4.5's batch operation: it
// dispatches each change by kind, reading bytes from disk for
// Create/Update/Move and recording Delete without touching the
// filesystem.
func (s *Store) ProcessFileChanges(workspaceID string, changes []FileChange) *ProcessingResults {
	start := time.Now()
	results := &ProcessingResults{}

	for _, change := range changes {
		if err := s.applyChange(workspaceID, change, results); err != nil {
			results.Failed = append(results.Failed, FailedChange{Path: change.Path, Error: err.Error()})
			continue
		}
		results.Processed++
	}

	results.Duration = time.Since(start)
	return results
}

func (s *Store) applyChange(workspaceID string, change FileChange, results *ProcessingResults) error {
	switch change.Kind {
	case types.ChangeDelete:
		// record-only: no version or link churn, the caller's C9 layer
		// is responsible for marking the existing link inactive.
		return nil
	case types.ChangeCreate, types.ChangeUpdate, types.ChangeMove:
		path := change.Path
		content, err := os.ReadFile(path)
		if err != nil {
			return lcierrors.New(lcierrors.KindInvalidContent, "read_file", err).WithFile(path)
		}
		if change.SuppliedDigest != "" {
			if got := digestContent(content); got != change.SuppliedDigest {
				return lcierrors.New(lcierrors.KindInvalidContent, "digest_mismatch",
					fmt.Errorf("supplied digest %s does not match computed %s", change.SuppliedDigest, got)).WithFile(path)
			}
		}

		info, statErr := os.Stat(path)
		var mtime int64
		if statErr == nil {
			mtime = info.ModTime().UnixNano()
		}

		ensured, err := s.EnsureFileVersion(path, content, mtime, "")
		if err != nil {
			return err
		}
		if ensured.IsNewVersion {
			results.New++
		} else {
			results.Deduplicated++
		}

		if s.linker != nil {
			if err := s.linker.LinkFile(workspaceID, path, ensured.Version.ID, time.Now().UnixNano()); err != nil {
				return lcierrors.Database("link_file", err).WithFile(path)
			}
			results.Associations++
		}
		return nil
	default:
		return lcierrors.New(lcierrors.KindInvalidContent, "unknown_change_kind",
			fmt.Errorf("unrecognized change kind %q", change.Kind))
	}
}
