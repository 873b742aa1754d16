// Package db implements C9, the per-workspace database: schema
// creation and the transactional writes the worker pool and LSP
// enhancer need. One *DB wraps exactly one workspace's SQLite file;
// internal/router owns the map from workspace id to *DB.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/probelabs/probe-sub004/internal/lcierrors"
	"github.com/probelabs/probe-sub004/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	root TEXT NOT NULL,
	branch_hint TEXT,
	commit_hash TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id TEXT NOT NULL,
	path TEXT NOT NULL,
	UNIQUE(workspace_id, path)
);

CREATE TABLE IF NOT EXISTS file_versions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_digest TEXT NOT NULL,
	fast_hash INTEGER,
	size_bytes INTEGER NOT NULL,
	git_blob_id TEXT,
	line_count INTEGER,
	language TEXT,
	mtime INTEGER,
	UNIQUE(content_digest)
);
CREATE INDEX IF NOT EXISTS idx_fileversions_digest ON file_versions(content_digest);

CREATE TABLE IF NOT EXISTS workspace_file_links (
	workspace_id TEXT NOT NULL,
	file_id INTEGER NOT NULL,
	file_version_id INTEGER NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	linked_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_links_file ON workspace_file_links(file_id, active);

CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	name TEXT NOT NULL,
	qualified_name TEXT,
	kind TEXT NOT NULL,
	file_path TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	start_col INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	end_col INTEGER NOT NULL,
	signature TEXT,
	visibility TEXT,
	tags TEXT,
	metadata TEXT,
	file_version_id INTEGER,
	indexed_at INTEGER NOT NULL,
	superseded INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_symbols_uid ON symbols(workspace_id, uid, superseded);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_location ON symbols(file_path, start_line, start_col);

CREATE TABLE IF NOT EXISTS edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id TEXT NOT NULL,
	relation TEXT NOT NULL,
	source_uid TEXT NOT NULL,
	target_uid TEXT NOT NULL,
	call_site_file TEXT,
	call_site_line INTEGER,
	call_site_col INTEGER,
	confidence REAL NOT NULL DEFAULT 1.0,
	language TEXT,
	metadata TEXT,
	file_path TEXT NOT NULL DEFAULT '',
	indexed_at INTEGER NOT NULL DEFAULT 0,
	superseded INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_uid);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_uid);
CREATE INDEX IF NOT EXISTS idx_edges_relation ON edges(relation);
CREATE INDEX IF NOT EXISTS idx_edges_file ON edges(workspace_id, file_path, superseded);
`

// DB wraps one workspace's SQLite connection.
type DB struct {
	sql         *sql.DB
	path        string
	workspaceID string
}

// Open creates the workspace directory if needed and opens (creating on
// first use) the SQLite file at <dir>/workspace.db, with WAL mode and a
// busy timeout so concurrent worker writes serialize instead of failing
// outright (grounded on codenerd's northstar/store.go DSN).
func Open(workspaceID, dir string, busyTimeoutMs int) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, lcierrors.Database("mkdir", err)
	}
	path := filepath.Join(dir, "workspace.db")
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", path, busyTimeoutMs)

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, lcierrors.Database("open", err)
	}
	sqlDB.SetMaxOpenConns(1) // one writer per workspace; SQLite serializes anyway

	d := &DB{sql: sqlDB, path: path, workspaceID: workspaceID}
	if err := d.initSchema(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) initSchema() error {
	if _, err := d.sql.Exec(schema); err != nil {
		return lcierrors.Database("init_schema", err)
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.sql.Close() }

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// EnsureWorkspace inserts or touches the workspace row.
func (d *DB) EnsureWorkspace(ws *types.Workspace) error {
	now := time.Now().UnixNano()
	_, err := d.sql.Exec(`
		INSERT INTO workspaces(id, root, branch_hint, commit_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root=excluded.root, branch_hint=excluded.branch_hint,
			commit_hash=excluded.commit_hash, updated_at=excluded.updated_at
	`, ws.ID, ws.Root, ws.BranchHint, ws.CommitHash, now, now)
	if err != nil {
		return lcierrors.Database("ensure_workspace", err)
	}
	return nil
}

// InsertFileVersion stores a content-addressed version row, implementing
// the Linker interface filestore.Store depends on. A digest collision
// (same content already stored) returns the existing row's id instead
// of erroring, since file_versions.content_digest is UNIQUE.
func (d *DB) InsertFileVersion(v *types.FileVersion) (int64, error) {
	res, err := d.sql.Exec(`
		INSERT INTO file_versions(content_digest, fast_hash, size_bytes, git_blob_id, line_count, language, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_digest) DO NOTHING
	`, v.ContentDigest, int64(v.FastHash), v.SizeBytes, v.GitBlobID, v.LineCount, v.Language, v.MTime)
	if err != nil {
		return 0, lcierrors.Database("insert_file_version", err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}

	var id int64
	if err := d.sql.QueryRow(`SELECT id FROM file_versions WHERE content_digest = ?`, v.ContentDigest).Scan(&id); err != nil {
		return 0, lcierrors.Database("lookup_file_version", err)
	}
	return id, nil
}

// LinkFile implements filestore.Linker: it ensures a files row exists
// and (re)activates the link to fileVersionID, deactivating any
// previously active link for the same path first so at most one link
// per (workspace,path) is active at a time.
func (d *DB) LinkFile(workspaceID, path string, fileVersionID int64, activeAt int64) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return lcierrors.Database("link_file_begin", err)
	}
	defer tx.Rollback()

	var fileID int64
	err = tx.QueryRow(`
		INSERT INTO files(workspace_id, path) VALUES (?, ?)
		ON CONFLICT(workspace_id, path) DO UPDATE SET path=excluded.path
		RETURNING id
	`, workspaceID, path).Scan(&fileID)
	if err != nil {
		return lcierrors.Database("link_file_upsert", err)
	}

	if _, err := tx.Exec(`UPDATE workspace_file_links SET active = 0 WHERE file_id = ? AND active = 1`, fileID); err != nil {
		return lcierrors.Database("link_file_deactivate", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO workspace_file_links(workspace_id, file_id, file_version_id, active, linked_at)
		VALUES (?, ?, ?, 1, ?)
	`, workspaceID, fileID, fileVersionID, activeAt); err != nil {
		return lcierrors.Database("link_file_insert", err)
	}

	return tx.Commit()
}

// DeactivateFile marks a path's active link inactive, used for Delete
// changes (spec.md §4.11 worker pool step 3).
func (d *DB) DeactivateFile(workspaceID, path string) error {
	_, err := d.sql.Exec(`
		UPDATE workspace_file_links
		SET active = 0
		WHERE active = 1
		  AND workspace_id = ?
		  AND file_id = (SELECT id FROM files WHERE workspace_id = ? AND path = ?)
	`, workspaceID, workspaceID, path)
	if err != nil {
		return lcierrors.Database("deactivate_file", err)
	}
	return nil
}

// WriteFileSymbolsAndEdges persists one file's extraction results
// atomically: all of its symbols and edges commit in one transaction.
// The workspace-file-link upgrade is not part of that transaction; it is
// made beforehand by LinkFile in a transaction of its own. Per spec.md
// §3's lifecycle invariant, a re-index never
// deletes a prior file's rows — it flags them superseded and inserts
// fresh ones, so history remains queryable by indexed_at.
func (d *DB) WriteFileSymbolsAndEdges(workspaceID, path string, fileVersionID int64, symbols []types.Symbol, edges []types.Edge) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return lcierrors.Database("write_file_begin", err)
	}
	defer tx.Rollback()

	indexedAt := time.Now().UnixNano()

	if _, err := tx.Exec(`
		UPDATE symbols SET superseded = 1
		WHERE workspace_id = ? AND file_path = ? AND superseded = 0
	`, workspaceID, path); err != nil {
		return lcierrors.Database("write_file_supersede_symbols", err)
	}

	insertSymbol, err := tx.Prepare(`
		INSERT INTO symbols(uid, workspace_id, name, qualified_name, kind, file_path,
			start_line, start_col, end_line, end_col, signature, visibility, tags, metadata,
			file_version_id, indexed_at, superseded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`)
	if err != nil {
		return lcierrors.Database("write_file_prepare_symbols", err)
	}
	defer insertSymbol.Close()

	for _, sym := range symbols {
		tagsJSON, _ := json.Marshal(sym.Tags)
		metaJSON, _ := json.Marshal(sym.Metadata)
		_, err := insertSymbol.Exec(sym.UID, workspaceID, sym.Name, sym.QualifiedName, string(sym.Kind),
			sym.Location.FilePath, sym.Location.StartLine, sym.Location.StartCol,
			sym.Location.EndLine, sym.Location.EndCol, sym.Signature, string(sym.Visibility),
			string(tagsJSON), string(metaJSON), fileVersionID, indexedAt)
		if err != nil {
			return lcierrors.Database("write_file_insert_symbol", err).WithFile(path)
		}
	}

	if _, err := tx.Exec(`
		UPDATE edges SET superseded = 1
		WHERE workspace_id = ? AND file_path = ? AND superseded = 0
	`, workspaceID, path); err != nil {
		return lcierrors.Database("write_file_supersede_edges", err)
	}

	insertEdge, err := tx.Prepare(`
		INSERT INTO edges(workspace_id, relation, source_uid, target_uid,
			call_site_file, call_site_line, call_site_col, confidence, language, metadata,
			file_path, indexed_at, superseded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`)
	if err != nil {
		return lcierrors.Database("write_file_prepare_edges", err)
	}
	defer insertEdge.Close()

	for _, e := range edges {
		var siteFile string
		var siteLine, siteCol int
		if e.CallSite != nil {
			siteFile, siteLine, siteCol = e.CallSite.FilePath, e.CallSite.StartLine, e.CallSite.StartCol
		}
		metaJSON, _ := json.Marshal(e.Metadata)
		if _, err := insertEdge.Exec(workspaceID, string(e.Relation), e.SourceUID, e.TargetUID,
			siteFile, siteLine, siteCol, e.Confidence, e.Language, string(metaJSON),
			path, indexedAt); err != nil {
			return lcierrors.Database("write_file_insert_edge", err).WithFile(path)
		}
	}

	return tx.Commit()
}

// SymbolByUID fetches the current (non-superseded) symbol row for uid,
// or (nil, nil) if it does not exist.
func (d *DB) SymbolByUID(workspaceID, uid string) (*types.Symbol, error) {
	row := d.sql.QueryRow(`
		SELECT uid, name, qualified_name, kind, file_path, start_line, start_col,
			end_line, end_col, signature, visibility, tags, metadata
		FROM symbols WHERE workspace_id = ? AND uid = ? AND superseded = 0
		ORDER BY indexed_at DESC LIMIT 1
	`, workspaceID, uid)
	return scanSymbol(row)
}

func scanSymbol(row *sql.Row) (*types.Symbol, error) {
	var s types.Symbol
	var kind, visibility, tagsJSON, metaJSON sql.NullString
	err := row.Scan(&s.UID, &s.Name, &s.QualifiedName, &kind, &s.Location.FilePath,
		&s.Location.StartLine, &s.Location.StartCol, &s.Location.EndLine, &s.Location.EndCol,
		&s.Signature, &visibility, &tagsJSON, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, lcierrors.Database("scan_symbol", err)
	}
	s.Kind = types.SymbolKind(kind.String)
	s.Visibility = types.SymbolVisibility(visibility.String)
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &s.Tags)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &s.Metadata)
	}
	return &s, nil
}

// Raw exposes the underlying *sql.DB for internal/graph's CTE queries,
// which need direct Query access the narrower methods above don't cover.
func (d *DB) Raw() *sql.DB { return d.sql }

// ActiveFingerprint implements detector.ActiveVersionLookup: it reports
// the digest/size/mtime of path's currently active file version, so a
// rescan can skip files whose on-disk stat hasn't moved since last
// indexed.
func (d *DB) ActiveFingerprint(workspaceID, path string) (digest string, size int64, mtime int64, ok bool) {
	row := d.sql.QueryRow(`
		SELECT fv.content_digest, fv.size_bytes, fv.mtime
		FROM workspace_file_links l
		JOIN files f ON f.id = l.file_id
		JOIN file_versions fv ON fv.id = l.file_version_id
		WHERE l.workspace_id = ? AND f.path = ? AND l.active = 1
	`, workspaceID, path)
	if err := row.Scan(&digest, &size, &mtime); err != nil {
		return "", 0, 0, false
	}
	return digest, size, mtime, true
}

// ActivePaths implements detector.ActiveVersionLookup: it lists every
// path the workspace currently has an active link for, so a rescan can
// notice one that no longer exists on disk and report it deleted.
func (d *DB) ActivePaths(workspaceID string) ([]string, error) {
	rows, err := d.sql.Query(`
		SELECT f.path
		FROM workspace_file_links l
		JOIN files f ON f.id = l.file_id
		WHERE l.workspace_id = ? AND l.active = 1
	`, workspaceID)
	if err != nil {
		return nil, lcierrors.Database("active_paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, lcierrors.Database("active_paths_scan", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}
