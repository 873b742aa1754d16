// Package graph implements C16, the Graph Query Engine: the four
// traversal/aggregation operations spec.md §4.10 requires, each built
// as a recursive-CTE-style SQL query against C9's edges/symbols tables.
// Cycle detection happens inside the recursive CTE itself (a path-string
// membership test); there is no separate Go-side guard.
package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/probelabs/probe-sub004/internal/types"
)

// TraversalOptions bounds every query in this package (spec.md §4.10).
//
// ModifiedFiles is accepted for API parity with the spec's "modified
// files" parameterization, but every query here already restricts to
// superseded = 0 (the current row set per db.WriteFileSymbolsAndEdges)
// and has no separate commit-pinned row to prefer away from, so
// ModifiedFiles is unused.
type TraversalOptions struct {
	MaxDepth            int
	DetectCycles        bool
	CallTypeFilter      string
	ReferenceKindFilter string
	ResultLimit         int
	ModifiedFiles       []string
}

// DefaultOptions matches spec.md §4.10's stated defaults.
func DefaultOptions() TraversalOptions {
	return TraversalOptions{MaxDepth: 10, DetectCycles: true, ResultLimit: 1000}
}

func (o TraversalOptions) limit() int {
	if o.ResultLimit > 0 {
		return o.ResultLimit
	}
	return 1000
}

func (o TraversalOptions) maxDepth() int {
	if o.MaxDepth >= 0 {
		return o.MaxDepth
	}
	return 10
}

// Engine runs graph queries against one workspace's database connection.
type Engine struct {
	db *sql.DB
}

// New constructs an Engine bound to a workspace's raw *sql.DB (C9's
// Raw() accessor), since graph queries are read-only SQL and have no
// need for C9's write-path abstractions.
func New(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// CallPath is one path found by FindCallPaths.
type CallPath struct {
	Path     []string
	Depth    int
	HasCycle bool
}

// FindCallPaths implements find_call_paths: a recursive traversal of
// `calls` edges from fromUID, extending a path vector per reached
// node. maxDepth=0 yields exactly the direct-edge paths (depth-1 rows
// in the CTE below); maxDepth=N extends the recursion N further hops.
// When DetectCycles is set, paths that revisit an already-seen node
// are excluded from the final result rather than merely stopped from
// extending further.
func (e *Engine) FindCallPaths(workspaceID, fromUID, toUID string, opts TraversalOptions) ([]CallPath, error) {
	query := `
WITH RECURSIVE cte(source_uid, target_uid, depth, path, has_cycle) AS (
	SELECT source_uid, target_uid, 1,
		source_uid || char(31) || target_uid,
		CASE WHEN source_uid = target_uid THEN 1 ELSE 0 END
	FROM edges
	WHERE workspace_id = ? AND relation = 'calls' AND source_uid = ? AND superseded = 0
	UNION ALL
	SELECT e.source_uid, e.target_uid, cte.depth + 1,
		cte.path || char(31) || e.target_uid,
		CASE WHEN instr(cte.path || char(31), e.target_uid || char(31)) > 0 THEN 1 ELSE 0 END
	FROM edges e
	JOIN cte ON e.source_uid = cte.target_uid
	WHERE cte.depth < ? AND cte.has_cycle = 0 AND e.relation = 'calls' AND e.superseded = 0
)
SELECT path, depth, has_cycle FROM cte WHERE target_uid = ?`

	args := []any{workspaceID, fromUID, opts.maxDepth() + 1, toUID}
	if opts.DetectCycles {
		query += " AND has_cycle = 0"
	}
	query += " ORDER BY depth, length(path) LIMIT ?"
	args = append(args, opts.limit())

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find_call_paths: %w", err)
	}
	defer rows.Close()

	var results []CallPath
	for rows.Next() {
		var path string
		var depth int
		var hasCycle int
		if err := rows.Scan(&path, &depth, &hasCycle); err != nil {
			return nil, fmt.Errorf("find_call_paths scan: %w", err)
		}
		results = append(results, CallPath{
			Path:     strings.Split(path, "\x1f"),
			Depth:    depth,
			HasCycle: hasCycle == 1,
		})
	}
	return results, rows.Err()
}

// SymbolImpact is one entry returned by FindAffectedSymbols.
type SymbolImpact struct {
	UID        string
	ImpactType string // "caller" | "reference"
	Depth      int
	Symbol     *types.Symbol
}

// FindAffectedSymbols implements find_affected_symbols: the union of
// direct callers and direct referrers of changedUID, each joined with
// its symbol row.
func (e *Engine) FindAffectedSymbols(workspaceID, changedUID string, opts TraversalOptions) ([]SymbolImpact, error) {
	query := `
SELECT e.impact_type, s.uid, s.name, s.qualified_name, s.kind, s.file_path,
	s.start_line, s.start_col, s.end_line, s.end_col, s.signature, s.visibility,
	s.tags, s.metadata
FROM (
	SELECT source_uid, 'caller' AS impact_type FROM edges
	WHERE workspace_id = ? AND relation = 'calls' AND target_uid = ? AND superseded = 0
	UNION ALL
	SELECT source_uid, 'reference' AS impact_type FROM edges
	WHERE workspace_id = ? AND relation = 'references' AND target_uid = ? AND superseded = 0
) e
JOIN symbols s ON s.uid = e.source_uid AND s.superseded = 0
LIMIT ?`

	rows, err := e.db.Query(query, workspaceID, changedUID, workspaceID, changedUID, opts.limit())
	if err != nil {
		return nil, fmt.Errorf("find_affected_symbols: %w", err)
	}
	defer rows.Close()

	var results []SymbolImpact
	for rows.Next() {
		var impactType string
		var sym types.Symbol
		var kind, visibility, tagsJSON, metaJSON sql.NullString
		if err := rows.Scan(&impactType, &sym.UID, &sym.Name, &sym.QualifiedName, &kind,
			&sym.Location.FilePath, &sym.Location.StartLine, &sym.Location.StartCol,
			&sym.Location.EndLine, &sym.Location.EndCol, &sym.Signature, &visibility,
			&tagsJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("find_affected_symbols scan: %w", err)
		}
		sym.Kind = types.SymbolKind(kind.String)
		sym.Visibility = types.SymbolVisibility(visibility.String)
		if tagsJSON.Valid && tagsJSON.String != "" {
			_ = json.Unmarshal([]byte(tagsJSON.String), &sym.Tags)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &sym.Metadata)
		}
		results = append(results, SymbolImpact{UID: sym.UID, ImpactType: impactType, Depth: 1, Symbol: &sym})
	}
	return results, rows.Err()
}

// SymbolDependency is one row of edge-count aggregation.
type SymbolDependency struct {
	SourceUID string
	TargetUID string
	Kind      string
	Weight    int
}

// GetSymbolDependencies implements get_symbol_dependencies: counts
// edges by (source, target, relation); when uid is non-empty, restricts
// to edges touching it.
func (e *Engine) GetSymbolDependencies(workspaceID, uid string, opts TraversalOptions) ([]SymbolDependency, error) {
	query := `
SELECT source_uid, target_uid, relation, COUNT(*) AS weight
FROM edges
WHERE workspace_id = ? AND relation IN ('calls', 'references') AND superseded = 0`
	args := []any{workspaceID}

	if uid != "" {
		query += " AND (source_uid = ? OR target_uid = ?)"
		args = append(args, uid, uid)
	}
	query += " GROUP BY source_uid, target_uid, relation ORDER BY weight DESC LIMIT ?"
	args = append(args, opts.limit())

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get_symbol_dependencies: %w", err)
	}
	defer rows.Close()

	var results []SymbolDependency
	for rows.Next() {
		var d SymbolDependency
		if err := rows.Scan(&d.SourceUID, &d.TargetUID, &d.Kind, &d.Weight); err != nil {
			return nil, fmt.Errorf("get_symbol_dependencies scan: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// SymbolHotspot is one ranked entry from AnalyzeSymbolHotspots.
type SymbolHotspot struct {
	UID            string
	Name           string
	ReferenceCount int
	CallCount      int
	HeatScore      int
}

// AnalyzeSymbolHotspots implements analyze_symbol_hotspots: heat_score
// = reference_count + 2*call_count, both counted as distinct callers/
// referrers, top `limit` excluding zero-heat symbols, ties broken by
// name ascending.
func (e *Engine) AnalyzeSymbolHotspots(workspaceID string, limit int) ([]SymbolHotspot, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
WITH ref_counts AS (
	SELECT target_uid, COUNT(DISTINCT source_uid) AS reference_count
	FROM edges WHERE workspace_id = ? AND relation = 'references' AND superseded = 0
	GROUP BY target_uid
), call_counts AS (
	SELECT target_uid, COUNT(DISTINCT source_uid) AS call_count
	FROM edges WHERE workspace_id = ? AND relation = 'calls' AND superseded = 0
	GROUP BY target_uid
)
SELECT s.uid, s.name,
	COALESCE(rc.reference_count, 0) AS reference_count,
	COALESCE(cc.call_count, 0) AS call_count,
	COALESCE(rc.reference_count, 0) + 2 * COALESCE(cc.call_count, 0) AS heat_score
FROM symbols s
LEFT JOIN ref_counts rc ON rc.target_uid = s.uid
LEFT JOIN call_counts cc ON cc.target_uid = s.uid
WHERE s.workspace_id = ? AND s.superseded = 0 AND (COALESCE(rc.reference_count, 0) + 2 * COALESCE(cc.call_count, 0)) > 0
ORDER BY heat_score DESC, s.name ASC
LIMIT ?`

	rows, err := e.db.Query(query, workspaceID, workspaceID, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("analyze_symbol_hotspots: %w", err)
	}
	defer rows.Close()

	var results []SymbolHotspot
	for rows.Next() {
		var h SymbolHotspot
		if err := rows.Scan(&h.UID, &h.Name, &h.ReferenceCount, &h.CallCount, &h.HeatScore); err != nil {
			return nil, fmt.Errorf("analyze_symbol_hotspots scan: %w", err)
		}
		results = append(results, h)
	}
	return results, rows.Err()
}
