package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
	"github.com/pelletier/go-toml/v2"

	"github.com/probelabs/probe-sub004/internal/lcierrors"
)

// tomlShape mirrors Config but with toml tags; kept separate so Config
// itself stays free of serialization concerns (the teacher's
// internal/config.Config does the same split between domain struct and
// file format).
type tomlShape struct {
	Project struct {
		Root string `toml:"root"`
		Name string `toml:"name"`
	} `toml:"project"`
	Index struct {
		MaxFileSize      int64 `toml:"max_file_size"`
		MaxTotalSizeMB   int64 `toml:"max_total_size_mb"`
		MaxFileCount     int   `toml:"max_file_count"`
		FollowSymlinks   bool  `toml:"follow_symlinks"`
		RespectGitignore bool  `toml:"respect_gitignore"`
		WatchMode        bool  `toml:"watch_mode"`
	} `toml:"index"`
	Performance struct {
		MaxMemoryMB        int `toml:"max_memory_mb"`
		MaxWorkers         int `toml:"max_workers"`
		IndexingTimeoutSec int `toml:"indexing_timeout_sec"`
	} `toml:"performance"`
}

// LoadTOML reads `<projectRoot>/.probe.toml`. A missing file is not an
// error: the caller falls back to Default().
func LoadTOML(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, ".probe.toml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, lcierrors.New(lcierrors.KindConfig, "load_toml", err)
	}

	var shape tomlShape
	if err := toml.Unmarshal(data, &shape); err != nil {
		return nil, lcierrors.New(lcierrors.KindConfig, "parse_toml", err)
	}

	cfg := Default()
	applyTOML(cfg, &shape, projectRoot)
	return cfg, nil
}

func applyTOML(cfg *Config, shape *tomlShape, projectRoot string) {
	cfg.Project.Root = resolveRoot(shape.Project.Root, projectRoot)
	cfg.Project.Name = shape.Project.Name
	if shape.Index.MaxFileSize > 0 {
		cfg.Index.MaxFileSize = shape.Index.MaxFileSize
	}
	if shape.Index.MaxTotalSizeMB > 0 {
		cfg.Index.MaxTotalSizeMB = shape.Index.MaxTotalSizeMB
	}
	if shape.Index.MaxFileCount > 0 {
		cfg.Index.MaxFileCount = shape.Index.MaxFileCount
	}
	cfg.Index.FollowSymlinks = shape.Index.FollowSymlinks
	cfg.Index.RespectGitignore = shape.Index.RespectGitignore
	cfg.Index.WatchMode = shape.Index.WatchMode
	if shape.Performance.MaxMemoryMB > 0 {
		cfg.Performance.MaxMemoryMB = shape.Performance.MaxMemoryMB
	}
	if shape.Performance.MaxWorkers > 0 {
		cfg.Performance.MaxWorkers = shape.Performance.MaxWorkers
	}
	if shape.Performance.IndexingTimeoutSec > 0 {
		cfg.Performance.IndexingTimeoutSec = shape.Performance.IndexingTimeoutSec
	}
}

func resolveRoot(configured, projectRoot string) string {
	if configured == "" {
		abs, err := filepath.Abs(projectRoot)
		if err != nil {
			return projectRoot
		}
		return abs
	}
	if filepath.IsAbs(configured) {
		return filepath.Clean(configured)
	}
	return filepath.Clean(filepath.Join(projectRoot, configured))
}

// LoadKDL reads `<projectRoot>/.probe.kdl`, the teacher's second
// supported config format (it ships .lci.kdl; this is the same
// kdl-go-backed loading path generalized to this module's field set).
func LoadKDL(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, ".probe.kdl")
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, lcierrors.New(lcierrors.KindConfig, "load_kdl", err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, lcierrors.New(lcierrors.KindConfig, "parse_kdl", err)
	}

	cfg := Default()
	cfg.Project.Root = resolveRoot("", projectRoot)
	applyKDL(cfg, doc)
	return cfg, nil
}

func applyKDL(cfg *Config, doc *document.Document) {
	for _, node := range doc.Nodes {
		switch nodeName(node) {
		case "project":
			for _, child := range node.Children {
				switch nodeName(child) {
				case "root":
					if v, ok := firstArgString(child); ok && v != "" {
						cfg.Project.Root = resolveRoot(v, cfg.Project.Root)
					}
				case "name":
					if v, ok := firstArgString(child); ok {
						cfg.Project.Name = v
					}
				}
			}
		case "index":
			for _, child := range node.Children {
				switch nodeName(child) {
				case "max-file-size", "max_file_size":
					if n, ok := firstArgInt(child); ok {
						cfg.Index.MaxFileSize = n
					}
				case "respect-gitignore", "respect_gitignore":
					if b, ok := firstArgBool(child); ok {
						cfg.Index.RespectGitignore = b
					}
				case "watch-mode", "watch_mode":
					if b, ok := firstArgBool(child); ok {
						cfg.Index.WatchMode = b
					}
				}
			}
		case "performance":
			for _, child := range node.Children {
				switch nodeName(child) {
				case "max-memory-mb", "max_memory_mb":
					if n, ok := firstArgInt(child); ok {
						cfg.Performance.MaxMemoryMB = int(n)
					}
				case "max-workers", "max_workers":
					if n, ok := firstArgInt(child); ok {
						cfg.Performance.MaxWorkers = int(n)
					}
				}
			}
		}
	}
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstArgString(node *document.Node) (string, bool) {
	if node == nil || len(node.Arguments) == 0 {
		return "", false
	}
	if s, ok := node.Arguments[0].Value.(string); ok {
		return s, true
	}
	return fmt.Sprintf("%v", node.Arguments[0].Value), true
}

func firstArgInt(node *document.Node) (int64, bool) {
	if node == nil || len(node.Arguments) == 0 {
		return 0, false
	}
	switch v := node.Arguments[0].Value.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func firstArgBool(node *document.Node) (bool, bool) {
	if node == nil || len(node.Arguments) == 0 {
		return false, false
	}
	if b, ok := node.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

// Load resolves configuration with the precedence spec.md §6 requires:
// explicit CLI flags (handled by the caller before/after this), then
// environment variables, then config file, then built-in defaults.
// Load itself only covers file-then-default; ApplyEnv layers env vars
// on top of whatever Load returns.
func Load(projectRoot string) (*Config, error) {
	if cfg, err := LoadKDL(projectRoot); err != nil {
		return nil, err
	} else if cfg != nil {
		return cfg, nil
	}
	if cfg, err := LoadTOML(projectRoot); err != nil {
		return nil, err
	} else if cfg != nil {
		return cfg, nil
	}
	cfg := Default()
	cfg.Project.Root = resolveRoot("", projectRoot)
	return cfg, nil
}

// ApplyEnv overlays the PROBE_* environment variables from spec.md §6
// onto cfg, in place.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("PROBE_INDEXING_ENABLED"); v != "" {
		cfg.Index.WatchMode = v == "1" || v == "true"
	}
	if v := os.Getenv("PROBE_INDEXING_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Performance.MaxWorkers = n
		}
	}
	if v := os.Getenv("PROBE_INDEXING_MEMORY_BUDGET_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Performance.MaxMemoryMB = n
		}
	}
	if v := os.Getenv("PROBE_LSP_WORKSPACE_CACHE_DIR"); v != "" {
		cfg.Router.BaseCacheDir = v
	}
	if v := os.Getenv("PROBE_LSP_WORKSPACE_LOOKUP_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Router.LookupDepth = n
		}
	}
}
