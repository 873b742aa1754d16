// Package config defines the settings every component takes at
// construction. Loading itself (precedence across flags/env/file) is a
// thin ambient concern, not core engine logic, but the shape below is
// depended on throughout the core — so it lives here rather than being
// left to the (out-of-scope) CLI front-end.
package config

import "time"

// File size limits mirror the teacher's internal/config defaults
// (DefaultMaxFileSize etc.), carried forward unchanged: they cover the
// vast majority of source files while keeping a single pathological
// generated file from blowing the memory budget.
const (
	DefaultMaxFileSize    = 10 * 1024 * 1024
	DefaultMaxTotalSizeMB = 500
	DefaultMaxFileCount   = 10000
	DefaultMemoryBudgetMB = 500
	DefaultMaxWorkers     = 0 // 0 == auto-detect via runtime.NumCPU
	DefaultParserPoolSize = 4
	DefaultReadyThreshold = 80
)

type Config struct {
	Project     Project
	Index       Index
	Performance Performance
	LSP         LSP
	Detector    Detector
	Router      Router
	Database    Database
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	MaxFileSize      int64
	MaxTotalSizeMB   int64
	MaxFileCount     int
	FollowSymlinks   bool
	RespectGitignore bool
	WatchMode        bool
	WatchDebounceMs  int
	Incremental      bool
	EnabledLanguages []string // empty == all languages
}

type Performance struct {
	MaxMemoryMB           int
	MemoryPressureFactor  float64 // fraction of MaxMemoryMB at which pressure is asserted
	MaxWorkers            int     // 0 == auto-detect
	IndexingTimeoutSec    int
	ParserPoolSizePerLang int
	ParseTimeout          time.Duration
}

type LSP struct {
	Enabled               bool
	InitializeTimeout     time.Duration
	RequestTimeout        time.Duration
	ShutdownTimeout       time.Duration
	ReadyThresholdPercent int
	ResponseCacheTTL      time.Duration
	ResponseCacheSize     int
	Servers               map[string]ServerConfig
}

type ServerConfig struct {
	Command string
	Args    []string
}

type Detector struct {
	Include                []string
	Exclude                []string
	GitAware               bool
	DisableParentDiscovery bool // Windows junction/.gitignore-climb guard, SPEC_FULL Open Questions
}

type Router struct {
	BaseCacheDir string // empty == lazily resolved to ~/.cache/probe/lsp/workspaces
	MemoryOnly   bool
	LookupDepth  int
}

type Database struct {
	BusyTimeoutMs int
}

// Default returns a Config populated with the same defaults the teacher
// ships (internal/config.Config), adjusted to this spec's field set.
func Default() *Config {
	return &Config{
		Index: Index{
			MaxFileSize:      DefaultMaxFileSize,
			MaxTotalSizeMB:   DefaultMaxTotalSizeMB,
			MaxFileCount:     DefaultMaxFileCount,
			RespectGitignore: true,
			WatchDebounceMs:  300,
			Incremental:      true,
		},
		Performance: Performance{
			MaxMemoryMB:           DefaultMemoryBudgetMB,
			MemoryPressureFactor:  0.85,
			MaxWorkers:            DefaultMaxWorkers,
			IndexingTimeoutSec:    120,
			ParserPoolSizePerLang: DefaultParserPoolSize,
			ParseTimeout:          5 * time.Second,
		},
		LSP: LSP{
			Enabled:               false,
			InitializeTimeout:     10 * time.Second,
			RequestTimeout:        5 * time.Second,
			ShutdownTimeout:       2 * time.Second,
			ReadyThresholdPercent: DefaultReadyThreshold,
			ResponseCacheTTL:      2 * time.Hour,
			ResponseCacheSize:     400,
			Servers:               map[string]ServerConfig{},
		},
		Detector: Detector{
			Exclude:  []string{"target/**", "node_modules/**", "**/*.log", "**/*.tmp", ".git/**"},
			GitAware: true,
		},
		Router: Router{
			LookupDepth: 12,
		},
		Database: Database{
			BusyTimeoutMs: 5000,
		},
	}
}
