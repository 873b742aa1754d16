// Command probe is the thin CLI client: every subcommand builds a
// params struct, round-trips it through probeclient.Client to probed,
// and prints the JSON result. Mirrors cmd/lci's command surface
// (each subcommand delegates to the daemon rather than indexing
// in-process), but every command here is daemon-only: probe never
// falls back to running the pipeline itself the way the teacher's CLI
// did when no server was running.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/probelabs/probe-sub004/internal/daemon"
	"github.com/probelabs/probe-sub004/internal/probeclient"
	"github.com/probelabs/probe-sub004/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "probe",
		Usage:   "code intelligence CLI client",
		Version: version.Full(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Value: ".", Usage: "project root"},
			&cli.StringFlag{Name: "socket", Usage: "explicit daemon socket path"},
			&cli.StringFlag{Name: "workspace-id", Usage: "workspace id (defaults to root-derived)"},
		},
		Commands: []*cli.Command{
			referencesCommand(),
			definitionCommand(),
			callHierarchyCommand(),
			lspStatusCommand(),
			lspLogsCommand(),
			workspaceListCommand(),
			workspaceClearCommand(),
			branchSwitchCommand(),
			branchListCommand(),
			indexStartCommand(),
			indexStatusCommand(),
			indexStopCommand(),
			graphCallPathsCommand(),
			graphImpactCommand(),
			graphDependenciesCommand(),
			graphHotspotsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "probe:", err)
		os.Exit(1)
	}
}

// clientFor resolves the socket path from --socket or --root, spawning
// a detached probed if none is running yet, mirroring the teacher's
// ensureServerRunning (cmd/lci/main_server.go).
func clientFor(c *cli.Context) (*probeclient.Client, error) {
	socketPath := c.String("socket")
	root := c.String("root")
	if socketPath == "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root: %w", err)
		}
		socketPath = daemon.SocketPathForRoot(abs)
	}

	client := probeclient.New(socketPath)
	if client.Running() {
		return client, nil
	}

	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate probe executable: %w", err)
	}
	probed := filepath.Join(filepath.Dir(executable), "probed")
	cmd := exec.Command(probed, "--root", root)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start daemon: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return nil, fmt.Errorf("detach daemon: %w", err)
	}

	if err := client.WaitReady(15 * time.Second); err != nil {
		return nil, err
	}
	return client, nil
}

func workspaceID(c *cli.Context) string {
	if id := c.String("workspace-id"); id != "" {
		return id
	}
	root, _ := filepath.Abs(c.String("root"))
	return root
}

func printResult(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func call(c *cli.Context, method string, params any) error {
	client, err := clientFor(c)
	if err != nil {
		return err
	}
	var result any
	if err := client.Call(method, params, &result); err != nil {
		return err
	}
	return printResult(result)
}

func pathPositionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "path", Required: true},
		&cli.IntFlag{Name: "line", Required: true},
		&cli.IntFlag{Name: "col", Required: true},
	}
}

func pathPositionParams(c *cli.Context) map[string]any {
	return map[string]any{
		"path": c.String("path"),
		"line": c.Int("line"),
		"col":  c.Int("col"),
	}
}

func referencesCommand() *cli.Command {
	return &cli.Command{
		Name:  "references",
		Usage: "find references to the symbol at path:line:col",
		Flags: append(pathPositionFlags(), &cli.BoolFlag{Name: "include-declaration"}),
		Action: func(c *cli.Context) error {
			p := pathPositionParams(c)
			p["include_declaration"] = c.Bool("include-declaration")
			return call(c, "references", p)
		},
	}
}

func definitionCommand() *cli.Command {
	return &cli.Command{
		Name:  "definition",
		Usage: "jump to the definition of the symbol at path:line:col",
		Flags: pathPositionFlags(),
		Action: func(c *cli.Context) error {
			return call(c, "definition", pathPositionParams(c))
		},
	}
}

func callHierarchyCommand() *cli.Command {
	return &cli.Command{
		Name:  "call-hierarchy",
		Usage: "show callers/callees of the symbol at path:line:col",
		Flags: pathPositionFlags(),
		Action: func(c *cli.Context) error {
			return call(c, "call_hierarchy", pathPositionParams(c))
		},
	}
}

func lspStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "lsp-status",
		Usage: "report spawned language server state and daemon memory usage",
		Action: func(c *cli.Context) error {
			return call(c, "lsp/status", nil)
		},
	}
}

func lspLogsCommand() *cli.Command {
	return &cli.Command{
		Name:  "lsp-logs",
		Usage: "tail a language server's recent stderr output",
		Flags: []cli.Flag{&cli.StringFlag{Name: "language", Required: true}},
		Action: func(c *cli.Context) error {
			return call(c, "lsp/logs", map[string]any{
				"workspace_id": workspaceID(c),
				"language":     c.String("language"),
			})
		},
	}
}

func workspaceListCommand() *cli.Command {
	return &cli.Command{
		Name:  "workspace-list",
		Usage: "list every workspace opened by the running daemon",
		Action: func(c *cli.Context) error {
			return call(c, "workspace/list", nil)
		},
	}
}

func workspaceClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "workspace-clear",
		Usage: "close and delete a workspace's cached index",
		Action: func(c *cli.Context) error {
			return call(c, "workspace/clear", map[string]any{"workspace_id": workspaceID(c)})
		},
	}
}

func branchSwitchCommand() *cli.Command {
	return &cli.Command{
		Name:  "branch-switch",
		Usage: "switch the workspace's active branch",
		Flags: []cli.Flag{&cli.StringFlag{Name: "target", Required: true}},
		Action: func(c *cli.Context) error {
			root, _ := filepath.Abs(c.String("root"))
			return call(c, "branch/switch", map[string]any{
				"workspace_id": workspaceID(c),
				"repo_root":    root,
				"target":       c.String("target"),
			})
		},
	}
}

func branchListCommand() *cli.Command {
	return &cli.Command{
		Name:  "branch-list",
		Usage: "list known branches for the workspace",
		Action: func(c *cli.Context) error {
			root, _ := filepath.Abs(c.String("root"))
			return call(c, "branch/list", map[string]any{
				"workspace_id": workspaceID(c),
				"repo_root":    root,
			})
		},
	}
}

func indexStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "index-start",
		Usage: "begin (or resume) indexing the workspace root",
		Action: func(c *cli.Context) error {
			root, _ := filepath.Abs(c.String("root"))
			return call(c, "index/start", map[string]any{
				"root":         root,
				"workspace_id": workspaceID(c),
			})
		},
	}
}

func indexStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "index-status",
		Usage: "report indexing progress for the workspace",
		Action: func(c *cli.Context) error {
			root, _ := filepath.Abs(c.String("root"))
			return call(c, "index/status", map[string]any{
				"root":         root,
				"workspace_id": workspaceID(c),
			})
		},
	}
}

func indexStopCommand() *cli.Command {
	return &cli.Command{
		Name:  "index-stop",
		Usage: "halt indexing for the workspace",
		Action: func(c *cli.Context) error {
			root, _ := filepath.Abs(c.String("root"))
			return call(c, "index/stop", map[string]any{
				"root":         root,
				"workspace_id": workspaceID(c),
			})
		},
	}
}

func graphFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "limit"},
		&cli.IntFlag{Name: "max-depth"},
	}
}

func graphParams(c *cli.Context) map[string]any {
	return map[string]any{
		"workspace_id": workspaceID(c),
		"limit":        c.Int("limit"),
		"max_depth":    c.Int("max-depth"),
	}
}

func graphCallPathsCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph-call-paths",
		Usage: "find call paths between two symbols",
		Flags: append(graphFlags(),
			&cli.StringFlag{Name: "from-uid", Required: true},
			&cli.StringFlag{Name: "to-uid", Required: true},
		),
		Action: func(c *cli.Context) error {
			p := graphParams(c)
			p["from_uid"] = c.String("from-uid")
			p["to_uid"] = c.String("to-uid")
			return call(c, "graph/call_paths", p)
		},
	}
}

func graphImpactCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph-impact",
		Usage: "find the direct callers and referrers of uid",
		Flags: append(graphFlags(), &cli.StringFlag{Name: "uid", Required: true}),
		Action: func(c *cli.Context) error {
			p := graphParams(c)
			p["uid"] = c.String("uid")
			return call(c, "graph/impact", p)
		},
	}
}

func graphDependenciesCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph-dependencies",
		Usage: "list the calls/references edges into and out of uid, with weights",
		Flags: append(graphFlags(), &cli.StringFlag{Name: "uid", Required: true}),
		Action: func(c *cli.Context) error {
			p := graphParams(c)
			p["uid"] = c.String("uid")
			return call(c, "graph/dependencies", p)
		},
	}
}

func graphHotspotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph-hotspots",
		Usage: "rank symbols by graph centrality",
		Flags: graphFlags(),
		Action: func(c *cli.Context) error {
			return call(c, "graph/hotspots", graphParams(c))
		},
	}
}
