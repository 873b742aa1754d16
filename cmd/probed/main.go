// Command probed runs the daemon server (C17): it loads configuration,
// binds a per-root Unix socket, and serves client connections until
// asked to shut down. Mirrors the teacher's `lci server` subcommand
// (cmd/lci/main_server.go serverCommand), but as its own binary rather
// than a subcommand of the CLI client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/probelabs/probe-sub004/internal/config"
	"github.com/probelabs/probe-sub004/internal/daemon"
	"github.com/probelabs/probe-sub004/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "probed",
		Usage:   "code intelligence daemon",
		Version: version.Full(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "project root to derive the socket path from",
				Value:   ".",
			},
			&cli.StringFlag{
				Name:  "socket",
				Usage: "explicit socket path (overrides --root derivation)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "probed:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnv(cfg)
	cfg.Project.Root = root

	socketPath := c.String("socket")
	if socketPath == "" {
		socketPath = daemon.SocketPathForRoot(root)
	}

	srv := daemon.New(cfg, socketPath)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Printf("probed listening on %s (root %s)\n", srv.GetServerSocketPath(), root)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	waitDone := make(chan struct{})
	go func() {
		srv.Wait()
		close(waitDone)
	}()

	select {
	case sig := <-sigChan:
		fmt.Printf("received signal %v, shutting down\n", sig)
	case <-waitDone:
		fmt.Println("shutdown requested")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Println("probed shut down cleanly")
	return nil
}
