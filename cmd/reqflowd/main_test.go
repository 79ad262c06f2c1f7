package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reqflow/internal/logging"
	"reqflow/internal/testsupport"
)

func TestBootstrapStartsDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := bootstrap(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("database path = %q, want %q", status.DatabasePath, cfg.DatabasePath())
	}
}

func TestRunRejectsMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[paths\ndata_dir = 3"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--config", path})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for malformed config file")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Fatalf("unexpected error: %v", err)
	}
}
