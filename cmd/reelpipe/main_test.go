package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// writeTestConfig writes a minimal config with all paths under a temp dir and
// returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	content := `
[paths]
state_dir = "` + filepath.Join(base, "state") + `"
log_dir = "` + filepath.Join(base, "logs") + `"
jobs_dir = "` + filepath.Join(base, "jobs") + `"
source_dir = "` + filepath.Join(base, "source") + `"
download_dir = "` + filepath.Join(base, "downloads") + `"

[ingest]
network = "viacom18"
language = "hindi"
`
	path := filepath.Join(base, "reelpipe.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootShowsHelpWithoutArgs(t *testing.T) {
	out, err := runCommand(t, "--config", writeTestConfig(t))
	if err != nil {
		t.Fatalf("root command failed: %v", err)
	}
	if out == "" {
		t.Fatal("expected help output")
	}
}

func TestWorkerCommandRejectsUnknownStage(t *testing.T) {
	_, err := runCommand(t, "--config", writeTestConfig(t), "worker", "--stage", "teleport")
	if err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestRootFailsOnInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[database]\ndriver = \"oracle\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := runCommand(t, "--config", path, "queue", "status"); err == nil {
		t.Fatal("expected config validation error")
	}
}
