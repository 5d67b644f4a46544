package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()

	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\nspool_dir = %q\n",
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "spool"),
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, filepath.Join(base, "spool")
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommandShowsHelp(t *testing.T) {
	output, err := runCommand(t, "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, want := range []string{"upload", "status", "project", "prune"} {
		if !bytes.Contains([]byte(output), []byte(want)) {
			t.Fatalf("help output missing %q:\n%s", want, output)
		}
	}
}

func TestStatusCommandUnknownToken(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	_, err := runCommand(t, "--config", configPath, "status", "missing-token")
	if err == nil {
		t.Fatal("expected error for unknown token")
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	output, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !bytes.Contains([]byte(output), []byte(target)) {
		t.Fatalf("init output missing target path:\n%s", output)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init to refuse overwriting")
	}
}

func TestConfigShowRendersSettings(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	output, err := runCommand(t, "--config", configPath, "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"paths.spool_dir", "bus.partitions", "logging.level"} {
		if !bytes.Contains([]byte(output), []byte(want)) {
			t.Fatalf("show output missing %q:\n%s", want, output)
		}
	}
}

func TestConfigValidateWithExplicitPath(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	output, err := runCommand(t, "--config", configPath, "config", "validate")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !bytes.Contains([]byte(output), []byte("Configuration valid")) {
		t.Fatalf("unexpected validate output:\n%s", output)
	}
}
