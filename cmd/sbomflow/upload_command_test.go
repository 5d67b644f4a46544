package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sbomflow/internal/catalog"
	"sbomflow/internal/config"
	"sbomflow/internal/spool"
	"sbomflow/internal/workflow"
)

const testManifest = `{"bomFormat":"CycloneDX","specVersion":"1.5","components":[]}`

func loadTestConfig(t *testing.T, path string) *config.Config {
	t.Helper()
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

func TestUploadCommandCreatesProjectAndSpools(t *testing.T) {
	configPath, spoolDir := writeTestConfig(t)

	manifestPath := filepath.Join(t.TempDir(), "bom.json")
	if err := os.WriteFile(manifestPath, []byte(testManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	output, err := runCommand(t, "--config", configPath,
		"upload", manifestPath,
		"--name", "acme-app", "--version", "1.0.0", "--group", "com.acme", "--create",
		"--delay-processed",
	)
	if err != nil {
		t.Fatalf("upload: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Chain token:") {
		t.Fatalf("upload output missing chain token:\n%s", output)
	}

	descriptors, err := spool.List(spoolDir)
	if err != nil {
		t.Fatalf("list spool: %v", err)
	}
	if len(descriptors) != 1 {
		t.Fatalf("expected 1 spooled descriptor, got %d", len(descriptors))
	}

	desc, err := spool.Read(descriptors[0])
	if err != nil {
		t.Fatalf("read descriptor: %v", err)
	}
	if desc.Kind != spool.KindUpload {
		t.Fatalf("unexpected descriptor kind %q", desc.Kind)
	}
	if !desc.ProjectCreated {
		t.Fatal("descriptor should record project creation")
	}
	if !desc.DelayProcessedNotification {
		t.Fatal("descriptor should carry the delay flag")
	}
	if data, err := os.ReadFile(desc.ManifestPath); err != nil || string(data) != testManifest {
		t.Fatalf("staged manifest mismatch: %v", err)
	}

	cfg := loadTestConfig(t, configPath)
	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()
	project, err := store.GetProjectByUUID(context.Background(), desc.ProjectUUID)
	if err != nil {
		t.Fatalf("resolve project: %v", err)
	}
	if project == nil || project.Name != "acme-app" || project.Group != "com.acme" {
		t.Fatalf("unexpected created project: %+v", project)
	}
}

func TestUploadCommandRejectsMissingProject(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	manifestPath := filepath.Join(t.TempDir(), "bom.json")
	if err := os.WriteFile(manifestPath, []byte(testManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	if _, err := runCommand(t, "--config", configPath,
		"upload", manifestPath, "--name", "ghost", "--version", "1.0.0",
	); err == nil || !strings.Contains(err.Error(), "--create") {
		t.Fatalf("expected missing-project error suggesting --create, got %v", err)
	}
}

func TestProjectCloneCommandSpoolsDescriptor(t *testing.T) {
	configPath, spoolDir := writeTestConfig(t)
	cfg := loadTestConfig(t, configPath)

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	project, err := store.CreateProject(context.Background(), &catalog.Project{Name: "acme-app", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	store.Close()

	output, err := runCommand(t, "--config", configPath, "project", "clone", project.UUID, "2.0.0")
	if err != nil {
		t.Fatalf("clone: %v\n%s", err, output)
	}

	descriptors, err := spool.List(spoolDir)
	if err != nil {
		t.Fatalf("list spool: %v", err)
	}
	if len(descriptors) != 1 {
		t.Fatalf("expected 1 spooled descriptor, got %d", len(descriptors))
	}
	desc, err := spool.Read(descriptors[0])
	if err != nil {
		t.Fatalf("read descriptor: %v", err)
	}
	if desc.Kind != spool.KindClone || desc.SourceUUID != project.UUID || desc.NewVersion != "2.0.0" {
		t.Fatalf("unexpected clone descriptor: %+v", desc)
	}
}

func TestPruneCommandRemovesChain(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	cfg := loadTestConfig(t, configPath)

	store, err := workflow.Open(cfg)
	if err != nil {
		t.Fatalf("open workflow store: %v", err)
	}
	if err := store.CreateSteps(context.Background(), "chain-1", workflow.BomUploadGraph()); err != nil {
		t.Fatalf("seed chain: %v", err)
	}
	store.Close()

	output, err := runCommand(t, "--config", configPath, "prune", "chain-1")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(output, "Removed 5 workflow rows") {
		t.Fatalf("unexpected prune output:\n%s", output)
	}
}

func TestStatusCommandRendersChain(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	cfg := loadTestConfig(t, configPath)

	store, err := workflow.Open(cfg)
	if err != nil {
		t.Fatalf("open workflow store: %v", err)
	}
	if err := store.CreateSteps(context.Background(), "chain-1", workflow.BomUploadGraph()); err != nil {
		t.Fatalf("seed chain: %v", err)
	}
	if err := store.MarkCompleted(context.Background(), "chain-1", workflow.StepBomConsumption); err != nil {
		t.Fatalf("complete step: %v", err)
	}
	store.Close()

	output, err := runCommand(t, "--config", configPath, "status", "chain-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"BOM_CONSUMPTION", "COMPLETED", "VULN_ANALYSIS", "PENDING"} {
		if !strings.Contains(output, want) {
			t.Fatalf("status output missing %q:\n%s", want, output)
		}
	}
}
