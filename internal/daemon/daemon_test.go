package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sbomflow/internal/daemon"
	"sbomflow/internal/logging"
	"sbomflow/internal/spool"
	"sbomflow/internal/testsupport"
	"sbomflow/internal/workflow"
)

const uploadManifest = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.5",
  "components": [
    {"type": "library", "name": "acme-lib", "version": "1.0.0", "purl": "pkg:maven/com.acme/acme-lib@1.0.0"}
  ]
}`

func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonProcessesSpooledUpload(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	catalogStore := testsupport.MustOpenCatalogStore(t, cfg)
	project := testsupport.NewProject(t, catalogStore, "acme-app", "1.0.0")
	workflows := testsupport.MustOpenWorkflowStore(t, cfg)

	manifestPath := filepath.Join(cfg.Paths.DataDir, "upload.json")
	if err := os.WriteFile(manifestPath, []byte(uploadManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := spool.Write(cfg.Paths.SpoolDir, spool.Descriptor{
		Kind:         spool.KindUpload,
		Token:        "chain-1",
		ProjectUUID:  project.UUID,
		ManifestPath: manifestPath,
	}); err != nil {
		t.Fatalf("spool upload: %v", err)
	}

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon should report running")
	}

	waitFor(t, "consumption step to complete", func() bool {
		state, err := workflows.Get(context.Background(), "chain-1", workflow.StepBomConsumption)
		return err == nil && state != nil && state.Status == workflow.StatusCompleted
	})
	waitFor(t, "manifest to be consumed", func() bool {
		_, err := os.Stat(manifestPath)
		return os.IsNotExist(err)
	})

	components, err := catalogStore.ListComponents(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("ListComponents: %v", err)
	}
	if len(components) != 1 || components[0].Name != "acme-lib" {
		t.Fatalf("unexpected merged components: %+v", components)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New first: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start first: %v", err)
	}

	second, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to be rejected")
	}
}

func TestDaemonQuarantinesMalformedDescriptor(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	badPath := filepath.Join(cfg.Paths.SpoolDir, "broken.json")
	if err := os.WriteFile(badPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed descriptor: %v", err)
	}

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "descriptor to be quarantined", func() bool {
		_, err := os.Stat(badPath + ".rejected")
		return err == nil
	})
}

func TestDaemonStopIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	d.Stop()
	d.Stop()
	if d.Running() {
		t.Fatal("daemon should report stopped")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
