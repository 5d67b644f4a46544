package testsupport

import (
	"context"
	"testing"

	"sbomflow/internal/catalog"
	"sbomflow/internal/config"
	"sbomflow/internal/workflow"
)

// MustOpenWorkflowStore opens a workflow.Store for tests and registers cleanup.
func MustOpenWorkflowStore(t testing.TB, cfg *config.Config) *workflow.Store {
	t.Helper()

	store, err := workflow.Open(cfg)
	if err != nil {
		t.Fatalf("workflow.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCatalogStore opens a catalog.Store for tests and registers cleanup.
func MustOpenCatalogStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewChain seeds the BOM upload step graph for a token and returns the token.
func NewChain(t testing.TB, store *workflow.Store, token string) string {
	t.Helper()

	if err := store.CreateSteps(context.Background(), token, workflow.BomUploadGraph()); err != nil {
		t.Fatalf("store.CreateSteps: %v", err)
	}
	return token
}

// NewProject creates a project for tests using the provided store.
func NewProject(t testing.TB, store *catalog.Store, name, version string) *catalog.Project {
	t.Helper()

	project, err := store.CreateProject(context.Background(), &catalog.Project{Name: name, Version: version})
	if err != nil {
		t.Fatalf("store.CreateProject: %v", err)
	}
	return project
}
