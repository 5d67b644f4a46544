// Package spool defines the on-disk hand-off format between the CLI and the
// daemon. Each request is a small JSON descriptor dropped into the spool
// directory; the daemon picks descriptors up, seeds the workflow chain and
// dispatches the request onto the bus.
package spool

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind discriminates the descriptor variants.
type Kind string

const (
	KindUpload Kind = "bom_upload"
	KindClone  Kind = "project_clone"
)

// Descriptor is one spooled request. Upload descriptors reference a manifest
// file that stays in place until the daemon finishes with it.
type Descriptor struct {
	Kind         Kind   `json:"kind"`
	Token        string `json:"token"`
	ProjectUUID  string `json:"project_uuid,omitempty"`
	ManifestPath string `json:"manifest_path,omitempty"`

	DelayProcessedNotification bool `json:"delay_processed_notification,omitempty"`
	ProjectCreated             bool `json:"project_created,omitempty"`

	SourceUUID string `json:"source_uuid,omitempty"`
	NewVersion string `json:"new_version,omitempty"`
}

// Validate checks the fields required for the descriptor's kind.
func (d Descriptor) Validate() error {
	if d.Token == "" {
		return errors.New("descriptor missing token")
	}
	switch d.Kind {
	case KindUpload:
		if d.ProjectUUID == "" {
			return errors.New("upload descriptor missing project UUID")
		}
		if d.ManifestPath == "" {
			return errors.New("upload descriptor missing manifest path")
		}
	case KindClone:
		if d.SourceUUID == "" {
			return errors.New("clone descriptor missing source UUID")
		}
		if d.NewVersion == "" {
			return errors.New("clone descriptor missing new version")
		}
	default:
		return fmt.Errorf("unknown descriptor kind %q", d.Kind)
	}
	return nil
}

// Write persists a descriptor into dir. The file is written to a temporary
// name first and renamed into place so the daemon never observes a partial
// descriptor.
func Write(dir string, desc Descriptor) (string, error) {
	if err := desc.Validate(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}

	final := filepath.Join(dir, desc.Token+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write descriptor: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("publish descriptor: %w", err)
	}
	return final, nil
}

// Read loads and validates the descriptor at path.
func Read(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return Descriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}
	if err := desc.Validate(); err != nil {
		return Descriptor{}, err
	}
	return desc, nil
}

// List returns the descriptor files in dir, oldest name first. Temporary
// files still being written are skipped.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read spool directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
