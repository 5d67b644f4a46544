package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sbomflow/internal/catalog"
	"sbomflow/internal/config"
	"sbomflow/internal/spool"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var projectUUID string
	var projectName string
	var projectVersion string
	var projectGroup string
	var autoCreate bool
	var delayProcessed bool

	cmd := &cobra.Command{
		Use:   "upload <manifest-file>",
		Short: "Spool a BOM manifest for ingestion",
		Long: `Spool a BOM manifest for asynchronous ingestion by the daemon.

The target project is selected by --project, or by --name and --version.
With --create a missing project is created before the upload is spooled.
The command prints the chain token used to follow processing state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				project, created, err := resolveUploadTarget(cmd, store, uploadTarget{
					uuid:    strings.TrimSpace(projectUUID),
					name:    strings.TrimSpace(projectName),
					version: strings.TrimSpace(projectVersion),
					group:   strings.TrimSpace(projectGroup),
					create:  autoCreate,
				})
				if err != nil {
					return err
				}

				token := uuid.NewString()
				manifestPath, err := stageManifest(args[0], cfg.Paths.SpoolDir, token)
				if err != nil {
					return err
				}

				if _, err := spool.Write(cfg.Paths.SpoolDir, spool.Descriptor{
					Kind:                       spool.KindUpload,
					Token:                      token,
					ProjectUUID:                project.UUID,
					ManifestPath:               manifestPath,
					DelayProcessedNotification: delayProcessed,
					ProjectCreated:             created,
				}); err != nil {
					_ = os.Remove(manifestPath)
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Spooled upload for %s %s\n", project.Name, project.Version)
				fmt.Fprintf(out, "Chain token: %s\n", token)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&projectUUID, "project", "", "Target project UUID")
	cmd.Flags().StringVar(&projectName, "name", "", "Target project name")
	cmd.Flags().StringVar(&projectVersion, "version", "", "Target project version")
	cmd.Flags().StringVar(&projectGroup, "group", "", "Project group used with --create")
	cmd.Flags().BoolVar(&autoCreate, "create", false, "Create the project if it does not exist")
	cmd.Flags().BoolVar(&delayProcessed, "delay-processed", false, "Defer the processed notification until analysis completes")

	return cmd
}

type uploadTarget struct {
	uuid    string
	name    string
	version string
	group   string
	create  bool
}

func resolveUploadTarget(cmd *cobra.Command, store *catalog.Store, target uploadTarget) (*catalog.Project, bool, error) {
	ctx := cmd.Context()

	if target.uuid != "" {
		project, err := store.GetProjectByUUID(ctx, target.uuid)
		if err != nil {
			return nil, false, err
		}
		if project == nil {
			return nil, false, fmt.Errorf("project %s does not exist", target.uuid)
		}
		return project, false, nil
	}

	if target.name == "" {
		return nil, false, errors.New("either --project or --name and --version are required")
	}

	project, err := store.GetProjectByNameVersion(ctx, target.name, target.version)
	if err != nil {
		return nil, false, err
	}
	if project != nil {
		return project, false, nil
	}
	if !target.create {
		return nil, false, fmt.Errorf("project %s %s does not exist (use --create)", target.name, target.version)
	}

	project, err = store.CreateProject(ctx, &catalog.Project{
		Group:   target.group,
		Name:    target.name,
		Version: target.version,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create project: %w", err)
	}
	return project, true, nil
}

// stageManifest copies the manifest into the spool directory under the chain
// token so the original file stays untouched and the daemon owns the staged
// copy's lifecycle.
func stageManifest(source, spoolDir, token string) (string, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("read manifest: %w", err)
	}
	staged := filepath.Join(spoolDir, token+".bom")
	if err := os.WriteFile(staged, data, 0o644); err != nil {
		return "", fmt.Errorf("stage manifest: %w", err)
	}
	return staged, nil
}
