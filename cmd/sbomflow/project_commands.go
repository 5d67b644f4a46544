package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sbomflow/internal/catalog"
	"sbomflow/internal/config"
	"sbomflow/internal/spool"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Inspect and manage the project portfolio",
	}

	projectCmd.AddCommand(newProjectListCommand(ctx))
	projectCmd.AddCommand(newProjectShowCommand(ctx))
	projectCmd.AddCommand(newProjectCloneCommand(ctx))

	return projectCmd
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				projects, err := store.ListProjects(cmd.Context())
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(projects))
				for _, project := range projects {
					lastImport := "-"
					if project.LastBomImport != nil {
						lastImport = project.LastBomImport.Local().Format(time.RFC3339)
					}
					rows = append(rows, []string{
						project.UUID,
						project.Group,
						project.Name,
						project.Version,
						lastImport,
					})
				}
				renderTable(cmd.OutOrStdout(), []string{"UUID", "Group", "Name", "Version", "Last Import"}, rows)
				return nil
			})
		},
	}
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-uuid>",
		Short: "Show a project and its components",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				project, err := store.GetProjectByUUID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if project == nil {
					return fmt.Errorf("project %s does not exist", args[0])
				}
				components, err := store.ListComponents(cmd.Context(), project.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Project: %s %s\n", project.Name, project.Version)
				if project.Group != "" {
					fmt.Fprintf(out, "Group:   %s\n", project.Group)
				}
				fmt.Fprintf(out, "UUID:    %s\n", project.UUID)
				if project.LastBomImport != nil {
					fmt.Fprintf(out, "Last import: %s (%s)\n",
						project.LastBomImport.Local().Format(time.RFC3339), project.LastBomImportFormat)
				}
				fmt.Fprintf(out, "Components: %s\n", strconv.Itoa(len(components)))

				rows := make([][]string, 0, len(components))
				for _, component := range components {
					rows = append(rows, []string{
						component.Name,
						component.Version,
						component.Purl,
						componentLicense(component),
					})
				}
				renderTable(out, []string{"Name", "Version", "PURL", "License"}, rows)
				return nil
			})
		},
	}
}

func componentLicense(component *catalog.Component) string {
	switch {
	case component.LicenseExpression != "":
		return component.LicenseExpression
	case component.LicenseName != "":
		return component.LicenseName
	case component.ResolvedLicenseID != nil:
		return "resolved #" + strconv.FormatInt(*component.ResolvedLicenseID, 10)
	default:
		return "-"
	}
}

func newProjectCloneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clone <source-uuid> <new-version>",
		Short: "Spool a clone of a project under a new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				source, err := store.GetProjectByUUID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if source == nil {
					return fmt.Errorf("project %s does not exist", args[0])
				}

				token := uuid.NewString()
				if _, err := spool.Write(cfg.Paths.SpoolDir, spool.Descriptor{
					Kind:       spool.KindClone,
					Token:      token,
					SourceUUID: source.UUID,
					NewVersion: args[1],
				}); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Spooled clone of %s %s as version %s\n", source.Name, source.Version, args[1])
				fmt.Fprintf(out, "Chain token: %s\n", token)
				return nil
			})
		},
	}
}
