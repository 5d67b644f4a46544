package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateProject inserts a new project and returns it with identifiers assigned.
func (q queries) CreateProject(ctx context.Context, project *Project) (*Project, error) {
	if project == nil {
		return nil, errors.New("project is nil")
	}
	if strings.TrimSpace(project.Name) == "" {
		return nil, errors.New("project name must not be empty")
	}
	if project.UUID == "" {
		project.UUID = uuid.NewString()
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	supplier, err := marshalJSON(project.Supplier)
	if err != nil {
		return nil, fmt.Errorf("marshal supplier: %w", err)
	}
	manufacturer, err := marshalJSON(project.Manufacturer)
	if err != nil {
		return nil, fmt.Errorf("marshal manufacturer: %w", err)
	}
	authors, err := marshalNonEmpty(project.Authors)
	if err != nil {
		return nil, fmt.Errorf("marshal authors: %w", err)
	}
	externalRefs, err := marshalNonEmpty(project.ExternalReferences)
	if err != nil {
		return nil, fmt.Errorf("marshal external references: %w", err)
	}
	directDeps, err := marshalNonEmpty(project.DirectDependencies)
	if err != nil {
		return nil, fmt.Errorf("marshal direct dependencies: %w", err)
	}

	res, err := q.db.ExecContext(
		ctx,
		`INSERT INTO projects (
            uuid, grp, name, version, classifier, purl,
            supplier_json, manufacturer_json, authors_json, external_refs_json,
            direct_dependencies, last_bom_import, last_bom_import_format,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.UUID,
		nullableString(project.Group),
		project.Name,
		nullableString(project.Version),
		nullableString(string(project.Classifier)),
		nullableString(project.Purl),
		supplier,
		manufacturer,
		authors,
		externalRefs,
		directDeps,
		nullableTime(project.LastBomImport),
		nullableString(project.LastBomImportFormat),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return q.GetProjectByID(ctx, id)
}

// GetProjectByID fetches a project by row identifier.
func (q queries) GetProjectByID(ctx context.Context, id int64) (*Project, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return scanProjectRow(row)
}

// GetProjectByUUID fetches a project by its public identifier. Returns nil
// when no project exists.
func (q queries) GetProjectByUUID(ctx context.Context, projectUUID string) (*Project, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE uuid = ?`, projectUUID)
	return scanProjectRow(row)
}

// GetProjectByNameVersion fetches a project by its (name, version) key.
func (q queries) GetProjectByNameVersion(ctx context.Context, name, version string) (*Project, error) {
	row := q.db.QueryRowContext(
		ctx,
		`SELECT `+projectColumns+` FROM projects WHERE name = ? AND version IS ?`,
		name, nullableString(version),
	)
	return scanProjectRow(row)
}

// ListProjects returns all projects ordered by name and version.
func (q queries) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name, version`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// UpdateProject persists changes to an existing project.
func (q queries) UpdateProject(ctx context.Context, project *Project) error {
	if project == nil {
		return errors.New("project is nil")
	}
	project.UpdatedAt = time.Now().UTC()

	supplier, err := marshalJSON(project.Supplier)
	if err != nil {
		return fmt.Errorf("marshal supplier: %w", err)
	}
	manufacturer, err := marshalJSON(project.Manufacturer)
	if err != nil {
		return fmt.Errorf("marshal manufacturer: %w", err)
	}
	authors, err := marshalNonEmpty(project.Authors)
	if err != nil {
		return fmt.Errorf("marshal authors: %w", err)
	}
	externalRefs, err := marshalNonEmpty(project.ExternalReferences)
	if err != nil {
		return fmt.Errorf("marshal external references: %w", err)
	}
	directDeps, err := marshalNonEmpty(project.DirectDependencies)
	if err != nil {
		return fmt.Errorf("marshal direct dependencies: %w", err)
	}

	if _, err := q.db.ExecContext(
		ctx,
		`UPDATE projects
         SET grp = ?, name = ?, version = ?, classifier = ?, purl = ?,
             supplier_json = ?, manufacturer_json = ?, authors_json = ?,
             external_refs_json = ?, direct_dependencies = ?,
             last_bom_import = ?, last_bom_import_format = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(project.Group),
		project.Name,
		nullableString(project.Version),
		nullableString(string(project.Classifier)),
		nullableString(project.Purl),
		supplier,
		manufacturer,
		authors,
		externalRefs,
		directDeps,
		nullableTime(project.LastBomImport),
		nullableString(project.LastBomImportFormat),
		project.UpdatedAt.Format(time.RFC3339Nano),
		project.ID,
	); err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// DeleteProject removes a project and, via foreign keys, everything it owns.
func (q queries) DeleteProject(ctx context.Context, id int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const projectColumns = `id, uuid, grp, name, version, classifier, purl,
    supplier_json, manufacturer_json, authors_json, external_refs_json,
    direct_dependencies, last_bom_import, last_bom_import_format, created_at, updated_at`

func scanProjectRow(row *sql.Row) (*Project, error) {
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

func scanProject(scanner interface{ Scan(dest ...any) error }) (*Project, error) {
	var (
		id            int64
		projectUUID   string
		group         sql.NullString
		name          string
		version       sql.NullString
		classifier    sql.NullString
		purl          sql.NullString
		supplier      sql.NullString
		manufacturer  sql.NullString
		authors       sql.NullString
		externalRefs  sql.NullString
		directDeps    sql.NullString
		lastImportRaw sql.NullString
		importFormat  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&projectUUID,
		&group,
		&name,
		&version,
		&classifier,
		&purl,
		&supplier,
		&manufacturer,
		&authors,
		&externalRefs,
		&directDeps,
		&lastImportRaw,
		&importFormat,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	project := &Project{
		ID:                  id,
		UUID:                projectUUID,
		Group:               group.String,
		Name:                name,
		Version:             version.String,
		Classifier:          Classifier(classifier.String),
		Purl:                purl.String,
		LastBomImportFormat: importFormat.String,
	}
	if supplier.Valid {
		project.Supplier = &OrganizationalEntity{}
		if err := unmarshalJSON(supplier.String, project.Supplier); err != nil {
			return nil, fmt.Errorf("unmarshal supplier: %w", err)
		}
	}
	if manufacturer.Valid {
		project.Manufacturer = &OrganizationalEntity{}
		if err := unmarshalJSON(manufacturer.String, project.Manufacturer); err != nil {
			return nil, fmt.Errorf("unmarshal manufacturer: %w", err)
		}
	}
	if authors.Valid {
		if err := unmarshalJSON(authors.String, &project.Authors); err != nil {
			return nil, fmt.Errorf("unmarshal authors: %w", err)
		}
	}
	if externalRefs.Valid {
		if err := unmarshalJSON(externalRefs.String, &project.ExternalReferences); err != nil {
			return nil, fmt.Errorf("unmarshal external references: %w", err)
		}
	}
	if directDeps.Valid {
		if err := unmarshalJSON(directDeps.String, &project.DirectDependencies); err != nil {
			return nil, fmt.Errorf("unmarshal direct dependencies: %w", err)
		}
	}
	if lastImportRaw.Valid {
		if imported, err := parseTimeString(lastImportRaw.String); err == nil {
			project.LastBomImport = &imported
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		project.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		project.UpdatedAt = updated
	}
	return project, nil
}

func marshalNonEmpty[T any](values []T) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return marshalJSON(values)
}
