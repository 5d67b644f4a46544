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

// InsertComponent adds a new component to a project.
func (q queries) InsertComponent(ctx context.Context, component *Component) (*Component, error) {
	if component == nil {
		return nil, errors.New("component is nil")
	}
	if component.ProjectID == 0 {
		return nil, errors.New("component must reference a project")
	}
	if strings.TrimSpace(component.Name) == "" {
		return nil, errors.New("component name must not be empty")
	}
	if component.UUID == "" {
		component.UUID = uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	supplier, err := marshalJSON(component.Supplier)
	if err != nil {
		return nil, fmt.Errorf("marshal supplier: %w", err)
	}
	directDeps, err := marshalNonEmpty(component.DirectDependencies)
	if err != nil {
		return nil, fmt.Errorf("marshal direct dependencies: %w", err)
	}

	res, err := q.db.ExecContext(
		ctx,
		`INSERT INTO components (
            uuid, project_id, grp, name, version, classifier, purl, cpe,
            description, author, publisher, supplier_json,
            license_name, license_expression, license_url, resolved_license_id,
            direct_dependencies, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		component.UUID,
		component.ProjectID,
		nullableString(component.Group),
		component.Name,
		nullableString(component.Version),
		nullableString(string(component.Classifier)),
		nullableString(component.Purl),
		nullableString(component.CPE),
		nullableString(component.Description),
		nullableString(component.Author),
		nullableString(component.Publisher),
		supplier,
		nullableString(component.LicenseName),
		nullableString(component.LicenseExpression),
		nullableString(component.LicenseURL),
		component.ResolvedLicenseID,
		directDeps,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert component: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	component.ID = id
	return component, nil
}

// UpdateComponent persists changes to an existing component.
func (q queries) UpdateComponent(ctx context.Context, component *Component) error {
	if component == nil {
		return errors.New("component is nil")
	}
	component.UpdatedAt = time.Now().UTC()

	supplier, err := marshalJSON(component.Supplier)
	if err != nil {
		return fmt.Errorf("marshal supplier: %w", err)
	}
	directDeps, err := marshalNonEmpty(component.DirectDependencies)
	if err != nil {
		return fmt.Errorf("marshal direct dependencies: %w", err)
	}

	if _, err := q.db.ExecContext(
		ctx,
		`UPDATE components
         SET grp = ?, name = ?, version = ?, classifier = ?, purl = ?, cpe = ?,
             description = ?, author = ?, publisher = ?, supplier_json = ?,
             license_name = ?, license_expression = ?, license_url = ?,
             resolved_license_id = ?, direct_dependencies = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(component.Group),
		component.Name,
		nullableString(component.Version),
		nullableString(string(component.Classifier)),
		nullableString(component.Purl),
		nullableString(component.CPE),
		nullableString(component.Description),
		nullableString(component.Author),
		nullableString(component.Publisher),
		supplier,
		nullableString(component.LicenseName),
		nullableString(component.LicenseExpression),
		nullableString(component.LicenseURL),
		component.ResolvedLicenseID,
		directDeps,
		component.UpdatedAt.Format(time.RFC3339Nano),
		component.ID,
	); err != nil {
		return fmt.Errorf("update component: %w", err)
	}
	return nil
}

// FindComponentByPurl returns the first component of a project matching a
// package coordinate. Returns nil when no match exists.
func (q queries) FindComponentByPurl(ctx context.Context, projectID int64, purl string) (*Component, error) {
	if strings.TrimSpace(purl) == "" {
		return nil, nil
	}
	row := q.db.QueryRowContext(
		ctx,
		`SELECT `+componentColumns+` FROM components
         WHERE project_id = ? AND purl = ? ORDER BY id LIMIT 1`,
		projectID, purl,
	)
	return scanComponentRow(row)
}

// FindComponentByCoordinates returns the first component of a project whose
// (group, name, version, classifier) tuple matches structurally.
func (q queries) FindComponentByCoordinates(ctx context.Context, projectID int64, group, name, version string, classifier Classifier) (*Component, error) {
	row := q.db.QueryRowContext(
		ctx,
		`SELECT `+componentColumns+` FROM components
         WHERE project_id = ? AND grp IS ? AND name = ? AND version IS ? AND classifier IS ?
         ORDER BY id LIMIT 1`,
		projectID,
		nullableString(group),
		name,
		nullableString(version),
		nullableString(string(classifier)),
	)
	return scanComponentRow(row)
}

// ListComponents returns all components of a project ordered by insertion.
func (q queries) ListComponents(ctx context.Context, projectID int64) ([]*Component, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT `+componentColumns+` FROM components WHERE project_id = ? ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	defer rows.Close()

	var components []*Component
	for rows.Next() {
		component, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		components = append(components, component)
	}
	return components, rows.Err()
}

// CountComponents returns the number of components a project owns.
func (q queries) CountComponents(ctx context.Context, projectID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM components WHERE project_id = ?`,
		projectID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count components: %w", err)
	}
	return count, nil
}

// DeleteComponentsExcept removes all components of a project whose row id is
// not in keep. Used after a merge to drop components no longer declared by
// the manifest.
func (q queries) DeleteComponentsExcept(ctx context.Context, projectID int64, keep []int64) (int64, error) {
	if len(keep) == 0 {
		res, err := q.db.ExecContext(ctx, `DELETE FROM components WHERE project_id = ?`, projectID)
		if err != nil {
			return 0, fmt.Errorf("delete components: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(keep))
	args := make([]any, 0, len(keep)+1)
	args = append(args, projectID)
	for _, id := range keep {
		args = append(args, id)
	}
	res, err := q.db.ExecContext(
		ctx,
		`DELETE FROM components WHERE project_id = ? AND id NOT IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale components: %w", err)
	}
	return res.RowsAffected()
}

// ReplaceServices swaps the declared services of a project for the given set.
func (q queries) ReplaceServices(ctx context.Context, projectID int64, services []*Service) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM services WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("clear services: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, service := range services {
		if service == nil || strings.TrimSpace(service.Name) == "" {
			continue
		}
		if service.UUID == "" {
			service.UUID = uuid.NewString()
		}
		endpoints, err := marshalNonEmpty(service.Endpoints)
		if err != nil {
			return fmt.Errorf("marshal endpoints: %w", err)
		}
		if _, err := q.db.ExecContext(
			ctx,
			`INSERT INTO services (uuid, project_id, grp, name, version, description, endpoints_json, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			service.UUID,
			projectID,
			nullableString(service.Group),
			service.Name,
			nullableString(service.Version),
			nullableString(service.Description),
			endpoints,
			now,
		); err != nil {
			return fmt.Errorf("insert service %s: %w", service.Name, err)
		}
	}
	return nil
}

// ListServices returns all services of a project ordered by insertion.
func (q queries) ListServices(ctx context.Context, projectID int64) ([]*Service, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT id, uuid, grp, name, version, description, endpoints_json, created_at
         FROM services WHERE project_id = ? ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []*Service
	for rows.Next() {
		var (
			service    Service
			group      sql.NullString
			version    sql.NullString
			descr      sql.NullString
			endpoints  sql.NullString
			createdRaw sql.NullString
		)
		if err := rows.Scan(&service.ID, &service.UUID, &group, &service.Name, &version, &descr, &endpoints, &createdRaw); err != nil {
			return nil, err
		}
		service.ProjectID = projectID
		service.Group = group.String
		service.Version = version.String
		service.Description = descr.String
		if endpoints.Valid {
			if err := unmarshalJSON(endpoints.String, &service.Endpoints); err != nil {
				return nil, fmt.Errorf("unmarshal endpoints: %w", err)
			}
		}
		if created, err := parseTimeString(createdRaw.String); err == nil {
			service.CreatedAt = created
		}
		services = append(services, &service)
	}
	return services, rows.Err()
}

const componentColumns = `id, uuid, project_id, grp, name, version, classifier, purl, cpe,
    description, author, publisher, supplier_json,
    license_name, license_expression, license_url, resolved_license_id,
    direct_dependencies, created_at, updated_at`

func scanComponentRow(row *sql.Row) (*Component, error) {
	component, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get component: %w", err)
	}
	return component, nil
}

func scanComponent(scanner interface{ Scan(dest ...any) error }) (*Component, error) {
	var (
		id          int64
		compUUID    string
		projectID   int64
		group       sql.NullString
		name        string
		version     sql.NullString
		classifier  sql.NullString
		purl        sql.NullString
		cpe         sql.NullString
		description sql.NullString
		author      sql.NullString
		publisher   sql.NullString
		supplier    sql.NullString
		licName     sql.NullString
		licExpr     sql.NullString
		licURL      sql.NullString
		resolvedID  sql.NullInt64
		directDeps  sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&compUUID,
		&projectID,
		&group,
		&name,
		&version,
		&classifier,
		&purl,
		&cpe,
		&description,
		&author,
		&publisher,
		&supplier,
		&licName,
		&licExpr,
		&licURL,
		&resolvedID,
		&directDeps,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	component := &Component{
		ID:                id,
		UUID:              compUUID,
		ProjectID:         projectID,
		Group:             group.String,
		Name:              name,
		Version:           version.String,
		Classifier:        Classifier(classifier.String),
		Purl:              purl.String,
		CPE:               cpe.String,
		Description:       description.String,
		Author:            author.String,
		Publisher:         publisher.String,
		LicenseName:       licName.String,
		LicenseExpression: licExpr.String,
		LicenseURL:        licURL.String,
	}
	if supplier.Valid {
		component.Supplier = &OrganizationalEntity{}
		if err := unmarshalJSON(supplier.String, component.Supplier); err != nil {
			return nil, fmt.Errorf("unmarshal supplier: %w", err)
		}
	}
	if resolvedID.Valid {
		component.ResolvedLicenseID = &resolvedID.Int64
	}
	if directDeps.Valid {
		if err := unmarshalJSON(directDeps.String, &component.DirectDependencies); err != nil {
			return nil, fmt.Errorf("unmarshal direct dependencies: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		component.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		component.UpdatedAt = updated
	}
	return component, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
