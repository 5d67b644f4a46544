package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateVulnerabilityScan records the fan-out expectation for one chain.
func (q queries) CreateVulnerabilityScan(ctx context.Context, scan *VulnerabilityScan) (*VulnerabilityScan, error) {
	if scan == nil {
		return nil, errors.New("scan is nil")
	}
	if strings.TrimSpace(scan.Token) == "" {
		return nil, errors.New("scan token must not be empty")
	}
	if scan.TargetType == "" {
		scan.TargetType = "PROJECT"
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := q.db.ExecContext(
		ctx,
		`INSERT INTO vulnerability_scans (token, target_type, target_uuid, expected_results, received_results, notify_on_complete, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (token) DO UPDATE SET
             expected_results = excluded.expected_results,
             notify_on_complete = excluded.notify_on_complete,
             updated_at = excluded.updated_at`,
		scan.Token,
		scan.TargetType,
		scan.TargetUUID,
		scan.ExpectedResults,
		scan.ReceivedResults,
		boolToInt(scan.NotifyOnComplete),
		now,
	); err != nil {
		return nil, fmt.Errorf("insert vulnerability scan: %w", err)
	}
	return q.GetVulnerabilityScan(ctx, scan.Token)
}

// GetVulnerabilityScan fetches the scan record for a chain token. Returns nil
// when no scan was initiated for the token.
func (q queries) GetVulnerabilityScan(ctx context.Context, token string) (*VulnerabilityScan, error) {
	row := q.db.QueryRowContext(
		ctx,
		`SELECT id, token, target_type, target_uuid, expected_results, received_results, notify_on_complete, updated_at
         FROM vulnerability_scans WHERE token = ?`,
		token,
	)

	var (
		scan       VulnerabilityScan
		notify     int
		updatedRaw sql.NullString
	)
	err := row.Scan(
		&scan.ID,
		&scan.Token,
		&scan.TargetType,
		&scan.TargetUUID,
		&scan.ExpectedResults,
		&scan.ReceivedResults,
		&notify,
		&updatedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vulnerability scan: %w", err)
	}
	scan.NotifyOnComplete = notify != 0
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		scan.UpdatedAt = updated
	}
	return &scan, nil
}

// RecordScanResults increments the received-result counter for a chain token
// and returns the updated record. Returns nil when no scan exists.
func (q queries) RecordScanResults(ctx context.Context, token string, results int64) (*VulnerabilityScan, error) {
	if results < 0 {
		return nil, errors.New("results must not be negative")
	}
	if _, err := q.db.ExecContext(
		ctx,
		`UPDATE vulnerability_scans
         SET received_results = received_results + ?, updated_at = ?
         WHERE token = ?`,
		results,
		time.Now().UTC().Format(time.RFC3339Nano),
		token,
	); err != nil {
		return nil, fmt.Errorf("record scan results: %w", err)
	}
	return q.GetVulnerabilityScan(ctx, token)
}

// RecordBomImport appends a BOM import audit row for a project.
func (q queries) RecordBomImport(ctx context.Context, record *BomImport) error {
	if record == nil {
		return errors.New("bom import is nil")
	}
	if record.ProjectID == 0 {
		return errors.New("bom import must reference a project")
	}
	if record.ImportedAt.IsZero() {
		record.ImportedAt = time.Now().UTC()
	}
	if _, err := q.db.ExecContext(
		ctx,
		`INSERT INTO bom_imports (project_id, format, spec_version, bom_version, serial_number, imported_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.ProjectID,
		record.Format,
		nullableString(record.SpecVersion),
		record.BomVersion,
		nullableString(record.SerialNumber),
		record.ImportedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert bom import: %w", err)
	}
	return nil
}

// ListBomImports returns BOM import audit rows for a project, newest last.
func (q queries) ListBomImports(ctx context.Context, projectID int64) ([]*BomImport, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT id, project_id, format, spec_version, bom_version, serial_number, imported_at
         FROM bom_imports WHERE project_id = ? ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bom imports: %w", err)
	}
	defer rows.Close()

	var imports []*BomImport
	for rows.Next() {
		var (
			record      BomImport
			specVersion sql.NullString
			bomVersion  sql.NullInt64
			serial      sql.NullString
			importedRaw sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.ProjectID, &record.Format, &specVersion, &bomVersion, &serial, &importedRaw); err != nil {
			return nil, err
		}
		record.SpecVersion = specVersion.String
		record.BomVersion = int(bomVersion.Int64)
		record.SerialNumber = serial.String
		if imported, err := parseTimeString(importedRaw.String); err == nil {
			record.ImportedAt = imported
		}
		imports = append(imports, &record)
	}
	return imports, rows.Err()
}
