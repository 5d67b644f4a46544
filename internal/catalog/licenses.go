package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// EnsureLicense registers a license if it does not exist yet and returns it.
func (q queries) EnsureLicense(ctx context.Context, licenseID, name string, custom bool) (*License, error) {
	if strings.TrimSpace(licenseID) == "" {
		return nil, errors.New("license id must not be empty")
	}
	if _, err := q.db.ExecContext(
		ctx,
		`INSERT INTO licenses (license_id, name, custom) VALUES (?, ?, ?)
         ON CONFLICT (license_id) DO NOTHING`,
		licenseID, nullableString(name), boolToInt(custom),
	); err != nil {
		return nil, fmt.Errorf("insert license: %w", err)
	}
	return q.GetLicense(ctx, licenseID)
}

// GetLicense fetches a registered license by its identifier. Matching is
// case-insensitive; returns nil when the license is not registered.
func (q queries) GetLicense(ctx context.Context, licenseID string) (*License, error) {
	row := q.db.QueryRowContext(
		ctx,
		`SELECT id, license_id, name, custom FROM licenses
         WHERE license_id = ? COLLATE NOCASE LIMIT 1`,
		licenseID,
	)

	var (
		license License
		name    sql.NullString
		custom  int
	)
	err := row.Scan(&license.ID, &license.LicenseID, &name, &custom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	license.Name = name.String
	license.Custom = custom != 0
	return &license, nil
}

// SeedLicenses registers the given license identifiers as standard licenses.
// Existing registrations are left untouched.
func (q queries) SeedLicenses(ctx context.Context, licenseIDs []string) error {
	for _, id := range licenseIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if _, err := q.db.ExecContext(
			ctx,
			`INSERT INTO licenses (license_id, custom) VALUES (?, 0)
             ON CONFLICT (license_id) DO NOTHING`,
			id,
		); err != nil {
			return fmt.Errorf("seed license %s: %w", id, err)
		}
	}
	return nil
}
