package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GetIntegrityMeta fetches the integrity metadata record for a coordinate.
// Returns nil when no record exists.
func (q queries) GetIntegrityMeta(ctx context.Context, purl string) (*IntegrityMeta, error) {
	row := q.db.QueryRowContext(
		ctx,
		`SELECT id, purl, status, last_fetch FROM integrity_meta WHERE purl = ?`,
		purl,
	)

	var (
		meta     IntegrityMeta
		status   string
		fetchRaw sql.NullString
	)
	err := row.Scan(&meta.ID, &meta.Purl, &status, &fetchRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get integrity meta: %w", err)
	}
	meta.Status = FetchStatus(status)
	if fetchRaw.Valid {
		if fetched, err := parseTimeString(fetchRaw.String); err == nil {
			meta.LastFetch = &fetched
		}
	}
	return &meta, nil
}

// UpsertIntegrityMeta creates or replaces the integrity record for a coordinate.
func (q queries) UpsertIntegrityMeta(ctx context.Context, meta *IntegrityMeta) error {
	if meta == nil || strings.TrimSpace(meta.Purl) == "" {
		return errors.New("integrity meta requires a purl")
	}
	if meta.Status == "" {
		meta.Status = FetchStatusNotYetFetched
	}
	if _, err := q.db.ExecContext(
		ctx,
		`INSERT INTO integrity_meta (purl, status, last_fetch) VALUES (?, ?, ?)
         ON CONFLICT (purl) DO UPDATE SET status = excluded.status, last_fetch = excluded.last_fetch`,
		meta.Purl, meta.Status, nullableTime(meta.LastFetch),
	); err != nil {
		return fmt.Errorf("upsert integrity meta: %w", err)
	}
	return nil
}

// StaleIntegrityCutoff is how old an IN_PROGRESS fetch may be before the
// coordinate is considered fetchable again.
const StaleIntegrityCutoff = time.Hour

// ShouldFetchIntegrityMeta decides whether a repository metadata command
// should be issued for a coordinate: yes when the coordinate is unknown, has
// never been fetched, previously failed, or its in-progress fetch went stale.
func ShouldFetchIntegrityMeta(meta *IntegrityMeta, now time.Time) bool {
	if meta == nil {
		return true
	}
	switch meta.Status {
	case FetchStatusProcessed:
		return false
	case FetchStatusInProgress:
		if meta.LastFetch == nil {
			return true
		}
		return now.Sub(*meta.LastFetch) > StaleIntegrityCutoff
	default:
		return true
	}
}
