// Package ingest implements the manifest ingestion pipeline: project
// resolution, CycloneDX parsing, idempotent merge into the portfolio graph,
// license resolution, project metadata overrides and analysis fan-out.
package ingest
