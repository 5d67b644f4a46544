// Package cdx decodes CycloneDX manifests from their JSON and XML
// serializations into one neutral model consumed by the ingestion pipeline.
package cdx
