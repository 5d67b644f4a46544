// Command sbomflow is the CLI for the sbomflow BOM ingestion service. It
// spools upload and clone requests for the daemon and reads processing state
// and the component portfolio directly from the stores.
package main
