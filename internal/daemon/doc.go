// Package daemon wires the stores, bus and pipeline driver into the
// long-running sbomflow background process and feeds it from the spool
// directory.
package daemon
