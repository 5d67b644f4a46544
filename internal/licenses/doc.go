// Package licenses carries the embedded SPDX identifier registry and the
// expression resolver used when importing component license declarations.
package licenses
