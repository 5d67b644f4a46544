// Package catalog persists the portfolio graph in SQLite: projects, their
// components and services, registered licenses, integrity metadata side
// records, vulnerability scan tracking, and BOM import audit rows.
package catalog
