// Package logging wires log/slog with the console and JSON handlers used
// across sbomflow, plus typed attribute helpers and standardized field keys.
package logging
