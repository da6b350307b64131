// Package logging wires log/slog with the repository's console and JSON
// handlers and the standardized field names shared by workers, ingestion, and
// the CLI.
package logging
