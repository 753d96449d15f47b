// Package logging builds the slog loggers used across podscribe and
// centralizes the structured field names shared by the pipeline, the
// adapters, and the CLI.
package logging
