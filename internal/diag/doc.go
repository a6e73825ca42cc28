// Package diag defines the diagnostic model shared by trace replay and
// piece evaluation.
//
// # Purpose
//
//   - Provide deterministic, serialisable records for findings produced
//     while loading traces, driving builders, and checking namespace
//     compliance.
//   - Offer light-weight utilities (Reporter, Bag) that let producers
//     emit diagnostics without coupling to storage or formatting.
//
// # Data model
//
// Diagnostic is the central record. It contains:
//
//   - Severity – tri-level enum (Info, Warning, Error) defined in severity.go.
//   - Code – compact numeric identifier (see codes.go) with stable string form.
//   - Message – human oriented text; keep it short and actionable.
//   - Piece – canonical name of the package piece the finding concerns.
//   - Target – target name within the piece, when one applies.
//
// # Emitting diagnostics
//
// Producers should use a diag.Reporter to decouple emission from storage.
// diag.BagReporter aggregates diagnostics into a Bag, which supports
// sorting, deduplication and filtering. DedupReporter suppresses repeats
// before they reach the underlying reporter.
//
// Keep the data model deterministic: rendering lives in print.go and the
// CLI layer, never here.
package diag
