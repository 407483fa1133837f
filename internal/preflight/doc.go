// Package preflight provides readiness checks for the external services,
// binaries and filesystem paths recflow depends on.
//
// These checks run in two contexts:
//   - `recflow run` calls RunAll once at startup and logs every failure
//     before the workflow loop begins.
//   - `recflow doctor` renders the same results as a table and exits non-zero
//     when a required check fails.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
