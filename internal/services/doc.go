// Package services defines shared utilities consumed by the workflow and the
// external integrations beneath it.
//
// It provides context helpers that stamp the pending item's key, the workflow
// stage, and a per-tick correlation identifier for logging, plus structured
// error markers and the Wrap helper so callers can classify failures as
// retryable or operator-facing.
package services
