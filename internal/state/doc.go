// Package state persists the workflow's durable state as one JSON document:
// completed items keyed by source path, the single pending item, the consumed
// inbound-event watermark and the conversation destination.
//
// Open holds an advisory flock for the process lifetime so two daemons never
// drive the same conversation. Save writes a temp file and renames it over the
// canonical file; readers never see a partial document. A missing file yields
// empty state and a corrupt one is moved aside with a warning. Save errors are
// tagged ErrPersist and must stop the daemon.
package state
