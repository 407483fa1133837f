// Package history keeps a queryable SQLite journal of workflow events and
// completion records. The JSON state file stays the source of truth; the
// journal exists for operators (recflow history) and is written best-effort.
package history
