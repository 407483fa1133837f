// Package notifications sends operator alerts to ntfy.
//
// Alerts cover the events an operator should see without watching the chat:
// abandoned recordings, failed deliveries, completions and unexpected errors.
// With no topic configured a no-op implementation is returned.
package notifications
