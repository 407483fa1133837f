// Package workflow runs recordings through the chat conversation one at a
// time.
//
// The Manager owns a single-goroutine tick loop. Each tick pulls inbound chat
// events and feeds them to the conversation engine, makes sure the active
// stage has a live prompt, tries to finalize a ready item (full delivery with
// split fallback, optional transcription and summary, completion record),
// sends due reminders, and finally scans the source directory for the next
// stable recording when nothing is pending.
//
// State is committed before every message that must not be repeated and
// again right after it succeeds. A failed save ends the loop; every other
// tick failure is logged and retried on a later tick.
package workflow
