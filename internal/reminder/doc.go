// Package reminder schedules nudges for unanswered conversation prompts.
//
// Intervals double from a base value up to a cap. Nudges that fall due during
// the configured night window are moved to the window's end instead of being
// sent, without consuming an attempt.
package reminder
