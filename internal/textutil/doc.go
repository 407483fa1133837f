// Package textutil provides text helpers shared by the conversation and
// delivery code: Unicode case folding, word-character filtering, rune-safe
// truncation and attachment file-name sanitization.
package textutil
