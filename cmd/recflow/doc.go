// Package main hosts the recflow CLI entrypoint and command graph.
//
// `recflow run` is the long-running process: it holds the state lock, polls
// the chat gateway and walks one recording at a time through its
// conversation. The other commands inspect or repair what that process left
// on disk: the state document, the SQLite journal and the log directory.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
