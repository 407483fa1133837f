// Package discovery finds finished recordings in the source directory.
//
// A recording is identified by its slash-separated path relative to the
// source root. It becomes a candidate once its size and modification time have
// stayed unchanged for the stability window and it is older than the minimum
// age.
package discovery
