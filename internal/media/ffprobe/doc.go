// Package ffprobe wraps ffprobe's JSON output: container duration, size and
// stream counts for a recording.
package ffprobe
