// Package whisperx runs WhisperX (via uvx) over a recording's audio track.
//
// Transcribe extracts the first audio stream to a 16kHz mono WAV with ffmpeg,
// invokes WhisperX with JSON output, and returns the joined text plus the
// timed segments. Commands go through an injectable runner so tests can fake
// both tools by writing the expected output files.
package whisperx
