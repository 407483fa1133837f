// Package ai turns a delivered recording into a transcript and a short
// summary: ffmpeg extracts the audio, WhisperX transcribes it and an
// OpenAI-compatible chat model writes the summary.
package ai
