// Package llm provides an OpenAI-compatible chat client (OpenRouter by
// default) used to summarize call transcripts.
//
// Summarize sends the operator's instructions plus a JSON shape to the model
// and decodes the reply into a Summary; DecodeLLMJSON tolerates code fences and
// surrounding prose. HealthCheck issues a one-shot ping for doctor/preflight.
//
// The client retries HTTP 408/429/5xx, empty content and network timeouts with
// exponential backoff, honouring Retry-After. Context cancellation aborts
// retries immediately.
package llm
