// Package redact removes secrets from diff content before it is uploaded to
// the document index.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS credentials, bearer tokens, database connection
// strings, and provider tokens (OpenAI, Anthropic, GitHub, Slack).
//
// [Diff] splits a unified diff into per-file sections. Sections whose path
// matches a configured glob are replaced with [REDACTED] wholesale instead of
// being scanned line by line.
package redact
