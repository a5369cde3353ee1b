// Package cli wires together the Cobra command tree for the diffchat binary.
//
// Each command loads configuration, builds an app (state store, OpenAI
// client, transcript, session manager) for that invocation only, runs, and
// maps failures to deterministic exit codes.
package cli
