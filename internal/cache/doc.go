// Package cache remembers diffs that were already uploaded and indexed.
//
// Entries are keyed by a SHA-256 hash of the collection id, file name and the
// exact (already redacted) bytes uploaded, and map to the provider file id.
// Each entry carries a creation timestamp and a TTL in seconds. Expired
// entries are skipped on read and removed.
//
// The default cache directory is $XDG_CACHE_HOME/diffchat (or the
// OS-appropriate equivalent).
package cache
