// Package gitctx extracts diffs and commit metadata from a git repository.
//
// Diffs are gathered for a single commit, a revision range, or the staged
// index by shelling out to git. Sections matching exclude globs are dropped.
// [WriteTemp] materializes a diff as <label>.diff so it can be indexed as a
// document; [GitDir] locates the hooks directory.
package gitctx
