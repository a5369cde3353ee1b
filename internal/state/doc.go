// Package state persists diffchat conversations.
//
// A [Store] maps opaque conversation handles to a [Record] (feature, commits,
// last turn reference) and caches the id of the document collection. The
// whole file is rewritten on every [Store.Save] using a temp file in the same
// directory followed by a rename, so readers never observe a partial write.
//
// The feature index (feature → handle) is derived data. It is rebuilt after
// every load and structural change and is never written to disk.
//
// There is no file locking. Two processes using the same state file at the
// same time can lose each other's updates.
package state
