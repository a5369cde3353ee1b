// Package session is the conversation manager behind diffchat.
//
// A [Manager] ties a feature (a ticket id, a branch name) to one durable
// conversation so that every diff version of that feature is discussed in a
// single chained dialogue. It owns four operations:
//
//   - [Manager.EnsureCollection] finds or creates the document collection and
//     caches its id in the state file.
//   - [Manager.IndexDocument] redacts, size-checks, uploads and indexes a diff.
//   - [Manager.ResolveOrCreateConversation] maps a feature and commit to a
//     conversation handle.
//   - [Manager.SendTurn] asks the model a question as a configured role.
//
// Every mutation is saved before the call returns. Nothing retries; provider
// failures come back as [*CollaboratorError].
package session
