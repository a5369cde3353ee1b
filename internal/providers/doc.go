// Package providers connects diffchat to its model provider.
//
// [DocumentIndex] covers the searchable diff store (list/create a collection,
// upload a file, index it and wait). [Conversation] creates model turns that
// may continue an earlier one. [OpenAI] implements both on top of
// github.com/openai/openai-go: vector stores, file batches and the Responses
// API with the file_search tool and previous_response_id.
//
// Nothing here retries. Failed calls come back as [*APIError] when the
// provider answered with an HTTP status; [IsAuthError] picks out 401 and 403.
//
// The providertest subpackage holds an in-memory fake for tests.
package providers
