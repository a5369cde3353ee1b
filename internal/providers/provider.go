package providers

import (
	"context"
)

// Collection is a named document index on the provider side (an OpenAI
// vector store).
type Collection struct {
	ID   string
	Name string
}

// File is a document stored with the provider.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
}

// DocumentIndex stores diff files and makes them searchable by a conversation.
type DocumentIndex interface {
	// ListCollections returns up to limit collections whose name equals name,
	// in the order the provider lists them.
	ListCollections(ctx context.Context, name string, limit int) ([]Collection, error)
	CreateCollection(ctx context.Context, name string) (Collection, error)
	// UploadFile stores content under filename and returns the provider file id.
	UploadFile(ctx context.Context, filename string, content []byte) (string, error)
	// IndexFile adds fileID to the collection and blocks until indexing has
	// finished. A failed or cancelled indexing job is an error.
	IndexFile(ctx context.Context, collectionID, fileID string) error
	// ListFiles returns every file stored with the provider.
	ListFiles(ctx context.Context) ([]File, error)
	// DeleteFile removes a stored file. The provider drops it from every
	// collection it was indexed into.
	DeleteFile(ctx context.Context, fileID string) error
}

// TurnRequest is one user message sent to the model.
type TurnRequest struct {
	Model        string
	Instructions string
	Input        string
	// PreviousTurnID continues an earlier exchange when non-empty.
	PreviousTurnID string
	// CollectionIDs are made available to the model through file search.
	CollectionIDs []string
}

// Turn is the model's reply.
type Turn struct {
	ID         string
	OutputText string
}

// Conversation creates model turns.
type Conversation interface {
	CreateTurn(ctx context.Context, req TurnRequest) (Turn, error)
}

// Client is everything diffchat needs from a provider.
type Client interface {
	DocumentIndex
	Conversation
	Name() string
}
