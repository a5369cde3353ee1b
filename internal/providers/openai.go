package providers

import (
	"bytes"
	"context"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultPollInterval = time.Second

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides https://api.openai.com/v1, mainly for tests and proxies.
	BaseURL string
	// PollInterval is how often an indexing job is checked. Zero means one second.
	PollInterval time.Duration
	// Options are appended after the built-in ones.
	Options []option.RequestOption
}

// OpenAI talks to vector stores, files and the Responses API.
type OpenAI struct {
	client       openai.Client
	pollInterval time.Duration
}

// NewOpenAI creates a new OpenAI provider. The SDK's automatic retries are
// turned off; every failure reaches the caller.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is not set")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.Options...)

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &OpenAI{
		client:       openai.NewClient(opts...),
		pollInterval: poll,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) ListCollections(ctx context.Context, name string, limit int) ([]Collection, error) {
	page, err := o.client.VectorStores.List(ctx, openai.VectorStoreListParams{
		Limit: openai.Int(int64(limit)),
	})
	if err != nil {
		return nil, translate("listing vector stores", err)
	}
	var out []Collection
	for _, vs := range page.Data {
		if vs.Name == name {
			out = append(out, Collection{ID: vs.ID, Name: vs.Name})
		}
	}
	log.Debug().Str("name", name).Int("listed", len(page.Data)).Int("matched", len(out)).Msg("Listed vector stores")
	return out, nil
}

func (o *OpenAI) CreateCollection(ctx context.Context, name string) (Collection, error) {
	vs, err := o.client.VectorStores.New(ctx, openai.VectorStoreNewParams{
		Name: openai.String(name),
	})
	if err != nil {
		return Collection{}, translate("creating vector store", err)
	}
	return Collection{ID: vs.ID, Name: vs.Name}, nil
}

func (o *OpenAI) UploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	f, err := o.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(bytes.NewReader(content), filename, "text/plain"),
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return "", translate("uploading file", err)
	}
	return f.ID, nil
}

func (o *OpenAI) IndexFile(ctx context.Context, collectionID, fileID string) error {
	batch, err := o.client.VectorStores.FileBatches.New(ctx, collectionID,
		openai.VectorStoreFileBatchNewParams{FileIDs: []string{fileID}})
	if err != nil {
		return translate("indexing file", err)
	}
	log.Debug().Str("collection_id", collectionID).Str("file_id", fileID).Str("batch_id", batch.ID).Msg("Indexing started")

	// The SDK's NewAndPoll swaps the store and batch ids when polling, so the
	// wait loop lives here.
	for batch.Status == openai.VectorStoreFileBatchStatusInProgress {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "indexing file %s: waiting for batch %s", fileID, batch.ID)
		case <-time.After(o.pollInterval):
		}
		batch, err = o.client.VectorStores.FileBatches.Get(ctx, collectionID, batch.ID)
		if err != nil {
			return translate("polling file batch", err)
		}
	}

	if batch.Status != openai.VectorStoreFileBatchStatusCompleted {
		return errors.Errorf("indexing file %s: batch %s ended with status %s", fileID, batch.ID, batch.Status)
	}
	if batch.FileCounts.Failed > 0 || batch.FileCounts.Cancelled > 0 {
		return errors.Errorf("indexing file %s: batch %s had %d failed and %d cancelled files",
			fileID, batch.ID, batch.FileCounts.Failed, batch.FileCounts.Cancelled)
	}
	return nil
}

func (o *OpenAI) ListFiles(ctx context.Context) ([]File, error) {
	iter := o.client.Files.ListAutoPaging(ctx, openai.FileListParams{})
	var out []File
	for iter.Next() {
		f := iter.Current()
		out = append(out, File{ID: f.ID, Filename: f.Filename, Bytes: f.Bytes})
	}
	if err := iter.Err(); err != nil {
		return nil, translate("listing files", err)
	}
	return out, nil
}

func (o *OpenAI) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := o.client.Files.Delete(ctx, fileID); err != nil {
		return translate("deleting file "+fileID, err)
	}
	return nil
}

func (o *OpenAI) CreateTurn(ctx context.Context, req TurnRequest) (Turn, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(req.Model),
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Input)},
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if req.PreviousTurnID != "" {
		params.PreviousResponseID = openai.String(req.PreviousTurnID)
	}
	if len(req.CollectionIDs) > 0 {
		params.Tools = []responses.ToolUnionParam{{
			OfFileSearch: &responses.FileSearchToolParam{VectorStoreIDs: req.CollectionIDs},
		}}
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return Turn{}, translate("creating response", err)
	}
	if resp.Error.Message != "" {
		return Turn{}, errors.Errorf("creating response: %s: %s", resp.Error.Code, resp.Error.Message)
	}
	return Turn{ID: resp.ID, OutputText: resp.OutputText()}, nil
}

// translate turns SDK errors into *APIError so callers need not import the SDK.
func translate(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{Op: op, StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return errors.Wrap(err, op)
}
