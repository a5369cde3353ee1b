package session

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dshills/diffchat/internal/cache"
	"github.com/dshills/diffchat/internal/providers"
	"github.com/dshills/diffchat/internal/redact"
	"github.com/dshills/diffchat/internal/state"
	"github.com/dshills/diffchat/internal/tokens"
)

const (
	handlePrefix        = "thr_"
	collectionListLimit = 100
	maxHandleAttempts   = 8
)

// Recorder receives every completed turn, e.g. to keep a transcript.
type Recorder interface {
	RecordTurn(ctx context.Context, r TurnResult) error
}

// Options wires a Manager. Store, Index and Conversation are required.
type Options struct {
	Roles          map[string]string
	Model          string
	CollectionName string

	Store        *state.Store
	Index        providers.DocumentIndex
	Conversation providers.Conversation

	// Redact is applied to documents before upload.
	Redact redact.Policy
	// Guard rejects oversized documents before upload.
	Guard tokens.Guard
	// Uploads skips re-uploading identical content. Optional.
	Uploads *cache.Cache
	// Recorder is told about each turn after state is saved. Optional.
	Recorder Recorder

	// NewHandle overrides handle generation, mostly for tests.
	NewHandle func() string
	// Now overrides the clock.
	Now func() time.Time
}

// Manager maps features to conversations and chains model turns.
type Manager struct {
	roles          map[string]string
	model          string
	collectionName string

	store    *state.Store
	index    providers.DocumentIndex
	conv     providers.Conversation
	redact   redact.Policy
	guard    tokens.Guard
	uploads  *cache.Cache
	recorder Recorder

	newHandle func() string
	now       func() time.Time
}

// New validates opts and returns a Manager.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if opts.Index == nil || opts.Conversation == nil {
		return nil, errors.New("session: document index and conversation clients are required")
	}
	m := &Manager{
		roles:          opts.Roles,
		model:          opts.Model,
		collectionName: opts.CollectionName,
		store:          opts.Store,
		index:          opts.Index,
		conv:           opts.Conversation,
		redact:         opts.Redact,
		guard:          opts.Guard,
		uploads:        opts.Uploads,
		recorder:       opts.Recorder,
		newHandle:      opts.NewHandle,
		now:            opts.Now,
	}
	if m.newHandle == nil {
		m.newHandle = func() string { return handlePrefix + uuid.NewString() }
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Store exposes the underlying session store for read-only inspection.
func (m *Manager) Store() *state.Store { return m.store }

// Roles returns the configured role names, sorted.
func (m *Manager) Roles() []string {
	names := make([]string, 0, len(m.roles))
	for name := range m.roles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HasRole reports whether role is configured.
func (m *Manager) HasRole(role string) bool {
	_, ok := m.roles[role]
	return ok
}

// EnsureCollection returns the id of the named document collection, finding
// or creating it on first use. Once cached in the store the id is returned
// without contacting the provider.
func (m *Manager) EnsureCollection(ctx context.Context, name string) (string, error) {
	if id := m.store.CollectionID(); id != "" {
		return id, nil
	}

	found, err := m.index.ListCollections(ctx, name, collectionListLimit)
	if err != nil {
		return "", collaborator("listing collections", err)
	}

	var id string
	switch {
	case len(found) > 0:
		id = found[0].ID
		if len(found) > 1 {
			log.Warn().
				Str("name", name).
				Int("matches", len(found)).
				Str("collection_id", id).
				Msg("Several collections share this name; using the first one listed")
		}
	default:
		created, err := m.index.CreateCollection(ctx, name)
		if err != nil {
			return "", collaborator("creating collection", err)
		}
		id = created.ID
		log.Info().Str("name", name).Str("collection_id", id).Msg("Created collection")
	}

	m.store.SetCollectionID(id)
	if err := m.store.Save(); err != nil {
		m.store.SetCollectionID("")
		return "", err
	}
	return id, nil
}

// IndexResult describes one IndexDocument call.
type IndexResult struct {
	Path         string        `json:"path"`
	Filename     string        `json:"filename"`
	FileID       string        `json:"fileId"`
	CollectionID string        `json:"collectionId"`
	Bytes        int           `json:"bytes"`
	Tokens       int           `json:"tokens,omitempty"`
	Cached       bool          `json:"cached"`
	Redacted     redact.Result `json:"-"`
	Duration     time.Duration `json:"-"`
}

// IndexDocument uploads the file at path and waits until it is searchable.
func (m *Manager) IndexDocument(ctx context.Context, path string) (string, error) {
	res, err := m.Index(ctx, path)
	if err != nil {
		return "", err
	}
	return res.FileID, nil
}

// Index is IndexDocument with details. Nothing is recorded when it fails.
func (m *Manager) Index(ctx context.Context, path string) (IndexResult, error) {
	start := m.now()
	res := IndexResult{Path: path, Filename: filepath.Base(path)}

	raw, err := os.ReadFile(path)
	if err != nil {
		return res, errors.Wrapf(err, "reading %s", path)
	}

	content := string(raw)
	if m.redact.Enabled() {
		res.Redacted = redact.Diff(content, m.redact)
		content = res.Redacted.Text
		if res.Redacted.Changed() {
			log.Info().
				Str("path", path).
				Int("secrets", res.Redacted.Secrets).
				Strs("files", res.Redacted.Files).
				Msg("Redacted document before upload")
		}
	}

	measured, err := m.guard.Check(content)
	res.Bytes = measured.Bytes
	if measured.Tokens > 0 {
		res.Tokens = measured.Tokens
	}
	if err != nil {
		return res, errors.Wrapf(err, "checking %s", path)
	}

	colID, err := m.EnsureCollection(ctx, m.collectionName)
	if err != nil {
		return res, err
	}
	res.CollectionID = colID

	body := []byte(content)
	key := cache.UploadKey(colID, res.Filename, body)
	if m.uploads != nil {
		if hit, ok := m.uploads.Get(key); ok {
			res.FileID = hit.FileID
			res.Cached = true
			res.Duration = m.now().Sub(start)
			log.Debug().Str("path", path).Str("file_id", hit.FileID).Msg("Document already indexed")
			return res, nil
		}
	}

	fileID, err := m.index.UploadFile(ctx, res.Filename, body)
	if err != nil {
		return res, collaborator("uploading "+res.Filename, err)
	}
	if err := m.index.IndexFile(ctx, colID, fileID); err != nil {
		return res, collaborator("indexing "+res.Filename, err)
	}
	res.FileID = fileID
	res.Duration = m.now().Sub(start)

	if m.uploads != nil {
		entry := cache.Entry{FileID: fileID, Filename: res.Filename, CollectionID: colID}
		if err := m.uploads.Put(key, entry); err != nil {
			log.Warn().Err(err).Msg("Could not write upload cache entry")
		}
	}

	log.Info().
		Str("path", path).
		Str("file_id", fileID).
		Str("collection_id", colID).
		Int("bytes", res.Bytes).
		Int("tokens", res.Tokens).
		Dur("elapsed", res.Duration).
		Msg("Indexed document")
	return res, nil
}

// ResolveOrCreateConversation returns the conversation for feature, creating
// it when needed. An empty feature always gets a fresh conversation. A
// non-empty commit is appended to the conversation's commit list.
//
// If the state cannot be saved the in-memory change is undone.
func (m *Manager) ResolveOrCreateConversation(feature, commit string) (string, error) {
	if feature != "" {
		if handle, ok := m.store.HandleForFeature(feature); ok {
			if commit == "" {
				return handle, nil
			}
			rec, _ := m.store.Conversation(handle)
			rec.Commits = append(rec.Commits, commit)
			if err := m.commit(func() error { return m.store.Upsert(handle, rec) }); err != nil {
				return "", err
			}
			log.Debug().Str("handle", handle).Str("feature", feature).Str("commit", commit).Msg("Appended commit")
			return handle, nil
		}
	}

	handle, err := m.freshHandle()
	if err != nil {
		return "", err
	}
	rec := state.Record{Feature: feature, Commits: []string{}}
	if commit != "" {
		rec.Commits = append(rec.Commits, commit)
	}
	if err := m.commit(func() error { return m.store.Upsert(handle, rec) }); err != nil {
		return "", err
	}
	log.Info().Str("handle", handle).Str("feature", feature).Str("commit", commit).Msg("Created conversation")
	return handle, nil
}

func (m *Manager) freshHandle() (string, error) {
	for range maxHandleAttempts {
		h := m.newHandle()
		if h != "" && !m.store.HasHandle(h) {
			return h, nil
		}
	}
	return "", errors.New("could not generate a unique conversation handle")
}

// commit applies mutate and saves, restoring the previous state on failure.
func (m *Manager) commit(mutate func() error) error {
	snap := m.store.Snapshot()
	if err := mutate(); err != nil {
		m.store.Restore(snap)
		return err
	}
	if err := m.store.Save(); err != nil {
		m.store.Restore(snap)
		return err
	}
	return nil
}

// TurnResult describes one exchange with the model.
type TurnResult struct {
	Handle        string        `json:"handle"`
	Role          string        `json:"role"`
	Feature       string        `json:"feature"`
	Commits       []string      `json:"commits"`
	Prompt        string        `json:"prompt"`
	Output        string        `json:"output"`
	TurnID        string        `json:"turnId"`
	ContinuedFrom string        `json:"continuedFrom,omitempty"`
	Chained       bool          `json:"chained"`
	Model         string        `json:"model"`
	CollectionID  string        `json:"collectionId"`
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"-"`
}

// SendTurn sends message to the model as role within the conversation and
// returns the reply text.
func (m *Manager) SendTurn(ctx context.Context, role, handle, message string) (string, error) {
	res, err := m.Exchange(ctx, role, handle, message)
	return res.Output, err
}

// Exchange is SendTurn with details.
//
// The new turn becomes the conversation's continuation point only for a
// tracked feature that is already chained or has more than one commit. The
// first turn on a single-commit conversation is therefore not chained.
//
// When the turn succeeds but saving or recording fails, the result is returned
// together with the error.
func (m *Manager) Exchange(ctx context.Context, role, handle, message string) (TurnResult, error) {
	prompt, ok := m.roles[role]
	if !ok {
		return TurnResult{}, &UnknownRoleError{Role: role, Known: m.Roles()}
	}
	rec, ok := m.store.Conversation(handle)
	if !ok {
		return TurnResult{}, &UnknownHandleError{Handle: handle}
	}

	colID, err := m.EnsureCollection(ctx, m.collectionName)
	if err != nil {
		return TurnResult{}, err
	}
	instructions, err := buildInstructions(prompt, rec.Feature, rec.Commits)
	if err != nil {
		return TurnResult{}, err
	}

	res := TurnResult{
		Handle:        handle,
		Role:          role,
		Feature:       rec.Feature,
		Commits:       rec.Commits,
		Prompt:        message,
		ContinuedFrom: rec.LastTurnReference,
		Model:         m.model,
		CollectionID:  colID,
		StartedAt:     m.now(),
	}

	turn, err := m.conv.CreateTurn(ctx, providers.TurnRequest{
		Model:          m.model,
		Instructions:   instructions,
		Input:          message,
		PreviousTurnID: rec.LastTurnReference,
		CollectionIDs:  []string{colID},
	})
	if err != nil {
		return TurnResult{}, collaborator("creating turn", err)
	}
	res.TurnID = turn.ID
	res.Output = turn.OutputText
	res.Duration = m.now().Sub(res.StartedAt)

	if turn.ID == "" {
		log.Warn().Str("handle", handle).Msg("Provider returned a turn without an id; keeping the previous continuation")
	}
	if shouldChain(rec) && turn.ID != "" && turn.ID != rec.LastTurnReference {
		rec.LastTurnReference = turn.ID
		if err := m.commit(func() error { return m.store.Upsert(handle, rec) }); err != nil {
			return res, errors.Wrap(err, "saving conversation state")
		}
		res.Chained = true
	}

	log.Info().
		Str("handle", handle).
		Str("role", role).
		Str("feature", rec.Feature).
		Str("turn_id", turn.ID).
		Str("continued_from", res.ContinuedFrom).
		Bool("chained", res.Chained).
		Dur("elapsed", res.Duration).
		Msg("Turn complete")

	if m.recorder != nil {
		if err := m.recorder.RecordTurn(ctx, res); err != nil {
			return res, errors.Wrap(err, "recording turn")
		}
	}
	return res, nil
}

func shouldChain(rec state.Record) bool {
	return rec.Feature != "" && (rec.LastTurnReference != "" || len(rec.Commits) > 1)
}
