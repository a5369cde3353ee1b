package session

import (
	"context"

	"github.com/pkg/errors"
)

// AskRequest is one "index a diff, then ask about it" interaction.
type AskRequest struct {
	Role    string
	Feature string
	Commit  string
	Prompt  string
	// DocumentPath is indexed before the turn when set.
	DocumentPath string
}

// AskResult carries the outcome of Ask. Index is nil when no document was given.
type AskResult struct {
	Index *IndexResult `json:"index,omitempty"`
	Turn  TurnResult   `json:"turn"`
}

// Ask indexes the optional document, resolves the feature's conversation and
// sends the prompt. The role is checked before anything is uploaded.
func (m *Manager) Ask(ctx context.Context, req AskRequest) (AskResult, error) {
	if !m.HasRole(req.Role) {
		return AskResult{}, &UnknownRoleError{Role: req.Role, Known: m.Roles()}
	}
	if req.Prompt == "" {
		return AskResult{}, errors.New("prompt must not be empty")
	}

	var out AskResult
	if req.DocumentPath != "" {
		idx, err := m.Index(ctx, req.DocumentPath)
		if err != nil {
			return AskResult{}, err
		}
		out.Index = &idx
	}

	handle, err := m.ResolveOrCreateConversation(req.Feature, req.Commit)
	if err != nil {
		return out, err
	}
	turn, err := m.Exchange(ctx, req.Role, handle, req.Prompt)
	out.Turn = turn
	return out, err
}

// TrackResult carries the outcome of Track.
type TrackResult struct {
	Handle string       `json:"handle"`
	Index  *IndexResult `json:"index,omitempty"`
}

// Track indexes the optional document and records commit against the
// feature's conversation without talking to the model.
func (m *Manager) Track(ctx context.Context, feature, commit, documentPath string) (TrackResult, error) {
	if feature == "" {
		return TrackResult{}, errors.New("feature must not be empty")
	}
	var out TrackResult
	if documentPath != "" {
		idx, err := m.Index(ctx, documentPath)
		if err != nil {
			return TrackResult{}, err
		}
		out.Index = &idx
	}
	handle, err := m.ResolveOrCreateConversation(feature, commit)
	if err != nil {
		return out, err
	}
	out.Handle = handle
	return out, nil
}
