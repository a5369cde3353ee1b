// Package providertest provides an in-memory providers.Client for tests.
package providertest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dshills/diffchat/internal/providers"
)

// Op names used in Calls and Fail.
const (
	OpList   = "ListCollections"
	OpCreate = "CreateCollection"
	OpUpload = "UploadFile"
	OpIndex  = "IndexFile"
	OpTurn   = "CreateTurn"
	OpFiles  = "ListFiles"
	OpDelete = "DeleteFile"
)

// Call is one recorded invocation.
type Call struct {
	Op   string
	Args []string
}

// Fake records every call and answers from memory.
type Fake struct {
	mu sync.Mutex

	// Collections is what ListCollections searches, in listing order.
	Collections []providers.Collection
	// Uploads maps file id to uploaded content.
	Uploads map[string][]byte
	// Filenames maps file id to the name it was uploaded under.
	Filenames map[string]string
	// Indexed maps collection id to the file ids indexed into it.
	Indexed map[string][]string
	// Turns holds every request passed to CreateTurn.
	Turns []providers.TurnRequest
	// Reply produces the output text for a turn. Defaults to echoing the input.
	Reply func(providers.TurnRequest) string
	// NoTurnID makes CreateTurn answer without a turn id.
	NoTurnID bool

	calls    []Call
	failures map[string]error
	seq      int
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Uploads:   map[string][]byte{},
		Filenames: map[string]string{},
		Indexed:   map[string][]string{},
		failures:  map[string]error{},
	}
}

// Fail makes every later call to op return err. A nil err clears it.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many times op was called.
func (f *Fake) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls but keeps stored data.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) record(op string, args ...string) error {
	f.calls = append(f.calls, Call{Op: op, Args: args})
	return f.failures[op]
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) ListCollections(_ context.Context, name string, limit int) ([]providers.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpList, name, fmt.Sprint(limit)); err != nil {
		return nil, err
	}
	var out []providers.Collection
	for i, c := range f.Collections {
		if i >= limit {
			break
		}
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *Fake) CreateCollection(_ context.Context, name string) (providers.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpCreate, name); err != nil {
		return providers.Collection{}, err
	}
	c := providers.Collection{ID: f.nextID("vs"), Name: name}
	f.Collections = append(f.Collections, c)
	return c, nil
}

func (f *Fake) UploadFile(_ context.Context, filename string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpUpload, filename); err != nil {
		return "", err
	}
	id := f.nextID("file")
	f.Uploads[id] = append([]byte(nil), content...)
	f.Filenames[id] = filename
	return id, nil
}

func (f *Fake) IndexFile(_ context.Context, collectionID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpIndex, collectionID, fileID); err != nil {
		return err
	}
	f.Indexed[collectionID] = append(f.Indexed[collectionID], fileID)
	return nil
}

func (f *Fake) ListFiles(_ context.Context) ([]providers.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpFiles); err != nil {
		return nil, err
	}
	out := make([]providers.File, 0, len(f.Uploads))
	for _, id := range slices.Sorted(maps.Keys(f.Uploads)) {
		out = append(out, providers.File{ID: id, Filename: f.Filenames[id], Bytes: int64(len(f.Uploads[id]))})
	}
	return out, nil
}

func (f *Fake) DeleteFile(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpDelete, fileID); err != nil {
		return err
	}
	if _, ok := f.Uploads[fileID]; !ok {
		return &providers.APIError{Op: "deleting file " + fileID, StatusCode: 404, Message: "no such file"}
	}
	delete(f.Uploads, fileID)
	delete(f.Filenames, fileID)
	for col, ids := range f.Indexed {
		f.Indexed[col] = slices.DeleteFunc(ids, func(id string) bool { return id == fileID })
	}
	return nil
}

func (f *Fake) CreateTurn(_ context.Context, req providers.TurnRequest) (providers.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpTurn, req.PreviousTurnID, req.Input); err != nil {
		return providers.Turn{}, err
	}
	req.CollectionIDs = append([]string(nil), req.CollectionIDs...)
	f.Turns = append(f.Turns, req)
	out := "echo: " + req.Input
	if f.Reply != nil {
		out = f.Reply(req)
	}
	if f.NoTurnID {
		return providers.Turn{OutputText: out}, nil
	}
	return providers.Turn{ID: f.nextID("resp"), OutputText: out}, nil
}

// LastTurn returns the most recent CreateTurn request.
func (f *Fake) LastTurn() (providers.TurnRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Turns) == 0 {
		return providers.TurnRequest{}, false
	}
	return f.Turns[len(f.Turns)-1], true
}

var _ providers.Client = (*Fake)(nil)
