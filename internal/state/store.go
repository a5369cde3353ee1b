package state

import (
	"bytes"
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrFeatureTaken is returned by Upsert when another handle already owns the
// record's feature.
var ErrFeatureTaken = errors.New("feature already belongs to another conversation")

// CorruptError reports a state file that exists but cannot be used.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return "state file " + e.Path + " is corrupt: " + e.Err.Error()
}

func (e *CorruptError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err is or wraps a *CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

// Store is the durable handle → Record mapping plus the cached collection id.
//
// It is not safe for concurrent use and does no file locking: two processes
// sharing one path race on read-modify-write.
type Store struct {
	path         string
	collectionID string
	records      map[string]Record
	extra        map[string]json.RawMessage

	// features is derived from records; see rebuildFeatureIndex.
	features map[string]string
}

// New returns an empty store bound to path. Nothing is read or written.
func New(path string) *Store {
	return &Store{
		path:     path,
		records:  map[string]Record{},
		features: map[string]string{},
	}
}

// Open returns a store loaded from path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := New(path)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

type fileFormat struct {
	CollectionID  string
	Conversations map[string]Record
	extra         map[string]json.RawMessage
}

var fileKeys = []string{"collectionId", "conversations"}

// Load replaces the in-memory state with the file contents.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.collectionID = ""
			s.records = map[string]Record{}
			s.extra = nil
			s.rebuildFeatureIndex()
			return nil
		}
		return errors.Wrapf(err, "reading state file %s", s.path)
	}

	f, err := decodeFile(data)
	if err != nil {
		return &CorruptError{Path: s.path, Err: err}
	}
	if err := checkFeatureUniqueness(f.Conversations); err != nil {
		return &CorruptError{Path: s.path, Err: err}
	}

	s.collectionID = f.CollectionID
	s.records = f.Conversations
	s.extra = f.extra
	s.rebuildFeatureIndex()

	log.Debug().
		Str("path", s.path).
		Int("conversations", len(s.records)).
		Bool("collection_cached", s.collectionID != "").
		Msg("Loaded state")
	return nil
}

func decodeFile(data []byte) (fileFormat, error) {
	var f fileFormat
	if len(bytes.TrimSpace(data)) == 0 {
		return f, errors.New("file is empty")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return f, errors.Wrap(err, "top level is not a JSON object")
	}
	if raw == nil {
		return f, errors.New("top level is null")
	}
	if v, ok := raw["collectionId"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &f.CollectionID); err != nil {
			return f, errors.Wrap(err, "field collectionId")
		}
	}
	f.Conversations = map[string]Record{}
	if v, ok := raw["conversations"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &f.Conversations); err != nil {
			return f, errors.Wrap(err, "field conversations")
		}
	}
	for handle := range f.Conversations {
		if handle == "" {
			return f, errors.New("conversation with empty handle")
		}
	}
	for _, k := range fileKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		f.extra = raw
	}
	return f, nil
}

func checkFeatureUniqueness(records map[string]Record) error {
	owner := map[string]string{}
	for _, handle := range slices.Sorted(maps.Keys(records)) {
		rec := records[handle]
		if !rec.Tracked() {
			continue
		}
		if prev, dup := owner[rec.Feature]; dup {
			return errors.Errorf("feature %q is claimed by both %s and %s", rec.Feature, prev, handle)
		}
		owner[rec.Feature] = handle
	}
	return nil
}

// Save writes the full state atomically: a crash leaves either the previous
// file or the new one, never a mix.
func (s *Store) Save() error {
	data, err := s.encode()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return errors.Wrapf(err, "saving state to %s", s.path)
	}
	log.Debug().Str("path", s.path).Int("bytes", len(data)).Msg("Saved state")
	return nil
}

func (s *Store) encode() ([]byte, error) {
	known := map[string]any{
		"collectionId":  s.collectionID,
		"conversations": s.records,
	}
	compact, err := marshalOrdered(fileKeys, known, s.extra)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, errors.Wrap(err, "indenting state")
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// rebuildFeatureIndex recomputes feature → handle from the record set.
// Records are visited in handle order so the result is deterministic even if
// two records in memory claim the same feature.
func (s *Store) rebuildFeatureIndex() {
	idx := make(map[string]string, len(s.records))
	for _, handle := range slices.Sorted(maps.Keys(s.records)) {
		rec := s.records[handle]
		if !rec.Tracked() {
			continue
		}
		if _, seen := idx[rec.Feature]; !seen {
			idx[rec.Feature] = handle
		}
	}
	s.features = idx
}

// CollectionID returns the cached document collection id, or "".
func (s *Store) CollectionID() string { return s.collectionID }

// SetCollectionID caches the document collection id. Call Save to persist it.
func (s *Store) SetCollectionID(id string) { s.collectionID = id }

// Conversation returns a copy of the record for handle.
func (s *Store) Conversation(handle string) (Record, bool) {
	rec, ok := s.records[handle]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// HasHandle reports whether handle exists.
func (s *Store) HasHandle(handle string) bool {
	_, ok := s.records[handle]
	return ok
}

// HandleForFeature looks up the conversation owning feature. Empty features
// never match.
func (s *Store) HandleForFeature(feature string) (string, bool) {
	if feature == "" {
		return "", false
	}
	h, ok := s.features[feature]
	return h, ok
}

// Upsert inserts or replaces the record for handle and refreshes the feature
// index. A record may not take a feature owned by a different handle.
func (s *Store) Upsert(handle string, rec Record) error {
	if handle == "" {
		return errors.New("empty conversation handle")
	}
	if rec.Tracked() {
		if owner, ok := s.features[rec.Feature]; ok && owner != handle {
			return errors.Wrapf(ErrFeatureTaken, "feature %q owned by %s", rec.Feature, owner)
		}
	}
	prev, existed := s.records[handle]
	s.records[handle] = rec.Clone()
	if !existed || prev.Feature != rec.Feature {
		s.rebuildFeatureIndex()
	}
	return nil
}

// Handles returns every conversation handle in sorted order.
func (s *Store) Handles() []string {
	return slices.Sorted(maps.Keys(s.records))
}

// Len returns the number of conversations.
func (s *Store) Len() int { return len(s.records) }

// Snapshot captures the mutable state so a failed write can be rolled back.
type Snapshot struct {
	collectionID string
	records      map[string]Record
}

// Snapshot returns a deep copy of the mutable state.
func (s *Store) Snapshot() Snapshot {
	recs := make(map[string]Record, len(s.records))
	for h, r := range s.records {
		recs[h] = r.Clone()
	}
	return Snapshot{collectionID: s.collectionID, records: recs}
}

// Restore reverts to a snapshot taken earlier.
func (s *Store) Restore(snap Snapshot) {
	s.collectionID = snap.collectionID
	s.records = snap.records
	s.rebuildFeatureIndex()
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating state directory")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "chmod temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return errors.Wrap(err, "renaming temp file")
	}
	// Persist the rename itself. Not all platforms allow opening a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
