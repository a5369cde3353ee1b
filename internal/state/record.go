package state

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"

	"github.com/pkg/errors"
)

// Record is the persisted metadata of one conversation.
type Record struct {
	// Feature is the continuity key. Empty means the conversation is untracked.
	Feature string
	// Commits is append-only; repeats are kept.
	Commits []string
	// LastTurnReference is the id of the turn the next call continues from.
	LastTurnReference string

	// fields written by a newer version, kept verbatim on rewrite
	extra map[string]json.RawMessage
}

// Tracked reports whether the record participates in the feature index.
func (r Record) Tracked() bool { return r.Feature != "" }

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	out.Commits = slices.Clone(r.Commits)
	if out.Commits == nil {
		out.Commits = []string{}
	}
	out.extra = maps.Clone(r.extra)
	return out
}

var recordKeys = []string{"feature", "commits", "lastTurnReference"}

// MarshalJSON writes the known fields followed by any preserved unknown ones.
func (r Record) MarshalJSON() ([]byte, error) {
	commits := r.Commits
	if commits == nil {
		commits = []string{}
	}
	known := map[string]any{
		"feature":           r.Feature,
		"commits":           commits,
		"lastTurnReference": r.LastTurnReference,
	}
	return marshalOrdered(recordKeys, known, r.extra)
}

// UnmarshalJSON rejects wrong types for known fields and keeps unknown ones.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "conversation record is not an object")
	}
	if raw == nil {
		return errors.New("conversation record is null")
	}

	var rec Record
	if v, ok := raw["feature"]; ok {
		if err := json.Unmarshal(v, &rec.Feature); err != nil {
			return errors.Wrap(err, "field feature")
		}
	}
	if v, ok := raw["commits"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &rec.Commits); err != nil {
			return errors.Wrap(err, "field commits")
		}
	}
	if rec.Commits == nil {
		rec.Commits = []string{}
	}
	if v, ok := raw["lastTurnReference"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &rec.LastTurnReference); err != nil {
			return errors.Wrap(err, "field lastTurnReference")
		}
	}

	for _, k := range recordKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		rec.extra = raw
	}
	*r = rec
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// marshalOrdered emits an object with the known keys first, in order, then the
// extra keys sorted. Stable output keeps diffs of the state file readable.
func marshalOrdered(order []string, known map[string]any, extra map[string]json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}
	for _, key := range order {
		v, err := json.Marshal(known[key])
		if err != nil {
			return nil, errors.Wrapf(err, "marshaling %s", key)
		}
		write(key, v)
	}
	for _, key := range slices.Sorted(maps.Keys(extra)) {
		if _, shadowed := known[key]; shadowed {
			continue
		}
		write(key, extra[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
