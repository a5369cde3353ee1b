package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.json")
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	s, err := Open(statePath(t))
	require.NoError(t, err)
	assert.Equal(t, "", s.CollectionID())
	assert.Empty(t, s.Handles())
	assert.Equal(t, 0, s.Len())
}

func TestSave_ReloadReproducesState(t *testing.T) {
	path := statePath(t)
	s := New(path)
	s.SetCollectionID("vs_123")
	require.NoError(t, s.Upsert("thr_a", Record{Feature: "BASEL-1", Commits: []string{"v1", "v2", "v1"}, LastTurnReference: "resp_9"}))
	require.NoError(t, s.Upsert("thr_b", Record{Commits: []string{"x"}}))
	require.NoError(t, s.Upsert("thr_c", Record{}))
	require.NoError(t, s.Save())

	got, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "vs_123", got.CollectionID())
	assert.Equal(t, []string{"thr_a", "thr_b", "thr_c"}, got.Handles())

	a, ok := got.Conversation("thr_a")
	require.True(t, ok)
	assert.Equal(t, "BASEL-1", a.Feature)
	assert.Equal(t, []string{"v1", "v2", "v1"}, a.Commits)
	assert.Equal(t, "resp_9", a.LastTurnReference)

	c, ok := got.Conversation("thr_c")
	require.True(t, ok)
	assert.Equal(t, []string{}, c.Commits)

	h, ok := got.HandleForFeature("BASEL-1")
	require.True(t, ok)
	assert.Equal(t, "thr_a", h)
	_, ok = got.HandleForFeature("")
	assert.False(t, ok, "untracked records are not indexed")

	// A second save of unchanged state is byte-identical.
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, got.Save())
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSave_WritesExpectedShape(t *testing.T) {
	path := statePath(t)
	s := New(path)
	s.SetCollectionID("vs_1")
	require.NoError(t, s.Upsert("thr_1", Record{Feature: "F", Commits: []string{"c1"}}))
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
  "collectionId": "vs_1",
  "conversations": {
    "thr_1": {"feature": "F", "commits": ["c1"], "lastTurnReference": ""}
  }
}`, string(data))
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	path := statePath(t)
	s := New(path)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Upsert("thr_x", Record{Commits: []string{"c"}}))
		require.NoError(t, s.Save())
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSave_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "state.json")
	s := New(path)
	require.NoError(t, s.Save())
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestSave_FailureKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	// The state path is a directory, so the final rename fails.
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0o600))

	s := New(path)
	require.NoError(t, s.Upsert("thr_1", Record{}))
	require.Error(t, s.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestLoad_PreservesUnknownFields(t *testing.T) {
	path := statePath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{
  "collectionId": "vs_1",
  "schema": 2,
  "conversations": {
    "thr_1": {"feature": "F", "commits": ["a"], "lastTurnReference": "r1", "label": {"color": "red"}}
  }
}`), 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	rec, ok := s.Conversation("thr_1")
	require.True(t, ok)
	rec.Commits = append(rec.Commits, "b")
	require.NoError(t, s.Upsert("thr_1", rec))
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
  "collectionId": "vs_1",
  "schema": 2,
  "conversations": {
    "thr_1": {"feature": "F", "commits": ["a", "b"], "lastTurnReference": "r1", "label": {"color": "red"}}
  }
}`, string(data))
}

func TestLoad_NullFieldsAreEmpty(t *testing.T) {
	path := statePath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"collectionId": null, "conversations": {"thr_1": {"feature": "F", "commits": null, "lastTurnReference": null}}}`), 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "", s.CollectionID())
	rec, ok := s.Conversation("thr_1")
	require.True(t, ok)
	assert.Equal(t, []string{}, rec.Commits)
	assert.Equal(t, "", rec.LastTurnReference)
}

func TestLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"not json", "{oops"},
		{"array top level", "[]"},
		{"null top level", "null"},
		{"collection id wrong type", `{"collectionId": 7}`},
		{"conversations wrong type", `{"conversations": []}`},
		{"record wrong type", `{"conversations": {"thr_1": "x"}}`},
		{"record null", `{"conversations": {"thr_1": null}}`},
		{"commits wrong type", `{"conversations": {"thr_1": {"commits": "a"}}}`},
		{"commit element wrong type", `{"conversations": {"thr_1": {"commits": [1]}}}`},
		{"feature wrong type", `{"conversations": {"thr_1": {"feature": true}}}`},
		{"empty handle", `{"conversations": {"": {"feature": "F"}}}`},
		{"duplicate feature", `{"conversations": {"thr_1": {"feature": "F"}, "thr_2": {"feature": "F"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := statePath(t)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := Open(path)
			require.Error(t, err)
			var ce *CorruptError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, path, ce.Path)
			assert.True(t, IsCorrupt(err))
		})
	}
}

func TestLoad_DuplicateUntrackedIsFine(t *testing.T) {
	path := statePath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"conversations": {"thr_1": {"feature": ""}, "thr_2": {"feature": ""}}}`), 0o600))
	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestUpsert_FeatureOwnership(t *testing.T) {
	s := New(statePath(t))
	require.NoError(t, s.Upsert("thr_1", Record{Feature: "F"}))

	err := s.Upsert("thr_2", Record{Feature: "F"})
	require.ErrorIs(t, err, ErrFeatureTaken)
	assert.False(t, s.HasHandle("thr_2"))

	// Replacing the owner's own record is allowed.
	require.NoError(t, s.Upsert("thr_1", Record{Feature: "F", Commits: []string{"v2"}}))

	// Moving a record to a new feature frees the old one.
	require.NoError(t, s.Upsert("thr_1", Record{Feature: "G"}))
	_, ok := s.HandleForFeature("F")
	assert.False(t, ok)
	require.NoError(t, s.Upsert("thr_2", Record{Feature: "F"}))

	assert.Error(t, s.Upsert("", Record{}))
}

func TestConversation_ReturnsCopy(t *testing.T) {
	s := New(statePath(t))
	require.NoError(t, s.Upsert("thr_1", Record{Feature: "F", Commits: []string{"a"}}))

	rec, _ := s.Conversation("thr_1")
	rec.Commits[0] = "mutated"
	rec.Commits = append(rec.Commits, "b")

	again, _ := s.Conversation("thr_1")
	assert.Equal(t, []string{"a"}, again.Commits)

	_, ok := s.Conversation("thr_missing")
	assert.False(t, ok)
}

func TestSnapshotRestore(t *testing.T) {
	s := New(statePath(t))
	require.NoError(t, s.Upsert("thr_1", Record{Feature: "F", Commits: []string{"a"}}))
	snap := s.Snapshot()

	require.NoError(t, s.Upsert("thr_1", Record{Feature: "F", Commits: []string{"a", "b"}}))
	require.NoError(t, s.Upsert("thr_2", Record{Feature: "G"}))
	s.SetCollectionID("vs_new")

	s.Restore(snap)
	assert.Equal(t, []string{"thr_1"}, s.Handles())
	assert.Equal(t, "", s.CollectionID())
	rec, _ := s.Conversation("thr_1")
	assert.Equal(t, []string{"a"}, rec.Commits)
	_, ok := s.HandleForFeature("G")
	assert.False(t, ok)
}
