package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/topicnews/internal/article"
	"github.com/deusflow/topicnews/internal/store"
)

func TestSnapshotFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sections.json")
	sf := NewSnapshotFile(path)

	published := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	st := store.New()
	st.Replace("pib", 7, []article.Article{{Title: "Cabinet note", Link: "http://pib.test/1", Published: published, Section: "pib"}})
	st.Replace("latest", 3, nil)

	require.NoError(t, sf.Save(st.Snapshot()))

	snap, ok, err := sf.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, snap.Sections, "pib")
	assert.Equal(t, uint64(7), snap.Sections["pib"].Generation)
	assert.Equal(t, "Cabinet note", snap.Sections["pib"].Articles[0].Title)
	assert.True(t, published.Equal(snap.Sections["pib"].Articles[0].Published))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSnapshotFileMissingOrEmpty(t *testing.T) {
	dir := t.TempDir()

	_, ok, err := NewSnapshotFile(filepath.Join(dir, "absent.json")).Load()
	require.NoError(t, err)
	assert.False(t, ok)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, ok, err = NewSnapshotFile(empty).Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, ok, err := NewSnapshotFile(path).Load()
	assert.Error(t, err)
	assert.False(t, ok)
}
