package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelup/internal/result"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTest(t)

	res := result.New(result.StatusPartial, "Remove Inline Keywords")
	res.AcceptedCommits = []string{"Remove inline from squared in sq.cpp"}
	res.RejectedCommits = []string{"Remove inline from cursed in c.cpp"}
	res.Validations = []result.Validation{{File: "sq.cpp", Valid: true}, {File: "c.cpp", Valid: false}}

	require.NoError(t, s.Put("mod-1", res))

	got, ok, err := s.Get("mod-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res, got)
}

func TestGetMissing(t *testing.T) {
	s := openTest(t)
	_, ok, err := s.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutOverwrites(t *testing.T) {
	s := openTest(t)

	require.NoError(t, s.Put("mod-1", result.New(result.StatusProcessing, "first")))
	require.NoError(t, s.Put("mod-1", result.New(result.StatusSuccess, "second")))

	got, ok, err := s.Get("mod-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.StatusSuccess, got.Status)
	assert.Equal(t, "second", got.Message)
}

func TestAll(t *testing.T) {
	s := openTest(t)

	require.NoError(t, s.Put("a", result.New(result.StatusSuccess, "a")))
	require.NoError(t, s.Put("b", result.New(result.StatusFailed, "b")))

	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, result.StatusFailed, all["b"].Status)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("persisted", result.New(result.StatusSuccess, "done")))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, ok, err := s2.Get("persisted")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.StatusSuccess, got.Status)
}
