package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	return NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
}

func TestSessionRoundTrip(t *testing.T) {
	store := newTestSessionStore(t)

	sess := &Session{
		UserID: "alice",
		Token:  "bearer-token",
		Profile: Profile{
			Name:    "Alice",
			Picture: "data:image/png;base64,AAAA",
		},
	}
	require.NoError(t, store.Persist(sess))

	got := store.Restore()
	require.NotNil(t, got)
	assert.Equal(t, sess, got)
}

func TestRestoreAbsent(t *testing.T) {
	store := newTestSessionStore(t)
	assert.Nil(t, store.Restore())
}

func TestRestoreUnparsable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewSessionStore(path)
	assert.Nil(t, store.Restore(), "corrupt state must read as unauthenticated")
}

func TestRestoreWithoutToken(t *testing.T) {
	store := newTestSessionStore(t)
	require.NoError(t, store.Persist(&Session{UserID: "alice"}))
	assert.Nil(t, store.Restore(), "a session without a token is no session")
}

func TestPersistOverwrites(t *testing.T) {
	store := newTestSessionStore(t)

	require.NoError(t, store.Persist(&Session{UserID: "alice", Token: "one"}))
	require.NoError(t, store.Persist(&Session{UserID: "alice", Token: "two"}))

	got := store.Restore()
	require.NotNil(t, got)
	assert.Equal(t, "two", got.Token)
}

func TestClearThenRestore(t *testing.T) {
	store := newTestSessionStore(t)
	require.NoError(t, store.Persist(&Session{UserID: "alice", Token: "tok"}))

	// logout then restore yields absent, and clearing twice is harmless
	require.NoError(t, store.Clear())
	assert.Nil(t, store.Restore())
	require.NoError(t, store.Clear())
}
