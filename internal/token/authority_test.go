package token

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRemote struct {
	issued    []string
	revoked   []string
	issueErr  error
	revokeErr error
}

func (f *fakeRemote) IssueToken(_ context.Context, _, tok string) error {
	if f.issueErr != nil {
		return f.issueErr
	}

	f.issued = append(f.issued, tok)

	return nil
}

func (f *fakeRemote) RevokeToken(_ context.Context, _, tok string) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}

	f.revoked = append(f.revoked, tok)

	return nil
}

type fakeStore struct {
	tokens []string
	addErr error
}

func (f *fakeStore) AddInviteToken(_ context.Context, tok string) error {
	if f.addErr != nil {
		return f.addErr
	}

	f.tokens = append(f.tokens, tok)

	return nil
}

func (f *fakeStore) RemoveInviteToken(_ context.Context, tok string) error {
	for i, t := range f.tokens {
		if t == tok {
			f.tokens = append(f.tokens[:i], f.tokens[i+1:]...)
			return nil
		}
	}

	return errors.New("not found")
}

func TestGenerate_URLSafeAndUnique(t *testing.T) {
	seen := make(map[string]bool)

	for range 100 {
		tok, err := Generate()
		require.NoError(t, err)

		// 24 random bytes encode to 32 URL-safe characters.
		assert.Len(t, tok, 32)
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.NotContains(t, tok, "=")

		assert.False(t, seen[tok], "duplicate token generated")
		seen[tok] = true
	}
}

func TestIssue_RegistersRemoteThenLocal(t *testing.T) {
	remote := &fakeRemote{}
	store := &fakeStore{}
	a := NewAuthority(remote, store, testLogger())

	tok, err := a.Issue(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, []string{tok}, remote.issued)
	assert.Equal(t, []string{tok}, store.tokens)
}

func TestIssue_RemoteFailureLeavesLocalUntouched(t *testing.T) {
	remote := &fakeRemote{issueErr: errors.New("service down")}
	store := &fakeStore{}
	a := NewAuthority(remote, store, testLogger())

	_, err := a.Issue(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Empty(t, store.tokens)
}

func TestIssue_LocalFailureRollsBackRemote(t *testing.T) {
	remote := &fakeRemote{}
	store := &fakeStore{addErr: errors.New("plan limit reached")}
	a := NewAuthority(remote, store, testLogger())

	_, err := a.Issue(context.Background(), "sess-1")
	require.Error(t, err)
	require.Len(t, remote.issued, 1)
	assert.Equal(t, remote.issued, remote.revoked, "remote registration rolled back")
}

func TestRevoke_TwoPhase(t *testing.T) {
	remote := &fakeRemote{}
	store := &fakeStore{tokens: []string{"tok-1"}}
	a := NewAuthority(remote, store, testLogger())

	require.NoError(t, a.Revoke(context.Background(), "sess-1", "tok-1"))
	assert.Equal(t, []string{"tok-1"}, remote.revoked)
	assert.Empty(t, store.tokens)
}

func TestRevoke_RemoteFailureKeepsLocal(t *testing.T) {
	remote := &fakeRemote{revokeErr: errors.New("service down")}
	store := &fakeStore{tokens: []string{"tok-1"}}
	a := NewAuthority(remote, store, testLogger())

	err := a.Revoke(context.Background(), "sess-1", "tok-1")
	require.Error(t, err)
	assert.Equal(t, []string{"tok-1"}, store.tokens, "local list untouched on remote failure")
}
