package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobproof/jobproof-go/internal/batch"
	"github.com/jobproof/jobproof-go/internal/registry"
	"github.com/jobproof/jobproof-go/internal/session"
)

func TestRootCmdRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()

	want := []string{"init", "status", "invite", "join", "leave", "accounts", "upload", "watch", "serve"}

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range want {
		assert.True(t, names[name], "missing subcommand %s", name)
	}
}

func TestCurrentSessionFollowsActiveAccount(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	reg, err := registry.Open(filepath.Join(dir, "accounts.db"), false, logger)
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, reg.Upsert(ctx, &registry.Account{
		ID: "acct-a", Email: "a@example.com", Mode: registry.ModeAdmin,
		SessionID: "sess-a", FolderID: "folder-a", PlanLimit: 3,
	}))
	require.NoError(t, reg.Upsert(ctx, &registry.Account{
		ID: "acct-b", Email: "b@example.com", Mode: registry.ModeAdmin,
		SessionID: "sess-b", FolderID: "folder-b", PlanLimit: 3,
	}))

	// The broker file holds the session account A established on this
	// install.
	sessionPath := filepath.Join(dir, "session.json")
	require.NoError(t, session.Save(sessionPath, &session.File{Session: &session.Session{
		ID:             "sess-a",
		OwnerAccountID: "acct-a",
	}}))

	a := &app{
		logger:   logger,
		registry: reg,
		broker:   session.NewBroker(nil, "client-1", sessionPath, logger),
	}

	require.NoError(t, reg.SetActive(ctx, "acct-a"))

	sess, err := currentSession(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "sess-a", sess.ID)

	// After `accounts switch` the broker file still holds A's session;
	// B's own recorded session and folder must be used instead.
	require.NoError(t, reg.SetActive(ctx, "acct-b"))

	sess, err = currentSession(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "sess-b", sess.ID)
	assert.Equal(t, "folder-b", sess.DriveRootFolderID)
}

func writeTestPhoto(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))

	return path
}

func TestCollectItemsConvention(t *testing.T) {
	path := writeTestPhoto(t, t.TempDir(), "kitchen_before_1.jpg")

	items, err := collectItems([]string{path}, "", "", "")
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "kitchen", items[0].Room)
	assert.Equal(t, batch.TypeBefore, items[0].Type)
}

func TestCollectItemsFlagOverrides(t *testing.T) {
	path := writeTestPhoto(t, t.TempDir(), "kitchen_before_1.jpg")

	items, err := collectItems([]string{path}, "bath", "after", "instagram")
	require.NoError(t, err)

	assert.Equal(t, "bath", items[0].Room)
	assert.Equal(t, batch.TypeAfter, items[0].Type)
	assert.Equal(t, "instagram", items[0].Format)
}

func TestCollectItemsNonConventionFallback(t *testing.T) {
	// Not parseable by convention, but flags make it uploadable.
	path := writeTestPhoto(t, t.TempDir(), "scan-001.tiff")

	items, err := collectItems([]string{path}, "porch", "before", "")
	require.NoError(t, err)

	assert.Equal(t, "scan-001.tiff", items[0].Filename)
	assert.Equal(t, "porch", items[0].Room)
	assert.Equal(t, batch.TypeBefore, items[0].Type)
}

func TestCollectItemsExpandsDirectories(t *testing.T) {
	dir := t.TempDir()
	writeTestPhoto(t, dir, "kitchen_before_1.jpg")
	writeTestPhoto(t, dir, "kitchen_after_1.jpg")
	writeTestPhoto(t, dir, "notes.txt")

	items, err := collectItems([]string{dir}, "", "", "")
	require.NoError(t, err)

	require.Len(t, items, 2)
}

func TestCollectItemsMissingFile(t *testing.T) {
	_, err := collectItems([]string{filepath.Join(t.TempDir(), "nope.jpg")}, "", "", "")
	assert.Error(t, err)
}

func TestWritePIDFileExcludes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	cleanup()

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadPIDFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0o644))

	_, err := readPIDFile(path)
	assert.Error(t, err)
}
