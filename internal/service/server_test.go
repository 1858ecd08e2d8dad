package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobproof/jobproof-go/internal/remote"
)

func newTestServer(t *testing.T) (*httptest.Server, *State, string) {
	t.Helper()

	dir := t.TempDir()

	drive, err := NewFSDrive(dir)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	state := NewState()
	resolver := NewResolver(drive, NewFolderLock(t.TempDir(), logger), logger)

	srv := httptest.NewServer(NewServer(state, resolver, drive, logger))
	t.Cleanup(srv.Close)

	return srv, state, dir
}

func newTestClient(t *testing.T, srv *httptest.Server) *remote.Client {
	t.Helper()

	return remote.NewClient(srv.URL, srv.Client(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestInitConsumesCode(t *testing.T) {
	srv, state, _ := newTestServer(t)
	state.RegisterCode("code-1", AdminIdentity{Name: "Dana", Email: "dana@example.com"})

	client := newTestClient(t, srv)
	ctx := context.Background()

	sessionID, err := client.InitSession(ctx, "root-folder", "code-1", "cli-test")
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)

	// Second exchange of the same code must fail.
	_, err = client.InitSession(ctx, "root-folder", "code-1", "cli-test")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrAuthExchange)
}

func TestTokenLifecycle(t *testing.T) {
	srv, state, _ := newTestServer(t)
	state.RegisterCode("code-1", AdminIdentity{Name: "Dana"})

	client := newTestClient(t, srv)
	ctx := context.Background()

	sessionID, err := client.InitSession(ctx, "root", "code-1", "cli")
	require.NoError(t, err)

	require.NoError(t, client.IssueToken(ctx, sessionID, "tok-abc"))

	// Token mode upload succeeds while the token is live.
	result, err := client.UploadPhoto(ctx, sessionID, &remote.UploadRequest{
		Token:         "tok-abc",
		Filename:      "kitchen.jpg",
		ContentBase64: base64.StdEncoding.EncodeToString([]byte("img")),
		AlbumName:     "123 Main St",
		Room:          "kitchen",
		Type:          "before",
	})
	require.NoError(t, err)
	assert.Equal(t, "123 Main St/before/", result.FolderPath)
	assert.Equal(t, "kitchen_kitchen.jpg", result.FileName)

	require.NoError(t, client.RevokeToken(ctx, sessionID, "tok-abc"))

	// Revocation is immediate: the very next upload is rejected.
	_, err = client.UploadPhoto(ctx, sessionID, &remote.UploadRequest{
		Token:         "tok-abc",
		Filename:      "bath.jpg",
		ContentBase64: base64.StdEncoding.EncodeToString([]byte("img")),
		AlbumName:     "123 Main St",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrTokenRejected)
}

func TestRevokeUnknownToken(t *testing.T) {
	srv, state, _ := newTestServer(t)
	state.RegisterCode("code-1", AdminIdentity{})

	client := newTestClient(t, srv)
	ctx := context.Background()

	sessionID, err := client.InitSession(ctx, "root", "code-1", "cli")
	require.NoError(t, err)

	err = client.RevokeToken(ctx, sessionID, "never-issued")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestAdminUploadWithoutToken(t *testing.T) {
	srv, state, dir := newTestServer(t)
	state.RegisterCode("code-1", AdminIdentity{})

	client := newTestClient(t, srv)
	ctx := context.Background()

	sessionID, err := client.InitSession(ctx, "root", "code-1", "cli")
	require.NoError(t, err)

	result, err := client.UploadPhoto(ctx, sessionID, &remote.UploadRequest{
		Filename:      "door.jpg",
		ContentBase64: base64.StdEncoding.EncodeToString([]byte("img")),
		AlbumName:     "Job Site",
		Type:          "after",
	})
	require.NoError(t, err)
	assert.Equal(t, "Job Site/after/", result.FolderPath)
	assert.NotEmpty(t, result.Message)

	// The photo landed in the expected folder on disk.
	_, statErr := os.Stat(dir + "/Job Site/after/door.jpg")
	require.NoError(t, statErr)
}

func TestValidateSession(t *testing.T) {
	srv, state, _ := newTestServer(t)
	state.RegisterCode("code-1", AdminIdentity{})

	client := newTestClient(t, srv)
	ctx := context.Background()

	sessionID, err := client.InitSession(ctx, "root", "code-1", "cli")
	require.NoError(t, err)

	valid, _, err := client.ValidateSession(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, msg, err := client.ValidateSession(ctx, "no-such-session")
	require.NoError(t, err)
	assert.False(t, valid)
	assert.NotEmpty(t, msg)
}

func TestAdminInfo(t *testing.T) {
	srv, state, _ := newTestServer(t)
	state.RegisterCode("code-1", AdminIdentity{Name: "Dana Ops", Email: "dana@crew.example"})

	client := newTestClient(t, srv)
	ctx := context.Background()

	sessionID, err := client.InitSession(ctx, "root", "code-1", "cli")
	require.NoError(t, err)

	info, err := client.AdminInfo(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Dana Ops", info.Name)
	assert.Equal(t, "dana@crew.example", info.Email)
}

func TestPrepareAlbum(t *testing.T) {
	srv, state, dir := newTestServer(t)
	state.RegisterCode("code-1", AdminIdentity{})

	client := newTestClient(t, srv)
	ctx := context.Background()

	sessionID, err := client.InitSession(ctx, "root", "code-1", "cli")
	require.NoError(t, err)

	folderID, err := client.PrepareAlbum(ctx, sessionID, "Spring Clean")
	require.NoError(t, err)
	assert.Equal(t, "Spring Clean", folderID)

	info, err := os.Stat(dir + "/Spring Clean")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestUploadUnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t)

	client := newTestClient(t, srv)

	_, err := client.UploadPhoto(context.Background(), "ghost", &remote.UploadRequest{
		Filename:      "x.jpg",
		ContentBase64: base64.StdEncoding.EncodeToString([]byte("img")),
		AlbumName:     "A",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestLegacyUploadEndpoint(t *testing.T) {
	srv, _, dir := newTestServer(t)

	// The one-shot endpoint carries its own storage root folder id;
	// albums must resolve under it, not under the drive root.
	require.NoError(t, os.Mkdir(dir+"/crew-storage", 0o755))

	client := newTestClient(t, srv)

	result, err := client.LegacyUpload(context.Background(), "/legacy/upload", &remote.LegacyUploadRequest{
		FolderID:  "crew-storage",
		Filename:  "hall.jpg",
		AlbumName: "44 Oak Ave",
		Room:      "hallway",
		Type:      "mix",
		Image:     "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("img")),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "44 Oak Ave/combined/", result.FolderPath)
	assert.Equal(t, "hallway_hall.jpg", result.FileName)

	_, statErr := os.Stat(dir + "/crew-storage/44 Oak Ave/combined/hallway_hall.jpg")
	require.NoError(t, statErr)
}

func TestLegacyUploadMissingFields(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, err := json.Marshal(map[string]string{"filename": "x.jpg"})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/legacy/upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.False(t, envelope.Success)
	assert.Contains(t, envelope.Message, "folderId")
	assert.Contains(t, envelope.Message, "albumName")
	assert.Contains(t, envelope.Message, "image")
}

func TestStateExchangeOnce(t *testing.T) {
	state := NewState()
	state.RegisterCode("c", AdminIdentity{Name: "A"})

	sess, err := state.Exchange("c", "folder")
	require.NoError(t, err)
	assert.Equal(t, "folder", sess.FolderID)

	_, err = state.Exchange("c", "folder")
	assert.True(t, errors.Is(err, ErrCodeInvalid))
}
