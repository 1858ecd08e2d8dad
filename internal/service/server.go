package service

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Server is the reference upload service: session exchange, invite token
// allow-lists, album folder preparation and photo storage behind one HTTP
// surface. Handlers hold no state of their own; everything authoritative
// lives in State and behind the Drive.
type Server struct {
	state    *State
	resolver *Resolver
	drive    Drive
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewServer wires the handlers onto a fresh mux.
func NewServer(state *State, resolver *Resolver, drive Drive, logger *slog.Logger) *Server {
	s := &Server{
		state:    state,
		resolver: resolver,
		drive:    drive,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /admin/init", s.handleInit)
	s.mux.HandleFunc("POST /admin/{sessionID}/tokens", s.handleIssueToken)
	s.mux.HandleFunc("DELETE /admin/{sessionID}/tokens/{token}", s.handleRevokeToken)
	s.mux.HandleFunc("GET /admin/{sessionID}/validate", s.handleValidate)
	s.mux.HandleFunc("GET /admin/{sessionID}", s.handleAdminInfo)
	s.mux.HandleFunc("POST /prepare/{sessionID}", s.handlePrepare)
	s.mux.HandleFunc("POST /upload/{sessionID}", s.handleUpload)
	s.mux.HandleFunc("POST /legacy/upload", s.handleLegacyUpload)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type initRequest struct {
	FolderID        string `json:"folderId"`
	OneTimeAuthCode string `json:"oneTimeAuthCode"`
	ClientID        string `json:"clientId"`
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.FolderID == "" || req.OneTimeAuthCode == "" {
		writeError(w, http.StatusBadRequest, "folderId and oneTimeAuthCode are required")
		return
	}

	sess, err := s.state.Exchange(req.OneTimeAuthCode, req.FolderID)
	if err != nil {
		// A consumed or unknown code is an authorization failure, not a
		// bad request: the caller's input was well-formed.
		writeError(w, http.StatusUnauthorized, "invalid or expired authorization code")
		return
	}

	s.logger.Info("session established",
		slog.String("session_id", sess.ID),
		slog.String("folder_id", sess.FolderID),
		slog.String("client_id", req.ClientID),
	)

	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sess.ID})
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.state.AddToken(sessionID, req.Token); err != nil {
		s.writeStateError(w, err)
		return
	}

	s.logger.Info("invite token registered", slog.String("session_id", sessionID))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	token := r.PathValue("token")

	if err := s.state.RemoveToken(sessionID, token); err != nil {
		s.writeStateError(w, err)
		return
	}

	s.logger.Info("invite token revoked", slog.String("session_id", sessionID))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	_, err := s.state.Get(r.PathValue("sessionID"))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":   false,
			"message": "session not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) handleAdminInfo(w http.ResponseWriter, r *http.Request) {
	sess, err := s.state.Get(r.PathValue("sessionID"))
	if err != nil {
		s.writeStateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"adminUserInfo": map[string]string{
			"name":  sess.Admin.Name,
			"email": sess.Admin.Email,
		},
	})
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	sess, err := s.state.Get(r.PathValue("sessionID"))
	if err != nil {
		s.writeStateError(w, err)
		return
	}

	var req struct {
		AlbumName string `json:"albumName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AlbumName == "" {
		writeError(w, http.StatusBadRequest, "albumName is required")
		return
	}

	folderID, err := s.resolver.Prepare(r.Context(), req.AlbumName)
	if err != nil {
		s.logger.Error("album preparation failed",
			slog.String("session_id", sess.ID),
			slog.String("album", req.AlbumName),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "album preparation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"albumFolderId": folderID})
}

type uploadRequest struct {
	Token         string `json:"token"`
	Filename      string `json:"filename"`
	ContentBase64 string `json:"contentBase64"`
	AlbumName     string `json:"albumName"`
	Room          string `json:"room"`
	Type          string `json:"type"`
	Format        string `json:"format"`
	Location      string `json:"location"`
	CleanerName   string `json:"cleanerName"`
	Flat          bool   `json:"flat"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	sess, err := s.state.Get(sessionID)
	if err != nil {
		s.writeStateError(w, err)
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.Filename == "" || req.AlbumName == "" || req.ContentBase64 == "" {
		writeError(w, http.StatusBadRequest, "filename, albumName, and contentBase64 are required")
		return
	}

	// Team-member requests carry an invite token; each one is checked
	// against the allow-list so revocation takes effect immediately.
	if req.Token != "" {
		if err := s.state.ValidateToken(sessionID, req.Token); err != nil {
			writeError(w, http.StatusUnauthorized, "invite token not recognized")
			return
		}
	}

	data, err := decodeImage(req.ContentBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "contentBase64 is not valid base64")
		return
	}

	category := ""
	if !req.Flat {
		category = CategoryFor(req.Type, req.Format)
	}

	folderID, err := s.resolver.Resolve(r.Context(), req.AlbumName, category)
	if err != nil {
		s.logger.Error("folder resolution failed",
			slog.String("session_id", sess.ID),
			slog.String("album", req.AlbumName),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "folder resolution failed")
		return
	}

	name := storedFilename(req.Room, req.Filename)

	fileID, err := s.drive.PutFile(r.Context(), folderID, name, data)
	if err != nil {
		s.logger.Error("file store failed",
			slog.String("session_id", sess.ID),
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "file store failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"fileId":     fileID,
		"fileName":   name,
		"albumName":  SanitizeName(req.AlbumName),
		"folderPath": folderPath(req.AlbumName, category),
		"message":    "photo uploaded",
	})
}

type legacyRequest struct {
	FolderID    string `json:"folderId"`
	Filename    string `json:"filename"`
	AlbumName   string `json:"albumName"`
	Room        string `json:"room"`
	Type        string `json:"type"`
	Format      string `json:"format"`
	Location    string `json:"location"`
	CleanerName string `json:"cleanerName"`
	Image       string `json:"image"`
}

// handleLegacyUpload is the one-shot endpoint: no session, the storage
// root comes in the request. Responses always use the success envelope,
// including on failure, because existing callers parse that shape.
func (s *Server) handleLegacyUpload(w http.ResponseWriter, r *http.Request) {
	var req legacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLegacyError(w, http.StatusBadRequest, "invalid request", "request body is not valid JSON")
		return
	}

	var missing []string
	for _, f := range []struct{ name, val string }{
		{"folderId", req.FolderID},
		{"filename", req.Filename},
		{"albumName", req.AlbumName},
		{"image", req.Image},
	} {
		if f.val == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		writeLegacyError(w, http.StatusBadRequest, "missing required fields",
			"required: "+strings.Join(missing, ", "))
		return
	}

	data, err := decodeImage(req.Image)
	if err != nil {
		writeLegacyError(w, http.StatusBadRequest, "invalid image", "image is not valid base64")
		return
	}

	category := CategoryFor(req.Type, req.Format)

	folderID, err := s.resolver.ResolveUnder(r.Context(), req.FolderID, req.AlbumName, category)
	if err != nil {
		s.logger.Error("legacy folder resolution failed",
			slog.String("album", req.AlbumName),
			slog.String("error", err.Error()),
		)
		writeLegacyError(w, http.StatusInternalServerError, "folder resolution failed", err.Error())
		return
	}

	name := storedFilename(req.Room, req.Filename)

	fileID, err := s.drive.PutFile(r.Context(), folderID, name, data)
	if err != nil {
		writeLegacyError(w, http.StatusInternalServerError, "upload failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"fileId":      fileID,
		"fileName":    name,
		"albumName":   SanitizeName(req.AlbumName),
		"room":        req.Room,
		"type":        req.Type,
		"format":      req.Format,
		"location":    req.Location,
		"cleanerName": req.CleanerName,
		"folderPath":  folderPath(req.AlbumName, category),
		"message":     "photo uploaded",
	})
}

// decodeImage accepts plain base64 or a data URL ("data:image/...;base64,").
func decodeImage(s string) ([]byte, error) {
	if idx := strings.Index(s, ";base64,"); idx >= 0 && strings.HasPrefix(s, "data:") {
		s = s[idx+len(";base64,"):]
	}

	return base64.StdEncoding.DecodeString(s)
}

// storedFilename prefixes the room when present so flat listings still
// group by room.
func storedFilename(room, filename string) string {
	name := SanitizeName(filename)
	if room != "" {
		name = SanitizeName(room) + "_" + name
	}

	return name
}

// folderPath renders the human-readable stored path with a trailing slash,
// mirroring what the resolver created.
func folderPath(albumName, category string) string {
	p := SanitizeName(albumName) + "/"
	if category != "" {
		p += category + "/"
	}

	return p
}

func (s *Server) writeStateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionUnknown):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, ErrTokenUnknown):
		writeError(w, http.StatusNotFound, "token not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// Encode errors at this point mean the client went away; the status
	// line already shipped.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeLegacyError(w http.ResponseWriter, status int, errMsg, detail string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   errMsg,
		"message": detail,
	})
}
