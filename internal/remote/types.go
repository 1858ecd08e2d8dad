package remote

// Wire types for the upload service JSON contract. Request shapes are
// unexported where only this package constructs them; response data is
// normalized into exported structs at the call sites.

// AdminInfo is the display identity of the admin owning a session,
// shown to team members when they join.
type AdminInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UploadRequest is one photo upload in admin or token mode.
// Token is set only for team-member requests; the service validates the
// (session, token) pair on every call.
type UploadRequest struct {
	Token         string `json:"token,omitempty"`
	Filename      string `json:"filename"`
	ContentBase64 string `json:"contentBase64"`
	AlbumName     string `json:"albumName"`
	Room          string `json:"room,omitempty"`
	Type          string `json:"type,omitempty"`
	Format        string `json:"format,omitempty"`
	Location      string `json:"location,omitempty"`
	CleanerName   string `json:"cleanerName,omitempty"`
	Flat          bool   `json:"flat,omitempty"`
}

// UploadResult describes a stored photo.
type UploadResult struct {
	FileID     string `json:"fileId"`
	FileName   string `json:"fileName"`
	AlbumName  string `json:"albumName"`
	FolderPath string `json:"folderPath"`
	Message    string `json:"message,omitempty"`
}

type initSessionRequest struct {
	FolderID        string `json:"folderId"`
	OneTimeAuthCode string `json:"oneTimeAuthCode"`
	ClientID        string `json:"clientId"`
}

type initSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type issueTokenRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

type adminInfoResponse struct {
	AdminUserInfo AdminInfo `json:"adminUserInfo"`
}

type prepareRequest struct {
	AlbumName string `json:"albumName"`
}

type prepareResponse struct {
	AlbumFolderID string `json:"albumFolderId"`
}
