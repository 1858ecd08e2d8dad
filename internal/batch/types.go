// Package batch drives many independent photo uploads to completion with
// bounded concurrency, aggregate progress reporting, and graceful
// cancellation.
package batch

import "errors"

// PhotoType categorizes a job photo.
type PhotoType string

const (
	TypeBefore   PhotoType = "before"
	TypeAfter    PhotoType = "after"
	TypeCombined PhotoType = "combined"
)

// NormalizeType maps legacy category spellings onto the canonical set.
// "mix" is the historical name for combined shots.
func NormalizeType(t string) PhotoType {
	if t == "mix" {
		return TypeCombined
	}

	return PhotoType(t)
}

// Item is one photo to upload. Ephemeral: created per upload request,
// consumed once.
type Item struct {
	SourceRef string // local path of the photo payload
	Filename  string
	Room      string
	Type      PhotoType
	Format    string
}

// ItemResult is one successfully uploaded item.
type ItemResult struct {
	Item       Item
	FileID     string
	FolderPath string
}

// ItemFailure is one item the service rejected or the network lost.
type ItemFailure struct {
	Item Item
	Err  error
}

// Result partitions a finished batch. Items aborted by cancellation appear
// in neither slice. Immutable once returned.
type Result struct {
	Successful []ItemResult
	Failed     []ItemFailure
}

// FullySuccessful reports whether every counted item succeeded.
func (r *Result) FullySuccessful() bool {
	return len(r.Failed) == 0
}

// ProgressFunc is invoked after every individual item completion with the
// number of completed items so far and the batch total.
type ProgressFunc func(completed, total int)

// ErrUnknownContext means the upload context was nil or not one of the two
// authorization modes.
var ErrUnknownContext = errors.New("batch: unknown upload context")

// Context selects exactly one of the two mutually exclusive authorization
// modes for a batch. The two implementations are AdminContext and
// MemberContext.
type Context interface {
	sessionID() string
}

// AdminContext authorizes uploads with the account's own session and root
// folder (admin and individual modes).
type AdminContext struct {
	SessionID string
	FolderID  string
}

func (c AdminContext) sessionID() string { return c.SessionID }

// MemberContext authorizes uploads with an admin's session plus an invite
// token (team-member mode).
type MemberContext struct {
	SessionID string
	Token     string
}

func (c MemberContext) sessionID() string { return c.SessionID }
