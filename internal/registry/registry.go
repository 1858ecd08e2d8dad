// Package registry tracks connected accounts and the active-account
// pointer. It is an explicit handle passed into every operation that needs
// it — no package-level singleton — so tests can instantiate independent
// registries. State is persisted in SQLite.
package registry

import "errors"

// Mode is an account's operating mode. The three modes are mutually
// exclusive and imply different upload authorization contexts.
type Mode string

const (
	ModeIndividual Mode = "individual"
	ModeAdmin      Mode = "admin"
	ModeTeamMember Mode = "team_member"
)

// Valid reports whether m is one of the three known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeIndividual, ModeAdmin, ModeTeamMember:
		return true
	default:
		return false
	}
}

// ModeSnapshot preserves an account's identity across the destructive
// transition into team_member mode. Saved exactly once before the
// transition and consumed exactly once on restore.
type ModeSnapshot struct {
	Plan        int
	Mode        Mode
	DisplayName string
}

// Account is one connected identity. Exactly one account is active at any
// time unless the registry is empty; a plan tier flag may permit several.
// Invariant: len(InviteTokens) <= PlanLimit.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	IsActive     bool
	FolderID     string
	InviteTokens []string
	PlanLimit    int
	SessionID    string
	TeamName     string
	Mode         Mode
	Snapshot     *ModeSnapshot
}

var (
	// ErrNotFound means no account exists with the given id.
	ErrNotFound = errors.New("registry: account not found")

	// ErrNoActiveAccount means an operation that mutates the active account
	// ran against an empty or fully-inactive registry.
	ErrNoActiveAccount = errors.New("registry: no active account")

	// ErrPlanLimit means the active account already holds PlanLimit invite
	// tokens.
	ErrPlanLimit = errors.New("registry: invite token plan limit reached")

	// ErrTokenNotFound means the invite token is not on the account's list.
	ErrTokenNotFound = errors.New("registry: invite token not found")

	// ErrNoSnapshot means LeaveTeam was called without a prior JoinTeam.
	ErrNoSnapshot = errors.New("registry: no mode snapshot to restore")

	// ErrInvalidMode means an unknown mode string was supplied.
	ErrInvalidMode = errors.New("registry: invalid account mode")
)
