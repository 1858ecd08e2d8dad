package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jobproof/jobproof-go/internal/registry"
	"github.com/jobproof/jobproof-go/internal/session"
)

// statusOutput is the JSON shape of `jobproof status --json`.
type statusOutput struct {
	Account      string `json:"account,omitempty"`
	Email        string `json:"email,omitempty"`
	Mode         string `json:"mode,omitempty"`
	TeamName     string `json:"team_name,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	SessionValid *bool  `json:"session_valid,omitempty"`
	InviteTokens int    `json:"invite_tokens"`
	PlanLimit    int    `json:"plan_limit"`
	WatcherPID   int    `json:"watcher_pid,omitempty"`
}

// newStatusCmd builds `jobproof status`: the active account, its mode, and
// whether its session is still live.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active account and session state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(resolvedCfg.Service.BaseURL != "")
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()

			out := statusOutput{}

			account, err := app.registry.Active(ctx)
			switch {
			case errors.Is(err, registry.ErrNoActiveAccount):
				// Fresh install; nothing else to report.
			case err != nil:
				return err
			default:
				out.Account = account.DisplayName
				out.Email = account.Email
				out.Mode = string(account.Mode)
				out.TeamName = account.TeamName
				out.InviteTokens = len(account.InviteTokens)
				out.PlanLimit = account.PlanLimit
			}

			if sess, sessErr := currentSession(ctx, app); sessErr == nil {
				out.SessionID = sess.ID

				if app.client != nil {
					valid, _, vErr := app.client.ValidateSession(ctx, sess.ID)
					if vErr == nil {
						out.SessionValid = &valid
					}
				}
			}

			if pid, pidErr := readPIDFile(filepath.Join(app.cfg.DataDir, "watch.pid")); pidErr == nil {
				out.WatcherPID = pid
			}

			if flagJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}

			printStatus(cmd, out)

			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, out statusOutput) {
	w := cmd.OutOrStdout()

	if out.Account == "" && out.Email == "" && out.SessionID == "" {
		fmt.Fprintln(w, "No account configured. Run `jobproof init` to get started.")
		return
	}

	fmt.Fprintf(w, "Account:  %s <%s>\n", out.Account, out.Email)
	fmt.Fprintf(w, "Mode:     %s\n", out.Mode)

	if out.TeamName != "" {
		fmt.Fprintf(w, "Team:     %s\n", out.TeamName)
	}

	if out.SessionID != "" {
		fmt.Fprintf(w, "Session:  %s\n", out.SessionID)

		if out.SessionValid != nil {
			verdict := "valid"
			if !*out.SessionValid {
				verdict = "INVALID — run `jobproof init` with a fresh code"
			}

			fmt.Fprintf(w, "          %s\n", verdict)
		}
	} else {
		fmt.Fprintln(w, "Session:  none")
	}

	fmt.Fprintf(w, "Invites:  %d of %d issued\n", out.InviteTokens, out.PlanLimit)

	if out.WatcherPID != 0 {
		fmt.Fprintf(w, "Watcher:  running (pid %d)\n", out.WatcherPID)
	}
}

// currentSession returns the session of the active account. The broker
// file holds whichever session was last established on this install, so
// after `accounts switch` it can belong to a different account; the active
// account's recorded session id is authoritative.
func currentSession(ctx context.Context, app *app) (*session.Session, error) {
	account, err := app.registry.Active(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := app.broker.Current()
	if err != nil {
		return nil, err
	}

	if account.SessionID != "" {
		if sess != nil && sess.ID == account.SessionID {
			return sess, nil
		}

		return &session.Session{
			ID:                account.SessionID,
			OwnerAccountID:    account.ID,
			DriveRootFolderID: account.FolderID,
		}, nil
	}

	// No session recorded on the account; the broker file only counts
	// when this account established it.
	if sess != nil && sess.OwnerAccountID == account.ID {
		return sess, nil
	}

	return nil, errors.New("no session established (run `jobproof init` first)")
}
