package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobproof/jobproof-go/internal/token"
)

// newInviteCmd builds `jobproof invite` with the issue/revoke/list
// subcommands admins use to manage team access.
func newInviteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Manage invite tokens for team members",
	}

	cmd.AddCommand(newInviteIssueCmd())
	cmd.AddCommand(newInviteRevokeCmd())
	cmd.AddCommand(newInviteListCmd())

	return cmd
}

func newInviteIssueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue",
		Short: "Issue a new invite token",
		Long: "Generates an invite token, registers it with the upload service, and\n" +
			"records it locally. Hand the printed token and your session id to the\n" +
			"team member; they run `jobproof join` with both.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(true)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, err := currentSession(cmd.Context(), app)
			if err != nil {
				return err
			}

			authority := token.NewAuthority(app.client, app.registry, app.logger)

			tok, err := authority.Issue(cmd.Context(), sess.ID)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"session_id": sess.ID,
					"token":      tok,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\nToken:   %s\n", sess.ID, tok)

			return nil
		},
	}
}

func newInviteRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke an invite token",
		Long: "Removes the token from the service's allow-list, then from the local\n" +
			"record. Revocation takes effect on the team member's next upload.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(true)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, err := currentSession(cmd.Context(), app)
			if err != nil {
				return err
			}

			authority := token.NewAuthority(app.client, app.registry, app.logger)

			if err := authority.Revoke(cmd.Context(), sess.ID, args[0]); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Token revoked.")

			return nil
		},
	}
}

func newInviteListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List issued invite tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			account, err := app.registry.Active(cmd.Context())
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(account.InviteTokens)
			}

			if len(account.InviteTokens) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No invite tokens issued.")
				return nil
			}

			for _, tok := range account.InviteTokens {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d used\n", len(account.InviteTokens), account.PlanLimit)

			return nil
		},
	}
}
