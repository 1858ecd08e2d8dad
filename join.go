package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// newJoinCmd builds `jobproof join`: switch the active account into
// team-member mode using an admin's session id and invite token.
func newJoinCmd() *cobra.Command {
	var (
		sessionID string
		inviteTok string
	)

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a team with an invite token",
		Long: "Switches the active account into team-member mode. Uploads go into\n" +
			"the admin's storage using their session and your invite token. Your\n" +
			"own plan and mode are preserved and restored by `jobproof leave`.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(true)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()

			// Fetch the admin's display identity so the local account can
			// show whose team it uploads into. Non-fatal: a join against a
			// service version without the info endpoint still works.
			teamName := ""

			if info, infoErr := app.client.AdminInfo(ctx, sessionID); infoErr == nil {
				teamName = info.Name
			} else {
				app.logger.Warn("could not fetch admin identity",
					slog.String("error", infoErr.Error()),
				)
			}

			if err := app.registry.JoinTeam(ctx, sessionID, inviteTok, teamName); err != nil {
				return err
			}

			if teamName != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Joined %s's team.\n", teamName)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Joined team.")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "admin's session id")
	cmd.Flags().StringVar(&inviteTok, "token", "", "invite token issued by the admin")

	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

// newLeaveCmd builds `jobproof leave`: restore the account to its
// pre-join identity.
func newLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave the current team",
		Long: "Restores the plan, mode, and display name the account had before\n" +
			"joining. The invite token is discarded locally; ask the admin to\n" +
			"revoke it as well.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.registry.LeaveTeam(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Left team; previous identity restored.")

			return nil
		},
	}
}
