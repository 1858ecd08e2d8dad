package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jobproof/jobproof-go/internal/registry"
)

// newAccountsCmd builds `jobproof accounts` with list/add/switch/remove
// subcommands.
func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage connected accounts",
	}

	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsAddCmd())
	cmd.AddCommand(newAccountsSwitchCmd())
	cmd.AddCommand(newAccountsRemoveCmd())

	return cmd
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			accounts, err := app.registry.List(cmd.Context())
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(accounts)
			}

			if len(accounts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts. Run `jobproof init` or `jobproof accounts add`.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tMODE\tACTIVE")

			for _, a := range accounts {
				active := ""
				if a.IsActive {
					active = "*"
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.DisplayName, a.Email, a.Mode, active)
			}

			return w.Flush()
		},
	}
}

func newAccountsAddCmd() *cobra.Command {
	var (
		email string
		name  string
		admin bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add another account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			mode := registry.ModeIndividual
			if admin {
				mode = registry.ModeAdmin
			}

			account := &registry.Account{
				ID:          uuid.NewString(),
				Email:       email,
				DisplayName: name,
				PlanLimit:   app.cfg.Accounts.PlanLimit,
				Mode:        mode,
			}

			if err := app.registry.Upsert(cmd.Context(), account); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added account %s\n", account.ID)

			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&admin, "admin", false, "create as a team admin")

	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAccountsSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <id>",
		Short: "Make an account the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.registry.SetActive(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Active account: %s\n", args[0])

			return nil
		},
	}
}

func newAccountsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an account",
		Long: "Disconnects the account locally. If it was active, the first\n" +
			"remaining account is promoted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.registry.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed account %s\n", args[0])

			return nil
		},
	}
}
