package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jobproof/jobproof-go/internal/registry"
)

// newInitCmd builds `jobproof init`: exchange a one-time authorization
// code for a durable session bound to a storage folder, creating the local
// account if needed.
func newInitCmd() *cobra.Command {
	var (
		folderID string
		code     string
		email    string
		name     string
		admin    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Connect this install to the upload service",
		Long: "Exchanges a one-time authorization code for a durable session bound\n" +
			"to your cloud storage folder. The code is consumed on first use;\n" +
			"re-running init with an established session is a no-op.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(true)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()

			account, err := ensureAccount(ctx, app, email, name, admin)
			if err != nil {
				return err
			}

			sess, err := app.broker.Initialize(ctx, folderID, code, account.ID)
			if err != nil {
				return err
			}

			if err := app.registry.SetSessionID(ctx, sess.ID); err != nil {
				return err
			}

			if folderID != "" {
				if err := app.registry.SaveFolder(ctx, folderID); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Session established: %s\n", sess.ID)

			return nil
		},
	}

	cmd.Flags().StringVar(&folderID, "folder", "", "cloud storage folder id to bind the session to")
	cmd.Flags().StringVar(&code, "code", "", "one-time authorization code")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "account display name")
	cmd.Flags().BoolVar(&admin, "admin", false, "set up as a team admin able to issue invite tokens")

	_ = cmd.MarkFlagRequired("folder")

	return cmd
}

// ensureAccount returns the active account, creating one when the registry
// is empty. The first account automatically becomes active.
func ensureAccount(ctx context.Context, app *app, email, name string, admin bool) (*registry.Account, error) {
	account, err := app.registry.Active(ctx)
	if err == nil {
		return account, nil
	}

	mode := registry.ModeIndividual
	if admin {
		mode = registry.ModeAdmin
	}

	account = &registry.Account{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: name,
		PlanLimit:   app.cfg.Accounts.PlanLimit,
		Mode:        mode,
	}

	if err := app.registry.Upsert(ctx, account); err != nil {
		return nil, err
	}

	return app.registry.Get(ctx, account.ID)
}
