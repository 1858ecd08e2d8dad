package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobproof/jobproof-go/internal/service"
)

// serveReadHeaderTimeout bounds slow-header clients.
const serveReadHeaderTimeout = 10 * time.Second

// newServeCmd builds `jobproof serve`: run the reference upload service
// against a local directory. Useful for trying the full workflow without
// a deployed service, and as the test double in integration setups.
func newServeCmd() *cobra.Command {
	var (
		addr       string
		root       string
		code       string
		adminName  string
		adminEmail string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference upload service locally",
		Long: "Serves the upload API backed by a local directory. The --code flag\n" +
			"registers a one-time authorization code; point `jobproof init` at\n" +
			"this server and exchange it.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			drive, err := service.NewFSDrive(root)
			if err != nil {
				return err
			}

			state := service.NewState()
			if code != "" {
				state.RegisterCode(code, service.AdminIdentity{Name: adminName, Email: adminEmail})
				logger.Info("registered one-time authorization code")
			}

			resolver := service.NewResolver(drive, service.NewFolderLock(root, logger), logger)

			srv := &http.Server{
				Addr:              addr,
				Handler:           service.NewServer(state, resolver, drive, logger),
				ReadHeaderTimeout: serveReadHeaderTimeout,
			}

			ctx := shutdownContext(cmd.Context(), logger)

			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s, storing under %s\n", addr, root)

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8720", "listen address")
	cmd.Flags().StringVar(&root, "root", ".", "directory to store albums under")
	cmd.Flags().StringVar(&code, "code", "", "one-time authorization code to accept")
	cmd.Flags().StringVar(&adminName, "admin-name", "", "admin display name shown to joining members")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "admin email shown to joining members")

	return cmd
}
