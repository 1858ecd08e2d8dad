package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jobproof/jobproof-go/internal/batch"
	"github.com/jobproof/jobproof-go/internal/watch"
)

// newWatchCmd builds `jobproof watch`: keep uploading photos dropped into
// the outbox folder until interrupted.
func newWatchCmd() *cobra.Command {
	var (
		album  string
		outbox string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the outbox folder and upload new photos",
		Long: "Watches the outbox directory and uploads photos as they settle.\n" +
			"Each flush of settled photos goes up as one batch. Filenames follow\n" +
			"the <room>_<type>[_<format>]_<seq>.<ext> convention. Stop with\n" +
			"Ctrl-C; in-flight uploads finish counting before exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(true)
			if err != nil {
				return err
			}
			defer app.Close()

			dir := outbox
			if dir == "" {
				dir = app.cfg.Outbox.Dir
			}

			if dir == "" {
				return errors.New("no outbox directory configured (set outbox.dir or --outbox)")
			}

			jobAlbum := album
			if jobAlbum == "" {
				jobAlbum = app.cfg.Outbox.Album
			}

			if jobAlbum == "" {
				return errors.New("no album configured (set outbox.album or --album)")
			}

			// One watcher per outbox at a time.
			cleanup, err := writePIDFile(filepath.Join(app.cfg.DataDir, "watch.pid"))
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := shutdownContext(cmd.Context(), app.logger)

			uctx, err := uploadContext(ctx, app)
			if err != nil {
				return err
			}

			coordinator := batch.NewCoordinator(app.client, app.client, app.logger)

			emit := func(ctx context.Context, items []batch.Item) error {
				result, upErr := coordinator.Upload(ctx, jobAlbum, items, uctx, nil, batch.Options{
					Concurrency: app.cfg.Upload.Concurrency,
					Prepare:     true,
					Location:    app.cfg.Upload.Location,
					CleanerName: app.cfg.Upload.CleanerName,
					Flat:        app.cfg.Upload.Flat,
				})
				if upErr != nil {
					return upErr
				}

				app.logger.Info("outbox batch finished",
					slog.Int("uploaded", len(result.Successful)),
					slog.Int("failed", len(result.Failed)),
				)

				for _, f := range result.Failed {
					app.logger.Warn("upload failed",
						slog.String("file", f.Item.Filename),
						slog.String("error", f.Err.Error()),
					)
				}

				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s -> album %q\n", dir, jobAlbum)

			return watch.New(dir, emit, app.logger).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&album, "album", "", "job album to upload into")
	cmd.Flags().StringVar(&outbox, "outbox", "", "directory to watch")

	return cmd
}
