package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jobproof/jobproof-go/internal/batch"
	"github.com/jobproof/jobproof-go/internal/registry"
	"github.com/jobproof/jobproof-go/internal/remote"
	"github.com/jobproof/jobproof-go/internal/watch"
)

// errPartialUpload is returned when some batch items failed; the command
// has already printed the per-item breakdown.
var errPartialUpload = errors.New("some photos failed to upload")

// newUploadCmd builds `jobproof upload`: push a batch of photos into a
// job album.
func newUploadCmd() *cobra.Command {
	var (
		album     string
		room      string
		photoType string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "upload --album <name> <photo>...",
		Short: "Upload photos into a job album",
		Long: "Uploads every named photo into the album, organized into\n" +
			"before/after/combined subfolders. Rooms and types are read from the\n" +
			"filename convention <room>_<type>[_<format>]_<seq>.<ext> unless\n" +
			"overridden with flags. All photos are dispatched at once unless\n" +
			"upload.concurrency bounds them.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(true)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := shutdownContext(cmd.Context(), app.logger)

			items, err := collectItems(args, room, photoType, format)
			if err != nil {
				return err
			}

			if app.cfg.Service.LegacyEndpoint != "" {
				return uploadLegacy(ctx, cmd, app, album, items)
			}

			uctx, err := uploadContext(ctx, app)
			if err != nil {
				return err
			}

			coordinator := batch.NewCoordinator(app.client, app.client, app.logger)

			result, err := coordinator.Upload(ctx, album, items, uctx, progressPrinter(cmd), batch.Options{
				Concurrency: app.cfg.Upload.Concurrency,
				Prepare:     true,
				Location:    app.cfg.Upload.Location,
				CleanerName: app.cfg.Upload.CleanerName,
				Flat:        app.cfg.Upload.Flat,
			})
			if err != nil {
				return err
			}

			printResult(cmd, result)

			if !result.FullySuccessful() {
				return errPartialUpload
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&album, "album", "", "job album name (e.g. the site address)")
	cmd.Flags().StringVar(&room, "room", "", "room label for every photo (overrides filenames)")
	cmd.Flags().StringVar(&photoType, "type", "", "photo type: before, after, or combined")
	cmd.Flags().StringVar(&format, "format", "", "rendition format (e.g. instagram)")

	_ = cmd.MarkFlagRequired("album")

	return cmd
}

// collectItems turns CLI file or directory arguments into batch items.
// Directories expand to the photo files directly inside them. Flag values
// override whatever the filename convention says.
func collectItems(paths []string, room, photoType, format string) ([]batch.Item, error) {
	expanded, err := expandDirs(paths)
	if err != nil {
		return nil, err
	}

	items := make([]batch.Item, 0, len(expanded))

	for _, path := range expanded {
		item, err := watch.ParseItem(path)
		if err != nil {
			// Not named by convention; still uploadable with flags.
			item = batch.Item{
				SourceRef: path,
				Filename:  filepath.Base(path),
				Type:      batch.TypeCombined,
			}
		}

		if room != "" {
			item.Room = room
		}

		if photoType != "" {
			item.Type = batch.NormalizeType(photoType)
		}

		if format != "" {
			item.Format = format
		}

		items = append(items, item)
	}

	return items, nil
}

func expandDirs(paths []string) ([]string, error) {
	var out []string

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		if !info.IsDir() {
			out = append(out, path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			child := filepath.Join(path, entry.Name())

			// Only convention-parseable photos from a directory; explicit
			// file arguments bypass this filter.
			if _, parseErr := watch.ParseItem(child); parseErr == nil {
				out = append(out, child)
			}
		}
	}

	return out, nil
}

// uploadContext picks the authorization mode from the active account: team
// members upload with the admin's session and their invite token, everyone
// else with their own session.
func uploadContext(ctx context.Context, app *app) (batch.Context, error) {
	account, err := app.registry.Active(ctx)
	if err != nil {
		return nil, err
	}

	if account.Mode == registry.ModeTeamMember {
		if len(account.InviteTokens) == 0 {
			return nil, errors.New("team member account has no invite token (rejoin the team)")
		}

		return batch.MemberContext{
			SessionID: account.SessionID,
			Token:     account.InviteTokens[0],
		}, nil
	}

	sess, err := currentSession(ctx, app)
	if err != nil {
		return nil, err
	}

	return batch.AdminContext{
		SessionID: sess.ID,
		FolderID:  account.FolderID,
	}, nil
}

// progressPrinter reports per-item completion on one line.
func progressPrinter(cmd *cobra.Command) batch.ProgressFunc {
	return func(completed, total int) {
		fmt.Fprintf(cmd.OutOrStdout(), "\ruploaded %d/%d", completed, total)

		if completed == total {
			fmt.Fprintln(cmd.OutOrStdout())
		}
	}
}

func printResult(cmd *cobra.Command, result *batch.Result) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "%d uploaded, %d failed\n", len(result.Successful), len(result.Failed))

	for _, f := range result.Failed {
		fmt.Fprintf(w, "  FAILED %s: %v\n", f.Item.Filename, f.Err)
	}
}

func readPhotoBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// uploadLegacy pushes items one at a time through the one-shot
// folder-creating endpoint. Used for older service deployments; a 404
// right after deploying is retried as propagation delay.
func uploadLegacy(ctx context.Context, cmd *cobra.Command, app *app, album string, items []batch.Item) error {
	account, err := app.registry.Active(ctx)
	if err != nil {
		return err
	}

	failed := 0

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}

		data, readErr := readPhotoBase64(item.SourceRef)
		if readErr != nil {
			failed++

			fmt.Fprintf(cmd.OutOrStdout(), "  FAILED %s: %v\n", item.Filename, readErr)

			continue
		}

		_, upErr := app.client.LegacyUpload(ctx, app.cfg.Service.LegacyEndpoint, &remote.LegacyUploadRequest{
			FolderID:    account.FolderID,
			Filename:    item.Filename,
			AlbumName:   album,
			Room:        item.Room,
			Type:        string(item.Type),
			Format:      item.Format,
			Location:    app.cfg.Upload.Location,
			CleanerName: app.cfg.Upload.CleanerName,
			Image:       data,
		})
		if upErr != nil {
			failed++

			fmt.Fprintf(cmd.OutOrStdout(), "  FAILED %s: %v\n", item.Filename, upErr)

			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\ruploaded %d/%d", i+1, len(items))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d uploaded, %d failed\n", len(items)-failed, failed)

	if failed > 0 {
		return errPartialUpload
	}

	return nil
}
