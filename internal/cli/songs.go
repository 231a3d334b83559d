package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/app"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var downloadCmd = &cobra.Command{
	Use:   "download <id>...",
	Short: "Keep songs for offline listening",
	Long: `Download one or more songs by id. Songs are fetched concurrently; a
failure for one song never stops the others.

Examples:
  kordia download dQw4w9WgXcQ
  kordia download id1 id2 id3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge the host's cached stream URLs",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "maximum number of results")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		results, err := s.Catalog.Search(ctx, query, searchLimit)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), results)
		}
		songs := make([]api.Song, 0, len(results))
		for _, r := range results {
			songs = append(songs, r.ToSong())
		}
		printSongs(cmd.OutOrStdout(), songs)
		return nil
	})
}

func runDownload(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		songs := make([]api.Song, 0, len(args))
		for _, id := range args {
			songs = append(songs, songFor(ctx, s, id))
		}

		result := s.Batch.DownloadAll(ctx, songs)
		if jsonOut {
			failed := make(map[string]string, len(result.Failed))
			for id, err := range result.Failed {
				failed[id] = err.Error()
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"id":        result.ID,
				"requested": result.Requested,
				"succeeded": result.Succeeded,
				"skipped":   result.Skipped,
				"failed":    failed,
			})
		}

		out := cmd.OutOrStdout()
		for id, err := range result.Failed {
			fmt.Fprintf(out, "failed  %s: %v\n", id, err)
		}
		fmt.Fprintf(out, "Downloaded %d of %d songs\n", result.Succeeded, result.Requested)
		if result.FailedCount() > 0 {
			return fmt.Errorf("%d downloads failed", result.FailedCount())
		}
		return nil
	})
}

// songFor fills in metadata for id from a catalog search when the catalog
// knows it, so the registry shows more than a bare id.
func songFor(ctx context.Context, s *app.Session, id string) api.Song {
	if known, ok := s.Offline.Registry().Get(id); ok {
		return known
	}
	results, err := s.Catalog.Search(ctx, id, 5)
	if err == nil {
		for _, r := range results {
			if r.ID == id {
				return r.ToSong()
			}
		}
	}
	return api.Song{ID: id}
}

func runCleanup(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		if err := s.Catalog.Cleanup(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Host stream cache purged")
		return nil
	})
}
