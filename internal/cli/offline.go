package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kordia/kordia-go/internal/app"
)

var offlineCmd = &cobra.Command{
	Use:   "offline",
	Short: "Manage songs kept for offline listening",
	RunE:  runOfflineList,
}

var offlineListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List offline songs",
	Args:  cobra.NoArgs,
	RunE:  runOfflineList,
}

var offlineRemoveCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Remove offline songs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOfflineRemove,
}

var offlineReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check which offline songs are really in the local cache",
	Long: `Looks up every registered offline song in the local audio cache and
reports whether its audio is resident. Nothing is downloaded or deleted.`,
	Args: cobra.NoArgs,
	RunE: runOfflineReconcile,
}

func init() {
	offlineCmd.AddCommand(offlineListCmd)
	offlineCmd.AddCommand(offlineRemoveCmd)
	offlineCmd.AddCommand(offlineReconcileCmd)
	rootCmd.AddCommand(offlineCmd)
}

func runOfflineList(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		songs, err := s.Songs(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), songs)
		}
		if len(songs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No offline songs")
			return nil
		}
		printSongs(cmd.OutOrStdout(), songs)
		return nil
	})
}

func runOfflineRemove(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		for _, id := range args {
			if err := s.Offline.Delete(ctx, id); err != nil {
				return fmt.Errorf("failed to remove %s: %w", id, err)
			}
			if !jsonOut {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			}
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"removed": args})
		}
		return nil
	})
}

func runOfflineReconcile(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		songs := s.Offline.Registry().List()
		resident := s.Reconciler.Reconcile(ctx, songs)
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), resident)
		}

		t := NewTable(cmd.OutOrStdout(), "ID", "TITLE", "CACHED")
		missing := 0
		for _, song := range songs {
			state := "yes"
			if !resident[song.ID] {
				state = "no"
				missing++
			}
			t.Row(song.ID, TruncateString(song.Title, 40), state)
		}
		t.Flush()
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d songs resident\n", len(songs)-missing, len(songs))
		return nil
	})
}
