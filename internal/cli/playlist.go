package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/app"
)

var playlistCmd = &cobra.Command{
	Use:     "playlist",
	Aliases: []string{"pl"},
	Short:   "Manage playlists",
	RunE:    runPlaylistList,
}

var playlistListCmd = &cobra.Command{
	Use:   "ls [id]",
	Short: "List playlists, or the songs of one playlist",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlaylistList,
}

var playlistCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a playlist",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlaylistCreate,
}

var playlistRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a playlist",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlaylistRemove,
}

var playlistRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a playlist",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPlaylistRename,
}

var playlistAddCmd = &cobra.Command{
	Use:   "add <id> <song-id>",
	Short: "Add a song to a playlist",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlaylistAdd,
}

var playlistRemoveSongCmd = &cobra.Command{
	Use:   "remove <id> <song-id>",
	Short: "Remove a song from a playlist",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlaylistRemoveSong,
}

var playlistImportCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Import an external playlist",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlaylistImport,
}

func init() {
	playlistCmd.AddCommand(playlistListCmd)
	playlistCmd.AddCommand(playlistCreateCmd)
	playlistCmd.AddCommand(playlistRemoveCmd)
	playlistCmd.AddCommand(playlistRenameCmd)
	playlistCmd.AddCommand(playlistAddCmd)
	playlistCmd.AddCommand(playlistRemoveSongCmd)
	playlistCmd.AddCommand(playlistImportCmd)
	rootCmd.AddCommand(playlistCmd)
}

// withPlaylists runs fn once the playlist mirror is loaded
func withPlaylists(cmd *cobra.Command, fn func(ctx context.Context, s *app.Session) error) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		if err := s.Playlists.Refresh(ctx); err != nil {
			return err
		}
		return fn(ctx, s)
	})
}

func runPlaylistList(cmd *cobra.Command, args []string) error {
	return withPlaylists(cmd, func(ctx context.Context, s *app.Session) error {
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			p, err := s.Playlists.Get(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(out, p)
			}
			fmt.Fprintf(out, "%s (%d songs)\n", p.Name, len(p.Songs))
			printSongs(out, p.Songs)
			return nil
		}

		playlists := s.Playlists.List()
		if jsonOut {
			return printJSON(out, playlists)
		}
		t := NewTable(out, "ID", "NAME", "SONGS")
		for _, p := range playlists {
			t.Row(p.ID, TruncateString(p.Name, 40), fmt.Sprint(len(p.Songs)))
		}
		t.Flush()
		return nil
	})
}

func runPlaylistCreate(cmd *cobra.Command, args []string) error {
	return withPlaylists(cmd, func(ctx context.Context, s *app.Session) error {
		p, err := s.Playlists.Create(ctx, strings.Join(args, " "), true)
		if err != nil {
			return err
		}
		return printPlaylist(cmd, p, "Created")
	})
}

func runPlaylistRemove(cmd *cobra.Command, args []string) error {
	return withPlaylists(cmd, func(ctx context.Context, s *app.Session) error {
		if err := s.Playlists.Delete(ctx, args[0]); err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	})
}

func runPlaylistRename(cmd *cobra.Command, args []string) error {
	return withPlaylists(cmd, func(ctx context.Context, s *app.Session) error {
		if err := s.Playlists.Rename(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		return showPlaylist(cmd, s, args[0], "Renamed")
	})
}

func runPlaylistAdd(cmd *cobra.Command, args []string) error {
	return withPlaylists(cmd, func(ctx context.Context, s *app.Session) error {
		if err := s.Playlists.AddSong(ctx, args[0], songFor(ctx, s, args[1])); err != nil {
			return err
		}
		return showPlaylist(cmd, s, args[0], "Updated")
	})
}

func runPlaylistRemoveSong(cmd *cobra.Command, args []string) error {
	return withPlaylists(cmd, func(ctx context.Context, s *app.Session) error {
		if err := s.Playlists.RemoveSong(ctx, args[0], args[1]); err != nil {
			return err
		}
		return showPlaylist(cmd, s, args[0], "Updated")
	})
}

func runPlaylistImport(cmd *cobra.Command, args []string) error {
	return withPlaylists(cmd, func(ctx context.Context, s *app.Session) error {
		p, err := s.Playlists.ImportPlaylist(ctx, args[0])
		if err != nil {
			return err
		}
		return printPlaylist(cmd, p, "Imported")
	})
}

func showPlaylist(cmd *cobra.Command, s *app.Session, id, verb string) error {
	p, err := s.Playlists.Get(id)
	if err != nil {
		return err
	}
	return printPlaylist(cmd, p, verb)
}

func printPlaylist(cmd *cobra.Command, p api.Playlist, verb string) error {
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %q (%d songs)\n", verb, p.ID, p.Name, len(p.Songs))
	return nil
}
