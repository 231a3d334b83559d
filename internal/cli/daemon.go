package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/app"
	"github.com/kordia/kordia-go/internal/download"
	"github.com/kordia/kordia-go/internal/monitoring"
	"github.com/kordia/kordia-go/internal/server"
)

var (
	daemonListen     string
	daemonNoPlayback bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mode, cache usage and host reachability",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the player with its local control API",
	Long: `Starts a long lived session: playback through mpv, periodic playlist
refresh and the control API on server.listen_addr. Stops on SIGINT or
SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonListen, "listen", "", "control API address (default: server.listen_addr)")
	daemonCmd.Flags().BoolVar(&daemonNoPlayback, "no-playback", false, "run without a media output")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		// Reach the host once so the report says whether it answers.
		if err := s.Playlists.Refresh(ctx); err != nil {
			s.Logger.Debug("Host refresh failed", zap.Error(err))
		}
		_, _ = s.Songs(ctx)

		report := s.Health.Check(s.Stats(ctx))
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), report)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Status:     %s\n", report.Status)
		fmt.Fprintf(out, "Mode:       %s\n", report.Mode)
		fmt.Fprintf(out, "Host:       %s\n", s.Catalog.BaseURL())
		fmt.Fprintf(out, "Offline:    %d songs\n", report.RegistrySongs)
		fmt.Fprintf(out, "Cache:      %d entries, %s\n", report.CacheEntries, download.FormatBytes(report.CacheBytes))
		t := NewTable(out, "CHECK", "STATUS", "DETAIL")
		for _, name := range []string{"database", "cache", "host"} {
			if c, ok := report.Checks[name]; ok {
				t.Row(name, c.Status, c.Message)
			}
		}
		t.Flush()
		if report.Status == monitoring.HealthStatusUnhealthy {
			return fmt.Errorf("unhealthy")
		}
		return nil
	})
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, app.Options{Playback: !daemonNoPlayback})
	if err != nil {
		return err
	}
	defer s.Close()

	cfg.WatchChanges(func() {
		s.Logger.Info("Configuration file changed; device mode stays fixed until restart",
			zap.String("mode", string(s.Mode)))
	})

	s.Start(ctx)

	addr := daemonListen
	if addr == "" {
		addr = cfg.Server.ListenAddr
	}
	return server.New(s, s.Logger.Named("http")).ListenAndServe(ctx, addr)
}
