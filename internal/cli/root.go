package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/app"
	"github.com/kordia/kordia-go/internal/config"
)

var (
	cfgFile      string
	modeOverride string
	jsonOut      bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kordia",
	Short: "Offline-first music client",
	Long: `Kordia searches and plays music from a Kordia host, keeps songs for
offline listening and manages playlists. On mobile the audio is cached
locally; on desktop the host keeps it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $KORDIA_HOME/settings.json)")
	rootCmd.PersistentFlags().StringVar(&modeOverride, "mode", "", "force device mode: mobile or desktop")
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output as JSON")
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openSession builds a session for one command. The caller must Close it.
func openSession(ctx context.Context, opts app.Options) (*app.Session, error) {
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	opts.ModeOverride = modeOverride

	session, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	return session, nil
}

// withSession runs fn against a short lived session
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *app.Session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			s.Logger.Warn("Failed to close session", zap.Error(cerr))
		}
	}()
	return fn(ctx, s)
}
