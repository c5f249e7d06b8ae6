// Package commands holds the classroll CLI.
package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/config"
	"github.com/classroll/classroll-bot/pkg/logger"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	envFile string
	verbose bool

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "classroll",
	Short: "Classroll records classroom attendance over chat",
	Long: `Classroll is a conversational attendance bot. Teachers register subjects and
students, mark attendance from a chat and get per-subject reports; students
are notified of every mark and can check their own attendance.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		if cfg.App.Version == "dev" {
			cfg.App.Version = Version
		}

		opts := logger.DefaultOptions()
		opts.Level = cfg.Log.Level
		opts.Format = cfg.Log.Format
		opts.File = cfg.Log.File
		opts.MaxSizeMB = cfg.Log.MaxSizeMB
		opts.MaxBackups = cfg.Log.MaxBackups
		opts.MaxAgeDays = cfg.Log.MaxAgeDays
		opts.Development = cfg.IsDevelopment()
		if verbose {
			opts.Level = "debug"
		}
		log = logger.New(opts).With(zap.String("app", cfg.App.Name))

		log.Debug("configuration loaded",
			zap.String("version", Version),
			zap.String("commit", Commit),
			zap.String("build_date", BuildDate),
			zap.String("env", string(cfg.App.Environment)),
			zap.String("storage", cfg.Storage.Backend),
			zap.String("notify", cfg.Notify.Backend),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to read before the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, migrateCmd, reportCmd, consoleCmd, tokenCmd)
}
