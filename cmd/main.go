package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"landplots/internal/catalog"
	"landplots/internal/config"
	"landplots/internal/database"
	"landplots/internal/drive"
	"landplots/internal/logging"
	"landplots/internal/session"
)

var (
	// Global flags
	verbose  bool
	envFiles []string
	noSeed   bool

	cfg    config.Config
	logger *zap.Logger
	ws     *session.Workspace
	db     *database.Database
)

const (
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
)

var rootCmd = &cobra.Command{
	Use:   "landplots",
	Short: "Land parcel workspace: load, select, price and export plots",
	Long: `landplots loads land parcels from CSV, GeoJSON, workbook and shapefile
sources (local or Google Drive / Sheets), lets you pick parcels, edit their
value and rent, and exports the selection as an HTML map report.

Run without arguments to start the interactive shell.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg = config.Load(envFiles...)
		// the shell prints its own output; keep the log quiet there
		logger, err = logging.New(verbose, cmd == cmd.Root())
		if err != nil {
			return err
		}

		conn := drive.New(cfg.Google, logger)
		opts := []session.Option{}
		if noSeed {
			opts = append(opts, session.WithCatalog(catalog.New()))
		}
		if cfg.ArchiveEnabled() {
			db, err = database.NewDatabase(cmd.Context(), cfg.DB)
			if err != nil {
				logger.Warn("archive_unavailable", zap.Error(err))
			} else {
				if err := db.EnsureSchema(cmd.Context()); err != nil {
					logger.Warn("archive_schema_failed", zap.Error(err))
				}
				opts = append(opts, session.WithArchiver(db))
			}
		}
		ws = session.New(conn, logger, opts...)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			_ = db.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		runShell(cmd.Context(), os.Stdin)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "Env files to load (default: .env, data/.env)")
	rootCmd.PersistentFlags().BoolVar(&noSeed, "no-fixtures", false, "Start with an empty catalog instead of the sample parcels")

	registerCommands(rootCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
