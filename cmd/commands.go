package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"landplots/internal/catalog"
	"landplots/internal/finance"
	"landplots/internal/report"
	"landplots/internal/server"
	"landplots/internal/session"
)

var (
	listenAddr   string
	selectQuery  string
	outPath      string
	asWorkbook   bool
	archiveLabel string
	archiveLimit int
	sheetRange   string
)

// serveCmd runs the JSON API for the map front end
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workspace over HTTP",
	Long: `Serve the workspace as a JSON API under /api, with Prometheus metrics
on /metrics. The listen address defaults to LISTEN_ADDR.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := listenAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}
		return server.New(ws, logger).Run(cmd.Context(), addr)
	},
}

// parcelsCmd lists parcels after loading files
var parcelsCmd = &cobra.Command{
	Use:   "parcels [file...]",
	Short: "Load files and list the parcels matching --query",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadArgs(args); err != nil {
			return err
		}
		found := ws.Search(selectQuery)
		for _, p := range found {
			fmt.Println(parcelLine(p))
		}
		fmt.Printf("%d of %d parcels\n", len(found), ws.Catalog().Len())
		return nil
	},
}

// exportCmd writes a report for the parcels matching --query
var exportCmd = &cobra.Command{
	Use:   "export [file...]",
	Short: "Load files, select parcels matching --query and write a report",
	Long: `Load the given files, put every parcel matching --query on the map
(all of them when --query is empty) and write the HTML report, or the
.xlsx workbook with --xlsx.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadArgs(args); err != nil {
			return err
		}
		n := ws.ShowMatches(selectQuery)
		if n == 0 {
			return fmt.Errorf("no parcels match %q", selectQuery)
		}
		return writeReport()
	},
}

// driveCmd groups Google Drive operations
var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Browse and load parcel files from Google Drive",
}

var driveFilesCmd = &cobra.Command{
	Use:   "files [name]",
	Short: "List parcel files whose name contains [name]",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ws.Connect(cmd.Context()); err != nil {
			return statusError(err)
		}
		if len(args) == 1 {
			if _, err := ws.RefreshFiles(cmd.Context(), args[0]); err != nil {
				return statusError(err)
			}
		}
		printFiles()
		return nil
	},
}

var driveLoadCmd = &cobra.Command{
	Use:   "load <file-id>...",
	Short: "Load Drive files and export the parcels they contain",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ws.Connect(cmd.Context()); err != nil {
			return statusError(err)
		}
		ws.Catalog().Replace(nil)
		for _, id := range args {
			loadDrive(cmd.Context(), []string{id})
		}
		return exportIfRequested()
	},
}

var driveLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the cached Google token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return ws.Disconnect(cmd.Context())
	},
}

// sheetsCmd loads one spreadsheet range
var sheetsCmd = &cobra.Command{
	Use:   "sheets <spreadsheet-id>",
	Short: "Load parcels from a Google Sheets range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ws.Connect(cmd.Context()); err != nil {
			return statusError(err)
		}
		ws.Catalog().Replace(nil)
		res, err := ws.LoadSheet(cmd.Context(), args[0], sheetRange)
		if err != nil {
			return statusError(err)
		}
		for _, p := range res.Parcels {
			fmt.Println(parcelLine(p))
		}
		for _, w := range res.Warnings {
			fmt.Println(colorRed + w + colorReset)
		}
		return exportIfRequested()
	},
}

// archiveCmd groups Oracle archive operations
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Save, list and restore parcel selections in Oracle",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if db == nil {
			return session.ErrArchiveDisabled
		}
		return nil
	},
}

var archiveSaveCmd = &cobra.Command{
	Use:   "save [file...]",
	Short: "Load files and archive the parcels matching --query",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadArgs(args); err != nil {
			return err
		}
		ws.ShowMatches(selectQuery)
		a, err := ws.Archive(cmd.Context(), archiveLabel)
		if err != nil {
			return err
		}
		fmt.Printf("Archived %d parcels as %s\n", a.ParcelCount, a.ID)
		return nil
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		archives, err := db.ListArchives(cmd.Context(), archiveLimit)
		if err != nil {
			return err
		}
		for _, a := range archives {
			fmt.Printf("%s | %s | %4d | %s\n", a.ID, a.CreatedAt.Local().Format("02.01.2006 15:04"), a.ParcelCount, a.Label)
		}
		return nil
	},
}

var archiveRestoreCmd = &cobra.Command{
	Use:   "restore <archive-id>",
	Short: "Load an archived selection and export it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parcels, err := db.LoadArchive(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(parcels) == 0 {
			return fmt.Errorf("archive %s is empty or unknown", args[0])
		}
		ws.Catalog().ClearSelection()
		for _, p := range parcels {
			ws.Catalog().AddParcel(p)
		}
		printSelection()
		return exportIfRequested()
	},
}

func registerCommands(root *cobra.Command) {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (default: LISTEN_ADDR or 127.0.0.1:8080)")

	for _, c := range []*cobra.Command{parcelsCmd, exportCmd, archiveSaveCmd} {
		c.Flags().StringVarP(&selectQuery, "query", "q", "", "Filter by cadastral number, address or purpose")
	}
	for _, c := range []*cobra.Command{exportCmd, driveLoadCmd, sheetsCmd, archiveRestoreCmd} {
		c.Flags().StringVarP(&outPath, "out", "o", "", "Report path (default: EXPORT_DIR/"+report.FileName+")")
		c.Flags().BoolVar(&asWorkbook, "xlsx", false, "Write an .xlsx workbook instead of HTML")
	}
	sheetsCmd.Flags().StringVar(&sheetRange, "range", "", "A1 range to read (default: Sheet1!A:Z)")
	archiveSaveCmd.Flags().StringVar(&archiveLabel, "label", "", "Archive label")
	archiveListCmd.Flags().IntVar(&archiveLimit, "limit", 20, "Number of archives to list")

	driveCmd.AddCommand(driveFilesCmd, driveLoadCmd, driveLogoutCmd)
	archiveCmd.AddCommand(archiveSaveCmd, archiveListCmd, archiveRestoreCmd)
	root.AddCommand(serveCmd, parcelsCmd, exportCmd, driveCmd, sheetsCmd, archiveCmd)
}

// loadArgs adds local files to the workspace. With files given, the sample
// parcels are dropped first.
func loadArgs(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	ws.Catalog().Replace(nil)
	n, err := ws.LoadLocalFiles(paths...)
	if err != nil && n == 0 {
		return statusError(err)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, colorRed+session.UserMessage(err)+colorReset)
	}
	return nil
}

func exportIfRequested() error {
	if outPath == "" && !asWorkbook {
		return nil
	}
	if ws.Catalog().Len() > 0 && len(ws.Catalog().Selected()) == 0 {
		ws.ShowMatches("")
	}
	return writeReport()
}

func writeReport() error {
	name, render := report.FileName, ws.Export
	if asWorkbook {
		name, render = report.WorkbookFileName, ws.ExportWorkbook
	}
	path := outPath
	if path == "" {
		path = filepath.Join(cfg.ExportDir, name)
	}
	if err := writeFile(path, render); err != nil {
		return err
	}
	s := catalog.Summarize(ws.Catalog().Selected())
	fmt.Printf("Saved %s: %d parcels, value %s, mean yield %s\n", path, s.Count,
		finance.FormatCurrency(s.TotalValue), finance.FormatPercentage(s.MeanProfitability))
	return nil
}

// statusError prefers the user-facing message the workspace recorded.
func statusError(err error) error {
	return errors.New(session.UserMessage(err))
}
