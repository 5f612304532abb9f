package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"alloctrack/internal/cli"
	"alloctrack/internal/config"
	"alloctrack/internal/log"
	"alloctrack/internal/report"
	"alloctrack/internal/schema"
	gsheet "alloctrack/internal/sheets/google"
	"alloctrack/internal/sheets/memory"
	"alloctrack/internal/storage"
)

// session is the per-invocation state shared by subcommands.
type session struct {
	cfg    *config.Config
	logger *log.Logger
	store  *storage.Store
	app    *cli.App
}

// rootCommand builds the allocctl command tree. getenv is only used for flag
// defaults so tests can run without touching the process environment.
func rootCommand(getenv func(string) string) *cobra.Command {
	var (
		snapshot string
		logLevel string
		s        session
	)

	root := &cobra.Command{
		Use:           "allocctl",
		Short:         "Operate the allocation tracker snapshot from the command line",
		Long:          "allocctl imports spreadsheets, prints or mails the summary report and inspects the snapshot.\nDo not run it against a snapshot the HTTP service is serving.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&snapshot, "snapshot", getenv("SNAPSHOT_PATH"), "snapshot file (defaults to SNAPSHOT_PATH)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if snapshot != "" {
			cfg.SnapshotPath = snapshot
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		lc := log.DefaultConfig()
		lc.Level = log.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
		lc.Component = log.ComponentCLI
		lc.Output = cmd.ErrOrStderr()
		s.logger = log.New(lc)
		s.cfg = cfg

		store, err := storage.Open(cmd.Context(), cfg.SnapshotPath)
		if err != nil {
			return err
		}
		s.store = store

		mailer, err := cli.NewMailer(cfg, s.logger)
		if err != nil {
			return err
		}
		s.app = cli.NewApp(cfg, store, mailer, nil, nil, s.logger)
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if s.store != nil {
			return s.store.Close()
		}
		return nil
	}

	root.AddCommand(
		importCommand(&s),
		importSheetCommand(&s),
		summaryCommand(&s),
		sendCommand(&s),
		clearCommand(&s),
		statsCommand(&s),
	)
	return root
}

func familyFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "family", "", "record family (allocation or nbl)")
	_ = cmd.MarkFlagRequired("family")
}

func importCommand(s *session) *cobra.Command {
	var family, file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace a family table with the rows of a CSV or JSON file",
		Example: `  allocctl import --family allocation --file export.csv
  allocctl import --family nbl --file nbl.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := schema.Parse(family)
			if err != nil {
				return err
			}
			src, err := memory.FromFile(file)
			if err != nil {
				return err
			}
			res, err := s.app.Uploads.Import(cmd.Context(), f, src)
			if err != nil {
				return err
			}
			return printUpload(cmd.OutOrStdout(), res.InsertedCount, res.TotalReceived, res.IgnoredHeaders)
		},
	}
	familyFlag(cmd, &family)
	cmd.Flags().StringVar(&file, "file", "", "path to a .csv or .json file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func importSheetCommand(s *session) *cobra.Command {
	var family, rng string
	cmd := &cobra.Command{
		Use:   "import-sheet",
		Short: "Replace a family table with the rows of the configured Google Sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := schema.Parse(family)
			if err != nil {
				return err
			}
			if !s.cfg.SheetsEnabled() {
				return fmt.Errorf("GOOGLE_SPREADSHEET_ID is not set")
			}
			client, err := gsheet.NewFromEnv(cmd.Context(), s.logger)
			if err != nil {
				return err
			}
			res, err := s.app.Uploads.Import(cmd.Context(), f, client.WithRange(rng))
			if err != nil {
				return err
			}
			return printUpload(cmd.OutOrStdout(), res.InsertedCount, res.TotalReceived, res.IgnoredHeaders)
		},
	}
	familyFlag(cmd, &family)
	cmd.Flags().StringVar(&rng, "range", "", "A1 range overriding GOOGLE_SHEET_RANGE")
	return cmd
}

func summaryCommand(s *session) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the allocation summary report",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := s.app.Analytics.Summary(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "text":
				_, err = io.WriteString(out, report.RenderText(doc))
			case "html":
				var r report.Rendered
				if r, err = report.Render(doc); err == nil {
					_, err = io.WriteString(out, r.HTML)
				}
			case "json":
				err = writeJSON(out, doc)
			default:
				err = fmt.Errorf("unknown format %q: use text, html or json", format)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, html or json")
	return cmd
}

func sendCommand(s *session) *cobra.Command {
	var to []string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Mail the summary report (defaults to MAIL_TO)",
		RunE: func(cmd *cobra.Command, args []string) error {
			receipt, err := s.app.Analytics.SendSummary(cmd.Context(), to)
			if werr := writeJSON(cmd.OutOrStdout(), receipt); werr != nil {
				return werr
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient addresses, comma separated or repeated")
	return cmd
}

func clearCommand(s *session) *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record of a family",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := schema.Parse(family)
			if err != nil {
				return err
			}
			n, err := s.app.Uploads.Clear(cmd.Context(), f)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows from %s\n", n, f)
			return err
		},
	}
	familyFlag(cmd, &family)
	return cmd
}

func statsCommand(s *session) *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the dashboard counts of a family",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := schema.Parse(family)
			if err != nil {
				return err
			}
			return printStats(cmd.Context(), cmd.OutOrStdout(), s, f)
		},
	}
	familyFlag(cmd, &family)
	return cmd
}

func printStats(ctx context.Context, out io.Writer, s *session, f schema.Family) error {
	stats, err := s.app.Analytics.Dashboard(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d records\n", f, stats.TotalRecords)
	if stats.LastUpload != nil {
		fmt.Fprintf(out, "last upload: %s at %s\n", stats.LastUpload.FileName, stats.LastUpload.Timestamp.Format("2006-01-02 15:04:05"))
	}
	labels := make([]string, 0, len(stats.CategoryStats))
	for label := range stats.CategoryStats {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(out, "  %s: %d\n", label, stats.CategoryStats[label])
	}
	return nil
}

func printUpload(out io.Writer, inserted, total int, ignored []string) error {
	_, err := fmt.Fprintf(out, "inserted %d of %d rows\n", inserted, total)
	if err == nil && len(ignored) > 0 {
		_, err = fmt.Fprintf(out, "ignored columns: %v\n", ignored)
	}
	return err
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
