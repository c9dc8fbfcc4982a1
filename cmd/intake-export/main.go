package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/riwasa/ocr-poc-gentest/internal/config"
	"github.com/riwasa/ocr-poc-gentest/internal/domain/intake"
	"github.com/riwasa/ocr-poc-gentest/internal/platform/db"
	"github.com/riwasa/ocr-poc-gentest/internal/platform/reporting"
	"github.com/riwasa/ocr-poc-gentest/internal/platform/telemetry"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "intake-export",
		Short:        "Export OCR-extracted patient intake forms to a CSV report",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}
	return logger
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every stored form to a new timestamped CSV report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyExportFlags(cmd, cfg)

			logger := newLogger(cfg, os.Stdout)
			if err := cfg.Validate(); err != nil {
				logger.Error().Err(err).Msg("invalid configuration")
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runExport(ctx, cfg, logger, time.Now())
		},
	}

	cmd.Flags().String("source", "", "Record source: cosmos, postgres or sqlite (overrides SOURCE)")
	cmd.Flags().String("out-dir", "", "Directory for the timestamped report (overrides OUTPUT_DIR)")
	cmd.Flags().String("out", "", "Explicit report path (overrides OUTPUT_PATH)")
	cmd.Flags().Int("page-size", 0, "Records per page (overrides PAGE_SIZE)")
	cmd.Flags().Bool("audit-duplicates", false, "Log fields defined by more than one document of a form")
	cmd.Flags().Bool("crlf", false, "Terminate lines with CRLF")
	cmd.Flags().Bool("bom", false, "Prefix the report with a UTF-8 byte order mark")
	return cmd
}

func applyExportFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source, _ = flags.GetString("source")
	}
	if flags.Changed("out-dir") {
		cfg.OutputDir, _ = flags.GetString("out-dir")
	}
	if flags.Changed("out") {
		cfg.OutputPath, _ = flags.GetString("out")
	}
	if flags.Changed("page-size") {
		cfg.PageSize, _ = flags.GetInt("page-size")
	}
	if flags.Changed("audit-duplicates") {
		cfg.AuditDuplicateKeys, _ = flags.GetBool("audit-duplicates")
	}
	if flags.Changed("crlf") {
		cfg.OutputCRLF, _ = flags.GetBool("crlf")
	}
	if flags.Changed("bom") {
		cfg.OutputBOM, _ = flags.GetBool("bom")
	}
}

// runExport performs one export run. The report file is always closed; on
// failure it is left on disk as written so far.
func runExport(ctx context.Context, cfg *config.Config, logger zerolog.Logger, now time.Time) error {
	runID := uuid.NewString()
	logger = logger.With().Str("run_id", runID).Str("source", cfg.Source).Logger()

	metrics := telemetry.NewExportMetrics()
	metrics.SetRun(runID, cfg.Source)

	src, closeSrc, err := openSource(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open record source")
		return err
	}
	defer closeSrc()

	report, err := reporting.Create(now, reporting.Options{
		Dir:  cfg.OutputDir,
		Path: cfg.OutputPath,
		BOM:  cfg.OutputBOM,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create report")
		return err
	}
	logger.Info().Str("path", report.Path()).Msg("writing report")

	exporter := intake.NewExporter(intake.Options{
		Logger:             logger,
		LineEnding:         cfg.LineEnding(),
		AuditDuplicateKeys: cfg.AuditDuplicateKeys,
		Observer:           metrics,
	})

	sum, exportErr := exporter.Export(ctx, src, report)
	res, closeErr := report.Close()

	metrics.ObserveRun(sum.Duration, time.Now(), exportErr == nil && closeErr == nil)
	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Warn().Err(err).Msg("failed to write metrics")
		}
	}

	if exportErr != nil {
		logger.Error().Err(exportErr).
			Int("records", sum.Records).
			Str("path", res.Path).
			Msg("export failed; partial report left on disk")
		return exportErr
	}
	if closeErr != nil {
		logger.Error().Err(closeErr).Str("path", res.Path).Msg("failed to finalize report")
		return closeErr
	}

	logger.Info().
		Str("path", res.Path).
		Int("records", sum.Records).
		Int("pages", sum.Pages).
		Int("empty_records", sum.EmptyRecords).
		Int("field_tests", sum.FieldTests).
		Int("table_tests", sum.TableTests).
		Int64("bytes", res.Bytes).
		Str("checksum", res.Checksum).
		Dur("duration", sum.Duration).
		Msg("export complete")
	return nil
}

// openSource connects the configured record source. The returned cleanup
// releases its connections.
func openSource(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (intake.RecordSource, func(), error) {
	if cfg.Source == config.SourceCosmos {
		src, err := intake.NewCosmosSource(intake.CosmosConfig{
			ConnectionString: cfg.CosmosConnectionString,
			Database:         cfg.DatabaseName,
			Container:        cfg.CollectionName,
			PartitionKey:     cfg.CosmosPartitionKey,
			PageSize:         cfg.PageSize,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("database", cfg.DatabaseName).Str("collection", cfg.CollectionName).Msg("connected to cosmos db")
		return src, func() { src.Close() }, nil
	}
	return openStore(ctx, cfg, logger)
}

// openStore opens a loadable record store (postgres or sqlite).
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (intake.RecordStore, func(), error) {
	switch cfg.Source {
	case config.SourcePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
		store := intake.NewFormRecordRepoPG(pool, cfg.PageSize)
		return store, func() {
			logger.Debug().Object("pool", db.GetPoolStats(pool)).Msg("database pool")
			store.Close()
			pool.Close()
		}, nil
	case config.SourceSQLite:
		store, err := intake.OpenSQLiteStore(ctx, cfg.SQLitePath, cfg.PageSize)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite store")
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("source %q cannot be loaded; use %q or %q", cfg.Source, config.SourcePostgres, config.SourceSQLite)
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load exported form documents (JSON array or stream, - for stdin) into the postgres or sqlite source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stdout)
			if err := cfg.Validate(); err != nil {
				logger.Error().Err(err).Msg("invalid configuration")
				return err
			}

			var in io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}

			return runImport(cmd.Context(), cfg, logger, in)
		},
	}
}

func runImport(ctx context.Context, cfg *config.Config, logger zerolog.Logger, in io.Reader) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open record store")
		return err
	}
	defer closeStore()

	n, err := intake.Import(ctx, in, store)
	if err != nil {
		logger.Error().Err(err).Int("imported", n).Msg("import failed")
		return err
	}
	logger.Info().Int("imported", n).Str("source", cfg.Source).Msg("import complete")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres form_record schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, schema, logger, err := migrationPool(ctx, cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.EnsureSchema(ctx, pool, schema); err != nil {
				return err
			}

			migrator := db.NewMigrator(pool, db.Migrations(), logger)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema for migrations (defaults to DB_SCHEMA)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, schema, logger, err := migrationPool(ctx, cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, db.Migrations(), logger)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				if s.Modified {
					status = "modified"
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema for migrations (defaults to DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationPool(ctx context.Context, cmd *cobra.Command) (*pgxpool.Pool, string, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", zerolog.Nop(), err
	}
	logger := newLogger(cfg, os.Stderr)
	if cfg.DatabaseURL == "" {
		return nil, "", logger, fmt.Errorf("DATABASE_URL is required")
	}

	schema, _ := cmd.Flags().GetString("schema")
	if schema == "" {
		schema = cfg.DBSchema
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, schema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, "", logger, err
	}
	return pool, schema, logger, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
