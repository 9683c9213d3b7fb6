package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/dicom-tools/internal/audit"
	"github.com/ehr/dicom-tools/internal/config"
	"github.com/ehr/dicom-tools/internal/platform/db"
	"github.com/ehr/dicom-tools/internal/platform/logging"
	"github.com/ehr/dicom-tools/internal/presetstore"
	"github.com/ehr/dicom-tools/internal/report"
)

// app holds what every command shares: configuration, the logger and the
// output streams.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	closer io.Closer

	out    io.Writer
	errOut io.Writer

	envFile string
	noColor bool
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut, logger: zerolog.Nop()}
}

func (a *app) setup() error {
	cfg, err := config.LoadFrom(a.envFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger, a.closer = logging.New(logging.Options{
		Level:     cfg.Level(),
		Console:   !cfg.IsProduction(),
		File:      cfg.LogFile,
		FileMaxMB: cfg.LogFileMaxMB,
		Out:       a.errOut,
	})
	return nil
}

func (a *app) close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

func (a *app) printer() *report.Printer {
	return report.New(a.out, !a.noColor && !color.NoColor)
}

func (a *app) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

// store is the Postgres backed state used by CLI commands.
type store struct {
	pool     *pgxpool.Pool
	presets  *presetstore.Service
	recorder audit.Recorder
}

func (s *store) Close() { s.pool.Close() }

func (a *app) openStore(ctx context.Context) (*store, error) {
	pool, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	return &store{
		pool:     pool,
		presets:  presetstore.NewService(presetstore.NewRepoPG(pool), a.logger),
		recorder: audit.Multi(audit.NewLogRecorder(a.logger), audit.NewPGRecorder(pool)),
	}, nil
}

// actor names the local user in audit events.
func actor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "dicom-tools",
		Short:         "Anonymize DICOM files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file read before the process environment")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(anonymizeCmd(a))
	root.AddCommand(configCmd(a))
	root.AddCommand(presetCmd(a))
	root.AddCommand(migrateCmd(a))
	root.AddCommand(auditCmd(a))
	root.AddCommand(tokenCmd(a))
	root.AddCommand(serveCmd(a))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp(os.Stdout, os.Stderr)
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
