package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"thermofit/internal/config"
	"thermofit/internal/core"
	"thermofit/pkg/domain"
)

type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string
	trace      bool

	cfg    config.Config
	logger *slog.Logger
	tp     *sdktrace.TracerProvider
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "thermofit",
		Short:         "Fit thermodynamic parameters to experimental activity data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.tp == nil {
				return nil
			}
			return a.tp.Shutdown(cmd.Context())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetContext(context.Background())
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	flags.BoolVar(&a.trace, "trace", false, "write OpenTelemetry spans to stderr")

	root.AddCommand(a.importCmd(), a.datasetsCmd(), a.evaluateCmd("residuals"), a.evaluateCmd("likelihood"))
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	logger, err := core.NewSlogLogger(a.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	if a.trace {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(a.stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		a.tp = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	}
	logger.DebugContext(ctx, "configuration loaded", "storage", cfg.Storage.Driver, "blob", cfg.Blob.Driver, "workers", cfg.Workers)
	return nil
}

func (a *app) openStore(ctx context.Context) (domain.DatasetStore, error) {
	return core.OpenDatasetStore(ctx, a.cfg.Storage)
}
