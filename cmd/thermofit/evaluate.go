package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"thermofit/internal/core"
	"thermofit/internal/equilibrium/regular"
	"thermofit/pkg/residualapi"
	"thermofit/pkg/thermo"
)

type evaluateFlags struct {
	database   string
	params     []string
	components []string
	families   []string
	metrics    bool
}

func (a *app) evaluateCmd(mode string) *cobra.Command {
	var f evaluateFlags
	short := "Print the log-likelihood and its gradient"
	if mode == "residuals" {
		short = "Print raw residuals and weights per residual family"
	}
	cmd := &cobra.Command{
		Use:   mode,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.evaluate(cmd, mode, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.database, "database", "", "thermodynamic database (YAML)")
	flags.StringArrayVar(&f.params, "param", nil, "parameter override NAME=VALUE; unset parameters use the database value")
	flags.StringSliceVar(&f.components, "components", nil, "active components (defaults to config, then database elements)")
	flags.StringSliceVar(&f.families, "residual", nil, "residual families to evaluate (defaults to all registered)")
	flags.BoolVar(&f.metrics, "metrics", false, "write Prometheus metrics to stderr after evaluating")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func (a *app) evaluate(cmd *cobra.Command, mode string, f evaluateFlags) error {
	ctx := cmd.Context()
	db, err := thermo.LoadFile(f.database)
	if err != nil {
		return err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open dataset store: %w", err)
	}
	defer func() { _ = store.Close() }()

	reg := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return err
	}
	components := f.components
	if len(components) == 0 {
		components = a.cfg.Components
	}
	var tp trace.TracerProvider
	if a.tp != nil {
		tp = a.tp
	}
	svc, err := core.NewService(residualapi.Config{
		Database:       db,
		Datasets:       store,
		Solver:         regular.New(db),
		Components:     components,
		SymbolsToFit:   a.cfg.Symbols,
		Weights:        a.cfg.Weights,
		Workers:        a.cfg.Workers,
		TracerProvider: tp,
	},
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(recorder),
		core.WithTracer(core.NewOTelTracer(tp)),
	)
	if err != nil {
		return err
	}
	if len(f.families) == 0 {
		err = svc.InstallAll()
	} else {
		for _, name := range f.families {
			if err = svc.Install(name); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}
	values, err := parameterValues(svc.Symbols(), db.Symbols, f.params)
	if err != nil {
		return err
	}

	if mode == "residuals" {
		err = a.printResiduals(cmd, svc, values)
	} else {
		err = a.printLikelihood(cmd, svc, values)
	}
	if err != nil {
		return err
	}
	if f.metrics {
		families, err := reg.Gather()
		if err != nil {
			return err
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(a.stderr, mf); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *app) printLikelihood(cmd *cobra.Command, svc *core.Service, values []float64) error {
	l, grad, err := svc.Likelihood(cmd.Context(), values)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "log_likelihood\t%.10g\n", l)
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAMETER\tVALUE\tGRADIENT")
	for i, name := range svc.Symbols() {
		fmt.Fprintf(tw, "%s\t%.10g\t%.10g\n", name, values[i], grad[i])
	}
	return tw.Flush()
}

func (a *app) printResiduals(cmd *cobra.Command, svc *core.Service, values []float64) error {
	sets, err := svc.Residuals(cmd.Context(), values)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESIDUAL\tINDEX\tVALUE\tWEIGHT")
	for _, set := range sets {
		for i, r := range set.Residuals {
			fmt.Fprintf(tw, "%s\t%d\t%.10g\t%.10g\n", set.Name, i, r, set.Weights[i])
		}
	}
	return tw.Flush()
}

// parameterValues orders values like symbols, starting from the database
// symbol values and applying NAME=VALUE overrides.
func parameterValues(symbols []string, defaults map[string]float64, overrides []string) ([]float64, error) {
	index := make(map[string]int, len(symbols))
	values := make([]float64, len(symbols))
	for i, name := range symbols {
		index[name] = i
		values[i] = defaults[name]
	}
	for _, kv := range overrides {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--param %q: want NAME=VALUE", kv)
		}
		name = strings.TrimSpace(name)
		i, known := index[name]
		if !known {
			return nil, fmt.Errorf("--param %q: %s is not a fitted parameter", kv, name)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("--param %q: %w", kv, err)
		}
		values[i] = v
	}
	return values, nil
}
