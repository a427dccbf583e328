package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/planfix/planfix/internal/benchmark"
	"github.com/planfix/planfix/internal/config"
	"github.com/planfix/planfix/internal/fixsource"
	"github.com/planfix/planfix/internal/observability"
	"github.com/planfix/planfix/internal/plan"
	"github.com/planfix/planfix/internal/report"
)

// newGenerateCmd creates the `generate` command: scan report + benchmark
// registry + fix data in, rendered plan text out.
func newGenerateCmd() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a remediation plan from a scan report",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so CLI values override config file and env.
			for key, flag := range map[string]string{
				"plan.name":               "plan-name",
				"plan.output":             "output",
				"fix_source.mode":         "fix-source",
				"fix_source.fixconf_path": "fixconf",
				"fix_source.explain":      "explain",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config with flag overrides: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			reportPath, _ := cmd.Flags().GetString("report")
			benchmarksPath, _ := cmd.Flags().GetString("benchmarks")

			logger.Info("Generating remediation plan",
				zap.String("report", reportPath),
				zap.String("benchmarks", benchmarksPath),
				zap.String("fix_source", cfg.FixSource.Mode),
				zap.String("plan_name", cfg.Plan.Name),
			)

			// The inputs are independent files; load them concurrently.
			var (
				rep     *report.Report
				benches []*benchmark.Benchmark
			)
			var g errgroup.Group
			g.Go(func() error {
				var err error
				rep, err = report.Load(reportPath)
				return err
			})
			g.Go(func() error {
				var err error
				benches, err = report.LoadBenchmarks(benchmarksPath)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			builder := plan.NewBuilder(cfg.Plan.Name,
				plan.WithLogger(logger),
				plan.WithVersion(Version),
			)
			for _, b := range benches {
				builder.AddBenchmark(b)
			}
			if err := rep.Apply(builder); err != nil {
				return err
			}

			provider, cleanup, err := newFixProvider(ctx, &cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			text, err := builder.Produce(ctx, provider)
			if err != nil {
				return fmt.Errorf("plan generation failed: %w", err)
			}

			return writePlan(cmd, cfg.Plan.Output, text, logger)
		},
	}

	generateCmd.Flags().StringP("report", "r", "", "Path to the scan report JSON file (required)")
	generateCmd.Flags().StringP("benchmarks", "b", "", "Path to the benchmark registry YAML file (required)")
	generateCmd.Flags().String("plan-name", "", "Name of the generated plan (overrides config/env)")
	generateCmd.Flags().StringP("output", "o", "", "Output file path; 'stdout' or empty writes to stdout")
	generateCmd.Flags().String("fix-source", "", "Fix lookup backend: static, postgres, http or null")
	generateCmd.Flags().String("fixconf", "", "Path to fixconf.yaml for the static backend")
	generateCmd.Flags().Bool("explain", false, "Log fix lookup explanations at debug level")

	_ = generateCmd.MarkFlagRequired("report")
	_ = generateCmd.MarkFlagRequired("benchmarks")

	return generateCmd
}

// newFixProvider builds the configured fix lookup backend. The returned
// cleanup releases backend resources and is always safe to call.
func newFixProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (fixsource.Provider, func(), error) {
	nop := func() {}

	switch cfg.FixSource.Mode {
	case "null":
		return fixsource.Null{}, nop, nil

	case "static":
		conf, err := fixsource.LoadFixconf(cfg.FixSource.FixconfPath)
		if err != nil {
			return nil, nop, err
		}
		var sink fixsource.Sink
		if cfg.FixSource.Explain {
			sink = fixsource.NewZapSink(logger)
		}
		return fixsource.NewStatic(conf, sink), nop, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.FixSource.DatabaseURL)
		if err != nil {
			return nil, nop, fmt.Errorf("failed to connect to database: %w", err)
		}
		src, err := fixsource.NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nop, err
		}
		return src, pool.Close, nil

	case "http":
		src := fixsource.NewHTTPLookup(
			cfg.FixSource.LookupURL,
			cfg.FixSource.LookupTimeout,
			cfg.FixSource.LookupRateLimit,
			logger,
		)
		return src, nop, nil

	default:
		// Validate catches this earlier; kept as a safety net.
		return nil, nop, fmt.Errorf("unknown fix_source.mode %q", cfg.FixSource.Mode)
	}
}

// writePlan sends the rendered plan to the configured destination.
func writePlan(cmd *cobra.Command, output, text string, logger *zap.Logger) error {
	if output == "" || output == "stdout" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	}

	if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write plan to %s: %w", output, err)
	}
	logger.Info("Plan written", zap.String("path", output))
	return nil
}
