// Package cli implements the molbayes command line: training models from
// labelled JSON-lines datasets, scoring molecules, inspecting serialized
// models and comparing fingerprints.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/molbayes/internal/application/modeling"
	"github.com/turtacn/molbayes/internal/config"
	"github.com/turtacn/molbayes/internal/infrastructure/database/redis"
	"github.com/turtacn/molbayes/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molbayes/internal/infrastructure/storage/minio"
	"github.com/turtacn/molbayes/internal/interfaces/http/handlers"
	"github.com/turtacn/molbayes/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	NoColor      bool
	Timeout      time.Duration
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	Service      modeling.Service
	Metrics      prometheus.MetricsCollector
	OutputFormat string

	// Checkers probe the configured backends for "serve" readiness.
	Checkers []handlers.HealthChecker

	closers []func() error
}

// Close releases infrastructure clients in reverse order of creation.
func (c *CLIContext) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// NewRootCommand creates the root cobra command with all global flags and
// subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "molbayes",
		Short: "Laplacian-corrected Bayesian activity models over ECFP fingerprints",
		Long: "molbayes trains Bayesian activity models from labelled molecules using\n" +
			"extended-connectivity fingerprints, validates them by cross-validation,\n" +
			"and scores new molecules against the trained model.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPostRun(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: search ./, ~/.molbayes, /etc/molbayes)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.DurationVar(&opts.Timeout, "timeout", 0, "overall command timeout (0 disables)")

	cmd.AddCommand(
		NewTrainCmd(),
		NewPredictCmd(),
		NewInspectCmd(),
		NewSimilarityCmd(),
		NewModelsCmd(),
		NewServeCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	switch opts.OutputFormat {
	case "text", "json":
	default:
		return errors.InvalidParam("output must be text or json").WithDetail("output=" + opts.OutputFormat)
	}
	if opts.NoColor {
		color.NoColor = true
	}

	cfg, err := initConfig(opts)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cliCtx := &CLIContext{Config: cfg, Logger: logger, OutputFormat: opts.OutputFormat}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		cliCtx.closers = append(cliCtx.closers, func() error { cancel(); return nil })
	}

	if err := initService(ctx, cliCtx); err != nil {
		_ = cliCtx.Close()
		return err
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// persistentPostRun flushes metrics to the configured textfile and closes
// infrastructure clients.  Cobra skips it when RunE fails; Execute closes the
// context in that case.
func persistentPostRun(cmd *cobra.Command) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil
	}
	if path := cliCtx.Config.Metrics.TextfilePath; path != "" {
		if err := cliCtx.Metrics.WriteToTextfile(path); err != nil {
			cliCtx.Logger.Warn("metrics textfile not written", logging.String("path", path), logging.Err(err))
		}
	}
	return cliCtx.Close()
}

// initConfig loads configuration with priority: flags > env > file > defaults.
func initConfig(opts *RootOptions) (*config.Config, error) {
	var overrides = map[string]interface{}{}
	if opts.LogLevel != "" {
		overrides["log.level"] = opts.LogLevel
	}
	if opts.Verbose {
		overrides["log.level"] = "debug"
	}

	if opts.ConfigPath != "" {
		return config.Load(config.WithConfigPath(opts.ConfigPath), config.WithOverrides(overrides))
	}

	searchPaths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".molbayes"))
	}
	searchPaths = append(searchPaths, "/etc/molbayes")
	return config.Load(config.WithSearchPaths(searchPaths...), config.WithOverrides(overrides))
}

// initLogger creates a logger for CLI usage; output goes to stderr so that
// stdout carries only command results.
func initLogger(cfg *config.Config) (logging.Logger, error) {
	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)
	return logger.Named("molbayes"), nil
}

// initService wires the modeling service with the infrastructure enabled in
// cfg.  A configured component that cannot be reached is a startup error.
func initService(ctx context.Context, cliCtx *CLIContext) error {
	cfg, logger := cliCtx.Config, cliCtx.Logger

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:       cfg.Metrics.Namespace,
		EnableGoMetrics: cfg.Metrics.EnableGoMetrics,
	}, logger.Named("metrics"))
	if err != nil {
		return err
	}
	cliCtx.Metrics = collector

	opts := []modeling.ServiceOption{
		modeling.WithMetrics(prometheus.NewModelMetrics(collector)),
		modeling.WithParallelism(cfg.Model.Parallelism),
	}

	if cfg.Storage.Enabled {
		mc, err := minio.NewMinIOClient(ctx, &minio.MinIOConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKey,
			SecretAccessKey: cfg.Storage.SecretKey,
			UseSSL:          cfg.Storage.UseSSL,
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			Prefix:          cfg.Storage.Prefix,
			ConnectTimeout:  cfg.Storage.ConnectTimeout,
		}, logger.Named("minio"))
		if err != nil {
			return err
		}
		cliCtx.closers = append(cliCtx.closers, mc.Close)
		cliCtx.Checkers = append(cliCtx.Checkers, handlers.NewChecker("storage", func(ctx context.Context) error {
			if st := mc.HealthCheck(ctx); !st.Healthy {
				return errors.New(errors.ErrCodeStorageError, "object store unreachable").WithDetail(st.Error)
			}
			return nil
		}))
		opts = append(opts, modeling.WithStore(minio.NewModelStore(mc, logger.Named("store"))))
	}

	if cfg.Cache.Enabled {
		rc, err := redis.NewClient(ctx, &redis.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			PoolSize:     cfg.Cache.PoolSize,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
		}, logger.Named("redis"))
		if err != nil {
			return err
		}
		cliCtx.closers = append(cliCtx.closers, rc.Close)
		cliCtx.Checkers = append(cliCtx.Checkers, handlers.NewChecker("cache", rc.Ping))
		opts = append(opts, modeling.WithCache(redis.NewModelCache(rc, logger.Named("cache"),
			redis.WithPrefix(cfg.Cache.KeyPrefix),
			redis.WithTTL(cfg.Cache.TTL))))
	}

	if cfg.Events.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:          cfg.Events.Brokers,
			Acks:             cfg.Events.Acks,
			MaxRetries:       cfg.Events.MaxRetries,
			BatchTimeout:     cfg.Events.BatchTimeout,
			WriteTimeout:     cfg.Events.WriteTimeout,
			CompressionCodec: cfg.Events.Compression,
		}, logger.Named("kafka"))
		if err != nil {
			return err
		}
		events := kafka.NewModelEventPublisher(producer, cfg.Events.Topic, cfg.Events.Source, logger.Named("events"))
		cliCtx.closers = append(cliCtx.closers, events.Close)
		opts = append(opts, modeling.WithEvents(events))
	}

	cliCtx.Service = modeling.NewService(logger.Named("modeling"), opts...)
	return nil
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.InvalidState("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.InvalidState("CLIContext not found in command context")
	}
	return cliCtx, nil
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()
	executed, err := rootCmd.ExecuteC()
	if executed != nil {
		if cliCtx, ctxErr := GetCLIContext(executed); ctxErr == nil {
			_ = cliCtx.Close()
		}
	}
	if err != nil {
		PrintError(rootCmd, err)
	}
	return err
}

// tabular is implemented by results that render as a table in text mode.
type tabular interface {
	TableHeaders() []string
	TableRows() [][]string
}

// PrintResult outputs data in the format selected by --output.  Text output
// renders tabular values through tablewriter and anything else with %v.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	format := "json"
	if cliCtx, err := GetCLIContext(cmd); err == nil {
		format = cliCtx.OutputFormat
	}
	if format == "json" {
		return printJSON(cmd.OutOrStdout(), data)
	}

	if t, ok := data.(tabular); ok {
		return printTable(cmd.OutOrStdout(), t)
	}
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printTable(w io.Writer, t tabular) error {
	table := tablewriter.NewWriter(w)
	table.Header(t.TableHeaders())
	for _, row := range t.TableRows() {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
}

// PrintSuccess writes a formatted success message to stderr, keeping stdout
// for machine-readable results.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.GreenString("OK:"), msg)
}

func formatScore(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}
