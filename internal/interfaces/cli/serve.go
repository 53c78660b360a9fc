package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/molbayes/internal/config"
	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	apihttp "github.com/turtacn/molbayes/internal/interfaces/http"
	"github.com/turtacn/molbayes/internal/interfaces/http/handlers"
	"github.com/turtacn/molbayes/internal/interfaces/http/middleware"
	"github.com/turtacn/molbayes/pkg/errors"
)

type serveOptions struct {
	addr  string
	watch bool
}

// NewServeCmd creates the serve command, which runs the HTTP API until
// interrupted.
func NewServeCmd() *cobra.Command {
	o := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the model API over HTTP",
		Long: "Serve exposes training, prediction, similarity and the model store\n" +
			"over HTTP, with /healthz, /readyz and /metrics. It stops gracefully\n" +
			"on SIGINT or SIGTERM.",
		Example: "  molbayes serve --addr :9090\n" +
			"  molbayes serve --config molbayes.yaml --watch",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd, cliCtx, o)
		},
	}

	cmd.Flags().StringVar(&o.addr, "addr", "", "listen address (default: server.addr from config)")
	cmd.Flags().BoolVar(&o.watch, "watch", false, "reload model defaults when the --config file changes")
	return cmd
}

func modelDefaults(cfg *config.Config) (handlers.ModelDefaults, error) {
	kind, err := molecule.ParseKind(cfg.Model.Kind)
	if err != nil {
		return handlers.ModelDefaults{}, err
	}
	return handlers.ModelDefaults{
		Kind:        kind,
		Folding:     cfg.Model.Folding,
		Validation:  cfg.Model.Validation,
		Parallelism: cfg.Model.Parallelism,
	}, nil
}

func runServe(cmd *cobra.Command, cliCtx *CLIContext, o *serveOptions) error {
	cfg := cliCtx.Config
	logger := cliCtx.Logger

	defaults, err := modelDefaults(cfg)
	if err != nil {
		return err
	}
	modelHandler := handlers.NewModelHandler(cliCtx.Service, defaults, logger.Named("api"))

	if o.watch {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			return errors.InvalidParam("--watch requires --config")
		}
		err := config.Watch(path, func(next *config.Config) {
			d, err := modelDefaults(next)
			if err != nil {
				logger.Warn("reloaded config ignored", logging.Err(err))
				return
			}
			modelHandler.SetDefaults(d)
			logger.Info("model defaults reloaded",
				logging.String("kind", d.Kind.String()),
				logging.Int("folding", d.Folding),
				logging.String("validation", d.Validation))
		})
		if err != nil {
			return err
		}
	}

	router := apihttp.NewRouter(apihttp.RouterConfig{
		ModelHandler:     modelHandler,
		HealthHandler:    handlers.NewHealthHandler(Version, cliCtx.Checkers...),
		Logging:          middleware.DefaultLoggingConfig(),
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		Logger:           logger.Named("http"),
		MetricsCollector: cliCtx.Metrics,
	})

	addr := cfg.Server.Addr
	if o.addr != "" {
		addr = o.addr
	}
	srv := apihttp.NewServer(apihttp.ServerConfig{
		Addr:            addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router, logger.Named("server"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
