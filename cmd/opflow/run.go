package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/opflow/config"
	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/natsclient"
	"github.com/c360/opflow/pkg/tlsutil"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cache-loop pipeline",
		Long: `Run looks up every configured key through a caching operation. Misses
are computed by a feedback loop and answered back into the cache. With
nats.input_subject set, keys are read from NATS instead; with
nats.publisher.subject set, results are also published.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}
	cmd.Flags().Bool("report", true, "print a JSON report when the run ends")
	return cmd
}

// loadConfig merges the --config layers with the environment and the
// logging flags, then validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	layers, _ := cmd.Flags().GetStringSlice("config")
	loader := config.NewLoader()
	for _, path := range layers {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	logger := setupLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	registry := metric.NewMetricsRegistry()
	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry)
		if err := server.Start(); err != nil {
			return errors.Wrap(err, "Run", "run", "start metrics server")
		}
		logger.Info("Metrics server started", "address", server.Address())
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := server.Stop(stopCtx); err != nil {
				logger.Warn("Metrics server stop failed", "error", err)
			}
		}()
	}

	var b bridge
	if cfg.NATS.Enabled {
		client, err := connectNATS(ctx, cfg.NATS, logger, registry)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Runtime.ShutdownTimeout)
			defer closeCancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("NATS close failed", "error", err)
			}
		}()

		if cfg.NATS.InputSubject != "" {
			sub, err := client.SubscribeSync(cfg.NATS.InputSubject)
			if err != nil {
				return err
			}
			b.sub = sub
			logger.Info("Reading keys from NATS", "subject", sub.Subject())
		}
		if cfg.NATS.Publisher.Subject != "" {
			b.pub = client
		}
	}

	d, err := buildDemo(cfg, b, logger, registry)
	if err != nil {
		return err
	}

	signalCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	logger.Info("Pipeline starting", "id", d.pipeline.ID(), "operations", len(d.pipeline.Operations()))
	start := time.Now()
	runErr := d.run(ctx, signalCtx.Done(), cfg.Runtime.ShutdownTimeout)

	for _, f := range d.pipeline.Faults() {
		logger.Warn("Fault", "operation", f.Operation, "error", f.Err)
	}
	logger.Info("Pipeline finished", "duration", time.Since(start), "error", runErr)

	if show, _ := cmd.Flags().GetBool("report"); show {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(d.report()); err != nil {
			return err
		}
	}
	return runErr
}

func connectNATS(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger,
	registry *metric.MetricsRegistry,
) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait),
		natsclient.WithTimeout(cfg.ConnectTimeout),
		natsclient.WithName(cfg.Name),
		natsclient.WithRetry(cfg.Retry.ToRetryConfig()),
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	opts = append(opts, natsclient.WithTLS(tlsConfig))

	client, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 4*cfg.ConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, err
	}
	return client, nil
}
