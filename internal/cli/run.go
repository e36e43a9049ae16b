package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/sysval/internal/sysvalidate"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Poll time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run system validation until stopped",
		Long: `Run the system validation consumer against a node database.

The consumer validates whatever is already waiting, then runs again on
every poll tick and after the retry backoff whenever ops are left waiting
on dependencies. When metrics.listen is configured, Prometheus metrics are
served at /metrics.

Example:
  sysval run --db ./node.db --manifest ./forum.cue
  sysval run --config /etc/sysval/node.toml --poll 2s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsumer(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Poll, "poll", 5*time.Second, "interval between runs when nothing signals new work (0 disables)")

	return cmd
}

func runConsumer(opts *RunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	defs, err := loadDefs(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeManifest, "failed to load manifest", err)
	}
	n, err := openNode(cfg, defs, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open node", err)
	}
	defer n.Close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Listen != "" {
		addr, err := serveMetrics(ctx, n, cfg.Metrics.Listen)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to start metrics server", err)
		}
		logger.Info("serving metrics", "addr", addr)
	}

	trigger := sysvalidate.NewTrigger()
	consumer := sysvalidate.NewConsumer(n.workflow, trigger,
		sysvalidate.WithBackoff(cfg.Retry.BackoffBase, cfg.Retry.BackoffMax),
		sysvalidate.WithConsumerLogger(logger),
	)
	go watchDownstream(ctx, logger, n)
	if opts.Poll > 0 {
		go poll(ctx, trigger, opts.Poll)
	}
	trigger.Trigger()

	logger.Info("sys validation consumer starting", "db", cfg.Database, "peers", len(n.peers))
	fmt.Fprintln(cmd.OutOrStdout(), "Validating. Press Ctrl-C to stop.")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return formatter.Fail(ExitFailure, ErrCodeRun, "consumer error", err)
	}

	logger.Info("sys validation consumer stopped")
	return nil
}

// serveMetrics serves the node's registry on addr until ctx ends and
// returns the bound address.
func serveMetrics(ctx context.Context, n *node, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return ln.Addr().String(), nil
}

// poll fires t every interval until ctx ends, so ops admitted by other
// processes are picked up.
func poll(ctx context.Context, t *sysvalidate.Trigger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Trigger()
		}
	}
}

// watchDownstream logs the signals sent to the stages after system
// validation. Those stages run elsewhere.
func watchDownstream(ctx context.Context, logger *slog.Logger, n *node) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.appTrigger.C():
			logger.Debug("ops ready for app validation")
		case <-n.integTrigger.C():
			logger.Debug("ops ready for integration")
		}
	}
}
