package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roach88/sysval/internal/appconfig"
	"github.com/roach88/sysval/internal/config"
	"github.com/roach88/sysval/internal/network"
	"github.com/roach88/sysval/internal/store"
	"github.com/roach88/sysval/internal/sysvalidate"
)

// loadConfig reads the config file, if any, and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return config.Config{}, err
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Manifest != "" {
		cfg.Manifest = o.Manifest
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the slog handler selected by cfg, writing to w.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// node is an opened database with its validation workflow wired up.
type node struct {
	cfg          config.Config
	logger       *slog.Logger
	store        *store.Store
	peers        []*store.Store
	registry     *prometheus.Registry
	workflow     *sysvalidate.Workflow
	appTrigger   *sysvalidate.Trigger
	integTrigger *sysvalidate.Trigger
}

// loadDefs loads the app manifest named by cfg. Without one, the returned
// lookup is nil and every app entry is rejected.
func loadDefs(cfg config.Config, logger *slog.Logger) (sysvalidate.EntryDefLookup, error) {
	if cfg.Manifest == "" {
		logger.Warn("no manifest configured, app entries will be rejected")
		return nil, nil
	}
	m, err := appconfig.Load(cfg.Manifest)
	if err != nil {
		return nil, err
	}
	logger.Debug("manifest loaded", "path", cfg.Manifest, "name", m.Name, "entry_defs", m.EntryDefCount())
	return m, nil
}

// openNode opens the database and peers named by cfg and builds the workflow.
// The caller must Close the node.
func openNode(cfg config.Config, defs sysvalidate.EntryDefLookup, logger *slog.Logger) (n *node, err error) {
	n = &node{
		cfg:          cfg,
		logger:       logger,
		registry:     prometheus.NewRegistry(),
		appTrigger:   sysvalidate.NewTrigger(),
		integTrigger: sysvalidate.NewTrigger(),
	}
	defer func() {
		if err != nil {
			n.Close()
			n = nil
		}
	}()

	logger.Debug("opening database", "path", cfg.Database)
	if n.store, err = store.Open(cfg.Database); err != nil {
		return n, err
	}
	for _, path := range cfg.Network.Peers {
		if _, err := os.Stat(path); err != nil {
			return n, fmt.Errorf("peer database: %w", err)
		}
		peer, err := store.Open(path)
		if err != nil {
			return n, fmt.Errorf("peer database %s: %w", path, err)
		}
		n.peers = append(n.peers, peer)
	}

	var net network.Network = network.Offline{}
	if len(n.peers) > 0 {
		net = network.WithTimeout(network.NewPeerStores(n.peers...), cfg.Network.Timeout)
		logger.Debug("querying peers", "peers", len(n.peers), "timeout", cfg.Network.Timeout)
	}

	n.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	validator := sysvalidate.NewValidator(defs,
		sysvalidate.WithLimits(cfg.Limits.MaxEntrySize, cfg.Limits.MaxTagSize),
		sysvalidate.WithAuthorKeys(sysvalidate.NewRevocationList(cfg.Revoked...)),
	)
	n.workflow = sysvalidate.NewWorkflow(n.store, validator, net,
		sysvalidate.WithMetrics(sysvalidate.NewMetrics(n.registry)),
		sysvalidate.WithLogger(logger),
		sysvalidate.WithRetryCeiling(cfg.Retry.Ceiling),
		sysvalidate.WithAppValidationTrigger(n.appTrigger),
		sysvalidate.WithIntegrationTrigger(n.integTrigger),
	)
	return n, nil
}

// Close closes the node's database and its peers.
func (n *node) Close() error {
	var errs []error
	if n.store != nil {
		errs = append(errs, n.store.Close())
	}
	for _, p := range n.peers {
		errs = append(errs, p.Close())
	}
	if err := errors.Join(errs...); err != nil {
		n.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}
