package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alucardeht/memvault/internal/config"
	"github.com/alucardeht/memvault/internal/daemon"
	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/logger"
	"github.com/alucardeht/memvault/internal/memu"
	"github.com/alucardeht/memvault/internal/rewrite"
	"github.com/alucardeht/memvault/internal/storage"
	"github.com/alucardeht/memvault/internal/tools"
	"github.com/alucardeht/memvault/internal/tools/records"
	"github.com/alucardeht/memvault/internal/vault"
	"github.com/alucardeht/memvault/internal/watcher"
)

// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
var Version = "0.0.0-dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "memvault-daemon",
	Short:         "Serve the record vault over a unix socket",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(configPath)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the YAML config file")
}

func defaultConfigPath() string {
	if p := os.Getenv("MEMVAULT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(config.Default().BaseDir, "config.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	log := logger.ForComponent("main")

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to ensure directories: %w", err)
	}

	lifecycle := daemon.NewLifecycleManager(cfg.BaseDir, cfg.SocketPath)
	if err := lifecycle.Start(); err != nil {
		if pid := lifecycle.Running(); pid != 0 {
			return fmt.Errorf("%w (pid %d)", err, pid)
		}
		return err
	}
	defer lifecycle.Cleanup()

	store, err := index.NewStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer store.Close()

	scenarios, err := config.LoadScenarios(cfg.Scenarios)
	if err != nil {
		log.Warn("scenario config unusable, using defaults", "path", cfg.Scenarios, "error", err)
		scenarios = config.EmptyScenarios()
	}

	gateway := memu.NewClient(memu.ClientConfig{
		APIKey:         cfg.Memu.APIKey,
		BaseURL:        cfg.Memu.BaseURL,
		RequestTimeout: cfg.Memu.RequestTimeout,
		RateLimit:      cfg.Memu.RateLimit,
	})
	if !gateway.Enabled() {
		log.Warn("memory gateway disabled: no api key configured")
	}

	resolver := storage.NewResolver(cfg.DefaultStore)
	opts := vault.Options{
		StorageRoot:     cfg.StorageDir,
		Resolver:        resolver,
		Scenarios:       scenarios,
		PollInterval:    cfg.Memu.PollInterval,
		MemorizeTimeout: cfg.Memu.MemorizeTimeout,
		WaitOnMemorize:  cfg.Memu.WaitOnUpload,
	}
	if cfg.Rewrite.Enabled {
		rw, err := rewrite.NewChatRewriter(rewrite.Config{
			APIKey:  cfg.Rewrite.APIKey,
			BaseURL: cfg.Rewrite.BaseURL,
			Model:   cfg.Rewrite.Model,
			Timeout: cfg.Rewrite.Timeout,
		})
		if err != nil {
			log.Warn("query rewrite disabled", "error", err)
		} else {
			opts.Rewriter = rw
		}
	}
	svc := vault.NewService(store, gateway, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var orphans records.OrphanSource
	if cfg.Watcher.Enabled {
		w, err := watcher.New(cfg.Watcher, cfg.StorageDir, store)
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		w.SetResolver(resolver)
		w.OnOrphan(func(o watcher.Orphan) {
			log.Warn("record folder missing", "record_id", o.RecordID, "user_id", o.Owner.UserID, "agent_id", o.Owner.AgentID, "folder", o.FolderPath)
		})
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer w.Stop()
		orphans = w
	}

	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewHealthTool(store, gateway.Enabled(), Version)); err != nil {
		return err
	}
	defaults := records.Defaults{
		UserID:       cfg.UserID,
		AgentID:      cfg.AgentID,
		DownloadsDir: cfg.DownloadsDir,
	}
	if err := registry.RegisterAll(records.GetTools(svc, orphans, defaults)); err != nil {
		return err
	}

	d := daemon.NewDaemon(cfg.SocketPath, registry)
	if err := d.Start(ctx); err != nil {
		return err
	}

	log.Info("memvault daemon started", "version", Version, "pid", os.Getpid(), "storage", cfg.StorageDir)

	<-ctx.Done()
	d.Shutdown()
	log.Info("memvault daemon stopped", "uptime", d.Uptime())
	return nil
}
