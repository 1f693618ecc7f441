package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/analysis"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/backup"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/baseline"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/duckdb"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/httpserver"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/jobs"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis service",
		Long: `Run the RemedyIQ service: accept log uploads over the HTTP API, analyze
them on a bounded worker pool, and serve the stored results. Interrupted
jobs are requeued on startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/remedyiq/config.yml)")
	return cmd
}

func runServe(cfg serviceConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	th := analysis.DefaultThresholds()
	if cfg.ProfilePath != "" {
		var err error
		th, err = analysis.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return fmt.Errorf("loading analysis profile: %w", err)
		}
	}

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()
	store.SetMaxConcurrentQueries(cfg.MaxConcurrentReads)

	schemaVersion, err := store.SchemaVersion()
	if err != nil {
		log.Printf("serve: schema version: %v", err)
	}

	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.RetentionDays,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	baselines, err := baseline.Open(cfg.BaselinePath, cfg.BaselineWindow)
	if err != nil {
		return fmt.Errorf("failed to open baseline history: %w", err)
	}
	defer baselines.Close()

	backupManager, err := backup.NewManager(store, backup.Config{
		Enabled:  cfg.BackupEnabled,
		Interval: cfg.BackupInterval,
		LocalDir: cfg.BackupDir,
		KeepLast: cfg.BackupKeepLast,
		// The baseline history rides along with each database snapshot.
		ExtraFiles:     []string{cfg.BaselinePath},
		BucketURL:      cfg.BackupBucketURL,
		S3Endpoint:     cfg.BackupS3Endpoint,
		S3Region:       cfg.BackupS3Region,
		S3AccessKey:    cfg.BackupS3AccessKey,
		S3SecretKey:    cfg.BackupS3SecretKey,
		S3SessionToken: cfg.BackupS3SessionToken,
		S3UseSSL:       cfg.BackupS3UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to start backup manager: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	manager := jobs.NewManager(store, baselines, jobs.Config{
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		Thresholds: th,
	})
	defer manager.Stop()

	requeued, err := manager.Recover(context.Background())
	if err != nil {
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}

	apiServer := httpserver.NewServer(cfg.APIAddr, store, manager)
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	defer apiServer.Stop()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts at signal time, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg, schemaVersion, requeued)

	// Use errgroup for concurrent goroutine lifecycle management.
	g, gctx := errgroup.WithContext(ctx)

	// Periodic operational snapshot of the job table.
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				counts, err := store.JobCounts(gctx)
				if err != nil {
					log.Printf("serve: job counts: %v", err)
					continue
				}
				log.Printf("serve: jobs queued=%d running=%d complete=%d failed=%d cancelled=%d",
					counts[model.JobQueued], counts[model.JobRunning], counts[model.JobComplete],
					counts[model.JobFailed], counts[model.JobCancelled])
			}
		}
	})

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("serve: errgroup exited with error: %v", err)
	}

	cancel()

	// If we reach here, graceful shutdown succeeded within the deadline.
	// The signal goroutine (if active) dies with the process.
	signal.Stop(sigCh)

	return nil
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "remedyiq")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "remedyiq.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg serviceConfig, schemaVersion, requeued int) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦═╗╔═╗╔╦╗╔═╗╔╦╗╦ ╦╦╔═╗
    ╠╦╝║╣ ║║║║╣  ║║╚╦╝║║═╬╗
    ╩╚═╚═╝╩ ╩╚═╝═╩╝ ╩ ╩╚═╝╚`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	// Gateway
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	lines = append(lines, fmt.Sprintf("    %s  Status Push    %s", check, cyan.Render("ws://"+cfg.APIAddr+"/api/ws/jobs")))
	lines = append(lines, "")

	// Storage
	lines = append(lines, bold.Render("    Storage"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Jobs DB        %s", check, dim.Render(shortenPath(cfg.DBPath)+fmt.Sprintf(" (schema v%d)", schemaVersion))))
	lines = append(lines, fmt.Sprintf("    %s  Baselines      %s", check, dim.Render(shortenPath(cfg.BaselinePath))))
	if cfg.RetentionDays > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", check, dim.Render(fmt.Sprintf("%d days", cfg.RetentionDays))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", dot, dim.Render("disabled")))
	}
	if cfg.BackupEnabled {
		detail := fmt.Sprintf("%s every %s", shortenPath(cfg.BackupDir), cfg.BackupInterval)
		if cfg.BackupBucketURL != "" {
			detail += " + " + cfg.BackupBucketURL
		}
		lines = append(lines, fmt.Sprintf("    %s  Backups        %s", check, dim.Render(detail)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Backups        %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	// Runtime
	lines = append(lines, bold.Render("    Runtime"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Workers        %s", check, dim.Render(fmt.Sprintf("%d (queue %d)", cfg.Workers, cfg.QueueSize))))
	if requeued > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Recovered      %s", check, yellow.Render(fmt.Sprintf("%d interrupted jobs requeued", requeued))))
	}
	if cfg.ProfilePath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Profile        %s", check, dim.Render(shortenPath(cfg.ProfilePath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Profile        %s", dot, dim.Render("default thresholds")))
	}

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
