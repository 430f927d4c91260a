package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tgienger/checker/internal/config"
	"github.com/tgienger/checker/internal/derived"
	"github.com/tgienger/checker/internal/metrics"
	"github.com/tgienger/checker/internal/ui"
)

func runTUI(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the interactive UI needs a terminal; see 'checker --help' for commands")
	}

	cfg, err := loadConfig(cmd, &opts)
	if err != nil {
		return err
	}
	logPath := cfg.LogFile
	if logPath == "" {
		if logPath, err = config.DefaultLogPath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := tea.LogToFile(logPath, "checker")
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	e, err := openEnv(cmd, log.Default())
	if err != nil {
		return err
	}
	defer e.Close()

	if stop := startMetricsServer(e); stop != nil {
		defer stop()
	}

	appOpts := []ui.Option{ui.WithLogger(e.logger)}
	if e.settings != nil {
		appOpts = append(appOpts, ui.WithSettings(e.settings))
	}
	app := ui.NewApp(e.store, e.repo, e.role, e.metrics, derived.LogEmitter{Logger: e.logger}, appOpts...)
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// startMetricsServer serves /metrics when metrics_addr is set. The returned
// func shuts the server down; it is nil when metrics are disabled.
func startMetricsServer(e *env) func() {
	if e.cfg.MetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(e.registry))
	srv := &http.Server{Addr: e.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Printf("metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
