package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/enph353/labeller/internal/api"
	"github.com/enph353/labeller/internal/config"
	"github.com/enph353/labeller/internal/db"
	"github.com/enph353/labeller/internal/frames"
	"github.com/enph353/labeller/internal/labels"
	"github.com/enph353/labeller/internal/logging"
	"github.com/enph353/labeller/internal/metrics"
	"github.com/enph353/labeller/internal/store"
	"github.com/enph353/labeller/internal/ui"
	"github.com/enph353/labeller/internal/workspace"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting plate labeller",
		"version", config.Version,
		"data_dir", cfg.DataDir(),
		"video_dir", cfg.VideoDir(),
		"policy", cfg.Policy(),
		"store", cfg.Store(),
	)

	database, err := db.Open(context.Background(), cfg.DBPath(), db.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	sqliteStore := store.NewSQLiteStore(database.Conn())
	if n, err := sqliteStore.FailInterruptedScans(context.Background()); err != nil {
		logger.Warn("failed to mark interrupted scans", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted scans as failed", "count", n)
	}

	authToken, err := ensureAuthToken(cfg, sqliteStore)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	printBanner(os.Stdout, "PLATE LABELLER v"+config.Version, []string{
		fmt.Sprintf("API URL:    http://127.0.0.1:%d", cfg.Port()),
		"Auth Token: " + authToken,
	})

	policy, err := labels.NewPolicy(cfg.Policy(), cfg.PlateSlots())
	if err != nil {
		return fmt.Errorf("invalid label policy: %w", err)
	}

	var labelStore store.Store = store.NewFileStore(cfg.LabelSuffix())
	if cfg.Store() == "sqlite" {
		labelStore = sqliteStore
	}

	tools, err := frames.NewTools(frames.Config{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("video tools unavailable: %w", err)
	}

	m := metrics.New()

	ws, err := workspace.NewService(workspace.Options{
		Opener:    workspace.FFmpegOpener(tools),
		Store:     labelStore,
		ScanLog:   sqliteStore,
		Policy:    policy,
		Threshold: cfg.Threshold(),
		VideoDir:  cfg.VideoDir(),
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	defer ws.Close()

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Workspace: ws,
		Metrics:   m,
		AuthToken: authToken,
		Logger:    logger,
		StartTime: startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Workspace: ws,
			Logger:    logger,
			OnChange: func(v labels.View) {
				logger.Debug("keyframe changed from tray", "cursor", v.Cursor, "frame", v.Frame)
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
		go refreshTray(tray, quitCh)
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// refreshTray keeps the tray in step with scans and with navigation done
// over HTTP.
func refreshTray(tray *ui.Tray, quitCh <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tray.Refresh()
		case <-quitCh:
			return
		}
	}
}

// ensureAuthToken prefers the configured token, then the one persisted by a
// previous run, and otherwise generates and persists a new one.
func ensureAuthToken(cfg config.Config, s *store.SQLiteStore) (string, error) {
	if token := cfg.AuthToken(); token != "" {
		return token, nil
	}

	ctx := context.Background()

	existing, err := s.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := s.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
