// ABOUTME: Terminal chat client for the triage agent backend
// ABOUTME: Wires config, cache, durable store and the conversation session into a bubbletea program

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389/triage-chat/internal/cache"
	"github.com/2389/triage-chat/internal/config"
	"github.com/2389/triage-chat/internal/conversation"
	"github.com/2389/triage-chat/internal/logging"
	"github.com/2389/triage-chat/internal/persist"
	"github.com/2389/triage-chat/internal/store"
)

const shutdownTimeout = 5 * time.Second

type flags struct {
	configPath string
	backend    string
	user       string
	session    string
	room       string
	logPath    string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "config file (default $TRIAGE_CONFIG or ~/.config/triage/client.yaml)")
	flag.StringVar(&f.backend, "backend", "", "backend url, overrides backend.url")
	flag.StringVar(&f.user, "user", "", "user id, overrides session.user_id")
	flag.StringVar(&f.session, "session", "", "session id, overrides session.session_id")
	flag.StringVar(&f.room, "room", "", "chat room id, overrides session.room_id")
	flag.StringVar(&f.logPath, "log", filepath.Join(os.TempDir(), "triage-tui.log"), "log file")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "triage-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(f.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	logger := logging.Setup(cfg.Logging, logFile, false)
	slog.SetDefault(logger)

	snapshots, err := cache.Open(cfg.Cache)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer snapshots.Close()

	rooms, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	if rooms != nil {
		defer rooms.Close()
	}

	syncer := persist.New(persist.Options{
		Cache:        snapshots,
		Store:        rooms,
		Debounce:     cfg.Store.Debounce,
		WriteTimeout: cfg.Store.WriteTimeout,
		Logger:       logger,
	})

	opts := conversation.OptionsFromConfig(cfg)
	opts.Sync = syncer
	opts.Logger = logger
	sess, err := conversation.New(opts)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session stopped", "error", err)
		}
	}()

	logger.Info("starting",
		"backend", cfg.Backend.URL,
		"user", cfg.Session.UserID,
		"session", cfg.Session.SessionID,
		"room", cfg.Session.RoomID,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Driver,
	)

	p := tea.NewProgram(newModel(ctx, sess), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, runErr := p.Run()

	cancel()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	if err := sess.Close(closeCtx); err != nil {
		logger.Warn("closing session", "error", err)
	}
	if err := syncer.Close(closeCtx); err != nil {
		logger.Warn("flushing history", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist, then applies flag overrides.
func loadConfig(f flags) (*config.Config, error) {
	path := f.configPath
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, err
	}

	if f.backend != "" {
		cfg.Backend.URL = f.backend
	}
	if f.user != "" {
		cfg.Session.UserID = f.user
	}
	if f.session != "" {
		cfg.Session.SessionID = f.session
	}
	if f.room != "" {
		cfg.Session.RoomID = f.room
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
