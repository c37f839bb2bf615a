// ABOUTME: Scripted stand-in for the triage agent backend, for local runs and E2E checks
// ABOUTME: Usage: fake-backend [-addr :8000] [-delay 150ms] [-replay] [-rooms-db rooms.db]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/triage-chat/internal/config"
	"github.com/2389/triage-chat/internal/fakebackend"
	"github.com/2389/triage-chat/internal/logging"
	"github.com/2389/triage-chat/internal/store"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	delay := flag.Duration("delay", 150*time.Millisecond, "pause between streamed frames")
	replay := flag.Bool("replay", false, "resend the session backlog to every reconnecting client")
	roomsDB := flag.String("rooms-db", "", "sqlite file backing the chat-room API (default in-memory)")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	format := flag.String("log-format", "text", "text or json")
	flag.Parse()

	logger := logging.Setup(config.LoggingConfig{Level: *level, Format: *format}, os.Stderr, !color.NoColor)

	if err := run(*addr, *delay, *replay, *roomsDB, logger); err != nil {
		logger.Error("fake backend failed", "error", err)
		os.Exit(1)
	}
}

func run(addr string, delay time.Duration, replay bool, roomsDB string, logger *slog.Logger) error {
	var rooms store.RoomStore = store.NewMockStore()
	if roomsDB != "" {
		sqlite, err := store.NewSQLiteStore(roomsDB, config.StoreSQLite)
		if err != nil {
			return fmt.Errorf("opening rooms db: %w", err)
		}
		rooms = sqlite
	}
	defer rooms.Close()

	backend := fakebackend.New(
		fakebackend.WithFrameDelay(delay),
		fakebackend.WithReplayOnConnect(replay),
		fakebackend.WithRooms(rooms),
		fakebackend.WithLogger(logger),
	)
	defer backend.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake backend listening", "addr", addr, "delay", delay, "replay", replay)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	backend.Close()
	return srv.Shutdown(shutdownCtx)
}
