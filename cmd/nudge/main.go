package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/nudge/internal/config"
	"github.com/dukerupert/nudge/internal/database"
	"github.com/dukerupert/nudge/internal/logging"
	"github.com/dukerupert/nudge/internal/metrics"
	"github.com/dukerupert/nudge/internal/push"
	"github.com/dukerupert/nudge/internal/server"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	genVAPID := flag.Bool("gen-vapid", false, "print a new VAPID key pair and exit")
	issueFor := flag.String("issue-token", "", "print a 24h bearer token for the given user id and exit")
	flag.Parse()

	if *genVAPID {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate vapid keys:", err)
			os.Exit(1)
		}
		fmt.Printf("NUDGE_VAPID_PUBLIC_KEY=%s\nNUDGE_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	metrics.MustRegister()

	srv := server.New(db, server.Config{
		JWTSecret:   cfg.JWTSecret,
		JWTIssuer:   cfg.JWTIssuer,
		AdminIDs:    cfg.AdminIDs,
		CORSOrigins: cfg.CORSOrigins,
		IPRateLimit: cfg.IPRateLimit,
		Push: push.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.VAPIDSubject,
			TTL:             cfg.PushTTL,
		},
		PushConcurrency:    cfg.PushConcurrency,
		PushTimeout:        cfg.PushTimeout,
		SweepSchedule:      cfg.SweepSchedule,
		ReminderRateLimit:  cfg.ReminderRateLimit,
		ReminderRateWindow: cfg.ReminderRateWindow,
	}, logger)

	if *issueFor != "" {
		userID, err := strconv.ParseInt(*issueFor, 10, 64)
		if err != nil || userID <= 0 {
			fmt.Fprintln(os.Stderr, "issue-token: user id must be a positive integer")
			os.Exit(1)
		}
		tok, err := srv.Verifier().Issue(userID, "", 24*time.Hour)
		if err != nil {
			fmt.Fprintln(os.Stderr, "issue-token:", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	// Housekeeping rides on the sweeper's cron.
	sweeper := srv.Sweeper()
	if _, err := sweeper.AddJob("@every 10m", func() {
		if n := srv.RateLimiter().Cleanup(); n > 0 {
			slog.Debug("cleaned up rate limit entries", "count", n)
		}
	}); err != nil {
		slog.Error("schedule rate limit cleanup", "error", err)
		os.Exit(1)
	}
	if _, err := sweeper.AddJob("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := srv.ScheduleStore().CleanupFired(ctx, time.Now().Add(-cfg.FiredRetention))
		if err != nil {
			slog.Error("cleanup fired notifications", "error", err)
		} else if n > 0 {
			slog.Info("cleaned up fired notifications", "count", n)
		}
	}); err != nil {
		slog.Error("schedule fired cleanup", "error", err)
		os.Exit(1)
	}
	if err := sweeper.Start(); err != nil {
		slog.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("nudge starting", "addr", httpServer.Addr, "push", cfg.VAPIDPublicKey != "", "sweep", cfg.SweepSchedule)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	srv.Dispatcher().Close()
}
