package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/habitual/internal/backup"
	"github.com/dukerupert/habitual/internal/config"
	"github.com/dukerupert/habitual/internal/email"
	"github.com/dukerupert/habitual/internal/push"
	"github.com/dukerupert/habitual/internal/server"
)

const cleanupInterval = time.Hour

type ServeCmd struct {
	config.Server
}

func (c *ServeCmd) Run(env *Env) error {
	logger := env.Logger

	db, err := env.OpenDB()
	if err != nil {
		return err
	}
	defer db.Close()

	secret := c.Secret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("HABITUAL_SECRET not set; generated a random one, API and CSRF tokens reset on restart")
	}

	var pushSvc *push.Service
	if c.Push.Enabled() {
		pushSvc = push.NewService(c.Push.VAPIDPublicKey, c.Push.VAPIDPrivateKey, c.Push.Subject)
	} else {
		logger.Info("push reminders disabled: VAPID keys not configured")
	}

	srv, err := server.New(db, server.Config{
		BaseURL:          c.BaseURL,
		Secret:           secret,
		Sender:           c.sender(env),
		Push:             pushSvc,
		ReminderHour:     c.Push.ReminderHour,
		ReminderInterval: c.Push.Interval,
		Backup:           backupConfig(c.Backup),
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.Cleanup(ctx)
			}
		}
	}()

	if sched := srv.PushScheduler(); sched != nil {
		sched.Start(ctx)
		defer sched.Stop()
	}
	if mgr := srv.BackupManager(); mgr.Enabled() {
		mgr.Start(ctx)
		defer mgr.Stop()
	} else if c.Backup.Enabled() {
		logger.Warn("backups need a SQLite database; S3 snapshots disabled")
	}

	httpServer := &http.Server{
		Addr:         c.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("habitual running", "addr", c.Addr, "base_url", c.BaseURL, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (c *ServeCmd) sender(env *Env) email.Sender {
	switch c.Email.Provider {
	case "postmark":
		return email.NewClient(c.Email.PostmarkToken, c.Email.From)
	case "ses":
		return email.NewSESClient(c.Email.SESRegion, c.Email.AccessKey, c.Email.SecretKey, c.Email.From)
	default:
		env.Logger.Warn("login codes are written to the log; set --email-provider for real delivery")
		return email.LogSender{Logger: env.Logger.With("component", "email")}
	}
}

func backupConfig(b config.Backup) backup.Config {
	return backup.Config{
		Endpoint:   b.Endpoint,
		Bucket:     b.Bucket,
		Region:     b.Region,
		AccessKey:  b.AccessKey,
		SecretKey:  b.SecretKey,
		Prefix:     b.Prefix,
		Passphrase: b.Passphrase,
		Interval:   b.Interval,
		Retain:     b.Retain,
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
