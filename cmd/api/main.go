package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PratikDhanave/intercom-email-relay/internal/allowlist"
	"github.com/PratikDhanave/intercom-email-relay/internal/botfilter"
	"github.com/PratikDhanave/intercom-email-relay/internal/config"
	"github.com/PratikDhanave/intercom-email-relay/internal/dedup"
	"github.com/PratikDhanave/intercom-email-relay/internal/handlers"
	"github.com/PratikDhanave/intercom-email-relay/internal/httpserver"
	"github.com/PratikDhanave/intercom-email-relay/internal/intercom"
	"github.com/PratikDhanave/intercom-email-relay/internal/logger"
	"github.com/PratikDhanave/intercom-email-relay/internal/payload"
	"github.com/PratikDhanave/intercom-email-relay/internal/reconcile"
)

// main boots the service: config → logger → collaborators → HTTP server.
func main() {
	// Missing credentials are fatal.
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(logger.Options{
		Environment: cfg.Environment,
		Service:     cfg.ServiceName,
		Level:       cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	outbound := &http.Client{Timeout: cfg.OutboundTimeout}

	platform := intercom.NewClient(intercom.Options{
		BaseURL:    cfg.APIURL,
		Token:      cfg.IntercomToken,
		APIVersion: cfg.APIVersion,
		HTTPClient: outbound,
	})
	source := allowlist.NewHTTPSource(cfg.ListURL, outbound)
	store := dedup.NewMemoryStore()
	filter := botfilter.New(cfg.UnknownRolePolicy == config.RolePolicySkip)

	worker := reconcile.NewWorker(platform, source, store, reconcile.Options{
		AttrName:          cfg.CustomAttrName,
		PurchaseEmailAttr: cfg.PurchaseEmailAttr,
		AdminID:           cfg.AdminID,
		NoteText:          cfg.NoteText,
		ResetOnMismatch:   cfg.ResetOnMismatch,
		Roles:             filter,
	}, zl.Named("reconcile"))
	dispatcher := reconcile.NewDispatcher(worker, cfg.WorkerTimeout, zl.Named("dispatcher"))

	router := httpserver.NewRouter(handlers.WebhookDeps{
		Filter:     filter,
		Store:      store,
		Dispatcher: dispatcher,
		Payload:    payload.Options{PurchaseEmailAttr: cfg.PurchaseEmailAttr},
		Log:        zl.Named("http"),
	})

	srv := &http.Server{Addr: cfg.Addr(), Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("Server started",
			zap.String("address", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("log_level", cfg.LogLevel),
			zap.String("custom_attr", cfg.CustomAttrName),
			zap.Bool("notes_enabled", cfg.NotesEnabled()),
			zap.Bool("reset_on_mismatch", cfg.ResetOnMismatch),
			zap.String("unknown_role_policy", cfg.UnknownRolePolicy))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		zl.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		// Give in-flight reconciliations a chance to finish.
		if err := dispatcher.Wait(shutdownCtx); err != nil {
			zl.Warn("Reconciliations still running at exit", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
