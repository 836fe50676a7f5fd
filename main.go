package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"conversa/internal/auth"
	"conversa/internal/backend"
	"conversa/internal/commands"
	"conversa/internal/config"
	"conversa/internal/http"
	"conversa/internal/rpc"
	"conversa/internal/storage"
	"conversa/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("conversa", flag.ContinueOnError)
	listSessions := fs.Bool("list-sessions", false, "Print the sessions open on the running server")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*listSessions)
	if err != nil {
		return err
	}

	if *listSessions {
		return commands.ListSessions(os.Stdout, cfg)
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	backendClient, err := backend.New(backend.Config{URL: cfg.BackendURL, Key: cfg.BackendKey})
	if err != nil {
		return err
	}

	provider, err := auth.NewProvider(ctx, auth.Config{
		Secret:     cfg.AuthSecret,
		JWTSecret:  cfg.BackendJWTSecret,
		SessionTTL: cfg.SessionTTL,
	}, backendClient, bbStorage)
	if err != nil {
		return err
	}

	adapters := rpc.New(backendClient)
	hub := ws.NewHub(provider, adapters)

	adminServer := http.NewAdminServer(http.AdminServerConfig{
		Addr:     cfg.AdminAddr,
		User:     cfg.AdminUser,
		Password: cfg.AdminPassword,
	}, provider, hub)
	apiServer := http.NewAPIServer(ctx, http.APIServerConfig{
		Addr:         cfg.APIAddr,
		CORSOrigins:  cfg.CORSOrigins,
		SessionTTL:   cfg.SessionTTL,
		SecureCookie: strings.HasPrefix(cfg.BaseURL, "https://"),
	}, provider, adapters, hub)

	g, gCtx := errgroup.WithContext(ctx)

	// Restore sessions; pages answer with the loading page until done.
	g.Go(func() error {
		return provider.Restore(gCtx)
	})

	// Start Admin Server
	g.Go(func() error {
		if cfg.AdminPassword == "" {
			log.Println("ADMIN_PASSWORD is not set, admin API disabled")
			return nil
		}
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
