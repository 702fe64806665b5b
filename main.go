package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Martian-dev/brain-connectors/internal/ai"
	"github.com/Martian-dev/brain-connectors/internal/api"
	"github.com/Martian-dev/brain-connectors/internal/auth"
	"github.com/Martian-dev/brain-connectors/internal/config"
	"github.com/Martian-dev/brain-connectors/internal/emails"
	"github.com/Martian-dev/brain-connectors/internal/events"
	natsjs "github.com/Martian-dev/brain-connectors/internal/nats"
	"github.com/Martian-dev/brain-connectors/internal/storage"
	"github.com/Martian-dev/brain-connectors/internal/store/sqlite"
	"github.com/Martian-dev/brain-connectors/internal/sync"
)

func main() {
	configPath := flag.String("config", os.Getenv("BRAIN_CONFIG"), "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	// No run survives a restart; release records a crashed process left syncing.
	if n, err := store.FailInterruptedSyncs(ctx, "sync interrupted"); err != nil {
		return err
	} else if n > 0 {
		log.Printf("Marked %d interrupted syncs as failed", n)
	}

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	emitter := events.NewEmitter(nil)
	if cfg.NATS.URL != "" {
		publisher, err := natsjs.NewPublisher(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer publisher.Close()

		if err := publisher.EnsureStream(ctx); err != nil {
			return err
		}
		emitter = events.NewEmitter(store)

		dispatcher := events.NewDispatcher(store, publisher)
		g.Go(func() error {
			return dispatcher.Run(gctx)
		})
	} else {
		log.Printf("NATS URL not set, channel events are not published")
	}

	var verifier auth.Verifier
	var signer *auth.HMACSigner
	if cfg.Auth.JWTSecret != "" {
		signer = auth.NewHMACSigner(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		verifier = signer
	}
	if cfg.Auth.JWKSURL != "" {
		jwks, err := auth.NewJWKSVerifier(ctx, cfg.Auth.JWKSURL)
		if err != nil {
			return err
		}
		verifier = jwks
	}

	var assistant emails.Assistant
	if client := ai.New(cfg.AI); client.Enabled() {
		assistant = client
	}
	mail := emails.NewService(store, emitter, assistant)

	syncs := sync.NewManager(sync.NewRunner(store, store, store, files))

	server := &api.Server{
		Store:         store,
		Auth:          auth.NewAuthService(store),
		Verifier:      verifier,
		Signer:        signer,
		Syncs:         syncs,
		Emails:        mail,
		Emitter:       emitter,
		PublicBaseURL: cfg.PublicBaseURL,
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Printf("Listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		syncs.StopAll()
		mail.Wait()
		return err
	})

	return g.Wait()
}
