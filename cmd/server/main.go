package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/venue-reassignment/internal/backend"
	"github.com/iliyamo/venue-reassignment/internal/config"
	"github.com/iliyamo/venue-reassignment/internal/events"
	"github.com/iliyamo/venue-reassignment/internal/handler"
	"github.com/iliyamo/venue-reassignment/internal/movemode"
	"github.com/iliyamo/venue-reassignment/internal/queue"
	"github.com/iliyamo/venue-reassignment/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Preference cache, optional.
	var cache *backend.PrefCache
	if pc := config.LoadPrefsCacheConfig(); pc.Enabled {
		rdb := config.NewRedisClient(ctx, config.LoadRedisConfig())
		if rdb == nil {
			log.Printf("redis: unavailable, preference cache disabled")
		} else {
			defer func() { _ = rdb.Close() }()
			cache = backend.NewPrefCache(rdb, pc.TTL, pc.Prefix)
		}
	}

	var tokens backend.TokenSource
	switch {
	case cfg.CSRFSigningSecret != "":
		tokens = backend.NewSignedTokenSource(cfg.CSRFSigningSecret, cfg.Operator, cfg.CSRFTokenTTL)
	case cfg.CSRFToken != "":
		tokens = backend.StaticToken(cfg.CSRFToken)
	default:
		log.Printf("backend: no CSRF token configured, moves will be sent without one")
	}

	client, err := backend.New(backend.Options{
		BaseURL:    cfg.BackendBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.BackendTimeout},
		Tokens:     tokens,
		CSRFHeader: cfg.CSRFHeader,
		Cache:      cache,
	})
	if err != nil {
		log.Fatal(err)
	}

	bus := events.NewBus()
	coord := movemode.New(client, bus, movemode.Options{
		UndoLimit:        cfg.UndoLimit,
		HighlightTimeout: cfg.HighlightTimeout,
	})

	// Event fan-out to the broker, optional.
	var pub *queue.Publisher
	pubDone := make(chan struct{})
	if cfg.AMQPURL != "" {
		pub = queue.NewPublisher(cfg.AMQPURL, cfg.Queue, 0)
		bus.SubscribeAll(pub)
		go func() {
			defer close(pubDone)
			if err := pub.Run(context.Background()); err != nil && !errors.Is(err, queue.ErrPublisherClosed) {
				log.Printf("rabbitmq: publisher stopped: %v", err)
			}
		}()
	} else {
		close(pubDone)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())
	router.RegisterRoutes(e)
	router.RegisterMoveMode(e, handler.NewMoveModeHandler(coord), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s, backend=%s)", addr, cfg.Env, cfg.BackendBaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if st := coord.State(); st.Active && len(st.Pool) > 0 {
		log.Printf("move-mode: shutting down with %d reservation(s) still missing furniture", len(st.Pool))
	}
	coord.Wait()
	if pub != nil {
		pub.Close()
	}
	<-pubDone
}
