// Command journal consumes move-mode events from RabbitMQ, records them in
// the MySQL move_journal table and serves them back per reservation.
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

	"github.com/iliyamo/venue-reassignment/internal/config"
	"github.com/iliyamo/venue-reassignment/internal/database"
	"github.com/iliyamo/venue-reassignment/internal/handler"
	"github.com/iliyamo/venue-reassignment/internal/queue"
	"github.com/iliyamo/venue-reassignment/internal/repository"
	"github.com/iliyamo/venue-reassignment/internal/router"
)

func main() {
	cfg, err := config.LoadJournal()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	})
	if err != nil {
		log.Fatalf("journal: open database: %v", err)
	}
	defer db.Close()

	repo := repository.NewJournalRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("journal: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	router.RegisterRoutes(e)
	router.RegisterJournal(e, handler.NewJournalHandler(repo), cfg.JWTSecret)
	go func() {
		log.Printf("journal: listening on :%s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("journal: http server: %v", err)
			stop()
		}
	}()

	log.Printf("journal: consuming %s", cfg.Queue)
	if err := queue.StartJournalConsumer(ctx, cfg.AMQPURL, cfg.Queue, repo); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("journal: consumer: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("journal: http shutdown: %v", err)
	}
	log.Printf("journal: stopped")
}
