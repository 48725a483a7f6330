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

	"github.com/Cembrun/Checkbell-V2/internal/api"
	"github.com/Cembrun/Checkbell-V2/internal/app"
	"github.com/Cembrun/Checkbell-V2/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("CHECKBELL_CONFIG_DIR"))
	if err != nil {
		log.Fatal(err)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}

	defer a.Close()

	deps := api.Deps{
		Tracker:     a.Tracker,
		Templates:   a.Templates,
		Archive:     a.Archive,
		Dashboard:   a.Dashboard,
		Departments: cfg.Departments,
	}
	if cfg.SeedEnabled() {
		deps.Seeder = a.Seeder
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewAPI(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go a.Scheduler.Start()
	go startMetricsCollector(a, cfg.Departments)

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	a.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("failed to shut down server: %v", err)
	}
}
