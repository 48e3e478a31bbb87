package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/slot-comb/app/api"
	"github.com/lysyi3m/slot-comb/app/cfg"
	"github.com/lysyi3m/slot-comb/app/database"
	"github.com/lysyi3m/slot-comb/app/feed"
	"github.com/lysyi3m/slot-comb/app/navigator"
	"github.com/lysyi3m/slot-comb/app/notify"
	"github.com/lysyi3m/slot-comb/app/office"
	"github.com/lysyi3m/slot-comb/app/reconcile"
	"github.com/lysyi3m/slot-comb/app/slots"
	"github.com/lysyi3m/slot-comb/app/tasks"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if c == nil {
		// Help was shown
		return
	}

	setupLogger(c.Debug)

	slog.Info("Starting Slot Comb server", "version", c.Version)

	db, err := database.NewConnection(c.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", c.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", c.DBPath, "schema_version", version, "dirty", dirty)

	catalog := office.NewCatalog(c.OfficesFile, c.Offices, c.SlotsURLTemplate)
	if err := catalog.Run(); err != nil {
		slog.Error("Failed to load office catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Office catalog loaded", "offices", catalog.Count(), "enabled", len(catalog.Enabled()))

	appointmentRepo := database.NewAppointmentRepository(db)
	runRepo := database.NewRunRepository(db)
	subscriberRepo := database.NewSubscriberRepository(db)

	classifier := slots.NewClassifier(c.GoldenThresholdDays)
	engine := reconcile.NewEngine(appointmentRepo, classifier, c.BookingURL)

	var channel notify.Channel = notify.NewLogChannel()
	if c.ResendAPIKey != "" {
		channel = notify.NewEmailChannel(c.ResendAPIKey, c.FromEmail)
		slog.Info("Email alerts enabled", "from", c.FromEmail)
	} else {
		slog.Info("Email alerts disabled (RESEND_API_KEY not set), alerts are logged")
	}

	nav := navigator.NewHTTPNavigator(navigator.Options{
		BookingURL:   c.BookingURL,
		UserAgent:    c.UserAgent,
		DebugCapture: c.DebugCapture,
		DebugDir:     c.DebugDir,
	})

	scheduler := tasks.NewScheduler(c.ScrapeIntervalDuration(), tasks.NewScrapeRunTaskFactory(tasks.ScrapeRunDeps{
		Offices:       catalog,
		Navigator:     nav,
		Extractor:     slots.NewExtractor(),
		Classifier:    classifier,
		Engine:        engine,
		Runs:          runRepo,
		Subscribers:   subscriberRepo,
		Dispatcher:    notify.NewDispatcher(channel, c.BookingURL),
		OfficeTimeout: c.OfficeTimeoutDuration(),
		OfficeDelay:   c.OfficeDelayDuration(),
		OfficeRetries: c.OfficeRetries,
	}))
	scheduler.Start()
	defer scheduler.Stop()

	generator := feed.NewGenerator(feed.Options{
		SelfLink:    feedSelfLink(),
		BookingLink: c.BookingURL,
		Version:     c.Version,
	})

	handler := api.NewHandler(db, appointmentRepo, runRepo, subscriberRepo, catalog, generator, scheduler, c.Version)
	router := api.NewServer(handler, c.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", c.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// The scheduler and database are closed by the deferred calls.
	slog.Info("Slot Comb server shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func feedSelfLink() string {
	c := cfg.Get()
	if c.BaseUrl != "" {
		return c.BaseUrl + "/feeds/golden"
	}
	return fmt.Sprintf("http://localhost:%s/feeds/golden", c.Port)
}
