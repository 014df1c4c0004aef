package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainslot/internal/booking"
	"trainslot/internal/config"
	"trainslot/internal/db"
	"trainslot/internal/events"
	"trainslot/internal/ledger"
	"trainslot/internal/logger"
	"trainslot/internal/notify"
	"trainslot/internal/schedule"
	"trainslot/internal/server"
	"trainslot/internal/session"
	"trainslot/internal/user"
)

// @title TrainSlot API
// @version 1.0
// @description Marketplace core for booking training sessions against package credits.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	logger.Info("Starting TrainSlot application")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	userRepo := user.NewRepository(database)
	sessionRepo := session.NewRepository(database)
	ledgerRepo := ledger.NewRepository(database)

	publisher := events.NewRedisPublisher(cfg.RedisAddr)
	defer publisher.Close()

	engine := schedule.NewEngine(sessionRepo, cfg.ConflictGap)
	bookingService := booking.NewService(
		database,
		sessionRepo,
		ledgerRepo,
		engine,
		publisher,
		cfg.CancelLeadTime,
		cfg.NoShowGrace,
	)
	userService := user.NewService(userRepo, cfg.JWTSecret)

	dispatcher := notify.New(
		cfg.EmailFrom,
		cfg.EmailFromName,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
		cfg.RedisAddr,
		userRepo,
	)
	defer dispatcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.Start(ctx)
	go runNoShowSweeper(ctx, bookingService, cfg.NoShowSweepEvery)
	go runExpiryScanner(ctx, ledgerRepo, publisher, cfg.ExpiryScanEvery, cfg.ExpiryNoticeDays)

	srv := server.New(database, cfg, bookingService, ledgerRepo, userService)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}

// runNoShowSweeper periodically moves sessions that were never started past
// their grace period to no_show.
func runNoShowSweeper(ctx context.Context, svc booking.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.MarkNoShows(ctx)
			if err != nil {
				logger.Errorf("No-show sweep failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("Swept %d sessions to no-show", n)
			}
		}
	}
}

// runExpiryScanner archives exhausted purchases and warns customers whose
// credit pools expire soon.
func runExpiryScanner(ctx context.Context, repo ledger.Repository, publisher events.Publisher, every time.Duration, noticeDays int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := repo.ArchiveExhausted(ctx); err != nil {
				logger.Errorf("Purchase archival failed: %v", err)
			} else if n > 0 {
				logger.Infof("Archived %d exhausted purchases", n)
			}

			purchases, err := repo.ExpiringWithin(ctx, noticeDays)
			if err != nil {
				logger.Errorf("Expiry scan failed: %v", err)
				continue
			}
			for _, p := range purchases {
				daysLeft := int(time.Until(p.ExpiresAt).Hours() / 24)
				evt := events.Event{
					Type:       events.TypePackageExpiringSoon,
					PurchaseID: p.ID,
					CustomerID: p.CustomerID,
					TrainerID:  p.TrainerID,
					DaysLeft:   daysLeft,
					OccurredAt: time.Now(),
				}
				if err := publisher.Publish(ctx, evt); err != nil {
					logger.Errorf("Failed to publish expiry notice for purchase %d: %v", p.ID, err)
				}
			}
		}
	}
}
