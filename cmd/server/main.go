// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/unclebandit/wablast-backend/internal/controller"
	"github.com/unclebandit/wablast-backend/internal/db"
	"github.com/unclebandit/wablast-backend/internal/handler"
	"github.com/unclebandit/wablast-backend/internal/queue"
	"github.com/unclebandit/wablast-backend/internal/repository"
	"github.com/unclebandit/wablast-backend/internal/service"
	"github.com/unclebandit/wablast-backend/internal/session"
	"github.com/unclebandit/wablast-backend/internal/store"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional persistent attempt log
	var progress repository.ProgressRepositoryInterface
	if db.Configured() {
		db.Init()
		progress = &repository.ProgressRepository{DB: db.DB}
	} else {
		log.Println("⚠️ No database configured, running with in-memory progress only")
	}

	sess := session.NewClient(session.Config{
		SessionDir: os.Getenv("SESSION_DIR"),
		QRDir:      os.Getenv("QR_DIR"),
	})
	if err := sess.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize session: %v", err)
	}

	bus := queue.NewInMemoryBus()

	// Optional RabbitMQ mirror for external consumers
	if url := os.Getenv("AMQP_URL"); url != "" {
		publisher, err := queue.NewAMQPPublisher(url)
		if err != nil {
			log.Printf("⚠️ Failed to connect to RabbitMQ, events stay in-process: %v", err)
		} else {
			publisher.Attach(bus)
			defer publisher.Close()
			log.Println("✅ Mirroring campaign events to RabbitMQ")
		}
	}

	campaignStore := store.NewCampaignStore()
	sender := service.NewSender(campaignStore, sess, bus)
	sender.Progress = progress
	scheduler := service.NewScheduler(ctx, campaignStore, sender, bus)

	monitor := service.NewHealthMonitor(sess, campaignStore, scheduler, bus)
	monitor.Start(ctx)

	campaignController := &controller.CampaignController{
		Scheduler: scheduler,
		Monitor:   monitor,
		Progress:  progress,
	}
	progressHandler := handler.NewProgressHandler(scheduler, progress)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/restart", campaignController.RestartCampaign)
	r.Get("/campaigns/{id}/progress", progressHandler.GetProgressHandler)
	r.Get("/campaigns/{id}/attempts", progressHandler.GetAttemptsHandler)

	// Session routes
	r.Get("/session/status", campaignController.SessionStatus)
	r.Get("/health", campaignController.Health)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		log.Printf("🚀 Server running on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("🛑 Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Server shutdown error: %v", err)
	}
	if err := sess.Destroy(); err != nil {
		log.Printf("⚠️ Session teardown error: %v", err)
	}
	log.Println("👋 Bye")
}
