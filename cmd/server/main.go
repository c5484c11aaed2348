package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vibely/server/internal/bus"
	"github.com/vibely/server/internal/config"
	"github.com/vibely/server/internal/database"
	"github.com/vibely/server/internal/directory"
	postgresrepo "github.com/vibely/server/internal/repository/postgres"
	"github.com/vibely/server/internal/service"
	storepostgres "github.com/vibely/server/internal/store/postgres"
	"github.com/vibely/server/internal/transport/http/handlers"
	"github.com/vibely/server/internal/transport/http/middleware"
	"github.com/vibely/server/internal/transport/ws"
)

func main() {
	cfg := config.Load()

	// Database
	pool, err := database.Connect(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	log.Println("Connected to database")

	// Change bus
	changes, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatal(err)
	}
	defer changes.Close()
	log.Println("Connected to NATS")

	// Repositories
	userRepo := postgresrepo.NewUserRepo(pool)
	convRepo := postgresrepo.NewConversationRepo(pool)
	msgRepo := postgresrepo.NewMessageRepo(pool)

	// Message store
	store := storepostgres.NewStore(convRepo, msgRepo, changes)

	// User directory cache
	dir := directory.New(userRepo)

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret)
	convService := service.NewConversationService(convRepo, msgRepo, userRepo, store, dir)
	moodService := service.NewMoodService(cfg.MoodAPIURL, cfg.MoodAPIKey)

	var mediaService *service.MediaService
	if cfg.CloudinaryCloudName != "" {
		mediaService, err = service.NewMediaService(
			cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder,
		)
		if err != nil {
			log.Fatal(err)
		}
		authService.SetAccountCleanup(convService, mediaService, dir)
	} else {
		log.Println("Cloudinary not configured, media endpoints disabled")
		authService.SetAccountCleanup(convService, nil, dir)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	convHandler := handlers.NewConversationHandler(convService)
	moodHandler := handlers.NewMoodHandler(moodService)

	// Auth middleware
	auth := middleware.Auth(cfg.JWTSecret)

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	// Protected - Account
	mux.Handle("DELETE /api/v1/auth/account", auth(http.HandlerFunc(authHandler.DeleteAccount)))

	// Protected - Conversations
	mux.Handle("POST /api/v1/conversations", auth(http.HandlerFunc(convHandler.Resolve)))
	mux.Handle("GET /api/v1/conversations", auth(http.HandlerFunc(convHandler.List)))
	mux.Handle("DELETE /api/v1/conversations/{id}", auth(http.HandlerFunc(convHandler.Delete)))
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(convHandler.ListMessages)))
	mux.Handle("POST /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(convHandler.SendMessage)))

	// Protected - Mood detection
	mux.Handle("POST /api/v1/mood", auth(http.HandlerFunc(moodHandler.Detect)))

	// Protected - Media (only when Cloudinary is configured)
	if mediaService != nil {
		mediaHandler := handlers.NewMediaHandler(mediaService)
		mux.Handle("POST /api/v1/media/signature", auth(http.HandlerFunc(mediaHandler.UploadSignature)))
		mux.Handle("DELETE /api/v1/media/{publicId}", auth(http.HandlerFunc(mediaHandler.Delete)))
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.ServeWS(hub, cfg.JWTSecret, store, convService, dir))

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{Addr: addr, Handler: middleware.CORS(mux)}

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := server.Close(); err != nil {
		log.Printf("Error shutting down: %v", err)
	}
	log.Println("Server stopped")
}
