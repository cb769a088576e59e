package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"radar_server/config"
	"radar_server/middleware"
	"radar_server/routes"
	"radar_server/services"
	"radar_server/socket"
	"radar_server/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the store
	log.Printf("Initializing %s store...", cfg.StoreDriver)
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize store: %v", err)
	}
	defer closeStore()
	log.Println("Store initialized.")

	// Profile pictures are signed only when a bucket is configured
	var pictures services.PictureSigner
	if cfg.S3BucketName != "" {
		s3Service, err := services.NewS3Service(ctx, cfg.AWSRegion, cfg.S3BucketName)
		if err != nil {
			log.Fatalf("❌ Failed to initialize S3: %v", err)
		}
		pictures = s3Service
	}

	// Realtime registry and event dispatch
	registry := socket.NewRegistry()
	dispatcher := socket.NewDispatcher(registry)

	// Initialize Services
	userProfileService := &services.UserProfileService{Users: st, Pictures: pictures}
	sessionService := services.NewSessionService(st, cfg.Liveness(), cfg.RecordTTL())
	nearbyService := &services.NearbyService{Sessions: sessionService, Profiles: userProfileService}
	signalService := services.NewSignalService(st, sessionService, userProfileService, dispatcher, cfg.SignalLifetime(), cfg.ChatLifetime())
	chatService := services.NewChatService(st, userProfileService, dispatcher, cfg.ChatLifetime())

	auth := middleware.NewAuth(cfg.JWTSecret)
	if auth.DevMode() {
		log.Printf("⚠️ JWT_SECRET is empty, trusting %s headers", middleware.UserIDHeader)
	}

	socketServer := socket.NewSocketServer(socket.NewHandler(registry, sessionService, signalService, chatService, auth))
	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Printf("❌ Socket server stopped: %v", err)
		}
	}()
	defer socketServer.Close()

	// Initialize the router
	r := mux.NewRouter()
	routes.RegisterRoutes(r)
	routes.RegisterSocketRoutes(r, socketServer)

	api := routes.APIRouter(r, auth)
	routes.RegisterLocationRoutes(api, sessionService, nearbyService)
	routes.RegisterSignalRoutes(api, signalService)
	routes.RegisterChatRoutes(api, chatService)
	routes.RegisterUserProfileRoutes(api, userProfileService)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Origins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.UserIDHeader},
		AllowCredentials: true,
	}).Handler(r)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("❌ Shutdown failed: %v", err)
		}
	}()

	log.Printf("Starting server on port %s...", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("❌ Server error: %v", err)
	}
	log.Println("Server stopped.")
}

// openStore builds the configured persistence backend and its cleanup func.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverDynamoDB:
		client, err := store.InitializeDynamoDBClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, nil, err
		}
		return store.NewDynamoStore(client), func() {}, nil
	case config.DriverPostgres:
		pg, db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() {
			if err := db.Close(); err != nil {
				log.Printf("❌ Failed to close database: %v", err)
			}
		}, nil
	case config.DriverMemory:
		log.Println("⚠️ Using the in-memory store, data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
