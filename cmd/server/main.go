package main

import (
	"collab-docs-server/internal/config"
	"collab-docs-server/internal/db"
	"collab-docs-server/internal/diff"
	"collab-docs-server/internal/document"
	"collab-docs-server/internal/middleware"
	"collab-docs-server/internal/session"
	"collab-docs-server/internal/user"
	"collab-docs-server/internal/version"
	"collab-docs-server/internal/worker"
	"collab-docs-server/internal/ws"
	"collab-docs-server/redis"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	config.LoadConfig()

	if config.AppConfig.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Connect to database
	db.ConnectDb()
	defer db.CloseDb()

	// Migrate database schema
	db.Migrate()

	if config.AppConfig.Environment == "development" {
		db.SeedData()
	}

	// Initialize Redis cache
	cache := redis.New(config.AppConfig.RedisAddress)
	defer cache.Close()

	// Background worker pool
	pool := worker.NewWorkerPool(config.AppConfig.WorkerPoolSize)

	// Initialize repositories
	userRepo := user.NewRepository(db.AppDb)
	docRepo := document.NewRepository(db.AppDb)
	versionRepo := version.NewRepository(db.AppDb)

	// Initialize services
	userService := user.NewService(userRepo)
	differ := diff.NewEngine()
	versionService := version.NewService(versionRepo, docRepo, differ)
	docService := document.NewService(docRepo, versionService, userService, cache, pool)
	sessionManager := session.NewManager(docService, versionService, config.AppConfig.AutoSaveDebounce)
	hub := ws.NewHub(sessionManager)

	// Initialize handlers
	docHandler := document.NewHandler(docService, sessionManager)
	versionHandler := version.NewHandler(versionService, docService, sessionManager)
	userHandler := user.NewHandler(userService)

	authMw := &middleware.Auth{
		Users:          userService,
		JWTSecret:      []byte(config.AppConfig.JWTSecret),
		InternalSecret: config.AppConfig.InternalSecret,
	}

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	authed := router.Group("/", authMw.AuthMiddleware())

	// User directory
	authed.GET("/users", userHandler.SearchUsers)

	// Documents
	authed.POST("/documents", docHandler.Create)
	authed.GET("/documents", docHandler.ShowUserDocuments)
	authed.GET("/documents/public", docHandler.ShowPublicDocuments)
	authed.GET("/documents/:id", docHandler.ShowDocument)
	authed.PUT("/documents/:id", docHandler.Update)
	authed.DELETE("/documents/:id", docHandler.DeleteDocument)

	// Collaborators
	authed.GET("/documents/:id/collaborators", docHandler.ListCollaborators)
	authed.POST("/documents/:id/collaborators", docHandler.AddCollaborator)
	authed.DELETE("/documents/:id/collaborators/:userId", docHandler.RemoveCollaborator)

	// Version history
	authed.GET("/documents/:id/versions", versionHandler.ListVersions)
	authed.GET("/documents/:id/versions/:version", versionHandler.ShowVersion)
	authed.POST("/documents/:id/versions/:version/rollback", versionHandler.Rollback)
	authed.GET("/documents/:id/snapshots", versionHandler.ListSnapshots)
	authed.POST("/documents/:id/snapshots", versionHandler.CreateSnapshot)
	authed.GET("/documents/:id/compare", versionHandler.Compare)

	// Live editing channel
	authed.GET("/documents/:id/ws", hub.Serve)

	// Server-to-server surface for the chat platform
	internal := router.Group("/internal", authMw.InternalAuthMiddleware())
	internal.GET("/rooms/:roomId/documents", docHandler.ShowRoomDocuments)

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Info().Str("port", serverPort).Msg("Server listening")
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	// flush pending auto-saves before closing the pool and stores
	sessionManager.Shutdown()
	pool.Shutdown()

	log.Info().Msg("Server shutdown complete")
}
