package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alert-backend/config"
	"alert-backend/database"
	"alert-backend/handlers"
	"alert-backend/rabbitmq"
	"alert-backend/service"
	"alert-backend/uploader"
	ws "alert-backend/websocket"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warnf(".env file not found, using system environment variables")
	}

	cfg := config.Load()

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	hub := ws.NewHub()
	go hub.Run()

	media := uploader.NewClient(cfg.MediaUploadURL, cfg.MediaAPIKey, cfg.MediaTimeout)

	var events service.EventPublisher
	if cfg.AMQPURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			log.Errorf("Failed to create RabbitMQ publisher, events will not be mirrored: %v", err)
		} else {
			defer publisher.Close()
			events = publisher
		}
	}

	svc := service.NewService(db, media, hub, events)
	h := handlers.NewHandlers(svc, hub)

	router := setupRouter(h, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Infof("Server exited")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.Default()

	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/random-user", h.RandomUser)
	router.GET("/random-admin", h.RandomAdmin)
	router.GET("/tipo-alerta", h.AlertTypes)
	router.POST("/trigger-panic-button", h.TriggerPanic)
	router.POST("/send-alert", h.SubmitAlert)
	router.GET("/active-alarms", h.ActiveAlerts)
	router.GET("/alarmas/:id", h.AlertByID)
	router.POST("/sirena_2/:id", h.AssignSiren)
	router.POST("/feedback/:id", h.ResolveAlert)
	router.POST("/estado/:id", h.SetAlertState)
	router.GET("/ultima-alerta", h.LatestAlert)

	router.GET("/ws", h.Listen)
	router.GET("/health", h.HealthCheck)

	return router
}
