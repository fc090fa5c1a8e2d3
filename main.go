package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/auth"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/handlers"
	"messenger-service/internal/messaging"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, "messenger-service")
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if cfg.SeedDemoData {
		if err := db.SeedDemoData(ctx, database); err != nil {
			log.Fatalf("failed to seed demo data: %v", err)
		}
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))

	eventsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err == nil {
		observability.SetPublisher(eventsPublisher)
		defer eventsPublisher.Close()
	} else {
		log.Printf("ws lifecycle events disabled: %v", err)
	}

	audit := telemetry.NewAuditEmitter(publisher, "audit.messenger", "messenger-service", cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	tokens := auth.NewTokenManager(cfg.JWTSecret, "messenger-service", cfg.TokenTTL)

	hub := ws.NewHub()
	messageService := messaging.NewService(chatRepo, messageRepo, hub)
	gateway := ws.NewGateway(hub, tokens, chatRepo, userRepo, messageService)

	authHandler := handlers.NewAuthHandler(userRepo, tokens, audit)
	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, userRepo, messageService, audit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("messenger-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.POST("/login", authHandler.Login)
	router.GET("/verify", authMiddleware, authHandler.Verify)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats", authMiddleware, chatHandler.CreateChat)
	router.GET("/chats/:chat_id", authMiddleware, chatHandler.GetChatMessages)
	router.POST("/messages", authMiddleware, chatHandler.PostMessage)

	router.GET("/ws", gateway.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
