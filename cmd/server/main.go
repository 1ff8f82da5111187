package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/alexlazarev/shopcore/internal/api"
	"github.com/alexlazarev/shopcore/internal/config"
	"github.com/alexlazarev/shopcore/internal/handler"
	"github.com/alexlazarev/shopcore/internal/infrastructure/auth"
	"github.com/alexlazarev/shopcore/internal/infrastructure/kafka"
	"github.com/alexlazarev/shopcore/internal/infrastructure/redis"
	"github.com/alexlazarev/shopcore/internal/infrastructure/smtp"
	"github.com/alexlazarev/shopcore/internal/observability"
	core "github.com/alexlazarev/shopcore/internal/repository/postgres"
	service "github.com/alexlazarev/shopcore/internal/services"
)

const notificationsTopic = "notifications"

func main() {
	cfg := config.Load()

	// Инициализируем логи, метрики, трейсы
	shutdown, _ := observability.Setup("shopcore")
	defer shutdown(context.Background())

	// Подключаемся к Postgres
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	// Ключи подписи токенов загружаются один раз
	keys, err := auth.LoadKeyPair(cfg.PrivateKeyPath, cfg.PublicKeyPath)
	if err != nil {
		log.Fatalf("Failed to load signing keys: %v", err)
	}
	tokens := auth.NewTokenService(
		keys,
		time.Duration(cfg.ExpSec)*time.Second,
		time.Duration(cfg.ExpRefreshDays)*24*time.Hour,
	)

	// Инициализируем зависимости
	userRepo := core.NewPostgresUserRepository(db)
	orderRepo := core.NewPostgresOrderRepository(db)
	revocationRepo := core.NewPostgresRevocationRepository(db)
	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	dispatcher := kafka.NewProducer(cfg.KafkaBrokers, notificationsTopic)
	defer dispatcher.Close()

	authSvc := service.NewAuthService(userRepo, orderRepo, revocationRepo, tokens)
	registerSvc := service.NewRegisterService(
		userRepo,
		redisClient,
		tokens,
		dispatcher,
		time.Duration(cfg.VerCodeExpSec)*time.Second,
		time.Duration(cfg.LimitSecondsGetCode)*time.Second,
		cfg.MaxTriesEmailCode,
	)

	// Воркер доставки кодов
	mailer := smtp.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, notificationsTopic, "shopcore-notifications", mailer)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	go consumer.Consume(consumerCtx)
	defer consumer.Close()
	defer stopConsumer()

	// Настраиваем роутер
	h := handler.NewHandler(authSvc, registerSvc, tokens.RefreshTTL())
	router := api.SetupRouter(h, authSvc)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
