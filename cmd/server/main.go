package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/config"
	"github.com/kingwillyo/BellBuy-sub001/internal/api"
	"github.com/kingwillyo/BellBuy-sub001/internal/broker"
	"github.com/kingwillyo/BellBuy-sub001/internal/realtime"
	"github.com/kingwillyo/BellBuy-sub001/internal/redisclient"
	"github.com/kingwillyo/BellBuy-sub001/internal/service"
	"github.com/kingwillyo/BellBuy-sub001/internal/store"
	"github.com/kingwillyo/BellBuy-sub001/internal/util"
	"github.com/kingwillyo/BellBuy-sub001/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting bellbuy orders service")

	tp, err := util.InitTracer("bellbuy-orders", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	verifier := service.NewFunctionVerifier(cfg.Verifier.FunctionURL, cfg.Verifier.ServiceToken)
	payments := service.NewPaymentsClient(cfg.Payments.BaseURL, cfg.Payments.ServiceToken)

	orderService := service.NewOrderService(
		db,
		redisClient,
		eventPublisher,
		payments,
		time.Duration(cfg.Business.ConfirmationWindowHours)*time.Hour,
		time.Duration(cfg.Business.VerificationTTLMinutes)*time.Minute,
		int64(cfg.Business.PlatformFeeBps),
	)
	settlement := service.NewSettlementService(db, eventPublisher)
	verification := service.NewVerificationService(db, redisClient, verifier, settlement)

	hub := realtime.NewHub()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	eventWorker := worker.NewEventWorker(consumer, orderService, hub)
	go func() {
		if err := eventWorker.Start(workerCtx); err != nil {
			log.Printf("Event worker error: %v", err)
		}
	}()

	deadlineWorker := worker.NewDeadlineWorker(orderService,
		time.Duration(cfg.Business.DeadlineSweepSeconds)*time.Second)
	go deadlineWorker.Start(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, verification, hub, cfg.Auth.JWTSecret)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	eventWorker.Stop()

	log.Println("Server exited")
}
