package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-dispatch/bus"
	"github.com/yeremiapane/order-dispatch/config"
	"github.com/yeremiapane/order-dispatch/database"
	"github.com/yeremiapane/order-dispatch/kds"
	"github.com/yeremiapane/order-dispatch/router"
	"github.com/yeremiapane/order-dispatch/services"
	"github.com/yeremiapane/order-dispatch/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}
	utils.InitLogger(cfg.LogLevel)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		utils.ErrorLogger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog := services.NewGormCatalog()
	registry := services.NewAssignmentRegistry(db)
	visibility := services.NewVisibilityService(db, catalog, registry, cfg.SpecialtyCategory)

	hub := kds.NewHub(kds.Config{
		MaxClients:        cfg.WSMaxClients,
		SendBuffer:        cfg.WSSendBuffer,
		MessagesPerSecond: cfg.WSMessagesPerSecond,
	}, visibility)
	go hub.Run(ctx)

	notifiers := services.Notifiers{hub}
	var relay *bus.Relay
	switch cfg.EventBus {
	case "amqp":
		sink, err := bus.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			utils.ErrorLogger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		relay = bus.NewRelay(sink, 0)
	case "kafka":
		relay = bus.NewRelay(bus.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic), 0)
	}
	if relay != nil {
		go relay.Run(ctx)
		notifiers = append(notifiers, relay)
		utils.InfoLogger.Printf("Relaying order events via %s", cfg.EventBus)
	}

	cash := services.NewCashSessionStore(db)
	orders := services.NewOrderService(db, catalog, services.NewInventoryLedger(), cash, notifiers)

	r := router.SetupRouter(router.Dependencies{
		DB:          db,
		Secret:      []byte(cfg.JWTSecret),
		RateLimit:   cfg.HTTPRateLimit,
		Orders:      orders,
		Visibility:  visibility,
		Assignments: registry,
		Cash:        cash,
		Hub:         hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	<-ctx.Done()
	utils.InfoLogger.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.ErrorLogger.Printf("Graceful shutdown failed: %v", err)
	}
	if relay != nil {
		select {
		case <-relay.Done():
		case <-shutdownCtx.Done():
		}
	}
}
