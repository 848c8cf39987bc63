package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradedash/internal/api"
	"tradedash/internal/config"
	"tradedash/internal/feed"
	"tradedash/internal/metrics"
	"tradedash/internal/store"
	"tradedash/internal/websocket"
	"tradedash/pkg/utils"
)

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer utils.Sync()

	// Хранилище состояния
	st := store.New(store.Options{
		TradesLimit:    cfg.Store.TradesLimit,
		EquityLimit:    cfg.Store.EquityLimit,
		InitialBalance: cfg.Store.InitialBalance,
	})
	st.Subscribe(metrics.StoreObserver())

	// Relay для downstream клиентов
	hub := websocket.NewHub(websocket.HubConfig{
		HeartbeatInterval: cfg.Relay.HeartbeatInterval,
		AllowedOrigins:    cfg.Relay.AllowedOrigins,
	}, logger)
	hub.Attach(st)
	go hub.Run()

	// Upstream фид
	upstream, err := feed.NewFeed(cfg, st, logger)
	if err != nil {
		logger.Fatal("failed to create feed", utils.Err(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := upstream.Run(ctx); err != nil {
			logger.Error("feed stopped with error", utils.Feed(upstream.Name()), utils.Err(err))
		}
	}()

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		Store:              st,
		Hub:                hub,
		Feed:               upstream,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Logger:             logger,
	})

	// WriteTimeout не задан: /ws/stream держит соединение
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			utils.String("addr", server.Addr),
			utils.Feed(upstream.Name()),
			utils.Any("symbols", cfg.Feed.Symbols))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", utils.Err(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutting down", utils.String("signal", sig.String()))

	// Намеренная остановка фида: без переподключений
	cancel()
	wg.Wait()

	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	logger.Info("server exited")
}
