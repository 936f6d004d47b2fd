package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cocagne-tracker/internal/config"
	"github.com/ukydev/cocagne-tracker/internal/db"
	"github.com/ukydev/cocagne-tracker/internal/handlers"
	"github.com/ukydev/cocagne-tracker/internal/notify"
	"github.com/ukydev/cocagne-tracker/internal/route"
	"github.com/ukydev/cocagne-tracker/internal/session"
	"github.com/ukydev/cocagne-tracker/internal/storage"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ConfigureLogging(cfg.Log); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	client, err := db.ConnectMongo(cfg.Mongo.URI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}()
	log.WithField("db", cfg.Mongo.DBName).Info("Connected to MongoDB")
	store := db.NewStore(client, cfg.Mongo.DBName)

	hub := notify.NewHub()
	sinks, cleanup := buildSinks(cfg, notify.NewFeedSink(store.Notifications, hub), store.PushTokens)
	defer cleanup()

	manager := session.NewManager(
		store.Tours,
		buildResolver(cfg.Mapbox),
		notify.NewCompletion(store.Tours, sinks),
		session.Options{Cooldown: cfg.Tracker.ScanCooldown, RouteTimeout: cfg.Tracker.RouteTimeout},
	)
	defer manager.CloseAll()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(cfg, store, manager, hub, buildUploader(cfg.S3)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}

func newRouter(cfg config.Config, store *db.Store, manager *session.Manager, hub *notify.Hub, uploader handlers.Uploader) http.Handler {
	return handlers.NewRouter(handlers.Router{
		Tours:         handlers.NewTourHandler(store.Tours),
		Sessions:      handlers.NewSessionHandler(manager),
		Photos:        handlers.NewPhotoHandler(manager, uploader, store.Proofs),
		Notifications: handlers.NewNotificationHandler(store.Notifications, store.PushTokens, hub),
		ScanLimit: handlers.RateLimit{
			Requests: cfg.RateLimit.Scans,
			Window:   time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
		},
	})
}

// buildResolver returns nil when no Mapbox token is configured.
func buildResolver(cfg config.MapboxConfig) route.Resolver {
	if cfg.Token == "" {
		log.Warn("MAPBOX_TOKEN not set, routes will not be drawn")
		return nil
	}
	resolver, err := route.NewMapboxResolver(cfg.Token,
		route.WithBaseURL(cfg.BaseURL),
		route.WithProfile(cfg.Profile),
		route.WithLanguage(cfg.Language),
	)
	if err != nil {
		log.WithError(err).Warn("Directions disabled")
		return nil
	}
	return resolver
}

func buildUploader(cfg config.S3Config) handlers.Uploader {
	if cfg.Bucket == "" {
		log.Info("S3_BUCKET not set, proof photos disabled")
		return nil
	}
	uploader, err := storage.NewUploader(context.Background(), cfg)
	if err != nil {
		log.WithError(err).Warn("Proof photos disabled")
		return nil
	}
	return uploader
}

// buildSinks assembles the delivery notification fan-out. The feed and Expo
// push sinks are always on, MQTT and Telegram only when configured.
func buildSinks(cfg config.Config, feed notify.Sink, tokens notify.TokenStore) (notify.Multi, func()) {
	sinks := notify.Multi{feed, notify.NewExpoSink(cfg.Expo.PushURL, tokens)}
	cleanup := func() {}

	if cfg.MQTT.Broker != "" {
		client, err := notify.ConnectMQTT(cfg.MQTT)
		if err != nil {
			log.WithError(err).Warn("MQTT notifications disabled")
		} else {
			sinks = append(sinks, notify.NewMQTTSink(client, cfg.MQTT.TopicPrefix))
			cleanup = func() { client.Disconnect(250) }
		}
	}

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.WithError(err).Warn("Telegram notifications disabled")
		} else {
			log.WithField("bot", bot.Self.UserName).Info("Telegram notifications enabled")
			sinks = append(sinks, notify.NewTelegramSink(bot, cfg.Telegram.ChatID))
		}
	}
	return sinks, cleanup
}
