package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coedit/internal/core/ports"
	"coedit/internal/core/services"
	httphandlers "coedit/internal/handlers/http"
	"coedit/internal/infrastructure/middleware"
	"coedit/internal/infrastructure/monitoring"
	"coedit/internal/infrastructure/relay"
	"coedit/internal/infrastructure/storage"
	webrtcinfra "coedit/internal/infrastructure/webrtc"
	"coedit/pkg/circuitbreaker"
	"coedit/pkg/config"
	"coedit/pkg/logger"
	"coedit/pkg/retry"
	"coedit/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing init failed", "error", err)
	} else {
		defer tp.Shutdown(context.Background())
	}

	var collector ports.Collector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
	} else {
		collector = monitoring.NopCollector{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Relay channel: the realtime transport both sessions share.
	channel := relay.NewChannel(cfg.Relay.URL, relay.Options{
		PingInterval: cfg.Relay.PingInterval,
		PongTimeout:  cfg.Relay.PongTimeout,
		WriteTimeout: cfg.Relay.WriteTimeout,
		Reconnect: retry.Config{
			MaxAttempts:  cfg.Relay.Reconnect.MaxAttempts,
			InitialDelay: cfg.Relay.Reconnect.InitialDelay,
			MaxDelay:     cfg.Relay.Reconnect.MaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}, collector, log)

	// REST persistence and auth collaborator.
	store := storage.NewClient(cfg.API.BaseURL, cfg.API.RequestTimeout, log)

	// ICE servers from config, with a public STUN fallback.
	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	connector := webrtcinfra.NewConnector(channel, webrtcinfra.Config{ICEServers: iceServers}, log)
	media := webrtcinfra.NewRTPSource(webrtcinfra.CaptureConfig{
		AudioAddress: cfg.WebRTC.Capture.AudioAddress,
		VideoAddress: cfg.WebRTC.Capture.VideoAddress,
	}, log)

	saverConfig := circuitbreaker.DefaultConfig()
	saverConfig.FailureThreshold = cfg.API.Autosave.FailureThreshold
	saverConfig.Timeout = cfg.API.Autosave.RecoveryTimeout
	saver := circuitbreaker.New(saverConfig)

	peers := services.NewPeerConnectionManager(collector, log)
	docs := services.NewDocumentSyncSession(channel, store, saver, collector, log)
	call := services.NewCallSignalingSession(channel, media, connector, peers, collector, log)
	coordinator := services.NewSessionCoordinator(store, store, store, docs, call, log)

	// A rejected credential tears the session down locally.
	store.SetUnauthorizedHandler(coordinator.HandleUnauthorized)

	if err := channel.Connect(ctx); err != nil {
		log.Fatalw("relay connection failed", "url", cfg.Relay.URL, "error", err)
	}

	health := monitoring.NewHealthChecker()
	health.AddCheck("relay", 2*time.Second, func(ctx context.Context) error {
		if !channel.Connected() {
			return fmt.Errorf("relay channel disconnected")
		}
		return nil
	})

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestLoggerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewRateLimitMiddleware(cfg))
	router.Use(middleware.ErrorHandlerMiddleware(log))

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	handler := httphandlers.NewSessionHandler(coordinator, health)
	handler.SetupRoutes(router)

	server := &http.Server{
		Addr:         cfg.Control.Address,
		Handler:      router,
		ReadTimeout:  cfg.Control.ReadTimeout,
		WriteTimeout: cfg.Control.WriteTimeout,
	}

	go func() {
		log.Infow("control API listening", "address", cfg.Control.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("control server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")

	// Leave gracefully so the room sees the departure before the socket dies.
	coordinator.Logout()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("control server shutdown", "error", err)
	}
	if err := channel.Close(); err != nil {
		log.Warnw("relay channel close", "error", err)
	}

	log.Infow("shutdown complete")
	os.Exit(0)
}
