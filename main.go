package main

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"webhook-service/config"
	"webhook-service/dedup"
	"webhook-service/forwarder"
	"webhook-service/handlers"
	"webhook-service/logging"
	"webhook-service/mercadopago"
	"webhook-service/monitoring"
	"webhook-service/service"
	"webhook-service/signature"
)

func main() {
	// Initialize structured logging
	if err := logging.InitLogger(); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logging.Sync()
	defer func() {
		if err := logging.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	// Load configuration
	cfg := config.Load()

	if cfg.AccessToken == "" {
		logging.Warn("ACCESS_TOKEN not configured, payment lookups will fail")
	}

	// Initialize OpenTelemetry
	tp, tracer, err := monitoring.InitTracer(cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		logging.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	mp, _, err := monitoring.InitMeter(cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		logging.Fatal("Failed to initialize meter", zap.Error(err))
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Processor API client and pipeline collaborators
	client := mercadopago.NewClient(cfg.PaymentAPIURL, cfg.AccessToken, cfg.HTTPTimeout)
	sink := forwarder.New(cfg.SinkURL, cfg.HTTPTimeout)
	verifier := signature.NewVerifier(cfg.SigningSecret)

	var cache service.DedupCache
	if cfg.DedupEnabled {
		cache = dedup.New(cfg.DedupWindow)
	}

	pipeline := service.NewPipeline(tracer, client, sink, cache)
	runner := service.NewRunner(cfg.HTTPTimeout * 3)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := runner.Wait(ctx); err != nil {
			logging.Warn("Background tasks still running at shutdown", zap.Error(err))
		}
	}()

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(handlers.Options{
		Pipeline:          pipeline,
		Verifier:          verifier,
		Runner:            runner,
		Client:            client,
		SignatureEnforced: cfg.SignatureEnforced,
		ProcessAsync:      cfg.ProcessAsync,
		SiteBaseURL:       cfg.SiteBaseURL,
		NotificationURL:   cfg.NotificationURL,
	})

	// Setup Gin router
	r := gin.Default()

	// OpenTelemetry middleware
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMetricsMiddleware())

	// Routes
	r.GET("/health", webhookHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Any("/api/webhook", webhookHandler.Webhook)
	r.POST("/api/preferences", webhookHandler.CreatePreference)
	r.OPTIONS("/api/preferences", webhookHandler.Preflight)
	r.GET("/api/payments/:id", webhookHandler.PaymentLookup)
	r.GET("/api/account", webhookHandler.AccountCheck)

	// Start server
	logging.Info("Webhook service starting",
		zap.String("port", cfg.Port),
		zap.Bool("signature_enforced", cfg.SignatureEnforced),
		zap.Bool("dedup_enabled", cfg.DedupEnabled),
		zap.Bool("process_async", cfg.ProcessAsync),
	)
	if err := r.Run(":" + cfg.Port); err != nil {
		logging.Fatal("Failed to start server", zap.Error(err))
	}
}

// httpMetricsMiddleware records HTTP request metrics
func httpMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		// Record duration
		duration := float64(time.Since(start).Milliseconds())

		monitoring.HTTPServerDuration.Record(c.Request.Context(), duration,
			metric.WithAttributes(
				attribute.String("http_method", c.Request.Method),
				attribute.String("http_route", c.FullPath()),
				attribute.String("http_status_code", strconv.Itoa(c.Writer.Status())),
			),
		)
	}
}
