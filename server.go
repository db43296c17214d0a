package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/middlewares"
	"github.com/yeboahd24/t-beauty/models"
	"github.com/yeboahd24/t-beauty/utils"
	"github.com/yeboahd24/t-beauty/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

var tracer = otel.Tracer("t-beauty")

// tracingMiddleware opens a server span per request so handler work nests
// under the same trace as the otelgorm query spans.
func tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		spanName := c.Request.Method + " " + c.FullPath()
		if c.FullPath() == "" {
			spanName = c.Request.Method + " " + c.Request.URL.Path
		}
		ctx, span := tracer.Start(c.Request.Context(), spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", c.FullPath()),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}

type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// pushEnvelope is the Pub/Sub push delivery wrapper.
type pushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func getRedisClient(redisAddress string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
}

// domainEventPushHandler receives pushed domain events and runs the consumer
// workflow. Non-2xx tells Pub/Sub to retry; malformed payloads are acked so
// they never loop.
func domainEventPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var envelope pushEnvelope
		logger := config.GetLogger()

		// Redis lock is a best-effort optimization; correctness comes from
		// the MySQL advisory lock inside ProcessMessage.
		redisLock := config.GetRedisLock()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "domainEventPushHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		if err := utils.UnmarshalFromJSON(body, &envelope); err != nil {
			config.LogError(logger, "server.go", "domainEventPushHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var m config.PubSubMessage
		if err := utils.UnmarshalFromJSON(envelope.Message.Data, &m); err != nil {
			config.LogError(logger, "server.go", "domainEventPushHandler", "Unmarshal pubsub message", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}

		if m.OwnerId == "" || m.ReferenceType == "" {
			config.LogError(logger, "server.go", "domainEventPushHandler", "Invalid pubsub message (missing required fields)", m, fmt.Errorf("owner_id/reference_type required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationID := m.CorrelationId
		if correlationID == "" {
			correlationID = envelope.Message.ID
		}

		var lock *redislock.Lock
		if redisLock == nil {
			logger.WithFields(logrus.Fields{
				"field":          "domainEventPushHandler",
				"owner_id":       m.OwnerId,
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     envelope.Message.ID,
			}).Warn("redis lock not ready; proceeding without redis lock")
		} else {
			lock, err = redisLock.Obtain(c.Request.Context(), fmt.Sprintf("lock:%s", m.OwnerId), 30*time.Second, nil)
			if err != nil {
				if err != redislock.ErrNotObtained {
					logger.WithFields(logrus.Fields{
						"field":    "domainEventPushHandler",
						"owner_id": m.OwnerId,
					}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
				}
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(c.Request.Context()); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"field":      "domainEventPushHandler",
					"owner_id":   m.OwnerId,
					"message_id": envelope.Message.ID,
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		ctx := utils.SetOwnerIdInContext(c.Request.Context(), m.OwnerId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, correlationID)
		if err := ProcessMessage(ctx, logger, m); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "domainEventPushHandler",
				"owner_id":       m.OwnerId,
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     envelope.Message.ID,
				"correlation_id": correlationID,
			}).Error("pubsub processing failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the startup probe passes. Until DB/Redis
	// are ready, app endpoints return 503.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(tracingMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production the allowlist must be explicit; anything else is denied.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/auth/login", loginHandler())
	r.POST("/pubsub", domainEventPushHandler())

	authed := r.Group("/", middlewares.RequireAuth())
	authed.POST("/auth/change-password", changePasswordHandler())

	authed.GET("/users", listUsersHandler())
	authed.POST("/users", createUserHandler())
	authed.GET("/users/:id", getUserHandler())
	authed.PUT("/users/:id", updateUserHandler())
	authed.DELETE("/users/:id", deleteUserHandler())

	authed.POST("/customers", createCustomerHandler())
	authed.GET("/customers", listCustomersHandler())
	authed.GET("/customers/:id", getCustomerHandler())
	authed.PUT("/customers/:id", updateCustomerHandler())
	authed.POST("/customers/:id/toggle-active", toggleActiveCustomerHandler())
	authed.DELETE("/customers/:id", deleteCustomerHandler())

	authed.POST("/products", createProductHandler())
	authed.GET("/products", listProductsHandler())
	authed.GET("/products/:id", getProductHandler())
	authed.PUT("/products/:id", updateProductHandler())
	authed.POST("/products/:id/toggle-active", toggleActiveProductHandler())
	authed.DELETE("/products/:id", deleteProductHandler())

	authed.POST("/inventory-units", createInventoryUnitHandler())
	authed.GET("/inventory-units", listInventoryUnitsHandler())
	authed.GET("/inventory-units/low-stock", listUnitsHandler(func(c *gin.Context) ([]*models.InventoryUnit, error) {
		return models.ListLowStockUnits(c.Request.Context())
	}))
	authed.GET("/inventory-units/out-of-stock", listUnitsHandler(func(c *gin.Context) ([]*models.InventoryUnit, error) {
		return models.ListOutOfStockUnits(c.Request.Context())
	}))
	authed.GET("/inventory-units/reorder-suggestions", listUnitsHandler(func(c *gin.Context) ([]*models.InventoryUnit, error) {
		return models.ListReorderSuggestions(c.Request.Context())
	}))
	authed.GET("/inventory-units/stats", inventoryStatsHandler())
	authed.GET("/inventory-units/:id", getInventoryUnitHandler())
	authed.PUT("/inventory-units/:id", updateInventoryUnitHandler())
	authed.POST("/inventory-units/:id/receive", receiveStockHandler())
	authed.POST("/inventory-units/:id/adjust", adjustStockHandler())
	authed.POST("/inventory-units/:id/toggle-active", toggleActiveInventoryUnitHandler())
	authed.GET("/inventory-units/:id/ledger", stockLedgerHandler())

	authed.POST("/orders", createOrderHandler())
	authed.GET("/orders", listOrdersHandler())
	authed.GET("/orders/stats", orderStatsHandler())
	authed.GET("/orders/:id", getOrderHandler())
	authed.POST("/orders/:id/confirm", confirmOrderHandler())
	authed.POST("/orders/:id/cancel", cancelOrderHandler())
	authed.POST("/orders/:id/status", updateOrderStatusHandler())
	authed.POST("/orders/:id/payment", updatePaymentStatusHandler())
	authed.POST("/orders/:id/lines/:lineId/fulfill", fulfillOrderLineHandler())
	authed.GET("/orders/:id/allocation", allocationStatusHandler())

	authed.GET("/reports/stock-movements", stockMovementReportHandler(false))
	authed.GET("/reports/stock-movements/export", stockMovementReportHandler(true))
	authed.GET("/reports/sales-by-product", salesByProductReportHandler(false))
	authed.GET("/reports/sales-by-product/export", salesByProductReportHandler(true))

	// Ops tooling (admin only).
	authed.POST("/internal/ops/outbox/replay", outboxReplayHandler())
	authed.POST("/internal/ops/ledger/rebuild", ledgerRebuildHandler())
	authed.POST("/internal/ops/reorder-scan", reorderScanHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (the startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate runs DDL that can block tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Background workers: outbox dispatcher (publishes AFTER commit), the
	// direct consumer fallback, and the reorder point scanner.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go workflow.NewOutboxDispatcher(db, logger).Run(workerCtx)
	if shouldRunDirectOutboxProcessor() {
		go NewOutboxDirectProcessor(db, logger).Run(workerCtx)
	}
	go workflow.RunReorderScanLoop(workerCtx, db, logger, 0)

	// Set the session isolation level to READ COMMITTED.
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while draining.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs request errors only.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
