// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/chattalk/backend/internal/config"
	"github.com/chattalk/backend/internal/events"
	"github.com/chattalk/backend/internal/http/handlers"
	"github.com/chattalk/backend/internal/http/middleware"
	"github.com/chattalk/backend/internal/services"
	"github.com/chattalk/backend/internal/ws"
)

// App bundles the long-lived application components the HTTP layer serves.
// main owns the App so it can run the boot sweep and drive graceful shutdown
// (stop timers, close the hub) independently of the router.
type App struct {
	Hub      *events.Hub
	Wallets  *services.WalletService
	TopUps   *services.TopUpService
	Sessions *services.SessionService
	Messages *services.MessageService
}

// NewApp constructs the service graph on top of db per cfg.
func NewApp(db *gorm.DB, cfg config.Config) *App {
	hub := events.NewHub(cfg.Chat.EventBuffer)
	wallets := services.NewWalletService(db, hub)
	topups := services.NewTopUpService(db, hub, wallets,
		cfg.TopUp.MinimumRecharge, cfg.TopUp.MinReferenceLen, cfg.TopUp.RejectReasonMaxLen)
	sessions := services.NewSessionService(db, hub, wallets,
		cfg.Billing.UnitCost, cfg.Billing.Period)
	sessions.Welcome = cfg.Chat.WelcomeMessage
	messages := services.NewMessageService(db, hub, sessions, cfg.Chat.MaxMessageRunes)

	return &App{
		Hub:      hub,
		Wallets:  wallets,
		TopUps:   topups,
		Sessions: sessions,
		Messages: messages,
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the versioned public API and the PIN-gated admin surface under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with the admin PIN masked
//  4. Recovery: capture panics after logger
//  5. Identity: lift X-User-ID into context (rate limiter keys on it)
//  6. Body size limiter and gzip (WebSocket routes excluded)
//  7. Metrics
//  8. Rate limiter (per user/IP)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, app *App, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			middleware.HeaderAdminPIN,
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Caller identity for rate limiting and handlers
	r.Use(middleware.Identity())

	// 6) Global body size limit (64 KiB; payloads here are small JSON) + gzip.
	r.Use(limitBody(64 << 10))
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		joinPath(apiBase, "/ws"),
		joinPath(apiBase, "/admin/ws"),
		"/metrics",
	})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderAdminPIN,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(app.Wallets, app.TopUps, app.Sessions, app.Messages)
	gw := ws.NewGateway(app.Hub, cfg.CORS.AllowedOrigins)

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Wallet & top-ups
		api.GET("/status", h.GetStatus)
		api.POST("/topups", h.SubmitTopUp)
		api.GET("/topups", h.ListTopUps)

		// Session lifecycle
		api.POST("/session/start", h.StartSession)
		api.POST("/session/stop", h.StopSession)
		api.POST("/session/clear", h.ClearChat)

		// Messages
		api.POST("/messages", h.PostMessage)
		api.GET("/messages", h.ListMessages)

		// Live events
		api.GET("/ws", gw.ServeUser)
	}

	// Operator surface, PIN-gated
	admin := api.Group("/admin", middleware.AdminPIN(cfg.AdminPIN))
	{
		admin.GET("/topups", h.ListPendingTopUps)
		admin.POST("/topups/:id/approve", h.ApproveTopUp)
		admin.POST("/topups/:id/reject", h.RejectTopUp)

		admin.GET("/users/:id/messages", h.AdminListMessages)
		admin.POST("/users/:id/messages", h.AdminPostMessage)
		admin.POST("/users/:id/session/stop", h.AdminStopSession)
		admin.POST("/users/:id/session/clear", h.AdminClearChat)

		admin.GET("/ws", gw.ServeOperator)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath concatenates a base path and a suffix without doubling slashes.
func joinPath(base, suffix string) string {
	if base == "" || base == "/" {
		return suffix
	}
	return base + suffix
}
