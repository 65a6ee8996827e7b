// Package api assembles the HTTP surface: middleware, handlers and routes.
package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/query-router/backend/internal/analysis"
	"github.com/query-router/backend/internal/api/handlers"
	"github.com/query-router/backend/internal/fewshot"
	"github.com/query-router/backend/internal/ingestion"
	"github.com/query-router/backend/internal/mcpserver"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/internal/middleware/ratelimit"
	"github.com/query-router/backend/internal/middleware/security"
	"github.com/query-router/backend/internal/middleware/validation"
	"github.com/query-router/backend/internal/query"
	"github.com/query-router/backend/internal/storage/sqlstore"
	"github.com/query-router/backend/pkg/logger"
)

type Config struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	BodyLimit         int
	AllowedOrigins    []string
	Development       bool
	RequestsPerMinute int
	MaxQueryLength    int
	MCPPath           string
}

// Pinger is checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Engine    *query.Engine
	Store     *sqlstore.Store
	FewShots  *fewshot.Service
	Processor *ingestion.Processor
	Analyzer  *analysis.Analyzer
	MCP       *mcpserver.Server
	// Probes are pinged by /ready in addition to the store.
	Probes map[string]Pinger
}

type Server struct {
	App     *fiber.App
	limiter *ratelimit.RateLimiter
}

func NewServer(cfg Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-ID",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		IsDevelopment:  cfg.Development,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            logger.Named("ratelimit"),
	})

	chatHandler := handlers.NewChatHandler(deps.Engine)
	fewShotHandler := handlers.NewFewShotHandler(deps.Store, deps.FewShots)
	intentHandler := handlers.NewIntentHandler(deps.Store)
	queryLogHandler := handlers.NewQueryLogHandler(deps.Store, deps.FewShots)
	applicantHandler := handlers.NewApplicantHandler(deps.Store, deps.Analyzer)
	wsHandler := handlers.NewWebSocketHandler(deps.Engine, cfg.WriteTimeout, cfg.MaxQueryLength)

	api := app.Group("/api/v1")
	api.Use(validation.Middleware(validation.Config{
		MaxQueryLength: cfg.MaxQueryLength,
		Logger:         logger.Named("validation"),
	}))

	chat := api.Group("/chat", limiter.Middleware())
	chat.Post("/", chatHandler.Chat)
	chat.Post("/classify", chatHandler.Classify)
	chat.Post("/decompose", chatHandler.Decompose)

	api.Get("/fewshots", fewShotHandler.List)
	api.Post("/fewshots", fewShotHandler.Create)
	api.Get("/fewshots/audit", fewShotHandler.AuditAll)
	api.Get("/fewshots/:id", fewShotHandler.Get)
	api.Put("/fewshots/:id", fewShotHandler.Update)
	api.Delete("/fewshots/:id", fewShotHandler.Delete)
	api.Get("/fewshots/:id/audit", fewShotHandler.Audit)

	api.Get("/intents", intentHandler.List)
	api.Post("/intents", intentHandler.Create)
	api.Get("/intents/:id", intentHandler.Get)
	api.Put("/intents/:id", intentHandler.Update)
	api.Delete("/intents/:id", intentHandler.Delete)

	api.Get("/query-logs", queryLogHandler.List)
	api.Get("/query-logs/stats", queryLogHandler.Stats)
	api.Get("/query-logs/:id", queryLogHandler.Get)
	api.Delete("/query-logs/:id", queryLogHandler.Delete)
	api.Post("/query-logs/:id/promote", queryLogHandler.Promote)

	if deps.Processor != nil {
		documentHandler := handlers.NewDocumentHandler(deps.Processor, deps.Store, int64(cfg.BodyLimit))
		api.Post("/documents", documentHandler.Upload)
		api.Get("/documents", documentHandler.List)
		api.Get("/documents/stats", documentHandler.Stats)
		api.Get("/documents/:id", documentHandler.Get)
		api.Delete("/documents/:id", documentHandler.Delete)
	}

	api.Get("/applicants", applicantHandler.List)
	api.Post("/applicants", applicantHandler.Create)
	api.Get("/applicants/:id", applicantHandler.Get)
	api.Put("/applicants/:id", applicantHandler.Update)
	api.Patch("/applicants/:id", applicantHandler.Update)
	api.Delete("/applicants/:id", applicantHandler.Delete)
	api.Post("/applicants/:id/summary", applicantHandler.Summary)
	api.Post("/applicants/:id/keywords", applicantHandler.Keywords)
	api.Post("/applicants/:id/interview-questions", applicantHandler.InterviewQuestions)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})
	api.Get("/ready", readiness(deps))
	api.Get("/metrics", metrics.MetricsHandler())

	if deps.MCP != nil {
		path := cfg.MCPPath
		if path == "" {
			path = "/mcp"
		}
		app.All(path, adaptor.HTTPHandler(deps.MCP.HTTPHandler(path)))
	}

	return &Server{App: app, limiter: limiter}
}

func readiness(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := fiber.Map{}
		ready := true

		probes := map[string]Pinger{"database": deps.Store}
		for name, p := range deps.Probes {
			probes[name] = p
		}
		for name, p := range probes {
			if err := p.Ping(ctx); err != nil {
				logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
				checks[name] = err.Error()
				ready = false
				continue
			}
			checks[name] = "ok"
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
				"checks": checks,
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
			"checks": checks,
		})
	}
}

func (s *Server) Listen(addr string) error {
	return s.App.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.App.ShutdownWithContext(ctx)
}
