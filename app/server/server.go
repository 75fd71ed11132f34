package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"aimon/app/client/gpt"
	"aimon/app/config"
	"aimon/app/service/ingest"
	"aimon/app/service/mailbox"
	"aimon/app/service/suggest"
	"aimon/app/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/samber/do"
)

const shutdownTimeout = 10 * time.Second

// Generator produces a model completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	cfg        *config.Config
	app        *fiber.App
	storageSvc *storage.Service
	ingestSvc  *ingest.Service
	mailboxSvc *mailbox.Service
	suggestSvc *suggest.Service
	generator  Generator
}

func New(di *do.Injector) (*Service, error) {
	s := &Service{
		cfg:        do.MustInvoke[*config.Config](di),
		storageSvc: do.MustInvoke[*storage.Service](di),
		ingestSvc:  do.MustInvoke[*ingest.Service](di),
		mailboxSvc: do.MustInvoke[*mailbox.Service](di),
		suggestSvc: do.MustInvoke[*suggest.Service](di),
		generator:  do.MustInvoke[*gpt.Client](di),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	s.setupRoutes()

	return s, nil
}

func (s *Service) setupRoutes() {
	s.app.Use(cors.New())

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	// everything below the health check requires the shared key
	s.app.Use(s.requireAPIKey)

	s.app.Post("/messages", s.handleCreateMessage)
	s.app.Post("/webhook", s.handleCreateMessage)
	s.app.Get("/conversations/:id/messages", s.handleConversationMessages)
	s.app.Get("/search", s.handleSearch)

	s.app.Post("/summaries", s.handleCreateSummary)
	s.app.Get("/summaries/:id", s.handleGetSummary)
	s.app.Post("/suggestions", s.handleSuggestions)

	s.app.Post("/send-prompt", s.handleSendPrompt)
	s.app.Get("/get-prompt", s.handleGetPrompt)
	s.app.Post("/ack-prompt", s.handleAckPrompt)
	s.app.Post("/process-response", s.handleProcessResponse)
	s.app.Post("/test-response", s.handleTestResponse)
	s.app.Post("/ask", s.handleAsk)
	s.app.Get("/status", s.handleStatus)
	s.app.Get("/history", s.handleHistory)
	s.app.Post("/clear", s.handleClear)
}

func (s *Service) requireAPIKey(c *fiber.Ctx) error {
	if c.Get("X-API-Key") != s.cfg.API.Key {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	return c.Next()
}

// Run serves HTTP until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()

		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			slog.Error("Failed to shut down http server", "error", err)
		}
	}()

	slog.Info("HTTP server listening", "addr", s.cfg.API.Listen)

	if err := s.app.Listen(s.cfg.API.Listen); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("HTTP server stopped", "error", err)
	}
}
