package server

import (
	"errors"
	"time"

	"aimon/app/client/gpt"
	"aimon/app/service/ingest"
	"aimon/app/service/mailbox"
	"aimon/app/storage"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultAskTimeout = 120 * time.Second
	askPollInterval   = 2 * time.Second
)

type messageIn struct {
	Sender         string `json:"sender"`
	App            string `json:"app"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

func (s *Service) handleCreateMessage(c *fiber.Ctx) error {
	var body messageIn
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid body")
	}

	msg, err := s.ingestSvc.SubmitMessage(c.Context(),
		body.Sender, body.App, body.ConversationID, body.Message)
	if errors.Is(err, ingest.ErrInvalidMessage) {
		return badRequest(c, err.Error())
	}
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
		"created_at":      msg.ReceivedAt,
	})
}

func (s *Service) handleConversationMessages(c *fiber.Ctx) error {
	limit := clampLimit(c.QueryInt("limit", 200), 1000)

	msgs, err := s.storageSvc.ListConversationMessages(c.Context(), c.Params("id"), limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(msgs)
}

func (s *Service) handleSearch(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return badRequest(c, "q is required")
	}

	limit := clampLimit(c.QueryInt("limit", 50), 500)

	msgs, err := s.storageSvc.SearchMessages(c.Context(), query, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(msgs)
}

type conversationIn struct {
	ConversationID string `json:"conversation_id"`
}

func (s *Service) handleCreateSummary(c *fiber.Ctx) error {
	var body conversationIn
	if err := c.BodyParser(&body); err != nil || body.ConversationID == "" {
		return badRequest(c, "conversation_id is required")
	}

	task, err := s.storageSvc.CreateSummaryTask(c.Context(), body.ConversationID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(task)
}

func (s *Service) handleGetSummary(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid task id")
	}

	task, err := s.storageSvc.GetSummaryTask(c.Context(), int64(id))
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
	}
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(task)
}

func (s *Service) handleSuggestions(c *fiber.Ctx) error {
	var body conversationIn
	if err := c.BodyParser(&body); err != nil || body.ConversationID == "" {
		return badRequest(c, "conversation_id is required")
	}

	suggestions, err := s.suggestSvc.Suggest(c.Context(), body.ConversationID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"suggestions": suggestions})
}

type promptIn struct {
	Prompt string `json:"prompt"`
}

func (s *Service) handleSendPrompt(c *fiber.Ctx) error {
	var body promptIn
	if err := c.BodyParser(&body); err != nil || body.Prompt == "" {
		return badRequest(c, "prompt is required")
	}

	if err := s.mailboxSvc.Submit(body.Prompt); err != nil {
		if errors.Is(err, mailbox.ErrBusy) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}

		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "success", "message": "Prompt received"})
}

func (s *Service) handleGetPrompt(c *fiber.Ctx) error {
	prompt, ok := s.mailboxSvc.FetchPending()
	if !ok {
		return c.JSON(fiber.Map{"prompt": nil})
	}

	return c.JSON(fiber.Map{"prompt": prompt})
}

func (s *Service) handleAckPrompt(c *fiber.Ctx) error {
	s.mailboxSvc.Acknowledge()

	return c.JSON(fiber.Map{"status": "success"})
}

type responseIn struct {
	Response string `json:"response"`
}

func (s *Service) handleProcessResponse(c *fiber.Ctx) error {
	var body responseIn
	if err := c.BodyParser(&body); err != nil || body.Response == "" {
		return badRequest(c, "response is required")
	}

	if err := s.mailboxSvc.Resolve(body.Response); err != nil {
		if errors.Is(err, mailbox.ErrNoPendingPrompt) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}

		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":          "success",
		"message":         "Response received",
		"response_length": len(body.Response),
	})
}

// handleTestResponse answers a prompt with a direct model call, bypassing the
// browser agent entirely. The exchange still lands in the shared history so it
// shows up alongside agent-produced responses.
func (s *Service) handleTestResponse(c *fiber.Ctx) error {
	var body promptIn
	if err := c.BodyParser(&body); err != nil || body.Prompt == "" {
		return badRequest(c, "prompt is required")
	}

	response, err := s.generator.Generate(c.Context(), body.Prompt)
	if errors.Is(err, gpt.ErrTimeout) {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"error": "Model timeout",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	s.mailboxSvc.RecordExchange(body.Prompt, response)

	return c.JSON(fiber.Map{
		"status":          "success",
		"response":        response,
		"response_length": len(response),
	})
}

type askIn struct {
	Prompt         string `json:"prompt"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// handleAsk submits a prompt and blocks until the browser agent responds or
// the timeout elapses. A timeout means unknown outcome, not failure: the
// prompt stays in the slot and a late response still lands in history.
func (s *Service) handleAsk(c *fiber.Ctx) error {
	var body askIn
	if err := c.BodyParser(&body); err != nil || body.Prompt == "" {
		return badRequest(c, "prompt is required")
	}

	timeout := defaultAskTimeout
	if body.TimeoutSeconds > 0 {
		timeout = time.Duration(body.TimeoutSeconds) * time.Second
	}

	if err := s.mailboxSvc.Submit(body.Prompt); err != nil {
		if errors.Is(err, mailbox.ErrBusy) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}

		return internalError(c, err)
	}

	response, err := s.mailboxSvc.WaitForResponse(c.Context(), timeout, askPollInterval)
	if errors.Is(err, mailbox.ErrTimedOut) {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"error": "Response timeout",
		})
	}
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"response": response})
}

func (s *Service) handleStatus(c *fiber.Ctx) error {
	status := s.mailboxSvc.Status()

	return c.JSON(fiber.Map{
		"status":         "running",
		"timestamp":      time.Now(),
		"stored_prompt":  status.PromptPending,
		"acknowledged":   status.Acknowledged,
		"response_count": status.ResponseCount,
	})
}

func (s *Service) handleHistory(c *fiber.Ctx) error {
	history := s.mailboxSvc.History()

	return c.JSON(fiber.Map{
		"total_responses": len(history),
		"responses":       history,
	})
}

type clearIn struct {
	History bool `json:"history"`
}

func (s *Service) handleClear(c *fiber.Ctx) error {
	var body clearIn
	_ = c.BodyParser(&body)

	s.mailboxSvc.Clear(body.History)

	return c.JSON(fiber.Map{"status": "success", "message": "Data cleared"})
}

func clampLimit(limit, maxLimit int) int {
	if limit < 1 {
		return 1
	}
	if limit > maxLimit {
		return maxLimit
	}

	return limit
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
