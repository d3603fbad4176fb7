package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kitab-ai/kitab/internal/rag"
)

// AnswerEngine is the orchestration surface the chat handlers depend on.
type AnswerEngine interface {
	AnswerFullBook(ctx context.Context, question, conversationID, userID string) (rag.AnswerResult, error)
	AnswerSelectedText(ctx context.Context, question, selectedText, conversationID string) (rag.AnswerResult, error)
}

// ChatHandler exposes the two question-answering modes.
type ChatHandler struct {
	Engine AnswerEngine
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("", h.answerFullBook)
	g.POST("/selection", h.answerSelectedText)
}

func (h *ChatHandler) answerFullBook(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	result, err := h.Engine.AnswerFullBook(c.Request().Context(), req.Question, req.ConversationID, userID(c))
	if err != nil {
		return httpError(err)
	}
	queriesTotal.WithLabelValues("full_book", strconv.FormatBool(result.IsCovered)).Inc()
	return c.JSON(http.StatusOK, ChatResponse{
		Answer:         result.Text,
		Citations:      result.Citations,
		IsCovered:      result.IsCovered,
		ConversationID: result.ConversationID,
	})
}

func (h *ChatHandler) answerSelectedText(c echo.Context) error {
	var req SelectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	result, err := h.Engine.AnswerSelectedText(c.Request().Context(), req.Question, req.SelectedText, req.ConversationID)
	if err != nil {
		return httpError(err)
	}
	queriesTotal.WithLabelValues("selected_text", strconv.FormatBool(result.IsCovered)).Inc()
	return c.JSON(http.StatusOK, ChatResponse{
		Answer:         result.Text,
		IsCovered:      result.IsCovered,
		ConversationID: result.ConversationID,
	})
}
