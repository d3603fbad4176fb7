package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kitab-ai/kitab/internal/translation"
)

// TranslationCache is the state-machine surface the translation handlers
// depend on.
type TranslationCache interface {
	Get(ctx context.Context, sectionID, language string) (translation.Status, error)
	Request(ctx context.Context, sectionID, language, sourceText string) (translation.Status, error)
}

// TranslationsHandler exposes the translation cache over HTTP.
type TranslationsHandler struct {
	Cache TranslationCache
}

func (h *TranslationsHandler) Register(g *echo.Group) {
	g.GET("/:section", h.getTranslation)
	g.POST("/:section", h.requestTranslation)
}

func (h *TranslationsHandler) getTranslation(c echo.Context) error {
	lang := c.QueryParam("language")
	if lang == "" {
		lang = "ur"
	}
	status, err := h.Cache.Get(c.Request().Context(), c.Param("section"), lang)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *TranslationsHandler) requestTranslation(c echo.Context) error {
	var req TranslationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Language == "" {
		req.Language = "ur"
	}
	status, err := h.Cache.Request(c.Request().Context(), c.Param("section"), req.Language, req.SourceText)
	if err != nil {
		return httpError(err)
	}
	translationRequestsTotal.WithLabelValues(status.Status).Inc()
	code := http.StatusOK
	if status.Status == translation.StatusGenerating || status.Status == translation.StatusPending {
		code = http.StatusAccepted
	}
	return c.JSON(code, status)
}
