package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kitab-ai/kitab/internal/rag"
	"github.com/kitab-ai/kitab/internal/translation"
)

// httpError maps engine and cache sentinels onto stable status codes.
// Infrastructure failures surface as 5xx, never as a fallback answer.
func httpError(err error) error {
	switch {
	case errors.Is(err, rag.ErrInvalidSelection),
		errors.Is(err, translation.ErrUnsupportedLanguage),
		errors.Is(err, translation.ErrSourceMissing):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, rag.ErrEmbeddingUnavailable),
		errors.Is(err, rag.ErrIndexUnavailable),
		errors.Is(err, rag.ErrGenerationUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, rag.ErrGenerationTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
