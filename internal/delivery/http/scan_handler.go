package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/aphrodite-labs/phishguard/internal/domain"
	"github.com/aphrodite-labs/phishguard/internal/usecase"
)

// ScanHandler exposes the scan envelope pipeline over HTTP. All routes
// require an authenticated session.
type ScanHandler struct {
	usecase *usecase.ScanUsecase
}

// NewScanHandler registers the scan routes.
func NewScanHandler(e *echo.Group, u *usecase.ScanUsecase, jwtSecret string) {
	handler := &ScanHandler{usecase: u}

	authed := e.Group("/scans", JWTMiddleware(jwtSecret))
	authed.POST("", handler.Submit)
	authed.GET("", handler.History)
	authed.GET("/:id", handler.Get)
}

type scanRequest struct {
	Type    string `json:"type" validate:"required,oneof=url email"`
	Content string `json:"content" validate:"required"`
}

// Submit scans content, encrypts and signs it, and returns the verdict
// with the persisted record id.
func (h *ScanHandler) Submit(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	result, err := h.usecase.Submit(ctx, userID(c), domain.ScanType(req.Type), req.Content, requestMeta(c))
	if err != nil {
		if err == usecase.ErrInvalidInput {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": `type must be "url" or "email" and content is required`})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "an error occurred during scanning"})
	}

	return c.JSON(http.StatusOK, result)
}

// History lists the caller's scan records.
func (h *ScanHandler) History(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	scanType := domain.ScanType(c.QueryParam("type"))

	ctx := c.Request().Context()
	scans, total, err := h.usecase.History(ctx, userID(c), scanType, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch scans"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"scans":     scans,
		"total":     total,
		"encrypted": true,
		"signed":    true,
	})
}

// Get reveals one record: decrypted content plus signature verification.
func (h *ScanHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	revealed, err := h.usecase.Reveal(ctx, userID(c), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "scan not found"})
	}
	return c.JSON(http.StatusOK, revealed)
}
