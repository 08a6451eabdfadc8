package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aphrodite-labs/phishguard/internal/usecase"
)

// MFAHandler handles MFA enrollment and management. All routes require an
// authenticated session.
type MFAHandler struct {
	usecase *usecase.AuthUsecase
}

// NewMFAHandler registers the MFA management routes.
func NewMFAHandler(e *echo.Group, u *usecase.AuthUsecase, jwtSecret string) {
	handler := &MFAHandler{usecase: u}

	authed := e.Group("/mfa", JWTMiddleware(jwtSecret))
	authed.POST("/setup", handler.Setup)
	authed.POST("/enable", handler.Enable)
	authed.DELETE("", handler.Disable)
	authed.POST("/totp/verify", handler.VerifyTOTP)
	authed.PUT("/email-otp", handler.SetEmailOTP)
}

// codeRequest is used wherever a single 6-digit code is verified.
type codeRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

type emailOTPToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// Setup generates a new TOTP secret for the user. The secret stays
// disabled until Enable verifies a code from the bound device.
func (h *MFAHandler) Setup(c echo.Context) error {
	provision, err := h.usecase.SetupTOTP(c.Request().Context(), userID(c))
	if err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, provision)
}

// Enable verifies the provided code and officially turns on TOTP for the
// user account.
func (h *MFAHandler) Enable(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if err := h.usecase.EnableTOTP(c.Request().Context(), userID(c), req.Code, requestMeta(c)); err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "mfa_enabled_successfully"})
}

// Disable turns off TOTP and discards the secret.
func (h *MFAHandler) Disable(c echo.Context) error {
	if err := h.usecase.DisableTOTP(c.Request().Context(), userID(c), requestMeta(c)); err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "mfa_disabled_successfully"})
}

// VerifyTOTP checks a code against the enabled secret without side
// effects (security settings self-test).
func (h *MFAHandler) VerifyTOTP(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	valid, err := h.usecase.VerifyTOTP(c.Request().Context(), userID(c), req.Code, requestMeta(c))
	if err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": valid})
}

// SetEmailOTP toggles the email OTP factor.
func (h *MFAHandler) SetEmailOTP(c echo.Context) error {
	var req emailOTPToggleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if err := h.usecase.SetEmailOTP(c.Request().Context(), userID(c), req.Enabled, requestMeta(c)); err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"enabled": req.Enabled})
}
