package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aphrodite-labs/phishguard/internal/domain"
	"github.com/aphrodite-labs/phishguard/internal/usecase"
)

// AuthHandler represents the HTTP delivery layer for authentication.
type AuthHandler struct {
	usecase *usecase.AuthUsecase
}

// NewAuthHandler registers the authentication routes to the provided echo
// group.
func NewAuthHandler(e *echo.Group, u *usecase.AuthUsecase, jwtSecret string) {
	handler := &AuthHandler{usecase: u}

	e.POST("/auth/login", handler.Login)
	e.POST("/auth/mfa/complete", handler.CompleteMFA)
	e.POST("/auth/refresh", handler.Refresh)
	e.POST("/auth/logout", handler.Logout)

	authed := e.Group("", JWTMiddleware(jwtSecret))
	authed.POST("/auth/email-otp", handler.RequestEmailOTP)
	authed.POST("/auth/email-otp/verify", handler.VerifyEmailOTP)
}

// loginRequest defines the expected JSON payload for the login endpoint.
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// completeMFARequest carries the second authentication step.
type completeMFARequest struct {
	UserID string `json:"user_id" validate:"required"`
	Code   string `json:"code"`
	Method string `json:"method" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type otpVerifyRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// Login handles the initial authentication request. When MFA is
// configured the response carries mfa_required instead of a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	result, err := h.usecase.Login(ctx, req.Email, req.Password, requestMeta(c))
	if err != nil {
		return authError(c, err)
	}

	if result.MFARequired {
		return c.JSON(http.StatusAccepted, result)
	}
	return c.JSON(http.StatusOK, result)
}

// CompleteMFA handles the second step of authentication for users with a
// pending challenge.
func (h *AuthHandler) CompleteMFA(c echo.Context) error {
	var req completeMFARequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	session, err := h.usecase.CompleteMFA(ctx, req.UserID, req.Code, domain.MFAMethod(req.Method), requestMeta(c))
	if err != nil {
		return authError(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

// RequestEmailOTP (re-)issues an email OTP for the authenticated user.
func (h *AuthHandler) RequestEmailOTP(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.usecase.RequestEmailOTP(ctx, userID(c), requestMeta(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to generate OTP"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "OTP sent to your email"})
}

// VerifyEmailOTP consumes a standalone email OTP.
func (h *AuthHandler) VerifyEmailOTP(c echo.Context) error {
	var req otpVerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	valid := h.usecase.VerifyEmailOTP(ctx, userID(c), req.Code, requestMeta(c))
	return c.JSON(http.StatusOK, echo.Map{"valid": valid})
}

// Refresh rotates a refresh token into a new session.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	session, err := h.usecase.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// Logout revokes a refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.Logout(c.Request().Context(), req.RefreshToken, requestMeta(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// authError maps usecase errors onto HTTP responses. Authentication
// failures stay generic so callers cannot enumerate which check failed.
func authError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input"})
	case errors.Is(err, usecase.ErrInvalidCredentials),
		errors.Is(err, usecase.ErrInvalidMFACode),
		errors.Is(err, usecase.ErrInvalidToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication failed"})
	case errors.Is(err, usecase.ErrTOTPNotConfigured):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
