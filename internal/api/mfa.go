package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// MFAHandler serves TOTP management under /v1/auth/mfa.
type MFAHandler struct {
	auth *auth.Service
	log  zerolog.Logger
}

// NewMFAHandler creates a new MFA handler.
func NewMFAHandler(svc *auth.Service, logger zerolog.Logger) *MFAHandler {
	return &MFAHandler{auth: svc, log: logger}
}

// Setup handles POST /v1/auth/mfa/setup. It returns the shared secret and
// the otpauth:// URI to provision an authenticator app; the second factor
// stays off until Enable confirms a code.
func (h *MFAHandler) Setup(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	setup, err := h.auth.SetupMFA(c, userID)
	if err != nil {
		return h.mapMFAError(c, err)
	}

	return c.JSON(fiber.Map{
		"secret":     setup.Secret,
		"otpauthUrl": setup.URI,
	})
}

// Enable handles POST /v1/auth/mfa/enable.
func (h *MFAHandler) Enable(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Code == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "code is required")
	}

	if err := h.auth.EnableMFA(c, userID, body.Code); err != nil {
		return h.mapMFAError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Disable handles POST /v1/auth/mfa/disable.
func (h *MFAHandler) Disable(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Code == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "code is required")
	}

	if err := h.auth.DisableMFA(c, userID, body.Code); err != nil {
		return h.mapMFAError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// mapMFAError converts MFA-layer errors to appropriate HTTP responses.
func (h *MFAHandler) mapMFAError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrMFAAlreadyEnabled):
		return httputil.Error(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrMFANotSetup), errors.Is(err, auth.ErrMFANotEnabled):
		return httputil.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidMFACode):
		return httputil.Error(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "User not found")
	default:
		h.log.Error().Err(err).Str("handler", "mfa").Msg("unhandled MFA service error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
