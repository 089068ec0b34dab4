package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// AuthHandler serves registration, login and logout.
type AuthHandler struct {
	auth *auth.Service
	log  zerolog.Logger
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(svc *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, log: logger}
}

// authResponse is the body of a successful register or login.
type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Register handles POST /v1/auth/register.
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var body struct {
		Email       string `json:"email"`
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
		Password    string `json:"password"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	result, err := h.auth.Register(c, auth.RegisterRequest{
		Email:       body.Email,
		Username:    body.Username,
		DisplayName: body.DisplayName,
		Password:    body.Password,
	})
	if err != nil {
		return h.mapAuthError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(authResponse{Token: result.Token, User: result.User})
}

// Login handles POST /v1/auth/login. The identifier resolves as an email
// when it contains "@", otherwise as a username.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
		OTP        string `json:"otp"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Identifier == "" || body.Password == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "identifier and password are required")
	}

	result, err := h.auth.Login(c, auth.LoginRequest{
		Identifier: body.Identifier,
		Password:   body.Password,
		OTP:        body.OTP,
	})
	if err != nil {
		return h.mapAuthError(c, err)
	}

	return c.JSON(authResponse{Token: result.Token, User: result.User})
}

// Logout handles POST /v1/auth/logout. Deleting an unknown token is still a
// 204, so retries are harmless.
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	token := auth.RequestToken(c)
	if err := h.auth.Logout(c, token); err != nil {
		return h.mapAuthError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// mapAuthError converts auth-layer errors to appropriate HTTP responses.
func (h *AuthHandler) mapAuthError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrUsernameLength),
		errors.Is(err, auth.ErrUsernameInvalidChars),
		errors.Is(err, auth.ErrDisplayNameLength),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong):
		return httputil.Error(c, fiber.StatusBadRequest, err.Error())

	case errors.Is(err, store.ErrEmailTaken),
		errors.Is(err, store.ErrUsernameTaken):
		return httputil.Error(c, fiber.StatusConflict, err.Error())

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrMFARequired),
		errors.Is(err, auth.ErrInvalidMFACode):
		return httputil.Error(c, fiber.StatusUnauthorized, err.Error())

	default:
		h.log.Error().Err(err).Str("handler", "auth").Msg("unhandled auth service error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
