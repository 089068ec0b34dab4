package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// SafetyHandler serves user reports and ban appeals.
type SafetyHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewSafetyHandler creates a new safety handler.
func NewSafetyHandler(st store.Store, logger zerolog.Logger) *SafetyHandler {
	return &SafetyHandler{store: st, log: logger}
}

// CreateReport handles POST /v1/safety/reports.
func (h *SafetyHandler) CreateReport(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	var body struct {
		TargetType model.ReportTargetType `json:"targetType"`
		TargetID   string                 `json:"targetId"`
		Reason     string                 `json:"reason"`
		Details    string                 `json:"details"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !model.ValidReportTarget(body.TargetType) {
		return httputil.Error(c, fiber.StatusBadRequest, "targetType must be one of user, message, server")
	}
	if strings.TrimSpace(body.TargetID) == "" || strings.TrimSpace(body.Reason) == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "targetId and reason are required")
	}

	report, err := h.store.CreateReport(c, store.CreateReportParams{
		ReporterID: userID,
		TargetType: body.TargetType,
		TargetID:   body.TargetID,
		Reason:     strings.TrimSpace(body.Reason),
		Details:    strings.TrimSpace(body.Details),
	})
	if err != nil {
		return h.mapSafetyError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(report)
}

// Reports handles GET /v1/safety/reports, listing the caller's own reports
// newest first.
func (h *SafetyHandler) Reports(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	reports, err := h.store.ReportsByUser(c, userID)
	if err != nil {
		return h.mapSafetyError(c, err)
	}
	return c.JSON(reports)
}

// CreateAppeal handles POST /v1/servers/:id/appeals. The caller is banned
// rather than a member, so there is no membership guard here; the store
// rejects callers who are not actually banned.
func (h *SafetyHandler) CreateAppeal(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	reason := strings.TrimSpace(body.Text)
	if reason == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "Appeal text is required")
	}

	appeal, err := h.store.CreateAppeal(c, c.Params("id"), userID, reason)
	if err != nil {
		return h.mapSafetyError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(appeal)
}

// Appeals handles GET /v1/servers/:id/appeals.
func (h *SafetyHandler) Appeals(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	serverID := c.Params("id")

	if _, err := serverCapability(c, h.store, serverID, userID, permission.ManageServer); err != nil {
		return h.mapSafetyError(c, err)
	}

	appeals, err := h.store.Appeals(c, serverID)
	if err != nil {
		return h.mapSafetyError(c, err)
	}
	return c.JSON(appeals)
}

// Resolve handles POST /v1/appeals/:id. The reviewer needs manage_server on
// the appealed server; approval lifts the ban in the same store call.
func (h *SafetyHandler) Resolve(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	appealID := c.Params("id")

	var body struct {
		Action string `json:"action"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Action != "approve" && body.Action != "reject" {
		return httputil.Error(c, fiber.StatusBadRequest, "Action must be approve or reject")
	}

	appeal, err := h.store.AppealByID(c, appealID)
	if err != nil {
		return h.mapSafetyError(c, err)
	}
	if _, err := serverCapability(c, h.store, appeal.ServerID, userID, permission.ManageServer); err != nil {
		return h.mapSafetyError(c, err)
	}

	resolved, err := h.store.ResolveAppeal(c, appealID, userID, body.Action == "approve")
	if err != nil {
		return h.mapSafetyError(c, err)
	}
	return c.JSON(resolved)
}

// mapSafetyError converts safety-layer errors to appropriate HTTP responses.
func (h *SafetyHandler) mapSafetyError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrOpenAppeal):
		return httputil.Error(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, store.ErrAppealClosed):
		return httputil.Error(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Not found")
	default:
		h.log.Error().Err(err).Str("handler", "safety").Msg("unhandled safety store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
