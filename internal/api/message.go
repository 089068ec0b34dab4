package api

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/notify"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// MessageHandler serves the message lifecycle in channels and direct
// threads: create, list, edit, delete and reactions.
type MessageHandler struct {
	store  store.Store
	hub    *gateway.Hub
	notify *notify.Enqueuer
	log    zerolog.Logger
}

// NewMessageHandler creates a new message handler. enqueuer may be nil when
// no notification queue is configured.
func NewMessageHandler(st store.Store, hub *gateway.Hub, enqueuer *notify.Enqueuer, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{store: st, hub: hub, notify: enqueuer, log: logger}
}

// createMessageBody is the request body shared by the channel and thread
// create endpoints.
type createMessageBody struct {
	Body        string             `json:"body"`
	ReplyToID   string             `json:"replyToId"`
	Attachments []model.Attachment `json:"attachments"`
}

// normalizeMessageBody trims and bounds a message body.
func normalizeMessageBody(raw string) (string, error) {
	body := strings.TrimSpace(raw)
	if body == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "Message body cannot be empty")
	}
	if utf8.RuneCountInString(body) > model.MaxMessageBody {
		return "", fiber.NewError(fiber.StatusBadRequest, "Message body is too long")
	}
	return body, nil
}

// normalizeAttachments caps the attachment list and validates each entry.
// uploadedBy is always forced to the caller regardless of what the client
// sent.
func normalizeAttachments(attachments []model.Attachment, uploaderID string) ([]model.Attachment, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	if len(attachments) > model.MaxAttachments {
		attachments = attachments[:model.MaxAttachments]
	}
	out := make([]model.Attachment, 0, len(attachments))
	for _, a := range attachments {
		if a.ID == "" || a.FileName == "" || a.ContentType == "" || a.URL == "" {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Attachment is missing required fields")
		}
		if a.SizeBytes <= 0 || a.SizeBytes > model.MaxAttachmentBytes {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Attachment size must be positive and at most 25 MiB")
		}
		a.UploadedBy = uploaderID
		if a.CreatedAt.IsZero() {
			a.CreatedAt = model.Now()
		}
		out = append(out, a)
	}
	return out, nil
}

// CreateInChannel handles POST /v1/channels/:id/messages.
func (h *MessageHandler) CreateInChannel(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	var body createMessageBody
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if _, err := channelCapability(c, h.store, channelID, userID, permission.SendMessages); err != nil {
		return h.mapMessageError(c, err)
	}

	msg, err := h.create(c, store.CreateMessageParams{ChannelID: channelID, AuthorID: userID}, body)
	if err != nil {
		return h.mapMessageError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// CreateInThread handles POST /v1/direct-threads/:id/messages.
func (h *MessageHandler) CreateInThread(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	threadID := c.Params("id")

	var body createMessageBody
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if _, err := threadParticipant(c, h.store, threadID, userID); err != nil {
		return h.mapMessageError(c, err)
	}

	msg, err := h.create(c, store.CreateMessageParams{DirectThreadID: threadID, AuthorID: userID}, body)
	if err != nil {
		return h.mapMessageError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// create validates the body, stores the message, fans out message.created
// and queues push notifications. The params carry either a channel id or a
// thread id; the store resolves the conversation.
func (h *MessageHandler) create(c fiber.Ctx, params store.CreateMessageParams, body createMessageBody) (*model.Message, error) {
	text, err := normalizeMessageBody(body.Body)
	if err != nil {
		return nil, err
	}
	attachments, err := normalizeAttachments(body.Attachments, params.AuthorID)
	if err != nil {
		return nil, err
	}

	params.Body = text
	params.ReplyToID = strings.TrimSpace(body.ReplyToID)
	params.Attachments = attachments

	msg, err := h.store.CreateMessage(c, params)
	if err != nil {
		return nil, err
	}

	h.fanout(c, msg.ConversationID, msg.DirectThreadID, gateway.EventMessageCreated, msg)
	h.notify.MessageCreated(msg)
	return msg, nil
}

// ListChannel handles GET /v1/channels/:id/messages. Results ascend by
// creation time; after/before paginate by message id.
func (h *MessageHandler) ListChannel(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	channelID := c.Params("id")

	if _, err := channelCapability(c, h.store, channelID, userID, permission.ReadMessages); err != nil {
		return h.mapMessageError(c, err)
	}
	return h.list(c, channelID)
}

// ListThread handles GET /v1/direct-threads/:id/messages.
func (h *MessageHandler) ListThread(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	threadID := c.Params("id")

	if _, err := threadParticipant(c, h.store, threadID, userID); err != nil {
		return h.mapMessageError(c, err)
	}
	return h.list(c, threadID)
}

func (h *MessageHandler) list(c fiber.Ctx, conversationID string) error {
	limit, _ := strconv.Atoi(c.Query("limit"))

	messages, err := h.store.ListMessages(c, store.ListMessagesParams{
		ConversationID: conversationID,
		After:          c.Query("after"),
		Before:         c.Query("before"),
		Limit:          limit,
	})
	if err != nil {
		return h.mapMessageError(c, err)
	}
	return c.JSON(messages)
}

// Update handles PATCH /v1/messages/:id. Author only; updatedAt is set by
// the store.
func (h *MessageHandler) Update(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	messageID := c.Params("id")

	var body struct {
		Body string `json:"body"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	text, err := normalizeMessageBody(body.Body)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	if _, err := messageConversation(c, h.store, messageID, userID); err != nil {
		return h.mapMessageError(c, err)
	}

	msg, err := h.store.UpdateMessage(c, messageID, userID, text)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	h.fanout(c, msg.ConversationID, msg.DirectThreadID, gateway.EventMessageUpdated, msg)
	return c.JSON(msg)
}

// Delete handles DELETE /v1/messages/:id. Author only. The response and the
// fan-out both carry the identity tuple rather than the full message.
func (h *MessageHandler) Delete(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	messageID := c.Params("id")

	if _, err := messageConversation(c, h.store, messageID, userID); err != nil {
		return h.mapMessageError(c, err)
	}

	deleted, err := h.store.DeleteMessage(c, messageID, userID)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	ref := deleted.Ref()
	h.fanout(c, ref.ConversationID, ref.DirectThreadID, gateway.EventMessageDeleted, ref)
	return c.JSON(ref)
}

// AddReaction handles POST /v1/messages/:id/reactions. Adding the same
// emoji twice is a no-op and emits nothing.
func (h *MessageHandler) AddReaction(c fiber.Ctx) error {
	return h.react(c, true)
}

// RemoveReaction handles DELETE /v1/messages/:id/reactions/:emoji. The
// emoji path segment arrives URL-encoded.
func (h *MessageHandler) RemoveReaction(c fiber.Ctx) error {
	return h.react(c, false)
}

func (h *MessageHandler) react(c fiber.Ctx, add bool) error {
	userID, ok := currentUserID(c)
	if !ok {
		return httputil.Error(c, fiber.StatusUnauthorized, "Missing user identity")
	}
	messageID := c.Params("id")

	var emoji string
	if add {
		var body struct {
			Emoji string `json:"emoji"`
		}
		if err := c.Bind().Body(&body); err != nil {
			return httputil.Error(c, fiber.StatusBadRequest, "Invalid request body")
		}
		emoji = strings.TrimSpace(body.Emoji)
	} else {
		raw, err := url.PathUnescape(c.Params("emoji"))
		if err != nil {
			return httputil.Error(c, fiber.StatusBadRequest, "Invalid emoji encoding")
		}
		emoji = strings.TrimSpace(raw)
	}
	if emoji == "" {
		return httputil.Error(c, fiber.StatusBadRequest, "emoji is required")
	}

	if _, err := messageConversation(c, h.store, messageID, userID); err != nil {
		return h.mapMessageError(c, err)
	}

	var (
		msg     *model.Message
		changed bool
		err     error
	)
	if add {
		msg, changed, err = h.store.AddReaction(c, messageID, userID, emoji)
	} else {
		msg, changed, err = h.store.RemoveReaction(c, messageID, userID, emoji)
	}
	if err != nil {
		return h.mapMessageError(c, err)
	}

	if changed {
		h.fanout(c, msg.ConversationID, msg.DirectThreadID, gateway.EventReactionUpdated, model.ReactionUpdate{
			ConversationID: msg.ConversationID,
			DirectThreadID: msg.DirectThreadID,
			MessageID:      msg.ID,
			Reactions:      msg.Reactions,
		})
	}
	return c.JSON(msg.Reactions)
}

// fanout publishes one event to the conversation's subscribers, and for
// thread conversations additionally to every participant's sockets so
// unopened threads still light up.
func (h *MessageHandler) fanout(c fiber.Ctx, conversationID, directThreadID, eventType string, payload any) {
	var participants []string
	if directThreadID != "" {
		thread, err := h.store.DirectThreadByID(c, directThreadID)
		if err != nil {
			h.log.Warn().Err(err).Str("thread_id", directThreadID).Msg("Thread fan-out lookup failed")
		} else {
			participants = thread.ParticipantIDs
		}
	}
	h.hub.Publish(conversationID, eventType, payload, participants...)
}

// mapMessageError converts message-layer errors to appropriate HTTP
// responses.
func (h *MessageHandler) mapMessageError(c fiber.Ctx, err error) error {
	switch {
	case isDenial(err):
		return err
	case errors.Is(err, store.ErrNotAuthor):
		return httputil.Error(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrReplyNotFound):
		return httputil.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return httputil.Error(c, fiber.StatusNotFound, "Message not found")
	default:
		h.log.Error().Err(err).Str("handler", "message").Msg("unhandled message store error")
		return httputil.Error(c, fiber.StatusInternalServerError, "An internal error occurred")
	}
}
