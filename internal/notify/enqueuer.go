package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// QueueKey is the Redis list the delivery worker consumes from.
const QueueKey = "mango:notifications"

const (
	// maxBodyLength caps the notification body; longer message bodies are
	// truncated with a trailing ellipsis.
	maxBodyLength = 140

	// enqueueTimeout bounds one background enqueue, covering the store
	// lookups and the Redis push together.
	enqueueTimeout = 5 * time.Second
)

// Notification is one pending push delivery for a single recipient.
type Notification struct {
	UserID    string          `json:"userId"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	URL       string          `json:"url"`
	MessageID string          `json:"messageId"`
	CreatedAt model.Timestamp `json:"createdAt"`
}

// Enqueuer fans created messages out into queued notifications. A nil
// Enqueuer, or one constructed without a Redis client, silently drops all
// work so callers never have to branch on whether the queue is configured.
type Enqueuer struct {
	store   store.Store
	rdb     *redis.Client
	baseURL string
	log     zerolog.Logger
}

// NewEnqueuer creates an enqueuer pushing onto the given Redis client.
// baseURL is the public origin used to build deep links.
func NewEnqueuer(st store.Store, rdb *redis.Client, baseURL string, logger zerolog.Logger) *Enqueuer {
	return &Enqueuer{
		store:   st,
		rdb:     rdb,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.With().Str("component", "notify").Logger(),
	}
}

// MessageCreated queues one notification per recipient of a freshly created
// message. It returns immediately; the lookups and the Redis push run on a
// background goroutine and failures are logged, never surfaced to the
// caller.
func (e *Enqueuer) MessageCreated(msg *model.Message) {
	if e == nil || e.rdb == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		defer cancel()
		if err := e.enqueue(ctx, msg); err != nil {
			e.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to enqueue notifications")
		}
	}()
}

// enqueue resolves the recipients and pushes one serialised record each
// onto the queue in a single round trip.
func (e *Enqueuer) enqueue(ctx context.Context, msg *model.Message) error {
	title, recipients, err := e.resolve(ctx, msg)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	record := Notification{
		Title:     title,
		Body:      truncateBody(msg.Body),
		URL:       fmt.Sprintf("%s/conversations/%s/%s", e.baseURL, msg.ConversationID, msg.ID),
		MessageID: msg.ID,
		CreatedAt: msg.CreatedAt,
	}

	payloads := make([]any, 0, len(recipients))
	for _, userID := range recipients {
		record.UserID = userID
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		payloads = append(payloads, data)
	}

	if err := e.rdb.LPush(ctx, QueueKey, payloads...).Err(); err != nil {
		return fmt.Errorf("push notifications: %w", err)
	}
	return nil
}

// resolve computes the notification title and the recipient set for a
// message. Thread messages address the other participants; channel messages
// address every member who can read the channel. The author never receives
// a notification for their own message.
func (e *Enqueuer) resolve(ctx context.Context, msg *model.Message) (string, []string, error) {
	if msg.DirectThreadID != "" {
		thread, err := e.store.DirectThreadByID(ctx, msg.DirectThreadID)
		if err != nil {
			return "", nil, fmt.Errorf("load thread: %w", err)
		}
		title := thread.Title
		if title == "" {
			title = "New direct message"
		}
		var recipients []string
		for _, id := range thread.ParticipantIDs {
			if id != msg.AuthorID {
				recipients = append(recipients, id)
			}
		}
		return title, recipients, nil
	}

	channel, err := e.store.ChannelByID(ctx, msg.ChannelID)
	if err != nil {
		return "", nil, fmt.Errorf("load channel: %w", err)
	}
	server, err := e.store.ServerByID(ctx, channel.ServerID)
	if err != nil {
		return "", nil, fmt.Errorf("load server: %w", err)
	}
	members, err := e.store.Members(ctx, channel.ServerID)
	if err != nil {
		return "", nil, fmt.Errorf("list members: %w", err)
	}

	var recipients []string
	for _, member := range members {
		if member.UserID == msg.AuthorID {
			continue
		}
		pc, err := e.store.PermissionContext(ctx, channel.ServerID, member.UserID, channel.ID)
		if err != nil {
			return "", nil, fmt.Errorf("permission context: %w", err)
		}
		if !permission.Allows(pc.Query(member.UserID), permission.ReadMessages) {
			continue
		}
		recipients = append(recipients, member.UserID)
	}
	return fmt.Sprintf("#%s (%s)", channel.Name, server.Name), recipients, nil
}

// truncateBody trims the body to maxBodyLength runes, appending an ellipsis
// when anything was cut.
func truncateBody(body string) string {
	runes := []rune(body)
	if len(runes) <= maxBodyLength {
		return body
	}
	return string(runes[:maxBodyLength]) + "…"
}
