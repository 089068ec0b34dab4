// Package voice proxies signaling calls to the upstream voice service and
// relays the session snapshots it returns. The gateway never owns voice
// state; the upstream is the source of truth and every successful action
// comes back as a full session snapshot to fan out.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/gateway"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// Target kinds a voice session can attach to.
const (
	TargetChannel = "channel"
	TargetThread  = "thread"
)

// Actions the upstream accepts. Each maps to POST {base}/{action}.
const (
	ActionJoin        = "join"
	ActionLeave       = "leave"
	ActionState       = "state"
	ActionHeartbeat   = "heartbeat"
	ActionScreenShare = "screen-share"
)

// ErrUnavailable is returned when the upstream cannot be reached, times
// out, or fails server-side; handlers translate it to 503.
var ErrUnavailable = errors.New("voice upstream unavailable")

// UpstreamError carries a non-2xx client status from the signaling service
// so the handler can relay it.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("voice upstream status %d: %s", e.Status, e.Body)
}

// Request identifies one voice action by one user against one target.
type Request struct {
	Action      string
	UserID      string
	TargetKind  string
	TargetID    string
	ServerID    string
	ScreenShare bool
	Body        []byte
}

// Client forwards voice actions to the signaling service. Each call carries
// a short-lived service token plus identity headers so the upstream never
// sees user credentials.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a client for the given upstream base URL. timeout
// bounds each forwarded call end to end.
func NewClient(baseURL, secret string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
		log:     logger.With().Str("component", "voice").Logger(),
	}
}

// Do forwards one action and parses the upstream's session snapshot. The
// original request body, when present, is forwarded verbatim.
func (c *Client) Do(ctx context.Context, req Request) (*model.VoiceSession, error) {
	token, err := auth.NewServiceToken(req.UserID, c.secret)
	if err != nil {
		return nil, fmt.Errorf("mint service token: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+req.Action, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("create voice request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-Voice-User-Id", req.UserID)
	httpReq.Header.Set("X-Voice-Target-Kind", req.TargetKind)
	httpReq.Header.Set("X-Voice-Target-Id", req.TargetID)
	if req.ServerID != "" {
		httpReq.Header.Set("X-Voice-Server-Id", req.ServerID)
	}
	if req.ScreenShare {
		httpReq.Header.Set("X-Voice-Screen-Share", "1")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var session model.VoiceSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode voice session: %w", err)
	}
	return &session, nil
}

// Broadcaster fans one event out to every socket of the listed users. It is
// satisfied by *gateway.Hub.
type Broadcaster interface {
	Publish(conversationID, eventType string, payload any, userIDs ...string)
}

// Service glues the upstream client to the store and the hub: it forwards
// one action, then fans the resulting snapshot out to everyone entitled to
// see the call.
type Service struct {
	client *Client
	store  store.Store
	hub    Broadcaster
	log    zerolog.Logger
}

// NewService creates a voice service around an upstream client.
func NewService(client *Client, st store.Store, hub Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		client: client,
		store:  st,
		hub:    hub,
		log:    logger.With().Str("component", "voice").Logger(),
	}
}

// Dispatch forwards the action and, on success, publishes the snapshot as
// voice.session.updated. The publish is best-effort.
func (s *Service) Dispatch(ctx context.Context, req Request) (*model.VoiceSession, error) {
	session, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, session)
	return session, nil
}

// publish addresses the snapshot to the session's own participants, plus
// the thread's participants or the owning server's members, so users who
// have not joined the call still see it ringing.
func (s *Service) publish(ctx context.Context, session *model.VoiceSession) {
	seen := make(map[string]struct{})
	var targets []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}

	for _, p := range session.Participants {
		add(p.UserID)
	}
	switch session.TargetKind {
	case TargetThread:
		th, err := s.store.DirectThreadByID(ctx, session.TargetID)
		if err != nil {
			s.log.Warn().Err(err).Str("thread_id", session.TargetID).Msg("Thread lookup failed during voice fanout")
		} else {
			for _, id := range th.ParticipantIDs {
				add(id)
			}
		}
	case TargetChannel:
		if session.ServerID == "" {
			break
		}
		members, err := s.store.Members(ctx, session.ServerID)
		if err != nil {
			s.log.Warn().Err(err).Str("server_id", session.ServerID).Msg("Member lookup failed during voice fanout")
		} else {
			for _, m := range members {
				add(m.UserID)
			}
		}
	}

	s.hub.Publish("", gateway.EventVoiceSessionUpdated, session, targets...)
}
