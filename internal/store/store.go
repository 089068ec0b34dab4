// Package store defines the persistence contract shared by the in-memory
// reference implementation and the PostgreSQL implementation. The two are
// observably equivalent; the conformance suite in storetest runs the same
// script against both.
package store

import (
	"context"
	"time"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
)

// Store is the full persistence surface of the gateway.
type Store interface {
	UserStore
	SessionStore
	FriendStore
	ServerStore
	MemberStore
	RoleStore
	ChannelStore
	OverwriteStore
	MessageStore
	ReactionStore
	ThreadStore
	MarkerStore
	PresenceStore
	InviteStore
	ModerationStore
	SafetyStore
	PushStore
	IntegrationStore
	SearchStore
	PermissionStore

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
	// Close releases the backing resources.
	Close()
}

// UserStore manages accounts. Deleting a user cascades their sessions, push
// subscriptions, friendships, thread participations and owned servers;
// authored messages survive with a dangling authorId.
type UserStore interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByUsername(ctx context.Context, username string) (*model.User, error)
	UpdateUserTOTP(ctx context.Context, userID, secret string, enabled bool) (*model.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// SessionStore manages bearer tokens. Tokens are minted here and resolve to
// their user in one lookup.
type SessionStore interface {
	CreateSession(ctx context.Context, userID string) (*model.Session, error)
	SessionUser(ctx context.Context, token string) (*model.User, error)
	DeleteSession(ctx context.Context, token string) error
}

// FriendStore manages the symmetric friendship relation and the friend
// request state machine. Accepting a request inserts both directions in one
// transaction; removing a friendship also removes any pending request
// between the pair.
type FriendStore interface {
	Friends(ctx context.Context, userID string) ([]model.User, error)
	RemoveFriend(ctx context.Context, userID, friendID string) error
	CreateFriendRequest(ctx context.Context, fromUserID, toUserID string) (*model.FriendRequest, error)
	FriendRequests(ctx context.Context, userID string) (incoming, outgoing []model.FriendRequest, err error)
	RespondFriendRequest(ctx context.Context, requestID, responderID string, accept bool) (*model.FriendRequest, error)
}

// ServerStore manages servers. Creation seeds the default role, an Owner
// role holding every capability, and the owner's membership, atomically.
// Deletion cascades through every owned entity.
type ServerStore interface {
	CreateServer(ctx context.Context, ownerID, name string) (*model.Server, error)
	ServerByID(ctx context.Context, id string) (*model.Server, error)
	ServersForUser(ctx context.Context, userID string) ([]model.Server, error)
	DeleteServer(ctx context.Context, id string) error
}

// MemberStore manages the membership relation. AddMember is idempotent and
// refuses banned users; removal drops role assignments and any active
// timeout.
type MemberStore interface {
	AddMember(ctx context.Context, serverID, userID string) (*model.Member, error)
	Member(ctx context.Context, serverID, userID string) (*model.Member, error)
	Members(ctx context.Context, serverID string) ([]model.Member, error)
	RemoveMember(ctx context.Context, serverID, userID string) error
}

// RoleStore manages roles and their assignment to members. The default role
// cannot be renamed or deleted; assignment is idempotent.
type RoleStore interface {
	CreateRole(ctx context.Context, serverID, name string, grants permission.Set) (*model.Role, error)
	Roles(ctx context.Context, serverID string) ([]model.Role, error)
	UpdateRole(ctx context.Context, serverID, roleID string, params UpdateRoleParams) (*model.Role, error)
	DeleteRole(ctx context.Context, serverID, roleID string) error
	AssignRole(ctx context.Context, serverID, userID, roleID string) (*model.Member, error)
	UnassignRole(ctx context.Context, serverID, userID, roleID string) (*model.Member, error)
}

// ChannelStore manages channels. Deleting one cascades its messages,
// overwrites and read markers, and tears down any direct thread backed by
// it.
type ChannelStore interface {
	CreateChannel(ctx context.Context, serverID, name string, channelType model.ChannelType) (*model.Channel, error)
	ChannelByID(ctx context.Context, id string) (*model.Channel, error)
	Channels(ctx context.Context, serverID string) ([]model.Channel, error)
	UpdateChannel(ctx context.Context, id, name string) (*model.Channel, error)
	DeleteChannel(ctx context.Context, id string) error
}

// OverwriteStore manages channel permission overwrites, unique per
// (channel, targetType, targetId). Upserting an existing slot replaces its
// allow/deny pair.
type OverwriteStore interface {
	UpsertOverwrite(ctx context.Context, params UpsertOverwriteParams) (*model.Overwrite, error)
	Overwrites(ctx context.Context, channelID string) ([]model.Overwrite, error)
	DeleteOverwrite(ctx context.Context, channelID, overwriteID string) error
}

// MessageStore manages messages. Creating a thread message bumps the
// thread's updatedAt; edits and deletes are author-only.
type MessageStore interface {
	CreateMessage(ctx context.Context, params CreateMessageParams) (*model.Message, error)
	MessageByID(ctx context.Context, id string) (*model.Message, error)
	ListMessages(ctx context.Context, params ListMessagesParams) ([]model.Message, error)
	UpdateMessage(ctx context.Context, id, authorID, body string) (*model.Message, error)
	DeleteMessage(ctx context.Context, id, authorID string) (*model.Message, error)
}

// ReactionStore manages the (message, user, emoji) reaction set. Both
// operations return the message with its refreshed summary and whether the
// set actually changed, so callers can skip events for no-ops.
type ReactionStore interface {
	AddReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, bool, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, bool, error)
}

// ThreadStore manages direct threads. Creating a dm whose unordered pair
// already has a thread returns the existing one with created false. Leaving
// removes the caller everywhere; the last leaver tears the whole backing
// server down, in which case LeaveDirectThread returns (nil, nil).
type ThreadStore interface {
	CreateDirectThread(ctx context.Context, params CreateThreadParams) (thread *model.DirectThread, created bool, err error)
	DirectThreadByID(ctx context.Context, id string) (*model.DirectThread, error)
	DirectThreadsForUser(ctx context.Context, userID string) ([]model.DirectThread, error)
	LeaveDirectThread(ctx context.Context, threadID, userID string) (*model.DirectThread, error)
}

// MarkerStore manages read markers. Reading a never-written marker returns
// the empty sentinel rather than an error.
type MarkerStore interface {
	ReadMarker(ctx context.Context, conversationID, userID string) (*model.ReadMarker, error)
	SetReadMarker(ctx context.Context, conversationID, userID, lastReadMessageID string) (*model.ReadMarker, error)
}

// PresenceStore manages presence records. A record whose expiry passed reads
// back as offline; SweepPresences applies that lazily en masse and returns
// the records it flipped so the caller can fan them out.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, status model.PresenceStatus, ttl time.Duration) (*model.Presence, error)
	PresenceByUser(ctx context.Context, userID string) (*model.Presence, error)
	PresenceBulk(ctx context.Context, userIDs []string) ([]model.Presence, error)
	SweepPresences(ctx context.Context) ([]model.Presence, error)
}

// InviteStore manages server invites. JoinByInvite validates expiry, usage
// and bans, inserts the membership and increments the use counter in one
// transaction; joining a server the user already belongs to returns the
// server without consuming a use.
type InviteStore interface {
	CreateInvite(ctx context.Context, params CreateInviteParams) (*model.Invite, error)
	Invites(ctx context.Context, serverID string) ([]model.Invite, error)
	DeleteInvite(ctx context.Context, serverID, code string) error
	JoinByInvite(ctx context.Context, code, userID string) (*model.Server, error)
}

// ModerationStore applies moderation verbs and records them in the audit
// log. Timeouts expire lazily: any read that observes a past expiry treats
// the timeout as cleared.
type ModerationStore interface {
	Moderate(ctx context.Context, params ModerationParams) (*model.ModerationAction, error)
	Bans(ctx context.Context, serverID string) ([]model.Ban, error)
	IsBanned(ctx context.Context, serverID, userID string) (bool, error)
	ActiveTimeout(ctx context.Context, serverID, userID string) (bool, error)
	AuditLog(ctx context.Context, serverID string, limit int) ([]model.AuditLogEntry, error)
}

// SafetyStore manages user reports and ban appeals. A user holds at most
// one pending appeal per server; approving one lifts the ban.
type SafetyStore interface {
	CreateReport(ctx context.Context, params CreateReportParams) (*model.Report, error)
	ReportsByUser(ctx context.Context, reporterID string) ([]model.Report, error)
	CreateAppeal(ctx context.Context, serverID, userID, reason string) (*model.Appeal, error)
	AppealByID(ctx context.Context, appealID string) (*model.Appeal, error)
	Appeals(ctx context.Context, serverID string) ([]model.Appeal, error)
	ResolveAppeal(ctx context.Context, appealID, reviewerID string, approve bool) (*model.Appeal, error)
}

// PushStore manages Web Push subscriptions. Creation is idempotent per
// (user, endpoint): re-registering refreshes the keys and user agent under
// the same id.
type PushStore interface {
	CreatePushSubscription(ctx context.Context, params CreatePushParams) (*model.PushSubscription, error)
	PushSubscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, userID, id string) error
}

// IntegrationStore manages webhooks and bots. Webhook tokens are returned
// once and stored hashed; bots are flagged users holding a long-lived
// session token.
type IntegrationStore interface {
	CreateWebhook(ctx context.Context, channelID, name, createdBy string) (*model.Webhook, error)
	Webhooks(ctx context.Context, channelID string) ([]model.Webhook, error)
	WebhookByToken(ctx context.Context, webhookID, token string) (*model.Webhook, error)
	DeleteWebhook(ctx context.Context, channelID, webhookID string) error
	CreateBot(ctx context.Context, params CreateBotParams) (*model.User, string, error)
	Bots(ctx context.Context, serverID string) ([]model.User, error)
}

// SearchStore answers substring searches. Channel and message results are
// filtered by the caller's read permission; user results exclude the caller.
// All three are deterministic under stable iteration.
type SearchStore interface {
	SearchUsers(ctx context.Context, callerID, query string) ([]model.User, error)
	SearchChannels(ctx context.Context, params SearchParams) ([]model.Channel, error)
	SearchMessages(ctx context.Context, params SearchParams) ([]model.Message, error)
}

// PermissionStore assembles the kernel inputs for one (server, user) pair,
// including channel overwrites when channelID is non-empty.
type PermissionStore interface {
	PermissionContext(ctx context.Context, serverID, userID, channelID string) (*PermissionContext, error)
}
