package store

import (
	"time"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
)

// Pagination defaults for message listing.
const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

// ClampLimit constrains a requested page size to [1, max], defaulting to
// DefaultMessageLimit when the input is zero or negative.
func ClampLimit(limit, max int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	if limit > max {
		return max
	}
	return limit
}

// CreateUserParams groups the inputs for creating a user. The password is
// already hashed by the caller.
type CreateUserParams struct {
	Email        string
	Username     string
	DisplayName  string
	PasswordHash string
	Bot          bool
}

// UpdateRoleParams carries a partial role update; nil fields are left
// untouched.
type UpdateRoleParams struct {
	Name        *string
	Permissions *permission.Set
}

// UpsertOverwriteParams identifies one (channel, target) overwrite slot and
// the allow/deny pair to store in it.
type UpsertOverwriteParams struct {
	ChannelID  string
	TargetType permission.TargetType
	TargetID   string
	Allow      permission.Set
	Deny       permission.Set
}

// CreateMessageParams groups the inputs for creating a message. Exactly one
// of ChannelID and DirectThreadID is set; for thread messages the store
// resolves the backing channel itself. Attachments arrive already normalised.
type CreateMessageParams struct {
	ChannelID      string
	DirectThreadID string
	AuthorID       string
	Body           string
	ReplyToID      string
	Attachments    []model.Attachment
}

// ListMessagesParams selects a window of one conversation. After and Before
// are exclusive message-id cursors; with neither set, the newest page is
// returned. Results are always ascending by (createdAt, id).
type ListMessagesParams struct {
	ConversationID string
	After          string
	Before         string
	Limit          int
}

// CreateThreadParams groups the inputs for creating a direct thread. The
// owner is added to the participants if absent.
type CreateThreadParams struct {
	OwnerID        string
	ParticipantIDs []string
	Title          string
}

// CreateInviteParams groups the inputs for creating a server invite.
// MaxUses of zero means unlimited; a nil ExpiresAt never expires.
type CreateInviteParams struct {
	ServerID  string
	CreatedBy string
	ExpiresAt *time.Time
	MaxUses   int
}

// ModerationParams groups the inputs for one moderation action. ExpiresAt is
// required for timeouts and ignored otherwise.
type ModerationParams struct {
	ServerID     string
	ActorID      string
	TargetUserID string
	Action       model.ModerationActionType
	Reason       string
	ExpiresAt    *time.Time
}

// CreateReportParams groups the inputs for filing a safety report.
type CreateReportParams struct {
	ReporterID string
	TargetType model.ReportTargetType
	TargetID   string
	Reason     string
	Details    string
}

// CreatePushParams groups the inputs for registering a push subscription.
type CreatePushParams struct {
	UserID    string
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
}

// CreateBotParams groups the inputs for installing a bot into a server.
type CreateBotParams struct {
	ServerID    string
	CreatorID   string
	Username    string
	DisplayName string
}

// SearchParams scopes a search. ServerID narrows channel and message results
// to one server when set; Limit is clamped by the implementations.
type SearchParams struct {
	CallerID string
	Query    string
	ServerID string
	Limit    int
}

// PermissionContext is everything the permission kernel needs to decide one
// user's capabilities in one server, optionally scoped to a channel. A user
// with no membership resolves with IsMember false and no roles, which the
// kernel treats as an empty grant.
type PermissionContext struct {
	OwnerID    string
	IsMember   bool
	Roles      []permission.RoleGrant
	Overwrites []permission.Overwrite
	Banned     bool
	TimedOut   bool
}

// Query assembles the kernel query for the given user.
func (pc *PermissionContext) Query(userID string) permission.Query {
	return permission.Query{
		OwnerID:    pc.OwnerID,
		UserID:     userID,
		Roles:      pc.Roles,
		Overwrites: pc.Overwrites,
		Banned:     pc.Banned,
		TimedOut:   pc.TimedOut,
	}
}
