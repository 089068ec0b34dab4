package model

import "github.com/aledlb8/Mango-sub000/internal/permission"

// Server is a community owning members, roles, channels, invites and
// moderation state. Hidden servers back direct threads and are excluded from
// listings.
type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt Timestamp `json:"createdAt"`
	Hidden    bool      `json:"-"`
}

// Member is a user's membership of one server, with the roles assigned to
// them there.
type Member struct {
	ServerID string    `json:"serverId"`
	UserID   string    `json:"userId"`
	JoinedAt Timestamp `json:"joinedAt"`
	RoleIDs  []string  `json:"roleIds"`
}

// Role names a capability grant inside a server. Exactly one role per server
// has IsDefault set; it is created with the server and cannot be renamed or
// deleted.
type Role struct {
	ID          string         `json:"id"`
	ServerID    string         `json:"serverId"`
	Name        string         `json:"name"`
	Permissions permission.Set `json:"permissions"`
	IsDefault   bool           `json:"isDefault"`
	CreatedAt   Timestamp      `json:"createdAt"`
}

// Invite admits users to a server by code. MaxUses of zero means unlimited;
// a zero ExpiresAt never expires.
type Invite struct {
	Code      string    `json:"code"`
	ServerID  string    `json:"serverId"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt Timestamp `json:"createdAt"`
	ExpiresAt Timestamp `json:"expiresAt,omitzero"`
	MaxUses   int       `json:"maxUses,omitempty"`
	Uses      int       `json:"uses"`
}

// Ban bars a user from a server until lifted.
type Ban struct {
	ServerID  string    `json:"serverId"`
	UserID    string    `json:"userId"`
	Reason    string    `json:"reason,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt Timestamp `json:"createdAt"`
}

// ModerationActionType enumerates the moderation verbs.
type ModerationActionType string

const (
	ModerationKick    ModerationActionType = "kick"
	ModerationBan     ModerationActionType = "ban"
	ModerationTimeout ModerationActionType = "timeout"
	ModerationUnban   ModerationActionType = "unban"
)

// ValidModerationAction reports whether t names a known moderation verb.
func ValidModerationAction(t ModerationActionType) bool {
	switch t {
	case ModerationKick, ModerationBan, ModerationTimeout, ModerationUnban:
		return true
	}
	return false
}

// ModerationAction records one applied moderation verb.
type ModerationAction struct {
	ID           string               `json:"id"`
	ServerID     string               `json:"serverId"`
	ActorID      string               `json:"actorId"`
	TargetUserID string               `json:"targetUserId"`
	ActionType   ModerationActionType `json:"actionType"`
	Reason       string               `json:"reason,omitempty"`
	ExpiresAt    Timestamp            `json:"expiresAt,omitzero"`
	CreatedAt    Timestamp            `json:"createdAt"`
}

// AuditLogEntry is one line of a server's audit trail, listed newest first.
type AuditLogEntry struct {
	ID           string         `json:"id"`
	ServerID     string         `json:"serverId"`
	ActorID      string         `json:"actorId"`
	TargetUserID string         `json:"targetUserId,omitempty"`
	ActionType   string         `json:"actionType"`
	Reason       string         `json:"reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    Timestamp      `json:"createdAt"`
}
