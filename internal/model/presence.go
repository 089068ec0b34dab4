package model

// PresenceStatus is a user's availability.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceIdle    PresenceStatus = "idle"
	PresenceDND     PresenceStatus = "dnd"
	PresenceOffline PresenceStatus = "offline"
)

// ValidPresenceStatus reports whether s names a known status.
func ValidPresenceStatus(s PresenceStatus) bool {
	switch s {
	case PresenceOnline, PresenceIdle, PresenceDND, PresenceOffline:
		return true
	}
	return false
}

// Presence is a user's current availability. A presence whose ExpiresAt has
// passed reads back as offline.
type Presence struct {
	UserID     string         `json:"userId"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt Timestamp      `json:"lastSeenAt,omitzero"`
	ExpiresAt  Timestamp      `json:"expiresAt,omitzero"`
}
