package model

// User is an account. PasswordHash and the TOTP fields never leave the
// server; messages authored by a since-deleted user keep their authorId, so
// clients must tolerate ids that no longer resolve.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	Bot          bool      `json:"bot,omitempty"`
	CreatedAt    Timestamp `json:"createdAt"`
	PasswordHash string    `json:"-"`
	TOTPSecret   string    `json:"-"`
	TOTPEnabled  bool      `json:"-"`
}

// Session binds a bearer token to a user.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt Timestamp `json:"createdAt"`
}

// FriendRequestStatus is the lifecycle state of a friend request.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is a pending, accepted or rejected invitation between two
// users. Once it leaves pending it never transitions again.
type FriendRequest struct {
	ID         string              `json:"id"`
	FromUserID string              `json:"fromUserId"`
	ToUserID   string              `json:"toUserId"`
	Status     FriendRequestStatus `json:"status"`
	CreatedAt  Timestamp           `json:"createdAt"`
	UpdatedAt  Timestamp           `json:"updatedAt"`
}
