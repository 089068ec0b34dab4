package model

// PushSubscription is a Web Push endpoint registered by one of a user's
// devices, unique per (user, endpoint). The delivery worker consumes these;
// the gateway only stores them and enqueues pending notifications.
type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}
