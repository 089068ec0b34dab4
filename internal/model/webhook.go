package model

// Webhook is a token-scoped write channel into one text channel. The token
// is returned once at creation and only its hash is stored; messages posted
// through it carry the webhook id as their authorId.
type Webhook struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	ServerID  string    `json:"serverId"`
	Name      string    `json:"name"`
	Token     string    `json:"token,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt Timestamp `json:"createdAt"`
}
