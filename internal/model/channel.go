package model

import "github.com/aledlb8/Mango-sub000/internal/permission"

// ChannelType distinguishes text channels from voice channels.
type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

// ValidChannelType reports whether t names a known channel type.
func ValidChannelType(t ChannelType) bool {
	return t == ChannelText || t == ChannelVoice
}

// Channel is a named conversation inside a server.
type Channel struct {
	ID        string      `json:"id"`
	ServerID  string      `json:"serverId"`
	Name      string      `json:"name"`
	Type      ChannelType `json:"type"`
	CreatedAt Timestamp   `json:"createdAt"`
}

// Overwrite adjusts channel permissions for one role or member. At most one
// overwrite exists per (channel, targetType, targetId).
type Overwrite struct {
	ID         string                `json:"id"`
	ChannelID  string                `json:"channelId"`
	TargetType permission.TargetType `json:"targetType"`
	TargetID   string                `json:"targetId"`
	Allow      permission.Set        `json:"allow"`
	Deny       permission.Set        `json:"deny"`
	CreatedAt  Timestamp             `json:"createdAt"`
}
