package model

// VoiceParticipant is one user inside a voice session as reported by the
// signaling service.
type VoiceParticipant struct {
	UserID      string    `json:"userId"`
	Muted       bool      `json:"muted"`
	Deafened    bool      `json:"deafened"`
	ScreenShare bool      `json:"screenShare"`
	JoinedAt    Timestamp `json:"joinedAt"`
}

// VoiceSession mirrors the signaling service's view of one voice room. The
// gateway never owns this state; it parses upstream responses and relays
// them.
type VoiceSession struct {
	ID           string             `json:"id"`
	TargetKind   string             `json:"targetKind"`
	TargetID     string             `json:"targetId"`
	ServerID     string             `json:"serverId,omitempty"`
	Participants []VoiceParticipant `json:"participants"`
	UpdatedAt    Timestamp          `json:"updatedAt"`
}
