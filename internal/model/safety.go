package model

// ReportTargetType enumerates what a safety report can point at.
type ReportTargetType string

const (
	ReportTargetUser    ReportTargetType = "user"
	ReportTargetMessage ReportTargetType = "message"
	ReportTargetServer  ReportTargetType = "server"
)

// ValidReportTarget reports whether t names a known report target type.
func ValidReportTarget(t ReportTargetType) bool {
	switch t {
	case ReportTargetUser, ReportTargetMessage, ReportTargetServer:
		return true
	}
	return false
}

// Report is a user-filed safety report.
type Report struct {
	ID         string           `json:"id"`
	ReporterID string           `json:"reporterId"`
	TargetType ReportTargetType `json:"targetType"`
	TargetID   string           `json:"targetId"`
	Reason     string           `json:"reason"`
	Details    string           `json:"details,omitempty"`
	Status     string           `json:"status"`
	CreatedAt  Timestamp        `json:"createdAt"`
}

// ReportOpen is the status a fresh report carries.
const ReportOpen = "open"

// AppealStatus is the lifecycle state of a ban appeal.
type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealRejected AppealStatus = "rejected"
)

// Appeal is a banned user's request to re-enter a server. A user holds at
// most one pending appeal per server; approval lifts the ban.
type Appeal struct {
	ID        string       `json:"id"`
	ServerID  string       `json:"serverId"`
	UserID    string       `json:"userId"`
	Reason    string       `json:"reason"`
	Status    AppealStatus `json:"status"`
	CreatedAt Timestamp    `json:"createdAt"`
	UpdatedAt Timestamp    `json:"updatedAt"`
}
