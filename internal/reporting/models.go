package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest scopes a report to one tenant and a half-open time range [From, To).
// Tenant isolation: TenantID is required.
type SummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`
}

// ConversationsSummary counts conversations opened in the range by their current status.
type ConversationsSummary struct {
	TenantID string `json:"tenant_id"`

	Total      int `json:"total"`
	New        int `json:"new"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`

	// WithUnread is how many conversations still have customer messages nobody opened.
	WithUnread  int `json:"with_unread"`
	UnreadTotal int `json:"unread_total"`
}

// RatingsSummary aggregates customer answers to rating requests.
type RatingsSummary struct {
	TenantID string `json:"tenant_id"`

	Count   int     `json:"count"`
	Average float64 `json:"average"`

	// Distribution maps a rating value to how many customers chose it.
	Distribution map[int]int `json:"distribution"`
}

// ActivitySummary describes who moved conversations and how often the bot failed to send.
type ActivitySummary struct {
	TenantID string `json:"tenant_id"`

	StatusChanges    int `json:"status_changes"`
	ResolvedByAgents int `json:"resolved_by_agents"`
	ResolvedByBot    int `json:"resolved_by_bot"`
	BotSendFailures  int `json:"bot_send_failures"`
}

// Summary is the dashboard overview returned by Service.Summary.
type Summary struct {
	Range         TimeRange            `json:"range"`
	Conversations ConversationsSummary `json:"conversations"`
	Ratings       RatingsSummary       `json:"ratings"`
	Activity      ActivitySummary      `json:"activity"`
}
