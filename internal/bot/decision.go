package bot

import "github.com/wb6ya/Wisal-sub000/internal/template"

// Decision is the engine's output for one inbound event.
//
// It carries only what the caller needs to act: which template to send (if any)
// or which rating to record. Sending, persisting and status changes happen in the caller.
type Decision struct {
	Action Action `json:"action"`

	// Template is set when Action is ActionSendTemplate.
	Template *template.Template `json:"template,omitempty"`

	// Rating is the 1-based score when Action is ActionRecordRating.
	Rating int `json:"rating,omitempty"`

	// Rule is the decision-table row that matched (1..5).
	Rule int `json:"rule"`

	// Reason is for logs.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionNone         Action = "none"
	ActionRecordRating Action = "record_rating"
	ActionSendTemplate Action = "send_template"
)

const (
	RuleBotDisabled = 1
	RuleRatingReply = 2
	RuleButtonRoute = 3
	RuleWelcome     = 4
	RuleNoAutoReply = 5
)

// MaxHopsPerEvent is how many templates the bot sends for a single inbound event.
// The graph is walked one edge per customer click; it is never pre-traversed.
const MaxHopsPerEvent = 1
