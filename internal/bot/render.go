package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wb6ya/Wisal-sub000/internal/conversation"
	"github.com/wb6ya/Wisal-sub000/internal/template"
	"github.com/wb6ya/Wisal-sub000/internal/whatsapp"
)

// Button id formats:
//   <templateID>          routes to that template (rule 3)
//   <templateID>#<n>      same, disambiguated when two buttons share a target
//   rating:<n>            rating score n, 1-based (rule 2)
//   noop:<templateID>:<n> button without a next template
const (
	RatingPrefix = "rating:"
	noopPrefix   = "noop:"
)

// ParseRating extracts the score from a rating button id.
func ParseRating(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, RatingPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// TemplateRef extracts the referenced template id from a routing button id.
func TemplateRef(id string) (string, bool) {
	if id == "" || strings.HasPrefix(id, RatingPrefix) || strings.HasPrefix(id, noopPrefix) {
		return "", false
	}
	ref, _, _ := strings.Cut(id, "#")
	if ref == "" {
		return "", false
	}
	return ref, true
}

// Render builds the outbound payload: interactive when the template has buttons, text otherwise.
// Each button id is its next template id so the click routes back through rule 3.
func Render(t template.Template) whatsapp.Payload {
	if !t.HasButtons() {
		return whatsapp.Text{Body: t.Body}
	}
	seen := make(map[string]bool, len(t.Buttons))
	out := whatsapp.Interactive{Body: t.Body}
	for i, b := range t.Buttons {
		if i == whatsapp.MaxButtons {
			break
		}
		id := fmt.Sprintf("%s%s:%d", noopPrefix, t.ID, i+1)
		if b.NextTemplateID != nil && *b.NextTemplateID != "" {
			id = *b.NextTemplateID
			if seen[id] {
				id = fmt.Sprintf("%s#%d", id, i+1)
			}
		}
		seen[id] = true
		out.Buttons = append(out.Buttons, whatsapp.Button{ID: id, Title: b.Label})
	}
	return out
}

// RenderRating builds the rating request; button n carries id rating:n.
func RenderRating(t template.Template) whatsapp.Payload {
	if !t.HasButtons() {
		return whatsapp.Text{Body: t.Body}
	}
	out := whatsapp.Interactive{Body: t.Body}
	for i, b := range t.Buttons {
		if i == whatsapp.MaxButtons {
			break
		}
		out.Buttons = append(out.Buttons, whatsapp.Button{ID: RatingPrefix + strconv.Itoa(i+1), Title: b.Label})
	}
	return out
}

// Effects are the post-send consequences of a template, applied only after the provider accepted it.
type Effects struct {
	Status        conversation.Status
	NotifyAgent   bool
	RequestRating bool
}

func EffectsOf(t template.Template) Effects {
	switch t.Type {
	case template.TypeContactAgent:
		return Effects{Status: conversation.StatusInProgress, NotifyAgent: true}
	case template.TypeResolveConversation:
		return Effects{Status: conversation.StatusResolved, RequestRating: true}
	default:
		return Effects{Status: conversation.StatusInProgress}
	}
}
