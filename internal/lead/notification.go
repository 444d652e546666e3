package lead

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// Notification is the outbox payload for a new lead.
type Notification struct {
	LeadID    string             `json:"lead_id"`
	SessionID string             `json:"session_id"`
	Qualified bool               `json:"qualified"`
	TestMode  bool               `json:"test_mode"`
	Reasons   []string           `json:"reasons,omitempty"`
	Contact   models.ContactInfo `json:"contact"`
	Answers   models.Answers     `json:"answers"`
}

// NewNotification builds the payload for l.
func NewNotification(l models.Lead) Notification {
	return Notification{
		LeadID:    l.ID,
		SessionID: l.SessionID,
		Qualified: l.Qualified,
		TestMode:  l.TestMode,
		Reasons:   l.Reasons,
		Contact:   l.Contact,
		Answers:   l.Answers,
	}
}

// Encode returns the JSON payload stored in the outbox.
func (n Notification) Encode() (string, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("encode notification for lead %s: %w", n.LeadID, err)
	}
	return string(b), nil
}

// DecodeNotification parses an outbox payload.
func DecodeNotification(payload string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	if n.LeadID == "" {
		return n, fmt.Errorf("decode notification: missing lead_id")
	}
	return n, nil
}

// Summary renders the plain-text message sent to the intake team.
func (n Notification) Summary() string {
	var b strings.Builder
	if n.TestMode {
		b.WriteString("[TEST] ")
	}
	if n.Qualified {
		b.WriteString("New qualified accident lead\n")
	} else {
		b.WriteString("New callback request (did not qualify)\n")
	}
	fmt.Fprintf(&b, "Name: %s\n", n.Contact.Name)
	if n.Contact.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", n.Contact.Phone)
	}
	if n.Contact.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", n.Contact.Email)
	}
	if n.Contact.PreferredContact != "" {
		fmt.Fprintf(&b, "Prefers: %s\n", n.Contact.PreferredContact)
	}
	if len(n.Reasons) > 0 {
		fmt.Fprintf(&b, "Reasons: %s\n", strings.Join(n.Reasons, "; "))
	}
	if n.Contact.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", n.Contact.Notes)
	}
	fmt.Fprintf(&b, "Lead: %s", n.LeadID)
	return b.String()
}

// AnswerLines lists the answers as "id: value" lines in id order.
func (n Notification) AnswerLines() []string {
	ids := make([]string, 0, len(n.Answers))
	for id := range n.Answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, id+": "+formatAnswer(n.Answers[id]))
	}
	return lines
}

func formatAnswer(a models.Answer) string {
	switch {
	case a.Date != "":
		return a.Date
	case a.Bool != nil:
		if *a.Bool {
			return "yes"
		}
		return "no"
	case a.Choice != "":
		return a.Choice
	case len(a.Flags) > 0:
		var set []string
		for k, v := range a.Flags {
			if v {
				set = append(set, k)
			}
		}
		if len(set) == 0 {
			return "none"
		}
		sort.Strings(set)
		return strings.Join(set, ", ")
	}
	return "unsure"
}
