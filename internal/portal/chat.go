package portal

import (
	"errors"
	"html"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/Skufu/diagportal/internal/upstream"
)

const (
	WelcomeMessage    = "Hello! I'm your mental health assistant. How can I help you today?"
	ChatFailedMessage = "I apologize, but I encountered a technical difficulty. Please try again."
)

var (
	// ErrBusy rejects a chat submit while the previous one is in flight.
	ErrBusy = errors.New("chat turn already in progress")
	// ErrTurnSuperseded is returned when a turn finishes after the chat was
	// reset or taken over by a newer turn.
	ErrTurnSuperseded = errors.New("chat turn superseded")
)

var DefaultSuggestions = []string{
	"I'm feeling anxious",
	"I'm having trouble sleeping",
	"I feel lonely",
	"I'm stressed about work",
	"I need relationship advice",
	"How can you help me?",
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func (m Message) Icon() string {
	if m.Role == RoleUser {
		return "fa-user"
	}
	return "fa-robot"
}

// Body is the formatted message. Error entries are escaped but not
// transformed.
func (m Message) Body() template.HTML {
	if m.Role == RoleError {
		return template.HTML(html.EscapeString(m.Content))
	}
	return FormatMessage(m.Content)
}

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseSending Phase = "sending"
)

// Chat is the per-session chat widget state.
type Chat struct {
	Transcript   []Message `json:"transcript"`
	Suggestions  []string  `json:"suggestions"`
	Phase        Phase     `json:"phase"`
	SendingSince time.Time `json:"sending_since,omitempty"`
	Turn         string    `json:"turn,omitempty"`
}

func NewChat() Chat {
	return Chat{
		Transcript:  []Message{{Role: RoleAssistant, Content: WelcomeMessage}},
		Suggestions: append([]string(nil), DefaultSuggestions...),
		Phase:       PhaseIdle,
	}
}

// Begin moves idle to sending and records turn as the owner of the phase.
// A sending phase older than stale is treated as abandoned (the process
// handling it went away) and may be taken over.
func (c *Chat) Begin(now time.Time, stale time.Duration, turn string) error {
	if c.Phase == PhaseSending && (stale <= 0 || now.Sub(c.SendingSince) < stale) {
		return ErrBusy
	}
	c.Phase = PhaseSending
	c.SendingSince = now
	c.Turn = turn
	return nil
}

// Owns reports whether turn still holds the sending phase.
func (c *Chat) Owns(turn string) bool {
	return c.Phase == PhaseSending && c.Turn == turn
}

// End moves sending back to idle.
func (c *Chat) End() {
	c.Phase = PhaseIdle
	c.SendingSince = time.Time{}
	c.Turn = ""
}

func (c *Chat) Append(role Role, content string) Message {
	m := Message{Role: role, Content: content}
	c.Transcript = append(c.Transcript, m)
	return m
}

// ApplyTurn appends the assistant messages of a turn and replaces the
// suggestions when the turn carries any. Other roles are dropped: the user
// message was appended when the turn began.
func (c *Chat) ApplyTurn(turn *upstream.ChatTurn) []Message {
	var added []Message
	for _, m := range turn.Messages {
		if m.Role == string(RoleAssistant) {
			added = append(added, c.Append(RoleAssistant, m.Content))
		}
	}
	if turn.Suggestions != nil {
		c.Suggestions = turn.Suggestions
	}
	return added
}

// ApplyError appends the error entry for a failed turn.
func (c *Chat) ApplyError(err error) Message {
	if msg, ok := upstream.IsServerError(err); ok {
		return c.Append(RoleError, msg)
	}
	return c.Append(RoleError, ChatFailedMessage)
}

var (
	bulletLine   = regexp.MustCompile(`(?m)^- (.+)$`)
	numberedLine = regexp.MustCompile(`(?m)^\d+\. (.+)$`)
	firstItems   = regexp.MustCompile(`(?s)<li>.*</li>`)
)

// FormatMessage turns chat text into markup. The steps run in a fixed order
// and each one sees the output of the previous one, so a bullet list also
// ends up inside an <ol>.
func FormatMessage(content string) template.HTML {
	content = html.EscapeString(content)

	if strings.Contains(content, "IMMEDIATE ACTIONS:") {
		return template.HTML(`<div class="crisis-message">` + content + `</div>`)
	}

	content = bulletLine.ReplaceAllString(content, "<li>${1}</li>")
	if strings.Contains(content, "<li>") {
		content = "<ul>" + content + "</ul>"
	}

	content = numberedLine.ReplaceAllString(content, "<li>${1}</li>")
	if strings.Contains(content, "<li>") {
		if loc := firstItems.FindStringIndex(content); loc != nil {
			content = content[:loc[0]] + "<ol>" + content[loc[0]:loc[1]] + "</ol>" + content[loc[1]:]
		}
	}

	if strings.Contains(content, "coping strategies:") {
		content = `<div class="coping-strategies">` + content + `</div>`
	}
	if strings.Contains(content, "resources:") {
		content = `<div class="resources-list">` + content + `</div>`
	}

	paras := strings.Split(content, "\n\n")
	for i, p := range paras {
		if !strings.HasPrefix(strings.TrimSpace(p), "<") {
			paras[i] = "<p>" + p + "</p>"
		}
	}
	return template.HTML(strings.Join(paras, ""))
}
