package convoy

import (
	"time"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleOperator  Role = "operator"
)

// Attachment is a non-text payload carried by a message.
// Data holds inline content (base64) when the transport delivered it
// inline; compaction strips it before persistence.
type Attachment struct {
	Kind string `json:"kind"` // "image", "audio", "document"
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"`
}

// Message is one turn record in the conversation history.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	At          time.Time    `json:"at"`
}

// HasImage reports whether the message carries an image attachment.
func (m Message) HasImage() bool {
	for _, a := range m.Attachments {
		if a.Kind == "image" {
			return true
		}
	}
	return false
}

// Product is a catalog item the customer has selected.
// Products accumulate until checkout or an explicit reset; compaction
// never drops them.
type Product struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Size       string `json:"size,omitempty"`
	PriceCents int64  `json:"price_cents"`
}

// Contact holds the customer contact fields collected during payment.
// Exempt from compaction: losing these mid-checkout is a correctness bug.
type Contact struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Well-known flag keys.
const (
	FlagPendingImage = "pending_image"   // an image arrived and awaits identification
	FlagEscalation   = "escalation"      // escalation level ("1", "2", ...)
	FlagLastIntent   = "last_intent"     // most recent classified intent
	FlagChannel      = "channel"         // originating transport channel
	FlagTraceID      = "trace_id"        // cross-stage correlation id
	FlagLastError    = "last_error"      // error class that forced escalation
	FlagApprovalUsed = "approval_used"   // approval id consumed by the last gated execution
	FlagRetryCount   = "retry_count"     // validation feedback retries for the current node
)

// State is the accumulated context of one conversation thread.
//
// State is passed by value through the engine and node handlers; handlers
// modify and return a new value rather than mutating shared memory. The
// engine exclusively owns the in-flight state for the duration of a turn.
type State struct {
	Messages         []Message         `json:"messages"`
	Phase            Phase             `json:"phase"`
	SubPhase         SubPhase          `json:"sub_phase,omitempty"`
	SelectedProducts []Product         `json:"selected_products,omitempty"`
	Contact          Contact           `json:"contact,omitempty"`
	Flags            map[string]string `json:"flags,omitempty"`

	// PendingReply accumulates outbound messages produced during the
	// current turn. Transport adapters drain it after ProcessTurn returns.
	PendingReply []string `json:"pending_reply,omitempty"`
}

// NewState returns a fresh conversation state at the init phase.
func NewState() State {
	return State{
		Phase: PhaseInit,
		Flags: make(map[string]string),
	}
}

// AppendMessage appends a turn record to the history.
// History is append-only during a turn; size capping happens at
// persistence time, never here.
func (s *State) AppendMessage(m Message) {
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}
	s.Messages = append(s.Messages, m)
}

// Reply queues an outbound message for the transport adapter.
func (s *State) Reply(text string) {
	s.PendingReply = append(s.PendingReply, text)
	s.AppendMessage(Message{Role: RoleAssistant, Content: text})
}

// Flag returns the value for key, or "" if unset.
func (s State) Flag(key string) string {
	return s.Flags[key]
}

// HasFlag reports whether key is set to a non-empty value.
func (s State) HasFlag(key string) bool {
	return s.Flags[key] != ""
}

// SetFlag sets a cross-stage signal. Initializes the map if needed so
// that the zero State is usable.
func (s *State) SetFlag(key, value string) {
	if s.Flags == nil {
		s.Flags = make(map[string]string)
	}
	s.Flags[key] = value
}

// ClearFlag removes a flag.
func (s *State) ClearFlag(key string) {
	delete(s.Flags, key)
}

// LastUserMessage returns the most recent user message and whether one exists.
func (s State) LastUserMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// Clone returns a deep copy of the state. The engine clones before
// handing state to code outside its ownership (TurnResult snapshots).
func (s State) Clone() State {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		copy(out.Messages, s.Messages)
		for i, m := range s.Messages {
			if m.Attachments != nil {
				out.Messages[i].Attachments = make([]Attachment, len(m.Attachments))
				copy(out.Messages[i].Attachments, m.Attachments)
			}
		}
	}
	if s.SelectedProducts != nil {
		out.SelectedProducts = make([]Product, len(s.SelectedProducts))
		copy(out.SelectedProducts, s.SelectedProducts)
	}
	if s.Flags != nil {
		out.Flags = make(map[string]string, len(s.Flags))
		for k, v := range s.Flags {
			out.Flags[k] = v
		}
	}
	if s.PendingReply != nil {
		out.PendingReply = make([]string, len(s.PendingReply))
		copy(out.PendingReply, s.PendingReply)
	}
	return out
}
