package convoy

import (
	"strings"

	"github.com/meridianlabs-io/convoy/pkg/convoy/config"
)

// Detector classifies a user message into an Intent. Detection is
// keyword and attachment based so it is deterministic and cheap; the
// LLM is only consulted downstream, inside nodes.
type Detector struct {
	confirm   []string
	reject    []string
	sizes     []string
	payment   []string
	complaint []string
	offTopic  []string
	greeting  []string
	query     []string
}

// NewDetector builds a Detector from engine configuration. The
// confirmation and rejection keyword lists come from config so
// deployments can localize them; the remaining vocabularies are fixed.
func NewDetector(cfg config.EngineConfig) *Detector {
	return &Detector{
		confirm:   lowerAll(cfg.ConfirmationKeywords),
		reject:    lowerAll(cfg.RejectionKeywords),
		sizes:     []string{"size", "small", "medium", "large", "xs", "xl", "xxl"},
		payment:   []string{"card", "credit", "debit", "transfer", "cash", "pay with", "iban", "account number"},
		complaint: []string{"complaint", "complain", "terrible", "awful", "refund", "broken", "damaged", "never arrived", "scam"},
		offTopic:  []string{"weather", "politics", "joke", "football", "recipe"},
		greeting:  []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "hola"},
		query:     []string{"do you have", "looking for", "i want", "i need", "show me", "price", "how much", "available", "in stock", "catalog"},
	}
}

// Detect classifies the latest user message in the state. The order of
// checks encodes priority: attachments beat text, complaints beat
// everything textual, and explicit confirmation/rejection beat generic
// queries.
func (d *Detector) Detect(s *State) Intent {
	msg, ok := s.LastUserMessage()
	if !ok {
		return IntentUnknown
	}
	if msg.HasImage() {
		return IntentImage
	}

	text := " " + strings.ToLower(strings.TrimSpace(msg.Content)) + " "
	if text == "  " {
		return IntentUnknown
	}

	// While the payment phase is collecting contact details, a message
	// that is mostly a phone number or address is payment data even
	// without payment vocabulary.
	if s.Phase == PhasePayment && s.SubPhase == SubPhaseRequestData && digitCount(text) >= 7 {
		return IntentPaymentData
	}

	switch {
	case containsAny(text, d.complaint):
		return IntentComplaint
	case containsAny(text, d.payment):
		return IntentPaymentData
	case containsAny(text, d.confirm):
		return IntentConfirm
	case containsAny(text, d.reject):
		return IntentReject
	case containsAny(text, d.sizes):
		return IntentSize
	case containsAny(text, d.query):
		return IntentItemQuery
	case containsAny(text, d.greeting):
		return IntentGreeting
	case containsAny(text, d.offTopic):
		return IntentOffTopic
	}
	return IntentUnknown
}

// containsAny matches single-word keywords on word boundaries and
// multi-word keywords as substrings. The text is already lowercased
// and padded with spaces by the caller.
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			if strings.Contains(text, kw) {
				return true
			}
			continue
		}
		if strings.Contains(text, " "+kw+" ") ||
			strings.Contains(text, " "+kw+",") ||
			strings.Contains(text, " "+kw+".") ||
			strings.Contains(text, " "+kw+"!") ||
			strings.Contains(text, " "+kw+"?") {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
