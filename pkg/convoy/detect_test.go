package convoy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetector_Detect(t *testing.T) {
	d := NewDetector(fastConfig())

	tests := []struct {
		name string
		text string
		want Intent
	}{
		{"greeting", "hello there", IntentGreeting},
		{"greeting phrase", "good morning!", IntentGreeting},
		{"item query", "do you have this in blue?", IntentItemQuery},
		{"price query", "how much is the coat", IntentItemQuery},
		{"size", "I'd like size medium", IntentSize},
		{"size token", "xl works for me", IntentSize},
		{"confirm", "yes, sounds good", IntentConfirm},
		{"reject", "no thanks, cancel it", IntentReject},
		{"plain reject", "nope", IntentReject},
		{"payment vocabulary", "I'll pay with my credit card", IntentPaymentData},
		{"complaint", "this is terrible, I want a refund", IntentComplaint},
		{"off topic", "what's the weather like?", IntentOffTopic},
		{"gibberish", "asdf qwerty", IntentUnknown},
		{"empty", "   ", IntentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.AppendMessage(Message{Role: RoleUser, Content: tt.text})
			assert.Equal(t, tt.want, d.Detect(&s))
		})
	}
}

func TestDetector_ImageBeatsText(t *testing.T) {
	d := NewDetector(fastConfig())
	s := NewState()
	s.AppendMessage(Message{
		Role:        RoleUser,
		Content:     "do you have this?",
		Attachments: []Attachment{{Kind: "image", URL: "https://example.com/p.jpg"}},
	})
	assert.Equal(t, IntentImage, d.Detect(&s))
}

func TestDetector_ComplaintBeatsConfirm(t *testing.T) {
	d := NewDetector(fastConfig())
	s := NewState()
	s.AppendMessage(Message{Role: RoleUser, Content: "yes but this is a scam, I want a refund"})
	assert.Equal(t, IntentComplaint, d.Detect(&s))
}

func TestDetector_PaymentPhaseContactData(t *testing.T) {
	d := NewDetector(fastConfig())
	s := NewState()
	s.Phase = PhasePayment
	s.SubPhase = SubPhaseRequestData
	s.AppendMessage(Message{Role: RoleUser, Content: "Jane Doe, 555-123-4567, 1 Main St"})
	assert.Equal(t, IntentPaymentData, d.Detect(&s))

	// Same message outside the payment phase stays unclassified.
	s2 := NewState()
	s2.AppendMessage(Message{Role: RoleUser, Content: "Jane Doe, 555-123-4567, 1 Main St"})
	assert.Equal(t, IntentUnknown, d.Detect(&s2))
}

func TestDetector_NoUserMessage(t *testing.T) {
	d := NewDetector(fastConfig())
	s := NewState()
	s.AppendMessage(Message{Role: RoleAssistant, Content: "hello"})
	assert.Equal(t, IntentUnknown, d.Detect(&s))
}
