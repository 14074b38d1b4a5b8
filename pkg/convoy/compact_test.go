package convoy

import (
	"strings"
	"testing"

	"github.com/meridianlabs-io/convoy/pkg/convoy/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compactCfg(messageCap, charLimit int) config.EngineConfig {
	cfg := fastConfig()
	cfg.MessageCap = messageCap
	cfg.MessageCharLimit = charLimit
	return cfg
}

func TestCompact_KeepsMostRecentMessages(t *testing.T) {
	s := NewState()
	for i := 0; i < 10; i++ {
		s.AppendMessage(Message{Role: RoleUser, Content: strings.Repeat("x", i+1)})
	}

	out := Compact(s, compactCfg(4, 1000))
	require.Len(t, out.Messages, 4)
	// The last four survive, oldest first.
	assert.Equal(t, strings.Repeat("x", 7), out.Messages[0].Content)
	assert.Equal(t, strings.Repeat("x", 10), out.Messages[3].Content)

	// Original untouched.
	assert.Len(t, s.Messages, 10)
}

func TestCompact_TruncatesLongBodies(t *testing.T) {
	s := NewState()
	s.AppendMessage(Message{Role: RoleUser, Content: strings.Repeat("a", 500)})
	s.AppendMessage(Message{Role: RoleUser, Content: "short"})

	out := Compact(s, compactCfg(100, 100))
	assert.True(t, strings.HasSuffix(out.Messages[0].Content, truncationMarker))
	assert.Less(t, len(out.Messages[0].Content), 500)
	assert.Equal(t, "short", out.Messages[1].Content)
}

func TestCompact_Idempotent(t *testing.T) {
	s := NewState()
	for i := 0; i < 8; i++ {
		s.AppendMessage(Message{Role: RoleUser, Content: strings.Repeat("word ", 100)})
	}
	s.SelectedProducts = []Product{{SKU: "sku-1", Name: "jacket", PriceCents: 4999}}

	cfg := compactCfg(5, 120)
	once := Compact(s, cfg)
	twice := Compact(once, cfg)
	assert.Equal(t, once, twice)
}

func TestCompact_StripsInlineMedia(t *testing.T) {
	s := NewState()
	s.AppendMessage(Message{Role: RoleUser, Content: "data:image/png;base64,iVBORw0KGgo="})
	s.AppendMessage(Message{
		Role:        RoleUser,
		Content:     "here's a photo",
		Attachments: []Attachment{{Kind: "image", URL: "https://cdn.example.com/p.jpg", Data: strings.Repeat("QUJD", 300)}},
	})

	out := Compact(s, compactCfg(100, 4000))
	assert.Equal(t, mediaMarker, out.Messages[0].Content)
	assert.Empty(t, out.Messages[1].Attachments[0].Data)
	// The URL reference survives.
	assert.Equal(t, "https://cdn.example.com/p.jpg", out.Messages[1].Attachments[0].URL)
}

func TestCompact_StripsBareBase64Blob(t *testing.T) {
	s := NewState()
	blob := strings.Repeat("SGVsbG8h", 100)
	s.AppendMessage(Message{Role: RoleUser, Content: blob})

	out := Compact(s, compactCfg(100, 10000))
	assert.Equal(t, mediaMarker, out.Messages[0].Content)
}

func TestCompact_NeverTouchesCommercialData(t *testing.T) {
	s := NewState()
	for i := 0; i < 50; i++ {
		s.AppendMessage(Message{Role: RoleUser, Content: strings.Repeat("chatter ", 200)})
	}
	s.SelectedProducts = []Product{
		{SKU: "sku-1", Name: "jacket", Size: "m", PriceCents: 4999},
		{SKU: "sku-2", Name: "scarf", PriceCents: 1299},
	}
	s.Contact = Contact{Name: "Jane Doe", Phone: "555-123-4567", Address: "1 Main St"}
	s.Phase = PhasePayment
	s.SubPhase = SubPhaseConfirmData
	s.SetFlag(FlagChannel, "whatsapp")

	out := Compact(s, compactCfg(3, 50))
	assert.Equal(t, s.SelectedProducts, out.SelectedProducts)
	assert.Equal(t, s.Contact, out.Contact)
	assert.Equal(t, PhasePayment, out.Phase)
	assert.Equal(t, SubPhaseConfirmData, out.SubPhase)
	assert.Equal(t, "whatsapp", out.Flag(FlagChannel))
}

func TestCompact_RuneSafeTruncation(t *testing.T) {
	s := NewState()
	s.AppendMessage(Message{Role: RoleUser, Content: strings.Repeat("é", 100)})

	out := Compact(s, compactCfg(10, 51)) // 51 bytes lands mid-rune
	trimmed := strings.TrimSuffix(out.Messages[0].Content, truncationMarker)
	for _, r := range trimmed {
		assert.Equal(t, 'é', r)
	}
}
