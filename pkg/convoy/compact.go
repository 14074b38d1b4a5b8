package convoy

import (
	"strings"
	"unicode/utf8"

	"github.com/meridianlabs-io/convoy/pkg/convoy/config"
)

const (
	truncationMarker = "…[truncated]"
	mediaMarker      = "[media removed]"
)

// Compact reduces a state to bounded size before persistence. It is
// deterministic and idempotent: compacting an already-compacted state
// is a no-op.
//
// Compaction only ever touches the message history:
//   - keeps the most recent MessageCap messages
//   - truncates message bodies longer than MessageCharLimit
//   - strips inline attachment payloads, keeping only URLs
//
// Structured commercial data (selected products, contact info, phase,
// flags) is never compacted away.
func Compact(s State, cfg config.EngineConfig) State {
	out := s.Clone()

	if cfg.MessageCap > 0 && len(out.Messages) > cfg.MessageCap {
		kept := out.Messages[len(out.Messages)-cfg.MessageCap:]
		out.Messages = make([]Message, len(kept))
		copy(out.Messages, kept)
	}

	for i := range out.Messages {
		out.Messages[i].Content = compactContent(out.Messages[i].Content, cfg.MessageCharLimit)
		for j := range out.Messages[i].Attachments {
			out.Messages[i].Attachments[j].Data = ""
		}
	}

	return out
}

// compactContent bounds a single message body. Bodies that embed raw
// media payloads (data URIs, base64 blobs) are replaced wholesale:
// truncating them mid-blob would leave useless fragments.
func compactContent(content string, charLimit int) string {
	if isInlineMedia(content) {
		return mediaMarker
	}
	if charLimit <= 0 || len(content) <= charLimit {
		return content
	}
	if strings.HasSuffix(content, truncationMarker) {
		return content
	}
	// Back off to a rune boundary so truncation never splits UTF-8.
	cut := charLimit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + truncationMarker
}

// isInlineMedia reports whether a message body is a raw media payload
// rather than text.
func isInlineMedia(content string) bool {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "data:image/") || strings.HasPrefix(trimmed, "data:application/") {
		return true
	}
	// Long unbroken base64-looking runs are treated as blobs.
	if len(trimmed) > 512 && !strings.ContainsAny(trimmed, " \n\t") && isBase64ish(trimmed) {
		return true
	}
	return false
}

func isBase64ish(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '+' || r == '/' || r == '=':
		default:
			return false
		}
	}
	return true
}
