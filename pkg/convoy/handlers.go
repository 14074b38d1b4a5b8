package convoy

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/meridianlabs-io/convoy/pkg/convoy/effect"
)

// BuiltinHandlers returns the standard node set covering every
// destination in the transition table. Callers can replace individual
// handlers by registering their own under the same IDs.
func BuiltinHandlers() []Handler {
	return []Handler{
		newSafetyHandler(),
		newDiscoveryHandler(),
		newIdentifyHandler(),
		newSizeHandler(),
		newOfferHandler(),
		newPaymentHandler(),
		newPaymentConfirmHandler(),
		newUpsellHandler(),
		newEscalateHandler(),
		newOutOfDomainHandler(),
		newGoodbyeHandler(),
	}
}

// DefaultRegistry builds a registry with the builtin handler set.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(BuiltinHandlers()...)
}

// generate asks the LLM for a reply, falling back to canned text when
// no LLM is configured or the model returns an empty completion. Real
// model failures propagate so the resilience layer can classify them.
func generate(ctx Context, prompt, fallback string) (string, error) {
	llm, err := ctx.Services().LLM()
	if errors.Is(err, ErrServiceUnavailable) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("llm client: %w", err)
	}
	text, err := llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return fallback, nil
	}
	return text, nil
}

// historyTail renders the last few turns for prompt context.
func historyTail(s State, n int) string {
	start := len(s.Messages) - n
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, m := range s.Messages[start:] {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// newSafetyHandler builds the moderation prepass. It runs before
// routing on every turn: abusive or unsafe content escalates
// immediately, everything else continues to the router untouched.
func newSafetyHandler() Handler {
	banned := []string{"kill", "bomb", "weapon", "suicide", "hate you all"}
	return NewHandler(
		Spec{ID: NodeSafety, Class: ClassInternal, Idempotent: true},
		func(ctx Context, s State) (NodeResult, error) {
			msg, ok := s.LastUserMessage()
			if !ok {
				return NodeResult{State: s, Signal: SignalContinue}, nil
			}
			text := " " + strings.ToLower(msg.Content) + " "
			if containsAny(text, banned) {
				s.SetFlag(FlagLastError, "unsafe_content")
				return NodeResult{State: s, Signal: SignalEscalate}, nil
			}
			return NodeResult{State: s, Signal: SignalContinue}, nil
		},
	)
}

func newDiscoveryHandler() Handler {
	return NewHandler(
		Spec{ID: NodeDiscovery, Class: ClassLLM, Idempotent: true},
		func(ctx Context, s State) (NodeResult, error) {
			prompt := "You are a sales assistant. Greet the customer and ask what they are looking for.\n" +
				"Conversation so far:\n" + historyTail(s, 6)
			reply, err := generate(ctx, prompt,
				"Hi! Welcome to the store. What are you looking for today?")
			if err != nil {
				return NodeResult{}, err
			}
			s.Reply(reply)
			return NodeResult{State: s, Signal: SignalComplete}, nil
		},
	)
}

func newIdentifyHandler() Handler {
	return NewHandler(
		Spec{ID: NodeIdentify, Class: ClassLLM, Idempotent: true},
		func(ctx Context, s State) (NodeResult, error) {
			msg, ok := s.LastUserMessage()
			if !ok {
				return NodeResult{State: s, Signal: SignalComplete}, nil
			}

			if msg.HasImage() {
				desc, err := describeImage(ctx, msg)
				if err != nil {
					return NodeResult{}, err
				}
				s.SelectedProducts = append(s.SelectedProducts, Product{
					SKU:        "sku-" + uuid.New().String()[:8],
					Name:       desc,
					PriceCents: 4999,
				})
				s.Reply(fmt.Sprintf("That looks like %s. Would you like it? If so, what size?", desc))
				return NodeResult{State: s, Signal: SignalComplete}, nil
			}

			prompt := "You are a sales assistant. The customer is describing a product. " +
				"Name the closest catalog item in a few words.\n" +
				"Customer message: " + msg.Content
			name, err := generate(ctx, prompt, "the item you described")
			if err != nil {
				return NodeResult{}, err
			}
			s.SelectedProducts = append(s.SelectedProducts, Product{
				SKU:        "sku-" + uuid.New().String()[:8],
				Name:       name,
				PriceCents: 4999,
			})
			s.Reply(fmt.Sprintf("We have %s in stock. What size would you like?", name))
			return NodeResult{State: s, Signal: SignalComplete}, nil
		},
	)
}

// describeImage resolves a product description from the image in msg.
// Without a vision-capable client it falls back to a generic label.
func describeImage(ctx Context, msg Message) (string, error) {
	var url string
	for _, a := range msg.Attachments {
		if a.Kind == "image" {
			url = a.URL
			break
		}
	}
	llm, err := ctx.Services().LLM()
	if errors.Is(err, ErrServiceUnavailable) {
		return "a product from our catalog", nil
	}
	if err != nil {
		return "", fmt.Errorf("llm client: %w", err)
	}
	desc, err := llm.AnalyzeImage(ctx, url)
	if err != nil {
		return "", fmt.Errorf("image analysis: %w", err)
	}
	if strings.TrimSpace(desc) == "" {
		desc = "a product from our catalog"
	}
	return desc, nil
}

func newSizeHandler() Handler {
	return NewHandler(
		Spec{ID: NodeSize, Class: ClassLLM, Idempotent: true},
		func(ctx Context, s State) (NodeResult, error) {
			if len(s.SelectedProducts) == 0 {
				s.Reply("Which item would you like first? Then we can pick a size.")
				return NodeResult{State: s, Signal: SignalComplete}, nil
			}
			msg, _ := s.LastUserMessage()
			size := extractSize(msg.Content)
			if size == "" {
				s.Reply("What size would you like? We carry XS through XXL.")
				return NodeResult{State: s, Signal: SignalComplete}, nil
			}
			s.SelectedProducts[len(s.SelectedProducts)-1].Size = size
			s.Reply(fmt.Sprintf("Noted, size %s. Ready to see your total?", strings.ToUpper(size)))
			return NodeResult{State: s, Signal: SignalComplete}, nil
		},
	)
}

// extractSize pulls a clothing size token out of free text.
func extractSize(text string) string {
	tokens := strings.Fields(strings.ToLower(text))
	for _, t := range tokens {
		t = strings.Trim(t, ".,!?")
		switch t {
		case "xs", "s", "m", "l", "xl", "xxl", "small", "medium", "large":
			return t
		}
	}
	return ""
}

func newOfferHandler() Handler {
	return NewHandler(
		Spec{ID: NodeOffer, Class: ClassLLM, Idempotent: true},
		func(ctx Context, s State) (NodeResult, error) {
			if len(s.SelectedProducts) == 0 {
				s.Reply("Your cart is empty. What would you like to order?")
				return NodeResult{State: s, Signal: SignalComplete}, nil
			}
			var b strings.Builder
			var total int64
			b.WriteString("Here is your order:\n")
			for _, p := range s.SelectedProducts {
				fmt.Fprintf(&b, "- %s", p.Name)
				if p.Size != "" {
					fmt.Fprintf(&b, " (size %s)", strings.ToUpper(p.Size))
				}
				fmt.Fprintf(&b, " — %s\n", formatPrice(p.PriceCents))
				total += p.PriceCents
			}
			fmt.Fprintf(&b, "Total: %s. Shall I proceed with the order?", formatPrice(total))
			s.Reply(b.String())
			return NodeResult{State: s, Signal: SignalComplete}, nil
		},
	)
}

func formatPrice(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// newPaymentHandler drives the data-collection steps of checkout. The
// confirmation step that actually submits the order is a separate,
// gated node.
func newPaymentHandler() Handler {
	return NewHandler(
		Spec{ID: NodePayment, Class: ClassInternal, Idempotent: true},
		func(ctx Context, s State) (NodeResult, error) {
			switch s.SubPhase {
			case SubPhaseConfirmData:
				msg, _ := s.LastUserMessage()
				s.Contact = mergeContact(s.Contact, parseContact(msg.Content))
				s.Reply(fmt.Sprintf(
					"Let me confirm your details:\nName: %s\nPhone: %s\nAddress: %s\nIs everything correct?",
					orDash(s.Contact.Name), orDash(s.Contact.Phone), orDash(s.Contact.Address)))
				return NodeResult{State: s, Signal: SignalComplete}, nil

			case SubPhaseThankYou:
				s.Reply("Thank you for your purchase! You'll receive a confirmation shortly.")
				return NodeResult{State: s, Signal: SignalContinue, Intent: IntentContinue}, nil

			default:
				// request_data and any stale sub-phase restart collection.
				s.SubPhase = SubPhaseRequestData
				s.Reply("To complete your order I need your name, phone number, and delivery address.")
				return NodeResult{State: s, Signal: SignalComplete}, nil
			}
		},
	)
}

func orDash(v string) string {
	if v == "" {
		return "—"
	}
	return v
}

// parseContact extracts contact fields from a free-text message.
// Heuristic: a long digit run is the phone, the first non-numeric line
// is the name, everything else is the address.
func parseContact(text string) Contact {
	var c Contact
	var addressParts []string
	for _, line := range strings.Split(text, "\n") {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			switch {
			case c.Phone == "" && digitCount(part) >= 7:
				c.Phone = part
			case c.Name == "" && digitCount(part) == 0:
				c.Name = part
			default:
				addressParts = append(addressParts, part)
			}
		}
	}
	c.Address = strings.Join(addressParts, ", ")
	return c
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// mergeContact keeps previously collected fields when the new message
// only repeats some of them.
func mergeContact(prev, next Contact) Contact {
	if next.Name == "" {
		next.Name = prev.Name
	}
	if next.Phone == "" {
		next.Phone = prev.Phone
	}
	if next.Address == "" {
		next.Address = prev.Address
	}
	return next
}

// newPaymentConfirmHandler builds the order-submission node. It is
// gated behind human approval and is NOT idempotent: the engine never
// retries it, and a second approval of the same request is rejected by
// the approval store.
func newPaymentConfirmHandler() Handler {
	return NewHandler(
		Spec{ID: NodePaymentConfirm, Class: ClassCRM, Gated: true, Idempotent: false},
		func(ctx Context, s State) (NodeResult, error) {
			var total int64
			for _, p := range s.SelectedProducts {
				total += p.PriceCents
			}
			order := Order{
				ThreadID:   ctx.ThreadID(),
				Products:   s.SelectedProducts,
				Contact:    s.Contact,
				TotalCents: total,
			}

			crm, err := ctx.Services().CRM()
			if err != nil && !errors.Is(err, ErrServiceUnavailable) {
				return NodeResult{}, fmt.Errorf("crm client: %w", err)
			}

			orderID := "ord-" + uuid.New().String()[:8]
			if crm != nil {
				orderID, err = crm.SubmitOrder(ctx, order)
				if err != nil {
					return NodeResult{}, fmt.Errorf("submit order: %w", err)
				}
			}

			s.Reply(fmt.Sprintf("Your order %s is confirmed. Total charged: %s.",
				orderID, formatPrice(total)))

			fx := effect.SubmitOrder(ctx.ThreadID(), map[string]any{
				"order_id":    orderID,
				"total_cents": total,
			})
			return NodeResult{
				State:   s,
				Signal:  SignalContinue,
				Intent:  IntentContinue,
				Effects: []effect.Effect{fx},
			}, nil
		},
	)
}

func newUpsellHandler() Handler {
	return NewHandler(
		Spec{ID: NodeUpsell, Class: ClassLLM, Idempotent: true},
		func(ctx Context, s State) (NodeResult, error) {
			prompt := "You are a sales assistant. The customer just completed a purchase:\n" +
				historyTail(s, 4) +
				"Suggest one complementary item in a single friendly sentence."
			reply, err := generate(ctx, prompt,
				"Customers who bought this also loved our matching accessories. Interested?")
			if err != nil {
				return NodeResult{}, err
			}
			s.Reply(reply)
			return NodeResult{State: s, Signal: SignalComplete}, nil
		},
	)
}

// newEscalateHandler hands the conversation to a human operator. The
// escalation level ratchets up on repeat visits; level two and above
// hands the whole thread off instead of just notifying.
func newEscalateHandler() Handler {
	return NewHandler(
		Spec{ID: NodeEscalate, Class: ClassInternal, Idempotent: true},
		func(ctx Context, s State) (NodeResult, error) {
			level := 1
			if s.HasFlag(FlagEscalation) {
				fmt.Sscanf(s.Flag(FlagEscalation), "%d", &level)
				level++
			}
			s.SetFlag(FlagEscalation, fmt.Sprintf("%d", level))

			reason := s.Flag(FlagLastError)
			if reason == "" {
				reason = "customer_request"
			}

			var fx effect.Effect
			if level >= 2 {
				fx = effect.Handoff(ctx.ThreadID(), reason)
			} else {
				fx = effect.NotifyOperator(ctx.ThreadID(), reason)
			}

			s.Reply("I'm connecting you with one of our team members who can help. One moment, please.")
			return NodeResult{
				State:   s,
				Signal:  SignalComplete,
				Effects: []effect.Effect{fx},
			}, nil
		},
	)
}

func newOutOfDomainHandler() Handler {
	return NewHandler(
		Spec{ID: NodeOutOfDomain, Class: ClassInternal, Idempotent: true},
		func(ctx Context, s State) (NodeResult, error) {
			s.Reply("I can help with our products, sizes, and orders. Is there something from the store I can find for you?")
			return NodeResult{State: s, Signal: SignalComplete}, nil
		},
	)
}

func newGoodbyeHandler() Handler {
	return NewHandler(
		Spec{ID: NodeGoodbye, Class: ClassInternal, Idempotent: true},
		func(ctx Context, s State) (NodeResult, error) {
			s.Reply("Thanks for stopping by! Come back any time.")
			return NodeResult{State: s, Signal: SignalComplete}, nil
		},
	)
}
