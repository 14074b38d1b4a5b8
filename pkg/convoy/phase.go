package convoy

// Phase is the coarse-grained stage of a conversation.
// A conversation is in exactly one phase at any time, and only the
// router's transition table moves it between phases.
type Phase string

// Dialogue phases.
const (
	PhaseInit               Phase = "init"
	PhaseDiscovery          Phase = "discovery"
	PhaseItemIdentification Phase = "item_identification"
	PhaseSizeSelection      Phase = "size_selection"
	PhaseOffer              Phase = "offer"
	PhasePayment            Phase = "payment"
	PhaseUpsell             Phase = "upsell"
	PhaseEnd                Phase = "end"
	PhaseComplaint          Phase = "complaint"
	PhaseOutOfDomain        Phase = "out_of_domain"
)

// AllPhases lists every valid phase. The order is stable and is used by
// the transition-table completeness check.
var AllPhases = []Phase{
	PhaseInit,
	PhaseDiscovery,
	PhaseItemIdentification,
	PhaseSizeSelection,
	PhaseOffer,
	PhasePayment,
	PhaseUpsell,
	PhaseEnd,
	PhaseComplaint,
	PhaseOutOfDomain,
}

// Valid reports whether p is a member of the phase enumeration.
func (p Phase) Valid() bool {
	for _, known := range AllPhases {
		if p == known {
			return true
		}
	}
	return false
}

// String returns the phase name.
func (p Phase) String() string {
	return string(p)
}

// SubPhase is the secondary state used inside multi-step phases.
// Only the payment phase currently has sub-phases; everywhere else
// the sub-phase is SubPhaseNone.
type SubPhase string

// Payment sub-phases, in flow order.
const (
	SubPhaseNone        SubPhase = ""
	SubPhaseRequestData SubPhase = "request_data"
	SubPhaseConfirmData SubPhase = "confirm_data"
	SubPhaseShowDetails SubPhase = "show_details"
	SubPhaseThankYou    SubPhase = "thank_you"
)

// String returns the sub-phase name, or "none" for the zero value.
func (sp SubPhase) String() string {
	if sp == SubPhaseNone {
		return "none"
	}
	return string(sp)
}

// Intent is the classified meaning of an inbound turn (or of a routing
// signal emitted by a node). The router resolves every (phase, intent)
// pair to a destination.
type Intent string

// Recognized intents.
const (
	IntentGreeting    Intent = "greeting"
	IntentItemQuery   Intent = "item_query"
	IntentImage       Intent = "image"
	IntentSize        Intent = "size"
	IntentConfirm     Intent = "confirm"
	IntentReject      Intent = "reject"
	IntentPaymentData Intent = "payment_data"
	IntentComplaint   Intent = "complaint"
	IntentOffTopic    Intent = "off_topic"
	IntentContinue    Intent = "continue"
	IntentUnknown     Intent = "unknown"
)

// AllIntents lists every recognized intent. Used together with AllPhases
// to verify the transition table is total.
var AllIntents = []Intent{
	IntentGreeting,
	IntentItemQuery,
	IntentImage,
	IntentSize,
	IntentConfirm,
	IntentReject,
	IntentPaymentData,
	IntentComplaint,
	IntentOffTopic,
	IntentContinue,
	IntentUnknown,
}

// Valid reports whether i is a recognized intent.
func (i Intent) Valid() bool {
	for _, known := range AllIntents {
		if i == known {
			return true
		}
	}
	return false
}

// String returns the intent name.
func (i Intent) String() string {
	return string(i)
}
