package convoy

import "fmt"

// Transition is the router's decision for one step: which node executes
// next and which phase/sub-phase the conversation moves to before it runs.
type Transition struct {
	Node     string
	Phase    Phase
	SubPhase SubPhase

	// ClearPendingImage is set when the transition leaves the
	// identification phase; the engine clears the pending-image flag
	// exactly once when applying it.
	ClearPendingImage bool
}

// routeKey indexes the transition table.
type routeKey struct {
	phase  Phase
	intent Intent
}

// subKey indexes the payment sub-phase refinement table.
type subKey struct {
	subPhase SubPhase
	intent   Intent
}

// table is the canonical state-transition table. It is total over the
// phase × intent matrix; routerTableComplete (run from tests and from
// NewEngine) rejects any gap. All routing decisions live here or in
// paymentRoutes - there is no conditional routing anywhere else.
var table = buildTable()

// paymentRoutes refines routing inside the multi-step payment phase,
// where the destination depends on the sub-phase. Checked before the
// main table when the conversation is in the payment phase.
var paymentRoutes = map[subKey]Transition{
	{SubPhaseRequestData, IntentPaymentData}: {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseConfirmData},
	{SubPhaseConfirmData, IntentConfirm}:     {Node: NodePaymentConfirm, Phase: PhasePayment, SubPhase: SubPhaseShowDetails},
	{SubPhaseConfirmData, IntentReject}:      {Node: NodeOffer, Phase: PhaseOffer},
	{SubPhaseShowDetails, IntentContinue}:    {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseThankYou},
	{SubPhaseThankYou, IntentContinue}:       {Node: NodeUpsell, Phase: PhaseUpsell},
}

func buildTable() map[routeKey]Transition {
	t := make(map[routeKey]Transition)
	row := func(p Phase, dests map[Intent]Transition) {
		for intent, tr := range dests {
			t[routeKey{p, intent}] = tr
		}
	}

	// Destinations that hold for every phase. Complaint always wins
	// over phase defaults; an image-bearing turn always goes to
	// identification (a self-loop when already there); off-topic turns
	// go to the out-of-domain handler.
	for _, p := range AllPhases {
		row(p, map[Intent]Transition{
			IntentComplaint: {Node: NodeEscalate, Phase: PhaseComplaint},
			IntentImage:     {Node: NodeIdentify, Phase: PhaseItemIdentification},
			IntentOffTopic:  {Node: NodeOutOfDomain, Phase: PhaseOutOfDomain},
		})
	}

	row(PhaseInit, map[Intent]Transition{
		IntentGreeting:    {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentItemQuery:   {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentSize:        {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentConfirm:     {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentReject:      {Node: NodeGoodbye, Phase: PhaseEnd},
		IntentPaymentData: {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentContinue:    {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentUnknown:     {Node: NodeDiscovery, Phase: PhaseDiscovery},
	})

	row(PhaseDiscovery, map[Intent]Transition{
		IntentGreeting:    {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentItemQuery:   {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentSize:        {Node: NodeSize, Phase: PhaseSizeSelection},
		IntentConfirm:     {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentReject:      {Node: NodeGoodbye, Phase: PhaseEnd},
		IntentPaymentData: {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentContinue:    {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentUnknown:     {Node: NodeDiscovery, Phase: PhaseDiscovery},
	})

	row(PhaseItemIdentification, map[Intent]Transition{
		IntentGreeting:    {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentItemQuery:   {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentSize:        {Node: NodeSize, Phase: PhaseSizeSelection},
		IntentConfirm:     {Node: NodeSize, Phase: PhaseSizeSelection},
		IntentReject:      {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentPaymentData: {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentContinue:    {Node: NodeSize, Phase: PhaseSizeSelection},
		IntentUnknown:     {Node: NodeIdentify, Phase: PhaseItemIdentification},
	})

	row(PhaseSizeSelection, map[Intent]Transition{
		IntentGreeting:    {Node: NodeSize, Phase: PhaseSizeSelection},
		IntentItemQuery:   {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentSize:        {Node: NodeOffer, Phase: PhaseOffer},
		IntentConfirm:     {Node: NodeOffer, Phase: PhaseOffer},
		IntentReject:      {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentPaymentData: {Node: NodeSize, Phase: PhaseSizeSelection},
		IntentContinue:    {Node: NodeSize, Phase: PhaseSizeSelection},
		IntentUnknown:     {Node: NodeSize, Phase: PhaseSizeSelection},
	})

	// A confirmation while an offer is on the table goes straight to
	// payment. Fixed rule, not a phase default.
	row(PhaseOffer, map[Intent]Transition{
		IntentGreeting:    {Node: NodeOffer, Phase: PhaseOffer},
		IntentItemQuery:   {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentSize:        {Node: NodeSize, Phase: PhaseSizeSelection},
		IntentConfirm:     {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseRequestData},
		IntentReject:      {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentPaymentData: {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseRequestData},
		IntentContinue:    {Node: NodeOffer, Phase: PhaseOffer},
		IntentUnknown:     {Node: NodeOffer, Phase: PhaseOffer},
	})

	row(PhasePayment, map[Intent]Transition{
		IntentGreeting:    {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseRequestData},
		IntentItemQuery:   {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentSize:        {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseRequestData},
		IntentConfirm:     {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseRequestData},
		IntentReject:      {Node: NodeOffer, Phase: PhaseOffer},
		IntentPaymentData: {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseConfirmData},
		IntentContinue:    {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseRequestData},
		IntentUnknown:     {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseRequestData},
	})

	row(PhaseUpsell, map[Intent]Transition{
		IntentGreeting:    {Node: NodeUpsell, Phase: PhaseUpsell},
		IntentItemQuery:   {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentSize:        {Node: NodeSize, Phase: PhaseSizeSelection},
		IntentConfirm:     {Node: NodeOffer, Phase: PhaseOffer},
		IntentReject:      {Node: NodeGoodbye, Phase: PhaseEnd},
		IntentPaymentData: {Node: NodePayment, Phase: PhasePayment, SubPhase: SubPhaseRequestData},
		IntentContinue:    {Node: NodeGoodbye, Phase: PhaseEnd},
		IntentUnknown:     {Node: NodeGoodbye, Phase: PhaseEnd},
	})

	row(PhaseEnd, map[Intent]Transition{
		IntentGreeting:    {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentItemQuery:   {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentSize:        {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentConfirm:     {Node: NodeGoodbye, Phase: PhaseEnd},
		IntentReject:      {Node: NodeGoodbye, Phase: PhaseEnd},
		IntentPaymentData: {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentContinue:    {Node: NodeGoodbye, Phase: PhaseEnd},
		IntentUnknown:     {Node: NodeGoodbye, Phase: PhaseEnd},
	})

	row(PhaseComplaint, map[Intent]Transition{
		IntentGreeting:    {Node: NodeEscalate, Phase: PhaseComplaint},
		IntentItemQuery:   {Node: NodeEscalate, Phase: PhaseComplaint},
		IntentSize:        {Node: NodeEscalate, Phase: PhaseComplaint},
		IntentConfirm:     {Node: NodeEscalate, Phase: PhaseComplaint},
		IntentReject:      {Node: NodeEscalate, Phase: PhaseComplaint},
		IntentPaymentData: {Node: NodeEscalate, Phase: PhaseComplaint},
		IntentContinue:    {Node: NodeEscalate, Phase: PhaseComplaint},
		IntentUnknown:     {Node: NodeEscalate, Phase: PhaseComplaint},
	})

	row(PhaseOutOfDomain, map[Intent]Transition{
		IntentGreeting:    {Node: NodeDiscovery, Phase: PhaseDiscovery},
		IntentItemQuery:   {Node: NodeIdentify, Phase: PhaseItemIdentification},
		IntentSize:        {Node: NodeSize, Phase: PhaseSizeSelection},
		IntentConfirm:     {Node: NodeOutOfDomain, Phase: PhaseOutOfDomain},
		IntentReject:      {Node: NodeGoodbye, Phase: PhaseEnd},
		IntentPaymentData: {Node: NodeOutOfDomain, Phase: PhaseOutOfDomain},
		IntentContinue:    {Node: NodeOutOfDomain, Phase: PhaseOutOfDomain},
		IntentUnknown:     {Node: NodeOutOfDomain, Phase: PhaseOutOfDomain},
	})

	return t
}

// Route resolves the next node and phase for the given dialogue position.
// It is deterministic and side-effect free; the only conditional logic is
// the payment sub-phase refinement, which is itself table-driven.
//
// The transition table is total, so the error path is unreachable in a
// correctly built binary. If it fires anyway, the returned transition
// routes to escalation so the caller never continues silently.
func Route(phase Phase, subPhase SubPhase, intent Intent, flags map[string]string) (Transition, error) {
	var tr Transition
	var found bool

	if phase == PhasePayment {
		tr, found = paymentRoutes[subKey{subPhase, intent}]
	}
	if !found {
		tr, found = table[routeKey{phase, intent}]
	}
	if !found {
		tr = Transition{Node: NodeEscalate, Phase: PhaseComplaint}
		return withImageClear(phase, tr), fmt.Errorf("%w: phase=%s intent=%s", ErrUndefinedTransition, phase, intent)
	}

	return withImageClear(phase, tr), nil
}

// withImageClear marks transitions that leave the identification phase so
// the engine drops the pending-image flag exactly once.
func withImageClear(from Phase, tr Transition) Transition {
	if from == PhaseItemIdentification && tr.Phase != PhaseItemIdentification {
		tr.ClearPendingImage = true
	}
	return tr
}

// routerTableComplete verifies the transition table covers the full
// phase × intent matrix and that every destination names a valid phase.
// NewEngine calls it so a gap is caught at startup, not mid-conversation.
func routerTableComplete() error {
	for _, p := range AllPhases {
		for _, i := range AllIntents {
			tr, ok := table[routeKey{p, i}]
			if !ok {
				return fmt.Errorf("%w: phase=%s intent=%s", ErrUndefinedTransition, p, i)
			}
			if tr.Node == "" || !tr.Phase.Valid() {
				return fmt.Errorf("%w: phase=%s intent=%s has invalid destination", ErrUndefinedTransition, p, i)
			}
		}
	}
	for k, tr := range paymentRoutes {
		if tr.Node == "" || !tr.Phase.Valid() {
			return fmt.Errorf("%w: payment sub-route %s/%s has invalid destination", ErrUndefinedTransition, k.subPhase, k.intent)
		}
	}
	return nil
}
