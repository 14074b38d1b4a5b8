package convoy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute_TableIsTotal(t *testing.T) {
	require.NoError(t, routerTableComplete())

	for _, phase := range AllPhases {
		for _, intent := range AllIntents {
			tr, err := Route(phase, SubPhaseNone, intent, nil)
			require.NoError(t, err, "phase=%s intent=%s", phase, intent)
			assert.NotEmpty(t, tr.Node, "phase=%s intent=%s", phase, intent)
			assert.True(t, tr.Phase.Valid(), "phase=%s intent=%s", phase, intent)
		}
	}
}

func TestRoute_ComplaintAlwaysEscalates(t *testing.T) {
	for _, phase := range AllPhases {
		tr, err := Route(phase, SubPhaseNone, IntentComplaint, nil)
		require.NoError(t, err)
		assert.Equal(t, NodeEscalate, tr.Node, "phase=%s", phase)
		assert.Equal(t, PhaseComplaint, tr.Phase, "phase=%s", phase)
	}
}

func TestRoute_ImageAlwaysIdentifies(t *testing.T) {
	for _, phase := range AllPhases {
		tr, err := Route(phase, SubPhaseNone, IntentImage, nil)
		require.NoError(t, err)
		assert.Equal(t, NodeIdentify, tr.Node, "phase=%s", phase)
		assert.Equal(t, PhaseItemIdentification, tr.Phase, "phase=%s", phase)
	}
}

func TestRoute_ConfirmOnOfferGoesToPayment(t *testing.T) {
	tr, err := Route(PhaseOffer, SubPhaseNone, IntentConfirm, nil)
	require.NoError(t, err)
	assert.Equal(t, NodePayment, tr.Node)
	assert.Equal(t, PhasePayment, tr.Phase)
	assert.Equal(t, SubPhaseRequestData, tr.SubPhase)
}

func TestRoute_PaymentSubPhases(t *testing.T) {
	tests := []struct {
		name     string
		subPhase SubPhase
		intent   Intent
		wantNode string
		wantSub  SubPhase
	}{
		{"data arrives", SubPhaseRequestData, IntentPaymentData, NodePayment, SubPhaseConfirmData},
		{"data confirmed", SubPhaseConfirmData, IntentConfirm, NodePaymentConfirm, SubPhaseShowDetails},
		{"data rejected", SubPhaseConfirmData, IntentReject, NodeOffer, SubPhaseNone},
		{"details shown", SubPhaseShowDetails, IntentContinue, NodePayment, SubPhaseThankYou},
		{"thanks done", SubPhaseThankYou, IntentContinue, NodeUpsell, SubPhaseNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Route(PhasePayment, tt.subPhase, tt.intent, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNode, tr.Node)
			assert.Equal(t, tt.wantSub, tr.SubPhase)
		})
	}
}

func TestRoute_SubPhaseFallsBackToPhaseTable(t *testing.T) {
	// No sub-route for (request_data, complaint): the phase-level rule
	// applies.
	tr, err := Route(PhasePayment, SubPhaseRequestData, IntentComplaint, nil)
	require.NoError(t, err)
	assert.Equal(t, NodeEscalate, tr.Node)
}

func TestRoute_ClearsPendingImageOnLeavingIdentification(t *testing.T) {
	leaving, err := Route(PhaseItemIdentification, SubPhaseNone, IntentSize, nil)
	require.NoError(t, err)
	assert.True(t, leaving.ClearPendingImage)

	selfLoop, err := Route(PhaseItemIdentification, SubPhaseNone, IntentItemQuery, nil)
	require.NoError(t, err)
	assert.Equal(t, NodeIdentify, selfLoop.Node)
	assert.False(t, selfLoop.ClearPendingImage)

	elsewhere, err := Route(PhaseDiscovery, SubPhaseNone, IntentSize, nil)
	require.NoError(t, err)
	assert.False(t, elsewhere.ClearPendingImage)
}

func TestRoute_UnknownPositionFallsBackToEscalation(t *testing.T) {
	tr, err := Route(Phase("bogus"), SubPhaseNone, IntentGreeting, nil)
	require.ErrorIs(t, err, ErrUndefinedTransition)
	assert.Equal(t, NodeEscalate, tr.Node)
	assert.Equal(t, PhaseComplaint, tr.Phase)
}

func TestRoute_Deterministic(t *testing.T) {
	first, err := Route(PhaseDiscovery, SubPhaseNone, IntentItemQuery, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Route(PhaseDiscovery, SubPhaseNone, IntentItemQuery, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
