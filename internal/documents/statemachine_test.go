package documents

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockbridge/stockbridge/internal/shared"
	"github.com/stockbridge/stockbridge/internal/validation"
)

var (
	clerk     = shared.Actor{ID: 7, Name: "clerk"}
	inspector = shared.Actor{ID: 9, Name: "inspector", QCAuthority: true}
)

func validDoc(state State) Document {
	return Document{
		ID:      1,
		State:   state,
		Version: 3,
		Lines: []LineItem{{
			LineNumber:    1,
			ItemCode:      "ITM-1",
			Quantity:      2,
			SerialTracked: true,
			Serials: []SerialNumber{
				{Value: "SN-1", Status: validation.StatusValid},
				{Value: "SN-2", Status: validation.StatusValid},
			},
		}},
	}
}

func TestTransitionBumpsVersion(t *testing.T) {
	doc := validDoc(StateDraft)
	require.NoError(t, Transition(&doc, EventSubmit, clerk))
	require.Equal(t, StateSubmitted, doc.State)
	require.Equal(t, int64(4), doc.Version)
}

func TestTransitionRejectsUnknownEdge(t *testing.T) {
	doc := validDoc(StateDraft)
	err := Transition(&doc, EventApprove, inspector)
	require.ErrorIs(t, err, shared.ErrGuardViolation)
	require.Equal(t, StateDraft, doc.State)
	require.Equal(t, int64(3), doc.Version)
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	for _, state := range []State{StatePosted, StateRejected} {
		for _, event := range []Event{EventSubmit, EventBeginQC, EventApprove, EventReject, EventMarkPosted, EventMarkPostFailed, EventAbandon} {
			doc := validDoc(state)
			require.ErrorIs(t, Transition(&doc, event, inspector), shared.ErrGuardViolation, "%s/%s", state, event)
		}
	}
}

func TestApproveRequiresQCAuthority(t *testing.T) {
	doc := validDoc(StateQCPending)
	require.ErrorIs(t, Transition(&doc, EventApprove, clerk), shared.ErrGuardViolation)

	doc = validDoc(StateQCPending)
	require.NoError(t, Transition(&doc, EventApprove, inspector))
	require.Equal(t, StateApproved, doc.State)
}

func TestPostingTransitionsAreSystemOnly(t *testing.T) {
	doc := validDoc(StateApproved)
	require.ErrorIs(t, Transition(&doc, EventMarkPosted, inspector), shared.ErrGuardViolation)

	doc = validDoc(StateApproved)
	require.NoError(t, Transition(&doc, EventMarkPosted, shared.SystemActor))
	require.Equal(t, StatePosted, doc.State)
}

func TestBeginQCRequiresValidSerials(t *testing.T) {
	doc := validDoc(StateSubmitted)
	doc.Lines[0].Serials[1].Status = validation.StatusInvalid
	require.ErrorIs(t, Transition(&doc, EventBeginQC, clerk), shared.ErrGuardViolation)

	doc = validDoc(StateSubmitted)
	doc.Lines[0].Serials[1].Status = validation.StatusUnchecked
	require.ErrorIs(t, Transition(&doc, EventBeginQC, clerk), shared.ErrGuardViolation)
}

func TestBeginQCDuplicateNeedsOverride(t *testing.T) {
	doc := validDoc(StateSubmitted)
	doc.Lines[0].Serials[1].Status = validation.StatusDuplicate
	require.ErrorIs(t, Transition(&doc, EventBeginQC, clerk), shared.ErrGuardViolation)

	doc.AllowDuplicateSerials = true
	require.NoError(t, Transition(&doc, EventBeginQC, clerk))
	require.Equal(t, StateQCPending, doc.State)
}

func TestPostFailedRecovery(t *testing.T) {
	doc := validDoc(StatePostFailed)
	require.NoError(t, Transition(&doc, EventMarkPosted, shared.SystemActor))
	require.Equal(t, StatePosted, doc.State)

	doc = validDoc(StatePostFailed)
	require.NoError(t, Transition(&doc, EventMarkPostFailed, shared.SystemActor))
	require.Equal(t, StatePostFailed, doc.State)

	doc = validDoc(StatePostFailed)
	require.NoError(t, Transition(&doc, EventAbandon, inspector))
	require.Equal(t, StateRejected, doc.State)
}

func TestAllowedActionsFollowAuthority(t *testing.T) {
	require.NotContains(t, AllowedActions(StateQCPending, clerk), ActionApprove)
	require.Contains(t, AllowedActions(StateQCPending, inspector), ActionApprove)
	require.Contains(t, AllowedActions(StateDraft, inspector), ActionSetOverride)
	require.NotContains(t, AllowedActions(StateDraft, clerk), ActionSetOverride)
	require.Contains(t, AllowedActions(StateRejected, clerk), ActionClone)
	require.Empty(t, AllowedActions(StatePosted, inspector))
}
