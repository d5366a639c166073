package documents

import (
	"fmt"
	"time"

	"github.com/stockbridge/stockbridge/internal/shared"
	"github.com/stockbridge/stockbridge/internal/validation"
)

// Event triggers a state transition.
type Event string

const (
	// EventSubmit moves a draft into the submission pipeline.
	EventSubmit Event = "submit"
	// EventBeginQC promotes a submitted document once its serials validate.
	EventBeginQC Event = "begin_qc"
	// EventReopen returns a submitted document to draft for editing.
	EventReopen Event = "reopen"
	// EventApprove passes QC review.
	EventApprove Event = "approve"
	// EventReject fails QC review or records a remote rejection.
	EventReject Event = "reject"
	// EventMarkPosted records a successful posting. Coordinator only.
	EventMarkPosted Event = "mark_posted"
	// EventMarkPostFailed records a retryable posting failure. Coordinator only.
	EventMarkPostFailed Event = "mark_post_failed"
	// EventAbandon gives up on a post-failed document.
	EventAbandon Event = "abandon"
)

// transitions is the legal transition table. Anything absent is a guard
// violation. rejected and posted are terminal; a rejected document may be
// cloned into a fresh draft but never resurrected in place.
var transitions = map[State]map[Event]State{
	StateDraft: {
		EventSubmit: StateSubmitted,
	},
	StateSubmitted: {
		EventBeginQC: StateQCPending,
		EventReopen:  StateDraft,
	},
	StateQCPending: {
		EventApprove: StateApproved,
		EventReject:  StateRejected,
	},
	StateApproved: {
		EventMarkPosted:     StatePosted,
		EventMarkPostFailed: StatePostFailed,
		EventReject:         StateRejected,
	},
	StatePostFailed: {
		EventMarkPosted:     StatePosted,
		EventMarkPostFailed: StatePostFailed,
		EventReject:         StateRejected,
		EventAbandon:        StateRejected,
	},
}

// Transition applies event to doc in place, bumping the version. The
// caller persists the change conditionally on the prior version.
func Transition(doc *Document, event Event, actor shared.Actor) error {
	next, ok := transitions[doc.State][event]
	if !ok {
		return fmt.Errorf("documents: %s from %s: %w", event, doc.State, shared.ErrGuardViolation)
	}
	if err := guard(doc, event, actor); err != nil {
		return err
	}
	doc.State = next
	doc.Version++
	doc.UpdatedAt = time.Now()
	return nil
}

func guard(doc *Document, event Event, actor shared.Actor) error {
	switch event {
	case EventBeginQC:
		return guardSerialsReady(doc)
	case EventApprove:
		if !actor.QCAuthority {
			return fmt.Errorf("documents: approve requires QC authority: %w", shared.ErrGuardViolation)
		}
	case EventReject:
		if doc.State == StateQCPending && !actor.QCAuthority {
			return fmt.Errorf("documents: reject requires QC authority: %w", shared.ErrGuardViolation)
		}
		if doc.State != StateQCPending && !actor.System && !actor.QCAuthority {
			return fmt.Errorf("documents: reject requires QC authority: %w", shared.ErrGuardViolation)
		}
	case EventAbandon:
		if !actor.QCAuthority {
			return fmt.Errorf("documents: abandon requires QC authority: %w", shared.ErrGuardViolation)
		}
	case EventMarkPosted, EventMarkPostFailed:
		// Never triggered directly by a user action.
		if !actor.System {
			return fmt.Errorf("documents: posting transitions are coordinator-only: %w", shared.ErrGuardViolation)
		}
	}
	return nil
}

// guardSerialsReady requires every serial on a serial-tracked line to be
// valid, or duplicate under an explicit override.
func guardSerialsReady(doc *Document) error {
	if err := checkLineInvariants(doc.Lines); err != nil {
		return fmt.Errorf("documents: line invariants: %w", shared.ErrGuardViolation)
	}
	for _, line := range doc.Lines {
		if !line.SerialTracked {
			continue
		}
		for _, serial := range line.Serials {
			switch serial.Status {
			case validation.StatusValid:
			case validation.StatusDuplicate:
				if !doc.AllowDuplicateSerials {
					return fmt.Errorf("documents: duplicate serial %s on line %d: %w", serial.Value, line.LineNumber, shared.ErrGuardViolation)
				}
			default:
				return fmt.Errorf("documents: serial %s on line %d is %s: %w", serial.Value, line.LineNumber, serial.Status, shared.ErrGuardViolation)
			}
		}
	}
	return nil
}

// Action is something the presentation layer may offer for a document.
type Action string

const (
	ActionEdit        Action = "edit"
	ActionSubmit      Action = "submit"
	ActionRevalidate  Action = "revalidate"
	ActionReopen      Action = "reopen"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionSetOverride Action = "set_duplicate_override"
	ActionRetryPost   Action = "retry_post"
	ActionAbandon     Action = "abandon"
	ActionClone       Action = "clone"
)

// AllowedActions is a pure function of document state and actor
// capabilities, consumed by the presentation layer. Status-driven UI
// enabling lives here, not in templates.
func AllowedActions(state State, actor shared.Actor) []Action {
	var actions []Action
	switch state {
	case StateDraft:
		actions = append(actions, ActionEdit, ActionSubmit)
		if actor.QCAuthority {
			actions = append(actions, ActionSetOverride)
		}
	case StateSubmitted:
		actions = append(actions, ActionRevalidate, ActionReopen)
	case StateQCPending:
		if actor.QCAuthority {
			actions = append(actions, ActionApprove, ActionReject)
		}
	case StatePostFailed:
		actions = append(actions, ActionRetryPost)
		if actor.QCAuthority {
			actions = append(actions, ActionAbandon)
		}
	case StateRejected:
		actions = append(actions, ActionClone)
	}
	return actions
}
