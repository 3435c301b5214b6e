package saga

import (
	"fmt"

	"vascredit/internal/models"
)

type EventKind int

const (
	EventSubmitAccepted EventKind = iota
	EventSubmitFailed
	EventPollPending
	EventPollNeedsConfirm
	EventPollSettled
	EventConfirmAccepted
	EventConfirmFailed
	EventAttemptsExhausted
)

type Event struct {
	Kind               EventKind
	Reference          string // submit/confirm accepted
	ConfirmationNumber string // poll demanded an explicit confirm
	Token              string // poll settled with proof
}

type EffectKind int

const (
	EffectAttachReference EffectKind = iota
	EffectConfirm
	EffectRecordCredit
)

type Effect struct {
	Kind               EffectKind
	Reference          string
	Success            bool
	ConfirmationNumber string
}

// Next is the pure transition function of the purchase saga:
//
//	created -> submitted -> {rejected | pending} -> [confirming] -> settled | failed | timed_out
//
// It decides the next state and which side effects the runner must execute,
// without touching the network itself. Synchronous kinds (airtime, data) jump
// from submission straight to settled; the returned error, when non-nil, is
// the terminal classification for the new state.
func Next(kind models.ServiceKind, state models.PurchaseState, ev Event) (models.PurchaseState, []Effect, error) {
	switch state {
	case models.StateSubmitted:
		switch ev.Kind {
		case EventSubmitFailed:
			return models.StateRejected,
				[]Effect{{Kind: EffectAttachReference, Success: false}},
				ErrPurchaseRejected
		case EventSubmitAccepted:
			if ev.Reference == "" {
				return models.StateFailed,
					[]Effect{{Kind: EffectAttachReference, Success: false}},
					ErrMissingReference
			}
			attach := Effect{Kind: EffectAttachReference, Reference: ev.Reference, Success: true}
			if kind.SettlesAsync() {
				return models.StatePending, []Effect{attach}, nil
			}
			// The purchase response is itself the settlement proof.
			return models.StateSettled, []Effect{attach, {Kind: EffectRecordCredit}}, nil
		}

	case models.StatePending:
		switch ev.Kind {
		case EventPollPending:
			return models.StatePending, nil, nil
		case EventPollNeedsConfirm:
			return models.StateConfirming,
				[]Effect{{Kind: EffectConfirm, ConfirmationNumber: ev.ConfirmationNumber}},
				nil
		case EventPollSettled:
			return models.StateSettled, []Effect{{Kind: EffectRecordCredit}}, nil
		case EventAttemptsExhausted:
			return models.StateTimedOut, nil, ErrTimedOut
		}

	case models.StateConfirming:
		switch ev.Kind {
		case EventConfirmAccepted:
			return models.StateConfirming, nil, nil
		case EventConfirmFailed:
			return models.StateFailed, nil, ErrConfirmFailed
		case EventPollPending:
			return models.StateConfirming, nil, nil
		case EventPollNeedsConfirm:
			// Confirmation is attempted at most once per settlement cycle.
			return models.StateFailed, nil, ErrUnexpectedReconfirmation
		case EventPollSettled:
			return models.StateSettled, []Effect{{Kind: EffectRecordCredit}}, nil
		case EventAttemptsExhausted:
			return models.StateTimedOut, nil, ErrTimedOut
		}
	}

	return state, nil, fmt.Errorf("no transition from %q for event %d", state, ev.Kind)
}
