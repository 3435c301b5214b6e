package saga

import "errors"

// Terminal failure taxonomy. Anything before the gateway accepts a purchase
// is safe to report as "nothing happened"; anything after acceptance must
// carry the reference so the outcome stays reconcilable.
var (
	// ErrLedgerUnavailable: nothing external happened yet, the whole saga is
	// safe to retry from scratch.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrPurchaseRejected: the gateway declined before accepting. No money moved.
	ErrPurchaseRejected = errors.New("purchase rejected by gateway")

	// ErrMissingReference: the gateway accepted but returned no reference.
	// Protocol anomaly; settlement steps are not attempted.
	ErrMissingReference = errors.New("gateway accepted purchase without a reference")

	// ErrUnexpectedReconfirmation: the gateway demanded a second confirmation
	// after one was already issued. Fails closed instead of looping.
	ErrUnexpectedReconfirmation = errors.New("gateway requested confirmation twice")

	// ErrConfirmFailed: the confirm call itself failed after acceptance; the
	// purchase may still settle on the gateway side.
	ErrConfirmFailed = errors.New("confirmation call failed")

	// ErrTimedOut: the poll budget ran out without settlement. Money may still
	// be in flight; callers must verify via transaction history, not assume
	// failure.
	ErrTimedOut = errors.New("settlement polling timed out")

	// ErrCreditRecordingFailed: the purchase settled externally but the credit
	// debit could not be recorded. Never swallowed; surfaced with the
	// settlement reference for manual reconciliation.
	ErrCreditRecordingFailed = errors.New("credit recording failed after settlement")
)
