package models

import (
	"errors"
	"time"
)

var (
	ErrUnknownServiceKind = errors.New("unknown service kind")
	ErrMissingProductCode = errors.New("missing product code")
	ErrMissingDestination = errors.New("missing destination")
	ErrInvalidAmount      = errors.New("amount must be a positive number of cents")
)

type ServiceKind string

const (
	KindAirtime     ServiceKind = "airtime"
	KindData        ServiceKind = "data"
	KindElectricity ServiceKind = "electricity"
)

// SettlesAsync reports whether the gateway answers "accepted" before the
// purchase is final. Airtime and data settle on the purchase response itself;
// electricity settles behind the polling protocol.
func (k ServiceKind) SettlesAsync() bool {
	return k == KindElectricity
}

func (k ServiceKind) Valid() bool {
	switch k {
	case KindAirtime, KindData, KindElectricity:
		return true
	}
	return false
}

type PurchaseState string

const (
	StateCreated    PurchaseState = "created"
	StateSubmitted  PurchaseState = "submitted"
	StateRejected   PurchaseState = "rejected"
	StatePending    PurchaseState = "pending"
	StateConfirming PurchaseState = "confirming"
	StateSettled    PurchaseState = "settled"
	StateFailed     PurchaseState = "failed"
	StateTimedOut   PurchaseState = "timed_out"
)

func (s PurchaseState) Terminal() bool {
	switch s {
	case StateRejected, StateSettled, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// PurchaseRequest is the immutable input to one orchestration. Amounts are
// integer cents; rand conversion happens before this boundary.
type PurchaseRequest struct {
	Kind            ServiceKind
	ProductCode     string
	Destination     string
	AmountCents     int64
	CustomReference string
}

func (r PurchaseRequest) Validate() error {
	if !r.Kind.Valid() {
		return ErrUnknownServiceKind
	}
	if r.ProductCode == "" {
		return ErrMissingProductCode
	}
	if r.Destination == "" {
		return ErrMissingDestination
	}
	if r.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Purchase is the journal row tracking one orchestration end to end. The
// reference and credited_at columns are what reconciliation leans on after a
// crash mid-saga.
type Purchase struct {
	ID                  string
	OwnerID             string
	Kind                ServiceKind
	ProductCode         string
	Destination         string
	AmountCents         int64
	CustomReference     string
	LedgerTransactionID string
	Reference           string
	State               PurchaseState
	Attempts            int
	Token               string
	FailureReason       string
	CreditedAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
