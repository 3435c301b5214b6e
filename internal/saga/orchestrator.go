package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"vascredit/internal/gateway"
	"vascredit/internal/ledger"
	"vascredit/internal/models"

	"github.com/google/uuid"
)

var ErrMissingOwner = errors.New("missing owner id")

type Gateway interface {
	SubmitPurchase(ctx context.Context, call gateway.PurchaseCall) (gateway.PurchaseResult, error)
	PollStatus(ctx context.Context, reference string) (gateway.SettlementStatus, error)
	Confirm(ctx context.Context, confirmationNumber, productCode string, amountCents int64) (gateway.PurchaseResult, error)
}

type Ledger interface {
	CreateTransaction(ctx context.Context, ownerID string, req models.PurchaseRequest) (ledger.TransactionRecord, error)
	AttachReference(ctx context.Context, transactionID, reference string, success bool) error
	RecordCreditUsage(ctx context.Context, ownerID string, amountCents int64, reference string) error
}

// Journal persists saga checkpoints locally so a crash mid-saga leaves
// enough behind for the reconciliation worker.
type Journal interface {
	Create(ctx context.Context, p *models.Purchase) error
	AttachReference(ctx context.Context, purchaseID, ledgerTransactionID, reference string) error
	SetState(ctx context.Context, purchaseID string, state models.PurchaseState, attempts int) error
	SetFailure(ctx context.Context, purchaseID string, state models.PurchaseState, reason string, attempts int) error
	MarkSettled(ctx context.Context, purchaseID, token string, attempts int) error
	ClaimCredit(ctx context.Context, purchaseID string) (bool, error)
}

// Notifier receives state transitions as they happen; used for the live
// status stream. Implementations must not block.
type Notifier interface {
	StateChanged(purchaseID string, state models.PurchaseState, reference string, attempt int)
}

// PollPolicy bounds the settlement polling loop. Both values are deployment
// policy, not protocol constants.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

type Orchestrator struct {
	Gateway Gateway
	Ledger  Ledger
	Journal Journal
	Notify  Notifier
	Policy  PollPolicy
}

type Result struct {
	PurchaseID          string
	LedgerTransactionID string
	State               models.PurchaseState
	Reference           string
	Token               string
	Attempts            int
	Raw                 json.RawMessage
}

// Run drives one purchase end to end: reserve intent locally, submit to the
// gateway, poll for settlement, confirm if demanded, and record the credit
// usage exactly once. Each call is one independent orchestration; only the
// inter-poll wait suspends, and only this goroutine.
func (o *Orchestrator) Run(ctx context.Context, ownerID string, req models.PurchaseRequest) (*Result, error) {
	if ownerID == "" {
		return nil, ErrMissingOwner
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &models.Purchase{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Kind:            req.Kind,
		ProductCode:     req.ProductCode,
		Destination:     req.Destination,
		AmountCents:     req.AmountCents,
		CustomReference: req.CustomReference,
		State:           models.StateCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.Journal.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("journal create: %w", err)
	}

	res := &Result{PurchaseID: p.ID, State: models.StateCreated}

	rec, err := o.Ledger.CreateTransaction(ctx, ownerID, req)
	if err != nil {
		o.finish(ctx, p, res, models.StateFailed, "ledger create: "+err.Error())
		return res, fmt.Errorf("create transaction: %w", ErrLedgerUnavailable)
	}
	res.LedgerTransactionID = rec.ID
	p.LedgerTransactionID = rec.ID
	o.checkpoint(ctx, p, res, models.StateSubmitted)

	submit, err := o.Gateway.SubmitPurchase(ctx, gateway.PurchaseCall{
		Kind:            req.Kind,
		ProductCode:     req.ProductCode,
		Destination:     req.Destination,
		AmountCents:     req.AmountCents,
		CustomReference: req.CustomReference,
	})
	ev := Event{Kind: EventSubmitFailed}
	if err == nil && submit.Accepted {
		ev = Event{Kind: EventSubmitAccepted, Reference: submit.Reference}
	}
	if err != nil {
		log.Printf("purchase %s submit failed: %v", p.ID, err)
	}

	state, effects, terr := Next(req.Kind, models.StateSubmitted, ev)
	if aerr := o.applyEffects(ctx, p, res, effects, ev); aerr != nil {
		o.finish(ctx, p, res, state, aerr.Error())
		return res, aerr
	}
	if terr != nil {
		o.finish(ctx, p, res, state, terr.Error())
		return res, terr
	}

	if state == models.StateSettled {
		// Synchronous kinds: the purchase response was the settlement proof.
		o.finish(ctx, p, res, state, "")
		if cerr := o.recordCredit(ctx, p, res); cerr != nil {
			return res, cerr
		}
		return res, nil
	}

	o.checkpoint(ctx, p, res, state)
	return o.pollUntilSettled(ctx, p, res, state)
}

func (o *Orchestrator) pollUntilSettled(ctx context.Context, p *models.Purchase, res *Result, state models.PurchaseState) (*Result, error) {
	timer := time.NewTimer(o.Policy.Interval)
	defer timer.Stop()

	for {
		if res.Attempts >= o.Policy.MaxAttempts {
			next, _, terr := Next(p.Kind, state, Event{Kind: EventAttemptsExhausted})
			o.finish(ctx, p, res, next, "poll budget exhausted")
			return res, fmt.Errorf("reference %s after %d polls: %w", res.Reference, res.Attempts, terr)
		}

		select {
		case <-ctx.Done():
			// Caller abandoned the orchestration. The gateway call stands; the
			// journal row stays in flight for the reconciliation worker.
			log.Printf("purchase %s abandoned in state %s reference=%s", p.ID, state, res.Reference)
			return res, ctx.Err()
		case <-timer.C:
		}
		timer.Reset(o.Policy.Interval)
		res.Attempts++

		status, err := o.Gateway.PollStatus(ctx, res.Reference)
		ev := Event{Kind: EventPollPending}
		if err != nil {
			// Idempotent observation; a failed poll consumes one attempt.
			log.Printf("purchase %s poll %d failed: %v", p.ID, res.Attempts, err)
		} else {
			res.Raw = status.Raw
			switch status.Classify() {
			case gateway.OutcomeSettled:
				ev = Event{Kind: EventPollSettled, Token: status.Token}
			case gateway.OutcomeNeedsConfirmation:
				ev = Event{Kind: EventPollNeedsConfirm, ConfirmationNumber: status.ConfirmationNumber}
			}
		}

		next, effects, terr := Next(p.Kind, state, ev)
		if aerr := o.applyEffects(ctx, p, res, effects, ev); aerr != nil {
			o.finish(ctx, p, res, next, aerr.Error())
			return res, aerr
		}
		// A confirm effect feeds its own outcome back through the machine.
		if len(effects) == 1 && effects[0].Kind == EffectConfirm {
			next, terr = o.runConfirm(ctx, p, res, next, effects[0])
		}

		if next == models.StateSettled {
			o.finish(ctx, p, res, next, "")
			if cerr := o.recordCredit(ctx, p, res); cerr != nil {
				return res, cerr
			}
			return res, nil
		}
		if terr != nil {
			o.finish(ctx, p, res, next, terr.Error())
			return res, fmt.Errorf("reference %s: %w", res.Reference, terr)
		}
		if next != state {
			o.checkpoint(ctx, p, res, next)
		}
		state = next
	}
}

func (o *Orchestrator) runConfirm(ctx context.Context, p *models.Purchase, res *Result, state models.PurchaseState, eff Effect) (models.PurchaseState, error) {
	confirm, err := o.Gateway.Confirm(ctx, eff.ConfirmationNumber, p.ProductCode, p.AmountCents)
	ev := Event{Kind: EventConfirmFailed}
	if err == nil && confirm.Accepted {
		ev = Event{Kind: EventConfirmAccepted, Reference: confirm.Reference}
	}
	if err != nil {
		log.Printf("purchase %s confirm failed: %v", p.ID, err)
	}

	next, _, terr := Next(p.Kind, state, ev)
	if ev.Kind == EventConfirmAccepted && confirm.Reference != "" {
		// The confirmation's own reference supersedes the original for the
		// remainder of the settlement cycle.
		res.Reference = confirm.Reference
		if jerr := o.Journal.AttachReference(ctx, p.ID, p.LedgerTransactionID, confirm.Reference); jerr != nil {
			log.Printf("purchase %s journal reference update failed: %v", p.ID, jerr)
		}
	}
	return next, terr
}

func (o *Orchestrator) applyEffects(ctx context.Context, p *models.Purchase, res *Result, effects []Effect, ev Event) error {
	for _, eff := range effects {
		switch eff.Kind {
		case EffectAttachReference:
			res.Reference = eff.Reference
			if jerr := o.Journal.AttachReference(ctx, p.ID, p.LedgerTransactionID, eff.Reference); jerr != nil {
				log.Printf("purchase %s journal attach failed: %v", p.ID, jerr)
			}
			if err := o.Ledger.AttachReference(ctx, p.LedgerTransactionID, eff.Reference, eff.Success); err != nil {
				if !eff.Success {
					// The saga is failing anyway; the terminal error wins.
					log.Printf("purchase %s ledger reject update failed: %v", p.ID, err)
					continue
				}
				// Post-acceptance ledger failure: the gateway holds the money
				// trail now, so report reconcilable, never plain failure.
				return fmt.Errorf("purchase accepted, reconcile using reference %s: attach reference: %w", eff.Reference, err)
			}
		case EffectRecordCredit:
			res.Token = ev.Token
		case EffectConfirm:
			// Executed by the poll loop so its outcome can re-enter the machine.
		}
	}
	return nil
}

// recordCredit is the commit point of the saga: at most one credit-usage
// record per settled purchase, guarded by the journal's conditional claim.
func (o *Orchestrator) recordCredit(ctx context.Context, p *models.Purchase, res *Result) error {
	claimed, err := o.Journal.ClaimCredit(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("reference %s: claim credit: %w", res.Reference, ErrCreditRecordingFailed)
	}
	if !claimed {
		// Already recorded, e.g. by the reconciliation worker.
		return nil
	}
	if err := o.Ledger.RecordCreditUsage(ctx, p.OwnerID, p.AmountCents, res.Reference); err != nil {
		_ = o.Journal.SetFailure(ctx, p.ID, models.StateSettled, "credit recording failed", res.Attempts)
		return fmt.Errorf("reference %s: %w", res.Reference, ErrCreditRecordingFailed)
	}
	return nil
}

func (o *Orchestrator) checkpoint(ctx context.Context, p *models.Purchase, res *Result, state models.PurchaseState) {
	res.State = state
	if err := o.Journal.SetState(ctx, p.ID, state, res.Attempts); err != nil {
		log.Printf("purchase %s journal checkpoint failed: %v", p.ID, err)
	}
	o.notify(p.ID, state, res.Reference, res.Attempts)
}

func (o *Orchestrator) finish(ctx context.Context, p *models.Purchase, res *Result, state models.PurchaseState, reason string) {
	res.State = state
	var err error
	if state == models.StateSettled {
		err = o.Journal.MarkSettled(ctx, p.ID, res.Token, res.Attempts)
	} else {
		err = o.Journal.SetFailure(ctx, p.ID, state, reason, res.Attempts)
	}
	if err != nil {
		log.Printf("purchase %s journal finish failed: %v", p.ID, err)
	}
	observeOutcome(p.Kind, state, res.Attempts)
	o.notify(p.ID, state, res.Reference, res.Attempts)
}

func (o *Orchestrator) notify(purchaseID string, state models.PurchaseState, reference string, attempt int) {
	if o.Notify == nil {
		return
	}
	o.Notify.StateChanged(purchaseID, state, reference, attempt)
}
