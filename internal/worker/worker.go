package worker

import (
	"context"
	"log"
	"time"

	"vascredit/internal/gateway"
	"vascredit/internal/models"
)

type Journal interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]*models.Purchase, error)
	MarkSettled(ctx context.Context, purchaseID, token string, attempts int) error
	SetFailure(ctx context.Context, purchaseID string, state models.PurchaseState, reason string, attempts int) error
	ClaimCredit(ctx context.Context, purchaseID string) (bool, error)
}

type Gateway interface {
	PollStatus(ctx context.Context, reference string) (gateway.SettlementStatus, error)
}

type Ledger interface {
	RecordCreditUsage(ctx context.Context, ownerID string, amountCents int64, reference string) error
}

// Worker reconciles purchases whose orchestration died mid-saga: a crashed
// process or an abandoned caller after the gateway accepted. It re-polls the
// gateway by reference and completes credit recording through the same
// at-most-once journal claim the live saga uses. It never re-submits and
// never confirms; those calls are one-shot by contract.
type Worker struct {
	Journal      Journal
	Gateway      Gateway
	Ledger       Ledger
	Interval     time.Duration
	StaleAfter   time.Duration
	AbandonAfter time.Duration
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		if err := w.SweepOnce(ctx); err != nil {
			log.Printf("reconcile sweep error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) SweepOnce(ctx context.Context) error {
	now := time.Now().UTC()
	stale, err := w.Journal.ListStale(ctx, now.Add(-w.StaleAfter))
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	log.Printf("reconcile sweep stale=%d", len(stale))

	for _, p := range stale {
		if err := w.reconcile(ctx, p, now); err != nil {
			log.Printf("reconcile purchase %s failed: %v", p.ID, err)
		}
	}
	return nil
}

func (w *Worker) reconcile(ctx context.Context, p *models.Purchase, now time.Time) error {
	abandoned := now.Sub(p.CreatedAt) > w.AbandonAfter

	if p.Reference == "" {
		// Never got past submission; nothing to poll.
		if abandoned {
			return w.Journal.SetFailure(ctx, p.ID, models.StateFailed, "no gateway reference recorded", p.Attempts)
		}
		return nil
	}

	if p.State == models.StateSettled {
		// Settled but never credited: finish the commit step.
		return w.completeCredit(ctx, p, p.Token)
	}

	status, err := w.Gateway.PollStatus(ctx, p.Reference)
	if err != nil {
		return err
	}

	switch status.Classify() {
	case gateway.OutcomeSettled:
		if err := w.Journal.MarkSettled(ctx, p.ID, status.Token, p.Attempts); err != nil {
			return err
		}
		return w.completeCredit(ctx, p, status.Token)
	case gateway.OutcomeNeedsConfirmation:
		// A confirm demand can only be answered once per settlement cycle and
		// this worker has no way to know whether one was issued; flag for
		// manual follow-up instead of guessing.
		if abandoned {
			return w.Journal.SetFailure(ctx, p.ID, models.StateFailed, "confirmation outstanding", p.Attempts)
		}
		log.Printf("purchase %s still awaiting confirmation reference=%s", p.ID, p.Reference)
	case gateway.OutcomePending:
		if abandoned {
			return w.Journal.SetFailure(ctx, p.ID, models.StateTimedOut, "abandoned before settlement", p.Attempts)
		}
	}
	return nil
}

func (w *Worker) completeCredit(ctx context.Context, p *models.Purchase, token string) error {
	claimed, err := w.Journal.ClaimCredit(ctx, p.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if err := w.Ledger.RecordCreditUsage(ctx, p.OwnerID, p.AmountCents, p.Reference); err != nil {
		// Keep the row visible as settled-but-uncredited; never swallowed.
		_ = w.Journal.SetFailure(ctx, p.ID, models.StateSettled, "credit recording failed", p.Attempts)
		return err
	}
	log.Printf("purchase %s reconciled reference=%s token=%s", p.ID, p.Reference, token)
	return nil
}
