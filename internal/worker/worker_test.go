package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vascredit/internal/gateway"
	"vascredit/internal/models"
)

type journalStub struct {
	mu       sync.Mutex
	stale    []*models.Purchase
	claimed  map[string]bool
	settled  map[string]string
	failures map[string]string
	states   map[string]models.PurchaseState
}

func newJournalStub(stale ...*models.Purchase) *journalStub {
	return &journalStub{
		stale:    stale,
		claimed:  map[string]bool{},
		settled:  map[string]string{},
		failures: map[string]string{},
		states:   map[string]models.PurchaseState{},
	}
}

func (j *journalStub) ListStale(ctx context.Context, cutoff time.Time) ([]*models.Purchase, error) {
	return j.stale, nil
}

func (j *journalStub) MarkSettled(ctx context.Context, purchaseID, token string, attempts int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.settled[purchaseID] = token
	j.states[purchaseID] = models.StateSettled
	return nil
}

func (j *journalStub) SetFailure(ctx context.Context, purchaseID string, state models.PurchaseState, reason string, attempts int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failures[purchaseID] = reason
	j.states[purchaseID] = state
	return nil
}

func (j *journalStub) ClaimCredit(ctx context.Context, purchaseID string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.claimed[purchaseID] {
		return false, nil
	}
	j.claimed[purchaseID] = true
	return true, nil
}

type gatewayStub struct {
	status    gateway.SettlementStatus
	err       error
	pollCalls int
}

func (g *gatewayStub) PollStatus(ctx context.Context, reference string) (gateway.SettlementStatus, error) {
	g.pollCalls++
	return g.status, g.err
}

type ledgerStub struct {
	err     error
	credits []string
}

func (l *ledgerStub) RecordCreditUsage(ctx context.Context, ownerID string, amountCents int64, reference string) error {
	if l.err != nil {
		return l.err
	}
	l.credits = append(l.credits, reference)
	return nil
}

func newWorker(j *journalStub, g *gatewayStub, l *ledgerStub) *Worker {
	return &Worker{
		Journal:      j,
		Gateway:      g,
		Ledger:       l,
		Interval:     time.Minute,
		StaleAfter:   2 * time.Minute,
		AbandonAfter: time.Hour,
	}
}

func stalePurchase(state models.PurchaseState, reference string, age time.Duration) *models.Purchase {
	return &models.Purchase{
		ID:          "P1",
		OwnerID:     "emp-1",
		Kind:        models.KindElectricity,
		ProductCode: "44",
		Destination: "01234567890",
		AmountCents: 10000,
		Reference:   reference,
		State:       state,
		CreatedAt:   time.Now().UTC().Add(-age),
	}
}

func TestSettledButUncreditedIsCreditedExactlyOnce(t *testing.T) {
	p := stalePurchase(models.StateSettled, "R1", 10*time.Minute)
	p.Token = "TOK"
	j := newJournalStub(p)
	g := &gatewayStub{}
	l := &ledgerStub{}
	w := newWorker(j, g, l)

	for i := 0; i < 3; i++ {
		if err := w.SweepOnce(context.Background()); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}
	if len(l.credits) != 1 || l.credits[0] != "R1" {
		t.Fatalf("credits = %v, want exactly one for R1", l.credits)
	}
	if g.pollCalls != 0 {
		t.Fatal("an already-settled purchase must not be re-polled")
	}
}

func TestPendingPurchaseSettlesThroughRepoll(t *testing.T) {
	p := stalePurchase(models.StatePending, "R1", 10*time.Minute)
	j := newJournalStub(p)
	g := &gatewayStub{status: gateway.SettlementStatus{Token: "TOK"}}
	l := &ledgerStub{}
	w := newWorker(j, g, l)

	if err := w.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if j.settled["P1"] != "TOK" {
		t.Fatalf("settled token = %q", j.settled["P1"])
	}
	if len(l.credits) != 1 {
		t.Fatalf("credits = %v", l.credits)
	}
}

func TestWorkerNeverConfirms(t *testing.T) {
	p := stalePurchase(models.StateConfirming, "R1", 10*time.Minute)
	j := newJournalStub(p)
	g := &gatewayStub{status: gateway.SettlementStatus{ConfirmationNumber: "C1"}}
	l := &ledgerStub{}
	w := newWorker(j, g, l)

	if err := w.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(l.credits) != 0 {
		t.Fatal("no credit may be recorded while confirmation is outstanding")
	}
	if _, failed := j.failures["P1"]; failed {
		t.Fatal("a recent confirm demand must not be failed yet")
	}
}

func TestAbandonedConfirmDemandIsFlagged(t *testing.T) {
	p := stalePurchase(models.StateConfirming, "R1", 2*time.Hour)
	j := newJournalStub(p)
	g := &gatewayStub{status: gateway.SettlementStatus{ConfirmationNumber: "C1"}}
	w := newWorker(j, g, &ledgerStub{})

	if err := w.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if j.states["P1"] != models.StateFailed || j.failures["P1"] != "confirmation outstanding" {
		t.Fatalf("state = %q, reason = %q", j.states["P1"], j.failures["P1"])
	}
}

func TestAbandonedPendingPurchaseTimesOut(t *testing.T) {
	p := stalePurchase(models.StatePending, "R1", 2*time.Hour)
	j := newJournalStub(p)
	g := &gatewayStub{}
	w := newWorker(j, g, &ledgerStub{})

	if err := w.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if j.states["P1"] != models.StateTimedOut {
		t.Fatalf("state = %q, want timed_out", j.states["P1"])
	}
}

func TestAbandonedPurchaseWithoutReferenceFails(t *testing.T) {
	p := stalePurchase(models.StateSubmitted, "", 2*time.Hour)
	j := newJournalStub(p)
	g := &gatewayStub{}
	w := newWorker(j, g, &ledgerStub{})

	if err := w.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if j.states["P1"] != models.StateFailed {
		t.Fatalf("state = %q, want failed", j.states["P1"])
	}
	if g.pollCalls != 0 {
		t.Fatal("nothing to poll without a reference")
	}
}

func TestRecentPurchaseWithoutReferenceIsLeftAlone(t *testing.T) {
	p := stalePurchase(models.StateSubmitted, "", 10*time.Minute)
	j := newJournalStub(p)
	w := newWorker(j, &gatewayStub{}, &ledgerStub{})

	if err := w.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(j.failures) != 0 || len(j.settled) != 0 {
		t.Fatalf("journal touched: failures=%v settled=%v", j.failures, j.settled)
	}
}

func TestCreditRecordingFailureKeepsRowSettled(t *testing.T) {
	p := stalePurchase(models.StateSettled, "R1", 10*time.Minute)
	j := newJournalStub(p)
	l := &ledgerStub{err: errors.New("ledger down")}
	w := newWorker(j, &gatewayStub{}, l)

	if err := w.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if j.states["P1"] != models.StateSettled || j.failures["P1"] != "credit recording failed" {
		t.Fatalf("state = %q, reason = %q", j.states["P1"], j.failures["P1"])
	}
}

func TestPollErrorLeavesPurchaseForNextSweep(t *testing.T) {
	p := stalePurchase(models.StatePending, "R1", 10*time.Minute)
	j := newJournalStub(p)
	g := &gatewayStub{err: errors.New("gateway down")}
	w := newWorker(j, g, &ledgerStub{})

	if err := w.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep must not abort on one purchase: %v", err)
	}
	if len(j.failures) != 0 || len(j.settled) != 0 {
		t.Fatalf("journal touched: failures=%v settled=%v", j.failures, j.settled)
	}
}
