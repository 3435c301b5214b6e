package saga

import (
	"errors"
	"testing"

	"vascredit/internal/models"
)

func TestTransitionsFromSubmitted(t *testing.T) {
	cases := []struct {
		name        string
		kind        models.ServiceKind
		ev          Event
		wantState   models.PurchaseState
		wantErr     error
		wantEffects []EffectKind
	}{
		{
			name:        "airtime accepted settles immediately",
			kind:        models.KindAirtime,
			ev:          Event{Kind: EventSubmitAccepted, Reference: "R1"},
			wantState:   models.StateSettled,
			wantEffects: []EffectKind{EffectAttachReference, EffectRecordCredit},
		},
		{
			name:        "data accepted settles immediately",
			kind:        models.KindData,
			ev:          Event{Kind: EventSubmitAccepted, Reference: "R1"},
			wantState:   models.StateSettled,
			wantEffects: []EffectKind{EffectAttachReference, EffectRecordCredit},
		},
		{
			name:        "electricity accepted goes pending",
			kind:        models.KindElectricity,
			ev:          Event{Kind: EventSubmitAccepted, Reference: "R1"},
			wantState:   models.StatePending,
			wantEffects: []EffectKind{EffectAttachReference},
		},
		{
			name:        "accepted without reference fails",
			kind:        models.KindAirtime,
			ev:          Event{Kind: EventSubmitAccepted},
			wantState:   models.StateFailed,
			wantErr:     ErrMissingReference,
			wantEffects: []EffectKind{EffectAttachReference},
		},
		{
			name:        "submit failure rejects",
			kind:        models.KindElectricity,
			ev:          Event{Kind: EventSubmitFailed},
			wantState:   models.StateRejected,
			wantErr:     ErrPurchaseRejected,
			wantEffects: []EffectKind{EffectAttachReference},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state, effects, err := Next(tc.kind, models.StateSubmitted, tc.ev)
			if state != tc.wantState {
				t.Fatalf("state = %q, want %q", state, tc.wantState)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if len(effects) != len(tc.wantEffects) {
				t.Fatalf("effects = %d, want %d", len(effects), len(tc.wantEffects))
			}
			for i, eff := range effects {
				if eff.Kind != tc.wantEffects[i] {
					t.Fatalf("effect %d = %d, want %d", i, eff.Kind, tc.wantEffects[i])
				}
			}
		})
	}
}

func TestRejectedSubmitMarksLedgerFailure(t *testing.T) {
	_, effects, _ := Next(models.KindAirtime, models.StateSubmitted, Event{Kind: EventSubmitFailed})
	if len(effects) != 1 {
		t.Fatalf("expected one effect, got %d", len(effects))
	}
	if effects[0].Success {
		t.Fatal("rejected submit must attach success=false")
	}
	if effects[0].Reference != "" {
		t.Fatalf("rejected submit must attach empty reference, got %q", effects[0].Reference)
	}
}

func TestPendingTransitions(t *testing.T) {
	state, effects, err := Next(models.KindElectricity, models.StatePending, Event{Kind: EventPollPending})
	if state != models.StatePending || err != nil || len(effects) != 0 {
		t.Fatalf("pending poll: state=%q effects=%d err=%v", state, len(effects), err)
	}

	state, effects, err = Next(models.KindElectricity, models.StatePending, Event{Kind: EventPollNeedsConfirm, ConfirmationNumber: "C1"})
	if state != models.StateConfirming || err != nil {
		t.Fatalf("needs-confirm: state=%q err=%v", state, err)
	}
	if len(effects) != 1 || effects[0].Kind != EffectConfirm || effects[0].ConfirmationNumber != "C1" {
		t.Fatalf("expected confirm effect for C1, got %+v", effects)
	}

	state, effects, err = Next(models.KindElectricity, models.StatePending, Event{Kind: EventPollSettled, Token: "TOK"})
	if state != models.StateSettled || err != nil {
		t.Fatalf("settled: state=%q err=%v", state, err)
	}
	if len(effects) != 1 || effects[0].Kind != EffectRecordCredit {
		t.Fatalf("expected record-credit effect, got %+v", effects)
	}

	state, _, err = Next(models.KindElectricity, models.StatePending, Event{Kind: EventAttemptsExhausted})
	if state != models.StateTimedOut || !errors.Is(err, ErrTimedOut) {
		t.Fatalf("exhausted: state=%q err=%v", state, err)
	}
}

func TestConfirmingTransitions(t *testing.T) {
	state, _, err := Next(models.KindElectricity, models.StateConfirming, Event{Kind: EventConfirmAccepted, Reference: "R2"})
	if state != models.StateConfirming || err != nil {
		t.Fatalf("confirm accepted: state=%q err=%v", state, err)
	}

	state, _, err = Next(models.KindElectricity, models.StateConfirming, Event{Kind: EventConfirmFailed})
	if state != models.StateFailed || !errors.Is(err, ErrConfirmFailed) {
		t.Fatalf("confirm failed: state=%q err=%v", state, err)
	}

	// A second confirmation demand fails closed rather than looping.
	state, _, err = Next(models.KindElectricity, models.StateConfirming, Event{Kind: EventPollNeedsConfirm, ConfirmationNumber: "C2"})
	if state != models.StateFailed || !errors.Is(err, ErrUnexpectedReconfirmation) {
		t.Fatalf("reconfirmation: state=%q err=%v", state, err)
	}

	state, effects, err := Next(models.KindElectricity, models.StateConfirming, Event{Kind: EventPollSettled, Token: "TOK"})
	if state != models.StateSettled || err != nil || len(effects) != 1 {
		t.Fatalf("settled after confirm: state=%q effects=%d err=%v", state, len(effects), err)
	}
}

func TestNoTransitionFromTerminalStates(t *testing.T) {
	for _, s := range []models.PurchaseState{models.StateSettled, models.StateRejected, models.StateFailed, models.StateTimedOut} {
		if _, _, err := Next(models.KindElectricity, s, Event{Kind: EventPollPending}); err == nil {
			t.Fatalf("expected error transitioning from %q", s)
		}
	}
}
