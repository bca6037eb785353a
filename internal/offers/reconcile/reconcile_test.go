package reconcile

import (
	"testing"
	"time"

	"marketplace_backend/internal/offers/domain"
	"marketplace_backend/internal/offers/repository"

	"github.com/google/uuid"
)

func offerAt(status domain.Status, createdAt time.Time) repository.Offer {
	return repository.Offer{
		ID:        uuid.New(),
		RequestID: uuid.New(),
		Status:    status,
		CreatedAt: createdAt,
	}
}

func TestEffectivePrefersOverrideUntilObserved(t *testing.T) {
	s := NewState()
	o := offerAt(domain.StatusPending, time.Now())

	if got := s.Effective(o); got != domain.StatusPending {
		t.Fatalf("expected pending before any override, got %q", got)
	}

	s.SetOverride(o.ID, domain.StatusNegotiating)
	if got := s.Effective(o); got != domain.StatusNegotiating {
		t.Fatalf("expected override to win, got %q", got)
	}

	// Authoritative record still says pending: override stands (no differing status).
	s.Observe(o)
	if got := s.Effective(o); got != domain.StatusNegotiating {
		t.Fatalf("expected override to survive matching fetch, got %q", got)
	}

	// Authoritative record confirms the transition: override is dropped.
	o.Status = domain.StatusAccepted
	s.Observe(o)
	if s.HasOverride(o.ID) {
		t.Fatal("expected override to be dropped after differing authoritative status")
	}
	if got := s.Effective(o); got != domain.StatusAccepted {
		t.Fatalf("expected fetched status to be canonical, got %q", got)
	}
}

func TestRollbackRestoresPreActionValue(t *testing.T) {
	s := NewState()
	id := uuid.New()

	prev := s.SetOverride(id, domain.StatusNegotiating)
	if prev != nil {
		t.Fatalf("expected no previous override, got %v", *prev)
	}

	prev2 := s.SetOverride(id, domain.StatusAccepted)
	if prev2 == nil || *prev2 != domain.StatusNegotiating {
		t.Fatalf("expected previous override negotiating, got %v", prev2)
	}

	s.Rollback(id, prev2)
	o := repository.Offer{ID: id, Status: domain.StatusPending}
	if got := s.Effective(o); got != domain.StatusNegotiating {
		t.Fatalf("expected rollback to negotiating, got %q", got)
	}

	s.Rollback(id, nil)
	if s.HasOverride(id) {
		t.Fatal("expected rollback to nil to remove the override")
	}
}

func TestEffectiveNeverRegressesTerminalRecord(t *testing.T) {
	s := NewState()
	o := offerAt(domain.StatusRejected, time.Now())

	s.SetOverride(o.ID, domain.StatusNegotiating)
	if got := s.Effective(o); got != domain.StatusRejected {
		t.Fatalf("terminal record must win over override, got %q", got)
	}
}

func TestMergePrimaryWinsOnConflict(t *testing.T) {
	now := time.Now()
	shared := offerAt(domain.StatusNegotiating, now)
	stale := shared
	stale.Status = domain.StatusPending

	merged := Merge([]repository.Offer{shared}, []repository.Offer{stale})
	if len(merged) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(merged))
	}
	if merged[0].Status != domain.StatusNegotiating {
		t.Fatalf("expected primary status to win, got %q", merged[0].Status)
	}
}

func TestMergePreservesSecondaryOnlyOffers(t *testing.T) {
	now := time.Now()
	primaryOnly := offerAt(domain.StatusPending, now)
	secondaryOnly := offerAt(domain.StatusPending, now.Add(time.Second))

	merged := Merge([]repository.Offer{primaryOnly}, []repository.Offer{secondaryOnly})
	if len(merged) != 2 {
		t.Fatalf("expected both offers preserved, got %d", len(merged))
	}
}

func TestMergeTerminalNeverRegressesRegardlessOfOrder(t *testing.T) {
	now := time.Now()
	base := offerAt(domain.StatusRejected, now)
	nonTerminal := base
	nonTerminal.Status = domain.StatusPending

	for _, tc := range []struct {
		name               string
		primary, secondary []repository.Offer
	}{
		{"terminal in primary", []repository.Offer{base}, []repository.Offer{nonTerminal}},
		{"terminal in secondary", []repository.Offer{nonTerminal}, []repository.Offer{base}},
	} {
		merged := Merge(tc.primary, tc.secondary)
		if len(merged) != 1 {
			t.Fatalf("%s: expected 1 offer, got %d", tc.name, len(merged))
		}
		if merged[0].Status != domain.StatusRejected {
			t.Fatalf("%s: terminal status regressed to %q", tc.name, merged[0].Status)
		}
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	now := time.Now()
	a := offerAt(domain.StatusPending, now)
	b := offerAt(domain.StatusNegotiating, now.Add(time.Second))
	c := offerAt(domain.StatusAccepted, now.Add(2*time.Second))

	primary := []repository.Offer{a, b}
	secondary := []repository.Offer{b, c}

	once := Merge(primary, secondary)
	twice := Merge(once, secondary)

	if len(once) != len(twice) {
		t.Fatalf("idempotence violated: %d vs %d offers", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID || once[i].Status != twice[i].Status {
			t.Fatalf("idempotence violated at index %d: %v vs %v", i, once[i], twice[i])
		}
	}
}

func TestApplyReplacesKnownAndAppendsUnknown(t *testing.T) {
	now := time.Now()
	a := offerAt(domain.StatusPending, now)
	current := []repository.Offer{a}

	updated := a
	updated.Status = domain.StatusAccepted
	next := Apply(current, updated)
	if len(next) != 1 || next[0].Status != domain.StatusAccepted {
		t.Fatalf("expected in-place replacement, got %v", next)
	}

	fresh := offerAt(domain.StatusPending, now.Add(time.Second))
	next = Apply(next, fresh)
	if len(next) != 2 {
		t.Fatalf("expected append of unknown offer, got %d entries", len(next))
	}

	// The input slice is left untouched.
	if current[0].Status != domain.StatusPending {
		t.Fatal("Apply mutated its input")
	}
}

func TestApplyIgnoresStaleNonTerminalPush(t *testing.T) {
	now := time.Now()
	decided := offerAt(domain.StatusCancelled, now)
	stale := decided
	stale.Status = domain.StatusPending

	next := Apply([]repository.Offer{decided}, stale)
	if next[0].Status != domain.StatusCancelled {
		t.Fatalf("stale push regressed terminal status to %q", next[0].Status)
	}
}
