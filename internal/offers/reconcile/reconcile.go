// Package reconcile merges the several sources an offer's status can arrive
// from (authoritative fetches, optimistic action overrides, push updates)
// into one view. It is pure state logic, deliberately free of transport and
// storage concerns so it can be tested without a database.
package reconcile

import (
	"sort"

	"marketplace_backend/internal/offers/domain"
	"marketplace_backend/internal/offers/repository"

	"github.com/google/uuid"
)

// State tracks per-offer optimistic status overrides. An override is written
// when an action is acknowledged and dropped once an authoritative record
// with a differing status arrives; it is never expired by a timer.
type State struct {
	overrides map[uuid.UUID]domain.Status
}

// NewState creates an empty override state.
func NewState() *State {
	return &State{overrides: make(map[uuid.UUID]domain.Status)}
}

// SetOverride records an optimistic status for an offer and returns the
// previous override, if any, so a failed action can roll back.
func (s *State) SetOverride(offerID uuid.UUID, status domain.Status) (prev *domain.Status) {
	if old, ok := s.overrides[offerID]; ok {
		p := old
		prev = &p
	}
	s.overrides[offerID] = status
	return prev
}

// Rollback restores the override for an offer to its pre-action value.
// A nil prev removes the override entirely.
func (s *State) Rollback(offerID uuid.UUID, prev *domain.Status) {
	if prev == nil {
		delete(s.overrides, offerID)
		return
	}
	s.overrides[offerID] = *prev
}

// Observe feeds an authoritative record into the state. When the record's
// status differs from the override, the fetched value becomes canonical and
// the override is dropped.
func (s *State) Observe(o repository.Offer) {
	if override, ok := s.overrides[o.ID]; ok && override != o.Status {
		delete(s.overrides, o.ID)
	}
}

// Effective returns the status the view should show for an offer:
// the override when present, otherwise the record's status. A terminal
// record status always wins, overrides never resurrect a decided offer.
func (s *State) Effective(o repository.Offer) domain.Status {
	if domain.IsTerminal(o.Status) {
		return o.Status
	}
	if override, ok := s.overrides[o.ID]; ok {
		return override
	}
	return o.Status
}

// HasOverride reports whether an optimistic override is pending for the offer.
func (s *State) HasOverride(offerID uuid.UUID) bool {
	_, ok := s.overrides[offerID]
	return ok
}

// Merge combines two offer collections keyed by identifier. Entries from the
// primary collection (the authoritative per-request fetch) win on conflicting
// status, except that a terminal status never regresses to a non-terminal
// one regardless of which side carries it. Offers present only in the
// secondary collection are preserved rather than dropped. The result is
// ordered by creation time (then ID) so merging is deterministic and
// idempotent: Merge(Merge(p, s), s) == Merge(p, s).
func Merge(primary, secondary []repository.Offer) []repository.Offer {
	byID := make(map[uuid.UUID]repository.Offer, len(primary)+len(secondary))

	for _, o := range secondary {
		byID[o.ID] = o
	}
	for _, o := range primary {
		if existing, ok := byID[o.ID]; ok {
			byID[o.ID] = resolve(o, existing)
			continue
		}
		byID[o.ID] = o
	}

	merged := make([]repository.Offer, 0, len(byID))
	for _, o := range byID {
		merged = append(merged, o)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.Before(merged[j].CreatedAt)
		}
		return merged[i].ID.String() < merged[j].ID.String()
	})

	return merged
}

// resolve picks the status for an offer present on both sides.
// winner is the primary copy; loser the secondary.
func resolve(winner, loser repository.Offer) repository.Offer {
	if !domain.IsTerminal(winner.Status) && domain.IsTerminal(loser.Status) {
		winner.Status = loser.Status
	}
	return winner
}

// Apply folds a pushed offer update into an existing collection: a known
// identifier is replaced in place, an unknown one is appended. The input
// slice is not mutated.
func Apply(current []repository.Offer, incoming repository.Offer) []repository.Offer {
	next := make([]repository.Offer, len(current))
	copy(next, current)

	for i, o := range next {
		if o.ID == incoming.ID {
			if domain.IsTerminal(o.Status) && !domain.IsTerminal(incoming.Status) {
				// Never regress a decided offer on a stale push.
				return next
			}
			next[i] = incoming
			return next
		}
	}
	return append(next, incoming)
}
