package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/slot-comb/app/database"
	"github.com/lysyi3m/slot-comb/app/slots"
)

type Engine struct {
	store            Store
	classifier       *slots.Classifier
	bookingReference string
}

func NewEngine(store Store, classifier *slots.Classifier, bookingReference string) *Engine {
	return &Engine{
		store:            store,
		classifier:       classifier,
		bookingReference: bookingReference,
	}
}

type Result struct {
	Office         string
	GoldenObserved int
	FutureObserved int
	NewGolden      []slots.Slot
	GoneGolden     int
	Future         FutureOutcome
	Promoted       bool
}

// Reconcile applies one office's classified snapshot, observed at now, to the
// store and reports the new-golden events. Golden and future records are
// disjoint, so the two halves do not depend on each other.
//
// On error the returned Result is still non-nil and carries the new-golden
// events committed before the failure. Those records are already available,
// so a later poll will not report them again.
func (e *Engine) Reconcile(ctx context.Context, office string, observations []slots.Observation, now time.Time) (*Result, error) {
	result := &Result{Office: office}

	var golden []slots.Slot
	for _, o := range observations {
		switch o.Category {
		case slots.CategoryGolden:
			golden = append(golden, o.Slot)
			result.GoldenObserved++
		case slots.CategoryFuture:
			result.FutureObserved++
		}
	}

	newGolden, gone, err := e.reconcileGolden(ctx, office, golden, now)
	result.NewGolden = newGolden
	result.GoneGolden = gone
	if err != nil {
		return result, err
	}

	outcome, promoted, err := e.reconcileFuture(ctx, office, MinFutureDate(observations), now)
	result.Promoted = promoted
	if err != nil {
		return result, err
	}
	result.Future = outcome

	if err := e.store.MarkOfficeChecked(ctx, office, now); err != nil {
		return result, err
	}

	slog.Debug("Office reconciled",
		"office", office,
		"golden", result.GoldenObserved,
		"future", result.FutureObserved,
		"new_golden", len(result.NewGolden),
		"gone_golden", result.GoneGolden,
		"future_outcome", string(result.Future))

	return result, nil
}

func (e *Engine) reconcileGolden(ctx context.Context, office string, observed []slots.Slot, now time.Time) ([]slots.Slot, int, error) {
	seen := make(map[string]bool, len(observed))
	var newGolden []slots.Slot

	for _, s := range observed {
		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true

		isNew, err := e.upsertGolden(ctx, office, s, now)
		if err != nil {
			return newGolden, 0, err
		}
		if isNew {
			newGolden = append(newGolden, s)
		}
	}

	available, err := e.store.ListAvailableGolden(ctx, office)
	if err != nil {
		return newGolden, 0, err
	}

	gone := 0
	for _, a := range available {
		if seen[a.Slot().Key()] {
			continue
		}
		err := e.store.Update(ctx, a.ID, database.AppointmentUpdate{
			Available:  ptr(false),
			LastSeenAt: ptr(now),
		})
		if err != nil {
			return newGolden, gone, err
		}
		gone++
	}

	return newGolden, gone, nil
}

// upsertGolden reports whether the slot counts as new: created, or back
// after having been marked unavailable.
func (e *Engine) upsertGolden(ctx context.Context, office string, s slots.Slot, now time.Time) (bool, error) {
	existing, err := e.store.FindGolden(ctx, office, s.Date, s.Time)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return e.refreshGolden(ctx, existing, now)
	}

	err = e.store.Insert(ctx, &database.Appointment{
		Office:           office,
		AppointmentDate:  slots.Day(s.Date),
		AppointmentTime:  ptr(s.Time),
		Category:         slots.CategoryGolden,
		Available:        true,
		FirstSeenAt:      now,
		LastSeenAt:       now,
		BookingReference: e.bookingReference,
	})
	if errors.Is(err, database.ErrAlreadyExists) {
		// Another writer inserted it between the lookup and the insert.
		existing, err = e.store.FindGolden(ctx, office, s.Date, s.Time)
		if err != nil {
			return false, err
		}
		if existing == nil {
			return false, fmt.Errorf("golden slot %s at %s conflicted but cannot be found", s.Key(), office)
		}
		return e.refreshGolden(ctx, existing, now)
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (e *Engine) refreshGolden(ctx context.Context, existing *database.Appointment, now time.Time) (bool, error) {
	wasAvailable := existing.Available

	err := e.store.Update(ctx, existing.ID, database.AppointmentUpdate{
		Available:  ptr(true),
		LastSeenAt: ptr(now),
	})
	if err != nil {
		return false, err
	}

	return !wasAvailable, nil
}

// reconcileFuture applies the future plan. A current-closest record whose
// date has since moved inside the golden window is retired first; that date
// is tracked as golden from now on.
func (e *Engine) reconcileFuture(ctx context.Context, office string, observed *time.Time, now time.Time) (FutureOutcome, bool, error) {
	current, err := e.store.FindCurrentClosestFuture(ctx, office)
	if err != nil {
		return "", false, err
	}

	promoted := false
	if current != nil && e.classifier.Category(current.AppointmentDate, now) == slots.CategoryGolden {
		if err := e.apply(ctx, Retire(current)); err != nil {
			return "", false, err
		}
		slog.Debug("Future record crossed golden threshold", "office", office, "date", current.AppointmentDate.Format(slots.DateLayout))
		current = nil
		promoted = true
	}

	plan := PlanFuture(office, current, observed, now, e.bookingReference)
	for _, w := range plan.Writes {
		if err := e.apply(ctx, w); err != nil {
			return "", promoted, err
		}
	}

	slog.Debug("Future record planned",
		"office", office,
		"from", string(StateOf(current)),
		"to", string(plan.Next),
		"outcome", string(plan.Outcome))

	return plan.Outcome, promoted, nil
}

func (e *Engine) apply(ctx context.Context, w Write) error {
	if w.Insert != nil {
		return e.store.Insert(ctx, w.Insert)
	}
	return e.store.Update(ctx, w.UpdateID, w.Update)
}
