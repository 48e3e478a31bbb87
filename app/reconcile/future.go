package reconcile

import (
	"time"

	"github.com/lysyi3m/slot-comb/app/database"
	"github.com/lysyi3m/slot-comb/app/slots"
)

type FutureState string

const (
	FutureAbsent     FutureState = "absent"
	FutureActive     FutureState = "active"
	FutureSuperseded FutureState = "superseded"
	FutureRetired    FutureState = "retired"
)

// StateOf derives the lifecycle state of a future record from its flags.
func StateOf(a *database.Appointment) FutureState {
	switch {
	case a == nil:
		return FutureAbsent
	case a.IsCurrentClosest:
		return FutureActive
	case a.ReplacedAt != nil:
		return FutureSuperseded
	default:
		return FutureRetired
	}
}

type FutureOutcome string

const (
	FutureNoop      FutureOutcome = "noop"
	FutureCreated   FutureOutcome = "created"
	FutureRefreshed FutureOutcome = "refreshed"
	FutureReplaced  FutureOutcome = "replaced"
	FutureGone      FutureOutcome = "retired"
)

// Write is one store mutation. Exactly one of Insert or UpdateID is set.
type Write struct {
	Insert   *database.Appointment
	UpdateID string
	Update   database.AppointmentUpdate
}

// FuturePlan is one transition. Next is the state the current record moves
// to, or the state of the created record when nothing was tracked.
type FuturePlan struct {
	Outcome FutureOutcome
	Next    FutureState
	Writes  []Write
}

// PlanFuture decides what to do with the office's current-closest record
// given the minimum future date observed this poll (nil when none).
func PlanFuture(office string, current *database.Appointment, observed *time.Time, now time.Time, bookingReference string) FuturePlan {
	switch {
	case current == nil && observed == nil:
		return FuturePlan{Outcome: FutureNoop, Next: FutureAbsent}

	case observed == nil:
		return FuturePlan{Outcome: FutureGone, Next: FutureRetired, Writes: []Write{Retire(current)}}

	case current == nil:
		return FuturePlan{Outcome: FutureCreated, Next: FutureActive, Writes: []Write{create(office, *observed, now, bookingReference)}}
	}

	observedDay := slots.Day(*observed)
	currentDay := slots.Day(current.AppointmentDate)

	if observedDay.Before(currentDay) {
		return FuturePlan{
			Outcome: FutureReplaced,
			Next:    FutureSuperseded,
			Writes: []Write{
				Supersede(current, observedDay, now),
				create(office, observedDay, now, bookingReference),
			},
		}
	}

	// Equal, or later while the known closer date is still authoritative.
	return FuturePlan{Outcome: FutureRefreshed, Next: FutureActive, Writes: []Write{refresh(current, now)}}
}

// Retire moves an active record to FutureRetired.
func Retire(current *database.Appointment) Write {
	return Write{
		UpdateID: current.ID,
		Update: database.AppointmentUpdate{
			Available:        ptr(false),
			IsCurrentClosest: ptr(false),
		},
	}
}

// Supersede moves an active record to FutureSuperseded in favour of by.
func Supersede(current *database.Appointment, by time.Time, now time.Time) Write {
	return Write{
		UpdateID: current.ID,
		Update: database.AppointmentUpdate{
			Available:        ptr(false),
			IsCurrentClosest: ptr(false),
			ReplacedAt:       ptr(now),
			ReplacedByDate:   ptr(slots.Day(by)),
		},
	}
}

func refresh(current *database.Appointment, now time.Time) Write {
	return Write{
		UpdateID: current.ID,
		Update: database.AppointmentUpdate{
			Available:  ptr(true),
			LastSeenAt: ptr(now),
		},
	}
}

func create(office string, date time.Time, now time.Time, bookingReference string) Write {
	return Write{Insert: &database.Appointment{
		Office:           office,
		AppointmentDate:  slots.Day(date),
		Category:         slots.CategoryFuture,
		IsCurrentClosest: true,
		Available:        true,
		FirstSeenAt:      now,
		LastSeenAt:       now,
		BookingReference: bookingReference,
	}}
}

// MinFutureDate returns the earliest future observation, or nil.
func MinFutureDate(observations []slots.Observation) *time.Time {
	var earliest *time.Time
	for _, o := range observations {
		if o.Category != slots.CategoryFuture {
			continue
		}
		d := o.Slot.Date
		if earliest == nil || d.Before(*earliest) {
			earliest = &d
		}
	}
	return earliest
}

func ptr[T any](v T) *T {
	return &v
}
