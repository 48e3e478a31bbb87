package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lysyi3m/slot-comb/app/database"
	"github.com/lysyi3m/slot-comb/app/slots"
)

// memStore is an in-memory Store that enforces the same uniqueness rules as
// the SQLite schema.
type memStore struct {
	records map[string]*database.Appointment
	order   []string
	nextID  int

	failOn     string
	conflictOn string

	inserts int
	updates int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*database.Appointment)}
}

func (m *memStore) fail(op string) error {
	if m.failOn == op {
		return fmt.Errorf("store unavailable during %s", op)
	}
	return nil
}

func (m *memStore) FindGolden(ctx context.Context, office string, date time.Time, timeOfDay string) (*database.Appointment, error) {
	if err := m.fail("FindGolden"); err != nil {
		return nil, err
	}
	for _, id := range m.order {
		a := m.records[id]
		if a.Office == office && a.Category == slots.CategoryGolden &&
			a.AppointmentDate.Equal(slots.Day(date)) && a.AppointmentTime != nil && *a.AppointmentTime == timeOfDay {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindCurrentClosestFuture(ctx context.Context, office string) (*database.Appointment, error) {
	if err := m.fail("FindCurrentClosestFuture"); err != nil {
		return nil, err
	}
	for _, id := range m.order {
		a := m.records[id]
		if a.Office == office && a.Category == slots.CategoryFuture && a.IsCurrentClosest {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListAvailableGolden(ctx context.Context, office string) ([]database.Appointment, error) {
	if err := m.fail("ListAvailableGolden"); err != nil {
		return nil, err
	}
	var result []database.Appointment
	for _, id := range m.order {
		a := m.records[id]
		if a.Office == office && a.Category == slots.CategoryGolden && a.Available {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (m *memStore) Insert(ctx context.Context, a *database.Appointment) error {
	if err := m.fail("Insert"); err != nil {
		return err
	}
	if m.conflictOn != "" && a.AppointmentTime != nil && *a.AppointmentTime == m.conflictOn {
		// Simulate a concurrent writer winning the race.
		m.conflictOn = ""
		winner := *a
		if err := m.Insert(ctx, &winner); err != nil {
			return err
		}
		return database.ErrAlreadyExists
	}
	for _, existing := range m.records {
		if existing.Office != a.Office || existing.Category != a.Category {
			continue
		}
		if a.Category == slots.CategoryGolden && existing.AppointmentDate.Equal(a.AppointmentDate) &&
			*existing.AppointmentTime == *a.AppointmentTime {
			return database.ErrAlreadyExists
		}
		if a.Category == slots.CategoryFuture && a.IsCurrentClosest && existing.IsCurrentClosest {
			return database.ErrAlreadyExists
		}
	}

	m.nextID++
	a.ID = fmt.Sprintf("rec-%d", m.nextID)
	c := *a
	m.records[a.ID] = &c
	m.order = append(m.order, a.ID)
	m.inserts++
	return nil
}

func (m *memStore) Update(ctx context.Context, id string, u database.AppointmentUpdate) error {
	if err := m.fail("Update"); err != nil {
		return err
	}
	a, ok := m.records[id]
	if !ok {
		return database.ErrNotFound
	}
	if u.Available != nil {
		a.Available = *u.Available
	}
	if u.IsCurrentClosest != nil {
		a.IsCurrentClosest = *u.IsCurrentClosest
	}
	if u.LastSeenAt != nil {
		a.LastSeenAt = *u.LastSeenAt
	}
	if u.ReplacedAt != nil {
		a.ReplacedAt = u.ReplacedAt
	}
	if u.ReplacedByDate != nil {
		a.ReplacedByDate = u.ReplacedByDate
	}
	m.updates++
	return nil
}

func (m *memStore) MarkOfficeChecked(ctx context.Context, office string, at time.Time) error {
	if err := m.fail("MarkOfficeChecked"); err != nil {
		return err
	}
	for _, a := range m.records {
		if a.Office == office {
			t := at
			a.LastCheckedAt = &t
		}
	}
	return nil
}

func (m *memStore) office(office string, category slots.Category) []database.Appointment {
	var result []database.Appointment
	for _, id := range m.order {
		a := m.records[id]
		if a.Office == office && a.Category == category {
			result = append(result, *a)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].FirstSeenAt.Before(result[j].FirstSeenAt)
	})
	return result
}
