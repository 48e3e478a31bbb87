package reconcile

import (
	"context"
	"time"

	"github.com/lysyi3m/slot-comb/app/database"
)

// Store is the subset of the appointment repository the engine writes through.
type Store interface {
	FindGolden(ctx context.Context, office string, date time.Time, timeOfDay string) (*database.Appointment, error)
	FindCurrentClosestFuture(ctx context.Context, office string) (*database.Appointment, error)
	ListAvailableGolden(ctx context.Context, office string) ([]database.Appointment, error)
	Insert(ctx context.Context, appointment *database.Appointment) error
	Update(ctx context.Context, id string, update database.AppointmentUpdate) error
	MarkOfficeChecked(ctx context.Context, office string, at time.Time) error
}

var _ Store = (database.AppointmentRepository)(nil)
