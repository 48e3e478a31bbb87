package database

import (
	"context"
	"time"
)

type AppointmentRepository interface {
	FindGolden(ctx context.Context, office string, date time.Time, timeOfDay string) (*Appointment, error)
	FindCurrentClosestFuture(ctx context.Context, office string) (*Appointment, error)
	ListAvailableGolden(ctx context.Context, office string) ([]Appointment, error)
	ListCurrent(ctx context.Context) ([]Appointment, error)

	// Insert is insert-if-absent: a uniqueness conflict yields ErrAlreadyExists.
	Insert(ctx context.Context, appointment *Appointment) error
	Update(ctx context.Context, id string, update AppointmentUpdate) error
	MarkOfficeChecked(ctx context.Context, office string, at time.Time) error
}

type RunRepository interface {
	CreateRun(ctx context.Context, startedAt time.Time) (string, error)
	FinishRun(ctx context.Context, id string, summary RunSummary) error
	GetLatestRun(ctx context.Context) (*Run, error)
}

type SubscriberRepository interface {
	ListActiveSubscribers(ctx context.Context, office string) ([]string, error)
	UpsertSubscriber(ctx context.Context, email string, offices []string) (*Subscriber, error)
	DeactivateSubscriber(ctx context.Context, email string) error
	GetSubscriber(ctx context.Context, email string) (*Subscriber, error)
}
