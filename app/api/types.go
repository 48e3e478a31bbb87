package api

import (
	"context"
	"time"

	"github.com/lysyi3m/slot-comb/app/database"
	"github.com/lysyi3m/slot-comb/app/feed"
	"github.com/lysyi3m/slot-comb/app/office"
	"github.com/lysyi3m/slot-comb/app/tasks"
)

type GeneratorInterface interface {
	Run(records []database.Appointment, now time.Time) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type OfficeCatalog interface {
	Names() []string
	Canonical(name string) (string, bool)
}

var _ OfficeCatalog = (*office.Catalog)(nil)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	db           Pinger
	appointments database.AppointmentRepository
	runs         database.RunRepository
	subscribers  database.SubscriberRepository
	catalog      OfficeCatalog
	generator    GeneratorInterface
	scheduler    tasks.TaskSchedulerInterface
	version      string
}

type SlotView struct {
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Link        string    `json:"booking_link,omitempty"`
}

type FutureView struct {
	Date        string    `json:"date"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

type OfficeView struct {
	Office        string      `json:"office"`
	Golden        []SlotView  `json:"golden"`
	ClosestFuture *FutureView `json:"closest_future"`
	LastCheckedAt *time.Time  `json:"last_checked_at"`
}

type RunView struct {
	ID             string              `json:"id"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    *time.Time          `json:"completed_at"`
	OfficesScraped int                 `json:"offices_scraped"`
	GoldenFound    int                 `json:"golden_found"`
	FutureFound    int                 `json:"future_found"`
	Errors         []database.RunError `json:"errors"`
}

type SubscribeRequest struct {
	Email   string   `json:"email"`
	Offices []string `json:"offices"`
}

type UnsubscribeRequest struct {
	Email string `json:"email"`
}
