package database

import (
	"time"

	"github.com/lysyi3m/slot-comb/app/slots"
)

type Appointment struct {
	ID               string
	Office           string
	AppointmentDate  time.Time // midnight UTC
	AppointmentTime  *string   // nil for future records
	Category         slots.Category
	IsCurrentClosest bool // meaningful for future records only
	Available        bool
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
	LastCheckedAt    *time.Time
	ReplacedAt       *time.Time
	ReplacedByDate   *time.Time
	BookingReference string
}

// Slot returns the (date, time) pair the record tracks.
func (a Appointment) Slot() slots.Slot {
	s := slots.Slot{Date: a.AppointmentDate}
	if a.AppointmentTime != nil {
		s.Time = *a.AppointmentTime
	}
	return s
}

// AppointmentUpdate lists the mutable columns; nil fields are left untouched.
type AppointmentUpdate struct {
	Available        *bool
	IsCurrentClosest *bool
	LastSeenAt       *time.Time
	ReplacedAt       *time.Time
	ReplacedByDate   *time.Time
}

func (u AppointmentUpdate) IsEmpty() bool {
	return u.Available == nil && u.IsCurrentClosest == nil && u.LastSeenAt == nil &&
		u.ReplacedAt == nil && u.ReplacedByDate == nil
}

type RunError struct {
	Office  string `json:"office"`
	Message string `json:"error"`
}

type Run struct {
	ID             string
	StartedAt      time.Time
	CompletedAt    *time.Time
	OfficesScraped int
	GoldenFound    int
	FutureFound    int
	Errors         []RunError
}

type RunSummary struct {
	CompletedAt    time.Time
	OfficesScraped int
	GoldenFound    int
	FutureFound    int
	Errors         []RunError
}

type Subscriber struct {
	ID        string
	Email     string
	Offices   []string // empty means every office
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WantsOffice reports whether alerts for office should reach this subscriber.
func (s Subscriber) WantsOffice(office string) bool {
	if len(s.Offices) == 0 {
		return true
	}
	for _, o := range s.Offices {
		if o == office {
			return true
		}
	}
	return false
}
