package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConflictQuery selects non-cancelled appointments of one doctor that collide
// with [Start, End) under Mode.
type ConflictQuery struct {
	DoctorID  uuid.UUID
	Start     time.Time
	End       time.Time
	ExcludeID *uuid.UUID
	Mode      OverlapMode
}

// ListQuery is an AND of the set fields. From and To bound ScheduledAt
// inclusively. Results are ordered by ScheduledAt ascending.
type ListQuery struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Statuses  []Status
	From      *time.Time
	To        *time.Time
	Limit     int
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindConflicts(ctx context.Context, q ConflictQuery) ([]*Appointment, error)
	List(ctx context.Context, q ListQuery) ([]*Appointment, error)
	Count(ctx context.Context, q ListQuery) (int, error)
	RecentlyUpdated(ctx context.Context, limit int) ([]*Appointment, error)
}

// PatientLookup and DoctorLookup resolve the collaborators an appointment
// references. Implementations return an error wrapping ErrNotFound when the
// record does not exist.
type PatientLookup interface {
	FindPatient(ctx context.Context, id uuid.UUID) (*PatientSummary, error)
}

type DoctorLookup interface {
	FindDoctor(ctx context.Context, id uuid.UUID) (*DoctorSummary, error)
}

// ActiveCounter feeds the dashboard overview.
type ActiveCounter interface {
	CountActivePatients(ctx context.Context) (int, error)
	CountActiveDoctors(ctx context.Context) (int, error)
}

// Notifier delivers in-app notifications about appointment events to a user.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data map[string]string) error
}

// Transactor runs fn inside a store transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
