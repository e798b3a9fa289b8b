package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultDuration      = 60
	MinDuration          = 15
	DefaultUpcomingLimit = 10
	MaxUpcomingLimit     = 100
	DefaultActivityLimit = 10
)

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// transitions lists the statuses reachable from each state. Terminal states
// have no entry.
var transitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusNoShow},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", newValidation(fmt.Sprintf("invalid status %q", s))
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// CanTransitionTo reports whether next is reachable from s. Writing the
// current status again is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PatientSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	CPF   *string   `json:"cpf,omitempty"`
	Phone *string   `json:"phone,omitempty"`
	Email *string   `json:"email,omitempty"`
}

type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

type DoctorSummary struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"userId"`
	CRO       string       `json:"cro"`
	Specialty string       `json:"specialty"`
	PhotoURL  *string      `json:"photoUrl,omitempty"`
	User      *UserSummary `json:"user,omitempty"`
}

type Appointment struct {
	ID          uuid.UUID       `json:"id"`
	PatientID   uuid.UUID       `json:"patientId"`
	DoctorID    uuid.UUID       `json:"doctorId"`
	ScheduledAt time.Time       `json:"scheduledAt"`
	Duration    int             `json:"duration"`
	Status      Status          `json:"status"`
	Notes       *string         `json:"notes,omitempty"`
	Diagnosis   *string         `json:"diagnosis,omitempty"`
	Treatment   *string         `json:"treatment,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Patient     *PatientSummary `json:"patient,omitempty"`
	Doctor      *DoctorSummary  `json:"doctor,omitempty"`
}

// localLayouts are the offset-less ISO forms sent by datetime-local inputs.
// They are read in the clinic's timezone.
var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}

// ParseScheduledAt accepts RFC 3339 timestamps and offset-less ISO local
// date-times, the latter interpreted in loc.
func ParseScheduledAt(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, newValidation(fmt.Sprintf("invalid scheduledAt %q, expected an ISO 8601 date-time", raw))
}

// EndsAt is ScheduledAt plus Duration minutes.
func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.Duration) * time.Minute)
}

type CreateAppointmentInput struct {
	PatientID   uuid.UUID `json:"patientId"`
	DoctorID    uuid.UUID `json:"doctorId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Duration    *int      `json:"duration,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	Diagnosis   *string   `json:"diagnosis,omitempty"`
	Treatment   *string   `json:"treatment,omitempty"`
}

type UpdateAppointmentInput struct {
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Duration    *int       `json:"duration,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	Diagnosis   *string    `json:"diagnosis,omitempty"`
	Treatment   *string    `json:"treatment,omitempty"`
}

// Filter narrows FindAll. Date is a YYYY-MM-DD calendar day.
type Filter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *Status
	Date      string
}

type ConflictResult struct {
	Conflict    bool           `json:"conflict"`
	Conflicting []*Appointment `json:"conflicting"`
}

// DayBucket aggregates one calendar day of appointments.
type DayBucket struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

type Overview struct {
	TodayAppointments int `json:"todayAppointments"`
	ScheduledToday    int `json:"scheduledToday"`
	InProgress        int `json:"inProgress"`
	TotalPatients     int `json:"totalPatients"`
	ActiveDoctors     int `json:"activeDoctors"`
	TotalAppointments int `json:"totalAppointments"`
}

type StatusBreakdown struct {
	Scheduled int `json:"scheduled"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	NoShow    int `json:"noShow"`
}

type MonthlyStats struct {
	TotalAppointments     int             `json:"totalAppointments"`
	CompletedAppointments int             `json:"completedAppointments"`
	ByStatus              StatusBreakdown `json:"byStatus"`
}
