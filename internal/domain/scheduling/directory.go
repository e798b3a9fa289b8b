package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Directory serves read-only appointment queries and dashboard aggregates.
type Directory struct {
	repo   AppointmentRepository
	counts ActiveCounter
	loc    *time.Location
	now    func() time.Time
}

// NewDirectory evaluates calendar days in loc.
func NewDirectory(repo AppointmentRepository, counts ActiveCounter, loc *time.Location) *Directory {
	if loc == nil {
		loc = time.UTC
	}
	return &Directory{repo: repo, counts: counts, loc: loc, now: time.Now}
}

// DayBounds returns the first and last millisecond of date in loc.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, newValidation(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
	}
	end := day.AddDate(0, 0, 1).Add(-time.Millisecond)
	return day, end, nil
}

func (d *Directory) FindAll(ctx context.Context, f Filter) ([]*Appointment, error) {
	q := ListQuery{DoctorID: f.DoctorID, PatientID: f.PatientID}
	if f.Status != nil {
		if !f.Status.Valid() {
			return nil, newValidation(fmt.Sprintf("invalid status %q", *f.Status))
		}
		q.Statuses = []Status{*f.Status}
	}
	if f.Date != "" {
		from, to, err := DayBounds(f.Date, d.loc)
		if err != nil {
			return nil, err
		}
		q.From, q.To = &from, &to
	}
	return d.repo.List(ctx, q)
}

// Upcoming lists future SCHEDULED or IN_PROGRESS appointments, soonest first.
// limit is clamped to [1, MaxUpcomingLimit]; zero selects the default.
func (d *Directory) Upcoming(ctx context.Context, doctorID *uuid.UUID, limit int) ([]*Appointment, error) {
	switch {
	case limit <= 0:
		limit = DefaultUpcomingLimit
	case limit > MaxUpcomingLimit:
		limit = MaxUpcomingLimit
	}
	now := d.now()
	return d.repo.List(ctx, ListQuery{
		DoctorID: doctorID,
		Statuses: []Status{StatusScheduled, StatusInProgress},
		From:     &now,
		Limit:    limit,
	})
}

func (d *Directory) Overview(ctx context.Context) (*Overview, error) {
	from, to := d.today()
	var out Overview
	var err error

	if out.TodayAppointments, err = d.repo.Count(ctx, ListQuery{From: &from, To: &to}); err != nil {
		return nil, fmt.Errorf("count today: %w", err)
	}
	if out.ScheduledToday, err = d.repo.Count(ctx, ListQuery{From: &from, To: &to, Statuses: []Status{StatusScheduled}}); err != nil {
		return nil, fmt.Errorf("count scheduled today: %w", err)
	}
	if out.InProgress, err = d.repo.Count(ctx, ListQuery{Statuses: []Status{StatusInProgress}}); err != nil {
		return nil, fmt.Errorf("count in progress: %w", err)
	}
	if out.TotalAppointments, err = d.repo.Count(ctx, ListQuery{}); err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	if d.counts != nil {
		if out.TotalPatients, err = d.counts.CountActivePatients(ctx); err != nil {
			return nil, fmt.Errorf("count patients: %w", err)
		}
		if out.ActiveDoctors, err = d.counts.CountActiveDoctors(ctx); err != nil {
			return nil, fmt.Errorf("count doctors: %w", err)
		}
	}
	return &out, nil
}

// WeeklyStats buckets the last seven days of appointments by UTC date.
func (d *Directory) WeeklyStats(ctx context.Context) (map[string]DayBucket, error) {
	now := d.now()
	from := now.AddDate(0, 0, -7)
	items, err := d.repo.List(ctx, ListQuery{From: &from, To: &now})
	if err != nil {
		return nil, err
	}
	return BucketByDay(items), nil
}

func (d *Directory) MonthlyStats(ctx context.Context) (*MonthlyStats, error) {
	now := d.now()
	from := now.AddDate(0, -1, 0)
	items, err := d.repo.List(ctx, ListQuery{From: &from, To: &now})
	if err != nil {
		return nil, err
	}

	out := &MonthlyStats{TotalAppointments: len(items)}
	for _, a := range items {
		switch a.Status {
		case StatusScheduled:
			out.ByStatus.Scheduled++
		case StatusCompleted:
			out.ByStatus.Completed++
		case StatusCancelled:
			out.ByStatus.Cancelled++
		case StatusNoShow:
			out.ByStatus.NoShow++
		}
	}
	out.CompletedAppointments = out.ByStatus.Completed
	return out, nil
}

func (d *Directory) RecentActivity(ctx context.Context, limit int) ([]*Appointment, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if limit > MaxUpcomingLimit {
		limit = MaxUpcomingLimit
	}
	return d.repo.RecentlyUpdated(ctx, limit)
}

// BucketByDay groups appointments by the UTC date of ScheduledAt.
func BucketByDay(items []*Appointment) map[string]DayBucket {
	out := make(map[string]DayBucket)
	for _, a := range items {
		key := a.ScheduledAt.UTC().Format(dateLayout)
		b := out[key]
		b.Total++
		switch a.Status {
		case StatusCompleted:
			b.Completed++
		case StatusCancelled:
			b.Cancelled++
		}
		out[key] = b
	}
	return out
}

func (d *Directory) today() (time.Time, time.Time) {
	from, to, _ := DayBounds(d.now().In(d.loc).Format(dateLayout), d.loc)
	return from, to
}
