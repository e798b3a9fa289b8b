package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/platform/db"
	"github.com/clinicdesk/clinic/internal/platform/lock"
	"github.com/clinicdesk/clinic/internal/platform/metrics"
)

type ServiceOptions struct {
	EnforceTransitions bool
	Tx                 Transactor
	Locker             lock.Locker
	Metrics            *metrics.BookingMetrics
	Notifier           Notifier
	Logger             *zerolog.Logger
}

const (
	EventBooked      = "appointment-booked"
	EventRescheduled = "appointment-rescheduled"
	EventCancelled   = "appointment-cancelled"
)

// Service owns the appointment lifecycle. Create and reschedule run the
// conflict check and the write under the doctor lock in one transaction.
type Service struct {
	repo      AppointmentRepository
	patients  PatientLookup
	doctors   DoctorLookup
	validator *Validator
	tx        Transactor
	locker    lock.Locker
	enforce   bool
	metrics   *metrics.BookingMetrics
	notifier  Notifier
	logger    zerolog.Logger
}

func NewService(repo AppointmentRepository, patients PatientLookup, doctors DoctorLookup, v *Validator, opts ServiceOptions) *Service {
	s := &Service{
		repo:      repo,
		patients:  patients,
		doctors:   doctors,
		validator: v,
		tx:        opts.Tx,
		locker:    opts.Locker,
		enforce:   opts.EnforceTransitions,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
		logger:    zerolog.Nop(),
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	if s.tx == nil {
		s.tx = noTx{}
	}
	if s.locker == nil {
		s.locker = lock.Nop{}
	}
	return s
}

type noTx struct{}

func (noTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

func (s *Service) Create(ctx context.Context, in CreateAppointmentInput) (*Appointment, error) {
	a, err := s.prepareCreate(in)
	if err != nil {
		return nil, err
	}

	patient, err := s.patients.FindPatient(ctx, in.PatientID)
	if err != nil {
		return nil, lookupError(err, "patient not found")
	}
	doctor, err := s.doctors.FindDoctor(ctx, in.DoctorID)
	if err != nil {
		return nil, lookupError(err, "doctor not found")
	}

	err = s.guard(ctx, a.DoctorID, func(ctx context.Context) error {
		if err := s.ensureFree(ctx, a, nil); err != nil {
			return err
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		s.metrics.ObserveAttempt("create", outcome(err))
		return nil, err
	}
	s.metrics.ObserveAttempt("create", "booked")

	a.Patient = patient
	a.Doctor = doctor
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Time("scheduled_at", a.ScheduledAt).
		Int("duration", a.Duration).
		Msg("appointment booked")
	s.notify(ctx, EventBooked, a)
	return a, nil
}

func (s *Service) prepareCreate(in CreateAppointmentInput) (*Appointment, error) {
	if in.PatientID == uuid.Nil {
		return nil, newValidation("patientId is required")
	}
	if in.DoctorID == uuid.Nil {
		return nil, newValidation("doctorId is required")
	}
	if in.ScheduledAt.IsZero() {
		return nil, newValidation("scheduledAt is required")
	}

	a := &Appointment{
		PatientID:   in.PatientID,
		DoctorID:    in.DoctorID,
		ScheduledAt: in.ScheduledAt,
		Duration:    DefaultDuration,
		Status:      StatusScheduled,
		Notes:       in.Notes,
		Diagnosis:   in.Diagnosis,
		Treatment:   in.Treatment,
	}
	if in.Duration != nil {
		a.Duration = *in.Duration
	}
	if err := checkDuration(a.Duration); err != nil {
		return nil, err
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, newValidation(fmt.Sprintf("invalid status %q", *in.Status))
		}
		a.Status = *in.Status
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateAppointmentInput) (*Appointment, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if in.Duration != nil {
		if err := checkDuration(*in.Duration); err != nil {
			return nil, err
		}
		next.Duration = *in.Duration
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, newValidation(fmt.Sprintf("invalid status %q", *in.Status))
		}
		if s.enforce && !current.Status.CanTransitionTo(*in.Status) {
			return nil, newValidation(fmt.Sprintf("cannot change status from %s to %s", current.Status, *in.Status))
		}
		next.Status = *in.Status
	}
	if in.ScheduledAt != nil {
		next.ScheduledAt = *in.ScheduledAt
	}
	if in.Notes != nil {
		next.Notes = in.Notes
	}
	if in.Diagnosis != nil {
		next.Diagnosis = in.Diagnosis
	}
	if in.Treatment != nil {
		next.Treatment = in.Treatment
	}

	rescheduled := !next.ScheduledAt.Equal(current.ScheduledAt) || next.Duration != current.Duration
	// A cancelled appointment no longer occupies its slot, so moving it needs
	// no conflict check.
	if rescheduled && next.Status != StatusCancelled {
		err = s.guard(ctx, next.DoctorID, func(ctx context.Context) error {
			if err := s.ensureFree(ctx, &next, &id); err != nil {
				return err
			}
			return s.repo.Update(ctx, &next)
		})
		s.metrics.ObserveAttempt("reschedule", outcome(err))
	} else {
		err = s.repo.Update(ctx, &next)
	}
	if err != nil {
		return nil, err
	}

	if next.Status != current.Status {
		s.logger.Info().
			Str("appointment_id", id.String()).
			Str("from", string(current.Status)).
			Str("to", string(next.Status)).
			Msg("appointment status changed")
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case next.Status == StatusCancelled && current.Status != StatusCancelled:
		s.notify(ctx, EventCancelled, updated)
	case rescheduled:
		s.notify(ctx, EventRescheduled, updated)
	}
	return updated, nil
}

// notify tells the doctor's user about an appointment event. Failures are
// logged and never fail the operation.
func (s *Service) notify(ctx context.Context, event string, a *Appointment) {
	if s.notifier == nil || a.Doctor == nil || a.Doctor.UserID == uuid.Nil {
		return
	}
	data := map[string]string{
		"date":     a.ScheduledAt.Format("2006-01-02"),
		"time":     a.ScheduledAt.Format("15:04"),
		"duration": strconv.Itoa(a.Duration),
	}
	if a.Patient != nil {
		data["patient_name"] = a.Patient.Name
	}
	if err := s.notifier.Notify(ctx, a.Doctor.UserID, event, data); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Str("event", event).Msg("notify doctor")
	}
}

// Remove deletes the appointment regardless of status and returns it as it
// was before deletion.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("doctor_id", a.DoctorID.String()).
		Msg("appointment removed")
	return a, nil
}

// guard serializes check-and-write sequences per doctor.
func (s *Service) guard(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	start := time.Now()
	release, err := s.locker.Acquire(ctx, lock.DoctorKey(doctorID))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return fmt.Errorf("%w: doctor calendar is busy, retry", ErrConflict)
		}
		return fmt.Errorf("acquire doctor lock: %w", err)
	}
	s.metrics.ObserveLockWait(time.Since(start))
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("release doctor lock")
		}
	}()

	err = s.tx.WithinTx(ctx, fn)
	if db.IsCode(err, db.CodeSerializationFailure, db.CodeDeadlockDetected, db.CodeExclusionViolation) {
		return fmt.Errorf("%w: concurrent booking: %w", ErrConflict, err)
	}
	return err
}

func (s *Service) ensureFree(ctx context.Context, a *Appointment, excludeID *uuid.UUID) error {
	res, err := s.validator.CheckConflict(ctx, a.DoctorID, a.ScheduledAt, a.Duration, excludeID)
	if err != nil {
		return err
	}
	if !res.Conflict {
		return nil
	}
	ids := make([]uuid.UUID, len(res.Conflicting))
	for i, c := range res.Conflicting {
		ids[i] = c.ID
	}
	s.logger.Info().
		Str("doctor_id", a.DoctorID.String()).
		Time("scheduled_at", a.ScheduledAt).
		Int("conflicts", len(ids)).
		Msg("booking rejected")
	return &ConflictError{Conflicting: ids}
}

func checkDuration(d int) error {
	if d < MinDuration {
		return newValidation(fmt.Sprintf("duration must be at least %d minutes", MinDuration))
	}
	return nil
}

func lookupError(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return newNotFound(msg)
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "invalid"
	}
	return "error"
}
