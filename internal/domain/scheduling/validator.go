package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/platform/metrics"
)

// OverlapMode selects how a proposed slot is compared with existing ones.
type OverlapMode string

const (
	// OverlapStartInWindow flags existing appointments whose start falls in
	// [proposedStart, proposedEnd). An earlier, longer appointment that is
	// still running at proposedStart is not detected.
	OverlapStartInWindow OverlapMode = "start-in-window"
	// OverlapInterval flags any half-open interval intersection.
	OverlapInterval OverlapMode = "interval"
)

func ParseOverlapMode(s string) (OverlapMode, error) {
	switch m := OverlapMode(s); m {
	case OverlapStartInWindow, OverlapInterval:
		return m, nil
	case "":
		return OverlapStartInWindow, nil
	}
	return "", fmt.Errorf("unknown overlap mode %q", s)
}

// Validator answers whether a doctor is free for a proposed slot. It only
// reads.
type Validator struct {
	repo    AppointmentRepository
	mode    OverlapMode
	metrics *metrics.BookingMetrics
	logger  zerolog.Logger
}

func NewValidator(repo AppointmentRepository, mode OverlapMode, m *metrics.BookingMetrics, logger zerolog.Logger) *Validator {
	if mode == "" {
		mode = OverlapStartInWindow
	}
	return &Validator{repo: repo, mode: mode, metrics: m, logger: logger}
}

func (v *Validator) Mode() OverlapMode { return v.mode }

// CheckConflict lists non-cancelled appointments of doctorID that collide
// with [start, start+duration). excludeID drops the appointment being
// rescheduled from consideration.
func (v *Validator) CheckConflict(ctx context.Context, doctorID uuid.UUID, start time.Time, duration int, excludeID *uuid.UUID) (*ConflictResult, error) {
	found, err := v.repo.FindConflicts(ctx, ConflictQuery{
		DoctorID:  doctorID,
		Start:     start,
		End:       start.Add(time.Duration(duration) * time.Minute),
		ExcludeID: excludeID,
		Mode:      v.mode,
	})
	if err != nil {
		return nil, fmt.Errorf("check conflict: %w", err)
	}

	if len(found) > 0 {
		v.metrics.ObserveConflict(string(v.mode))
		v.logger.Debug().
			Str("doctor_id", doctorID.String()).
			Time("start", start).
			Int("duration", duration).
			Int("conflicts", len(found)).
			Msg("slot occupied")
	}
	return &ConflictResult{Conflict: len(found) > 0, Conflicting: found}, nil
}
