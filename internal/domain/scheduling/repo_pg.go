package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicdesk/clinic/internal/platform/db"
)

type appointmentRepoPG struct{ q db.Querier }

func NewAppointmentRepoPG(q db.Querier) AppointmentRepository {
	return &appointmentRepoPG{q: q}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.q)
}

const apptCols = `a.id, a.patient_id, a.doctor_id, a.scheduled_at, a.duration, a.status,
	a.notes, a.diagnosis, a.treatment, a.created_at, a.updated_at`

const joinedCols = apptCols + `,
	p.name, p.cpf, p.phone, p.email,
	d.user_id, d.cro, d.specialty, d.photo_url, u.name, u.email`

const joinedFrom = ` FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id
	JOIN users u ON u.id = d.user_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.Duration, &status,
		&a.Notes, &a.Diagnosis, &a.Treatment, &a.CreatedAt, &a.UpdatedAt)
	a.Status = Status(status)
	return &a, err
}

func scanJoined(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	p := PatientSummary{}
	d := DoctorSummary{User: &UserSummary{}}
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.Duration, &status,
		&a.Notes, &a.Diagnosis, &a.Treatment, &a.CreatedAt, &a.UpdatedAt,
		&p.Name, &p.CPF, &p.Phone, &p.Email,
		&d.UserID, &d.CRO, &d.Specialty, &d.PhotoURL, &d.User.Name, &d.User.Email)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	p.ID = a.PatientID
	d.ID = a.DoctorID
	d.User.ID = d.UserID
	a.Patient = &p
	a.Doctor = &d
	return &a, nil
}

func collect(rows pgx.Rows, scan func(pgx.Row) (*Appointment, error)) ([]*Appointment, error) {
	defer rows.Close()
	items := []*Appointment{}
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return newNotFound("appointment not found")
	case db.IsCode(err, db.CodeSerializationFailure, db.CodeDeadlockDetected, db.CodeExclusionViolation):
		return fmt.Errorf("%w: concurrent booking: %w", ErrConflict, err)
	case db.IsCode(err, db.CodeForeignKeyViolation):
		return newNotFound("patient or doctor not found")
	case db.IsCode(err, db.CodeCheckViolation):
		return newValidation(fmt.Sprintf("duration must be at least %d minutes", MinDuration))
	}
	return err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, duration, status,
			notes, diagnosis, treatment)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.Duration, string(a.Status),
		a.Notes, a.Diagnosis, a.Treatment).Scan(&a.CreatedAt, &a.UpdatedAt)
	return translate(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanJoined(r.conn(ctx).QueryRow(ctx, `SELECT `+joinedCols+joinedFrom+` WHERE a.id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET scheduled_at=$2, duration=$3, status=$4,
			notes=$5, diagnosis=$6, treatment=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.ScheduledAt, a.Duration, string(a.Status),
		a.Notes, a.Diagnosis, a.Treatment).Scan(&a.UpdatedAt)
	return translate(err)
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return newNotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoPG) FindConflicts(ctx context.Context, q ConflictQuery) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + ` FROM appointments a
		WHERE a.doctor_id = $1 AND a.status <> 'CANCELLED'`
	if q.Mode == OverlapInterval {
		query += ` AND a.scheduled_at < $3 AND a.scheduled_at + make_interval(mins => a.duration) > $2`
	} else {
		query += ` AND a.scheduled_at >= $2 AND a.scheduled_at < $3`
	}
	args := []any{q.DoctorID, q.Start, q.End}
	if q.ExcludeID != nil {
		query += ` AND a.id <> $4`
		args = append(args, *q.ExcludeID)
	}
	query += ` ORDER BY a.scheduled_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	items, err := collect(rows, scanAppointment)
	return items, translate(err)
}

func buildWhere(q ListQuery) (string, []any) {
	var clauses []string
	var args []any
	idx := 1
	add := func(clause string, arg any) {
		clauses = append(clauses, fmt.Sprintf(clause, idx))
		args = append(args, arg)
		idx++
	}

	if q.DoctorID != nil {
		add("a.doctor_id = $%d", *q.DoctorID)
	}
	if q.PatientID != nil {
		add("a.patient_id = $%d", *q.PatientID)
	}
	if len(q.Statuses) == 1 {
		add("a.status = $%d", string(q.Statuses[0]))
	} else if len(q.Statuses) > 1 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		add("a.status = ANY($%d)", statuses)
	}
	if q.From != nil {
		add("a.scheduled_at >= $%d", *q.From)
	}
	if q.To != nil {
		add("a.scheduled_at <= $%d", *q.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *appointmentRepoPG) List(ctx context.Context, q ListQuery) ([]*Appointment, error) {
	where, args := buildWhere(q)
	query := `SELECT ` + joinedCols + joinedFrom + where + ` ORDER BY a.scheduled_at ASC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	items, err := collect(rows, scanJoined)
	return items, translate(err)
}

func (r *appointmentRepoPG) Count(ctx context.Context, q ListQuery) (int, error) {
	where, args := buildWhere(q)
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&n)
	return n, translate(err)
}

func (r *appointmentRepoPG) RecentlyUpdated(ctx context.Context, limit int) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+joinedCols+joinedFrom+` ORDER BY a.updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, translate(err)
	}
	items, err := collect(rows, scanJoined)
	return items, translate(err)
}
