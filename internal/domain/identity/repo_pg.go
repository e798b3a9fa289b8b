package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicdesk/clinic/internal/platform/db"
)

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return newError(ErrNotFound, what+" not found")
	case db.IsCode(err, db.CodeUniqueViolation):
		return newError(ErrConflict, what+" already exists")
	case db.IsCode(err, db.CodeForeignKeyViolation):
		return newError(ErrNotFound, "referenced record not found")
	}
	return err
}

// -- users --

type userRepoPG struct{ q db.Querier }

func NewUserRepoPG(q db.Querier) UserRepository { return &userRepoPG{q: q} }

const userCols = `id, email, password_hash, name, role, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := db.Conn(ctx, r.q).QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.IsActive).Scan(&u.CreatedAt, &u.UpdatedAt)
	return translate(err, "user")
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(db.Conn(ctx, r.q).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "user")
	}
	return u, nil
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(db.Conn(ctx, r.q).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, translate(err, "user")
	}
	return u, nil
}

func (r *userRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := db.Conn(ctx, r.q).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, translate(err, "user")
}

// -- patients --

type patientRepoPG struct{ q db.Querier }

func NewPatientRepoPG(q db.Querier) PatientRepository { return &patientRepoPG{q: q} }

const patientCols = `id, name, cpf, phone, email, date_of_birth, address, city, state, zip_code,
	dental_history, tags, is_active, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.CPF, &p.Phone, &p.Email, &p.DateOfBirth, &p.Address,
		&p.City, &p.State, &p.ZipCode, &p.DentalHistory, &p.Tags, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.Conn(ctx, r.q).QueryRow(ctx, `
		INSERT INTO patients (id, name, cpf, phone, email, date_of_birth, address, city, state,
			zip_code, dental_history, tags, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.CPF, p.Phone, p.Email, p.DateOfBirth, p.Address, p.City, p.State,
		p.ZipCode, p.DentalHistory, p.Tags, p.IsActive).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translate(err, "patient")
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.q).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "patient")
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.q).QueryRow(ctx, `
		UPDATE patients SET name=$2, cpf=$3, phone=$4, email=$5, date_of_birth=$6, address=$7,
			city=$8, state=$9, zip_code=$10, dental_history=$11, tags=$12, is_active=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.CPF, p.Phone, p.Email, p.DateOfBirth, p.Address, p.City, p.State,
		p.ZipCode, p.DentalHistory, p.Tags, p.IsActive).Scan(&p.UpdatedAt)
	return translate(err, "patient")
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.q).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if db.IsCode(err, db.CodeForeignKeyViolation) {
		return newError(ErrConflict, "patient has appointments")
	}
	if err != nil {
		return translate(err, "patient")
	}
	if tag.RowsAffected() == 0 {
		return newError(ErrNotFound, "patient not found")
	}
	return nil
}

func patientWhere(f PatientFilter) (string, []any) {
	var clauses []string
	var args []any
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(name ILIKE $%d OR cpf ILIKE $%d OR phone ILIKE $%d OR email ILIKE $%d)", n, n, n, n))
	}
	if f.Tag != "" {
		args = append(args, f.Tag)
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *patientRepoPG) List(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	where, args := patientWhere(f)
	conn := db.Conn(ctx, r.q)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err, "patient")
	}

	query := fmt.Sprintf(`SELECT %s FROM patients%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		patientCols, where, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, translate(err, "patient")
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) CountActive(ctx context.Context) (int, error) {
	var n int
	err := db.Conn(ctx, r.q).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE is_active`).Scan(&n)
	return n, translate(err, "patient")
}

func (r *patientRepoPG) Stats(ctx context.Context) (*PatientStats, error) {
	conn := db.Conn(ctx, r.q)
	s := &PatientStats{ByTag: []TagCount{}}
	err := conn.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM patients`).Scan(&s.Total, &s.Active)
	if err != nil {
		return nil, translate(err, "patient")
	}
	s.Inactive = s.Total - s.Active

	rows, err := conn.Query(ctx, `
		SELECT tag, COUNT(*) FROM patients, unnest(tags) AS tag
		GROUP BY tag ORDER BY COUNT(*) DESC, tag ASC`)
	if err != nil {
		return nil, translate(err, "patient")
	}
	defer rows.Close()
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		s.ByTag = append(s.ByTag, tc)
	}
	return s, rows.Err()
}

// -- doctors --

type doctorRepoPG struct{ q db.Querier }

func NewDoctorRepoPG(q db.Querier) DoctorRepository { return &doctorRepoPG{q: q} }

const doctorSelect = `SELECT d.id, d.user_id, d.cro, d.specialty, d.photo_url, d.work_schedule,
	d.is_active, d.created_at, d.updated_at,
	u.email, u.name, u.role, u.is_active
	FROM doctors d JOIN users u ON u.id = d.user_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	u := User{}
	var schedule []byte
	err := row.Scan(&d.ID, &d.UserID, &d.CRO, &d.Specialty, &d.PhotoURL, &schedule,
		&d.IsActive, &d.CreatedAt, &d.UpdatedAt,
		&u.Email, &u.Name, &u.Role, &u.IsActive)
	if err != nil {
		return nil, err
	}
	if len(schedule) > 0 {
		d.WorkSchedule = schedule
	}
	u.ID = d.UserID
	d.User = &u
	return &d, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := db.Conn(ctx, r.q).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, cro, specialty, photo_url, work_schedule, is_active)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.CRO, d.Specialty, d.PhotoURL, nullableJSON(d.WorkSchedule), d.IsActive).
		Scan(&d.CreatedAt, &d.UpdatedAt)
	return translate(err, "doctor")
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(db.Conn(ctx, r.q).QueryRow(ctx, doctorSelect+` WHERE d.id = $1`, id))
	if err != nil {
		return nil, translate(err, "doctor")
	}
	return d, nil
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(db.Conn(ctx, r.q).QueryRow(ctx, doctorSelect+` WHERE d.user_id = $1`, userID))
	if err != nil {
		return nil, translate(err, "doctor")
	}
	return d, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := db.Conn(ctx, r.q).QueryRow(ctx, `
		UPDATE doctors SET cro=$2, specialty=$3, photo_url=$4, work_schedule=$5::jsonb,
			is_active=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.CRO, d.Specialty, d.PhotoURL, nullableJSON(d.WorkSchedule), d.IsActive).Scan(&d.UpdatedAt)
	return translate(err, "doctor")
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.q).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if db.IsCode(err, db.CodeForeignKeyViolation) {
		return newError(ErrConflict, "doctor has appointments")
	}
	if err != nil {
		return translate(err, "doctor")
	}
	if tag.RowsAffected() == 0 {
		return newError(ErrNotFound, "doctor not found")
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context) ([]*Doctor, error) {
	rows, err := db.Conn(ctx, r.q).Query(ctx, doctorSelect+` ORDER BY d.created_at DESC`)
	if err != nil {
		return nil, translate(err, "doctor")
	}
	defer rows.Close()
	items := []*Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *doctorRepoPG) CountActive(ctx context.Context) (int, error) {
	var n int
	err := db.Conn(ctx, r.q).QueryRow(ctx, `SELECT COUNT(*) FROM doctors WHERE is_active`).Scan(&n)
	return n, translate(err, "doctor")
}
