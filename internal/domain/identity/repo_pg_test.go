package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

var patientColumns = []string{"id", "name", "cpf", "phone", "email", "date_of_birth", "address", "city",
	"state", "zip_code", "dental_history", "tags", "is_active", "created_at", "updated_at"}

func TestUserRepoPG_GetByEmail(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepoPG(mock)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM users WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("a@clinic.test").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "name", "role", "is_active", "created_at", "updated_at"}).
			AddRow(id, "a@clinic.test", "hash", "Ana", "ADMIN", true, now, now))

	u, err := repo.GetByEmail(context.Background(), "a@clinic.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != id || u.Role != "ADMIN" {
		t.Errorf("unexpected user %+v", u)
	}

	mock.ExpectQuery(`FROM users WHERE lower\(email\)`).
		WithArgs("missing@clinic.test").
		WillReturnError(pgx.ErrNoRows)
	if _, err := repo.GetByEmail(context.Background(), "missing@clinic.test"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUserRepoPG_Create_DuplicateEmail(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepoPG(mock)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "a@clinic.test", "hash", "Ana", "ADMIN", true).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &User{Email: "a@clinic.test", PasswordHash: "hash", Name: "Ana", Role: "ADMIN", IsActive: true})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestPatientRepoPG_List_SearchAndTag(t *testing.T) {
	mock := newMock(t)
	repo := NewPatientRepoPG(mock)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM patients WHERE \(name ILIKE \$1 OR cpf ILIKE \$1 OR phone ILIKE \$1 OR email ILIKE \$1\) AND \$2 = ANY\(tags\)`).
		WithArgs("%ana%", "VIP").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM patients WHERE .* ORDER BY created_at DESC LIMIT 10 OFFSET 0`).
		WithArgs("%ana%", "VIP").
		WillReturnRows(pgxmock.NewRows(patientColumns).
			AddRow(uuid.New(), "Ana", "111", "555", nil, nil, nil, nil, nil, nil, nil, []string{"VIP"}, true, now, now))

	items, total, err := repo.List(context.Background(), PatientFilter{Search: "ana", Tag: "VIP"}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Name != "Ana" || items[0].Tags[0] != "VIP" {
		t.Errorf("unexpected result %d %+v", total, items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPatientRepoPG_Stats(t *testing.T) {
	mock := newMock(t)
	repo := NewPatientRepoPG(mock)

	mock.ExpectQuery(`COUNT\(\*\) FILTER \(WHERE is_active\)`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "active"}).AddRow(5, 3))
	mock.ExpectQuery(`unnest\(tags\)`).
		WillReturnRows(pgxmock.NewRows([]string{"tag", "count"}).AddRow("VIP", 2).AddRow("REGULAR", 1))

	s, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Total != 5 || s.Active != 3 || s.Inactive != 2 || len(s.ByTag) != 2 || s.ByTag[0].Tag != "VIP" {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestDoctorRepoPG_Delete(t *testing.T) {
	mock := newMock(t)
	repo := NewDoctorRepoPG(mock)
	id := uuid.New()

	mock.ExpectExec(`DELETE FROM doctors WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	if err := repo.Delete(context.Background(), id); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for referenced doctor, got %v", err)
	}

	mock.ExpectExec(`DELETE FROM doctors WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if err := repo.Delete(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDoctorRepoPG_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewDoctorRepoPG(mock)
	id, user := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(`JOIN users u ON u.id = d.user_id WHERE d.id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "cro", "specialty", "photo_url", "work_schedule",
			"is_active", "created_at", "updated_at", "email", "name", "role", "u_is_active"}).
			AddRow(id, user, "CRO-1", "General", nil, []byte(`{"mon":[]}`), true, now, now, "d@clinic.test", "Dr D", "DOCTOR", true))

	d, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.User == nil || d.User.ID != user || d.User.Name != "Dr D" || string(d.WorkSchedule) != `{"mon":[]}` {
		t.Errorf("unexpected doctor %+v", d)
	}
}
