package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/platform/auth"
)

type mockUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo { return &mockUserRepo{users: map[uuid.UUID]*User{}} }

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return newError(ErrConflict, "user already exists")
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, newError(ErrNotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, newError(ErrNotFound, "user not found")
}

func (m *mockUserRepo) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: map[uuid.UUID]*Patient{}}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.patients {
		if existing.CPF == p.CPF {
			return newError(ErrConflict, "patient already exists")
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, newError(ErrNotFound, "patient not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return newError(ErrNotFound, "patient not found")
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.patients[id]; !ok {
		return newError(ErrNotFound, "patient not found")
	}
	delete(m.patients, id)
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	var matched []*Patient
	for _, p := range m.patients {
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) &&
			!strings.Contains(p.CPF, f.Search) && !strings.Contains(p.Phone, f.Search) {
			continue
		}
		if f.Tag != "" && !hasTag(p.Tags, f.Tag) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	items := append([]*Patient{}, matched[offset:end]...)
	return items, total, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (m *mockPatientRepo) CountActive(context.Context) (int, error) {
	n := 0
	for _, p := range m.patients {
		if p.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *mockPatientRepo) Stats(context.Context) (*PatientStats, error) {
	s := &PatientStats{ByTag: []TagCount{}}
	counts := map[string]int{}
	for _, p := range m.patients {
		s.Total++
		if p.IsActive {
			s.Active++
		}
		for _, t := range p.Tags {
			counts[t]++
		}
	}
	s.Inactive = s.Total - s.Active
	for t, n := range counts {
		s.ByTag = append(s.ByTag, TagCount{Tag: t, Count: n})
	}
	return s, nil
}

type mockDoctorRepo struct {
	doctors map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo { return &mockDoctorRepo{doctors: map[uuid.UUID]*Doctor{}} }

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, newError(ErrNotFound, "doctor not found")
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	for _, d := range m.doctors {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, newError(ErrNotFound, "doctor not found")
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	if _, ok := m.doctors[d.ID]; !ok {
		return newError(ErrNotFound, "doctor not found")
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.doctors[id]; !ok {
		return newError(ErrNotFound, "doctor not found")
	}
	delete(m.doctors, id)
	return nil
}

func (m *mockDoctorRepo) List(context.Context) ([]*Doctor, error) {
	items := []*Doctor{}
	for _, d := range m.doctors {
		cp := *d
		items = append(items, &cp)
	}
	return items, nil
}

func (m *mockDoctorRepo) CountActive(context.Context) (int, error) {
	n := 0
	for _, d := range m.doctors {
		if d.IsActive {
			n++
		}
	}
	return n, nil
}

type testEnv struct {
	users    *mockUserRepo
	patients *mockPatientRepo
	doctors  *mockDoctorRepo
	tokens   *auth.TokenManager
	svc      *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:    newMockUserRepo(),
		patients: newMockPatientRepo(),
		doctors:  newMockDoctorRepo(),
		tokens:   auth.NewTokenManager("test-secret", "clinic-test", 15*time.Minute, 24*time.Hour),
	}
	env.svc = NewService(env.users, env.patients, env.doctors, env.tokens, zerolog.Nop())
	return env
}

// addUser stores a user with the given role and password directly.
func (env *testEnv) addUser(email, password, role string) *User {
	hash, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	u := &User{Email: email, PasswordHash: hash, Name: "Test " + role, Role: role, IsActive: true}
	if err := env.users.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
