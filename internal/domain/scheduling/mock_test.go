package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockAppointmentRepo struct {
	mu            sync.Mutex
	appts         map[uuid.UUID]*Appointment
	conflictCalls int
	now           func() time.Time
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{appts: make(map[uuid.UUID]*Appointment), now: time.Now}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = m.now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, newNotFound("appointment not found")
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[a.ID]; !ok {
		return newNotFound("appointment not found")
	}
	a.UpdatedAt = m.now()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[id]; !ok {
		return newNotFound("appointment not found")
	}
	delete(m.appts, id)
	return nil
}

func (m *mockAppointmentRepo) FindConflicts(_ context.Context, q ConflictQuery) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflictCalls++
	var out []*Appointment
	for _, a := range m.appts {
		if a.DoctorID != q.DoctorID || a.Status == StatusCancelled {
			continue
		}
		if q.ExcludeID != nil && a.ID == *q.ExcludeID {
			continue
		}
		var hit bool
		if q.Mode == OverlapInterval {
			hit = a.ScheduledAt.Before(q.End) && a.EndsAt().After(q.Start)
		} else {
			hit = !a.ScheduledAt.Before(q.Start) && a.ScheduledAt.Before(q.End)
		}
		if hit {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) match(q ListQuery) []*Appointment {
	out := []*Appointment{}
	for _, a := range m.appts {
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if len(q.Statuses) > 0 {
			ok := false
			for _, s := range q.Statuses {
				if a.Status == s {
					ok = true
				}
			}
			if !ok {
				continue
			}
		}
		if q.From != nil && a.ScheduledAt.Before(*q.From) {
			continue
		}
		if q.To != nil && a.ScheduledAt.After(*q.To) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (m *mockAppointmentRepo) List(_ context.Context, q ListQuery) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.match(q)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *mockAppointmentRepo) Count(_ context.Context, q ListQuery) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.match(q)), nil
}

func (m *mockAppointmentRepo) RecentlyUpdated(_ context.Context, limit int) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.match(ListQuery{})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// seed stores a without going through the service.
func (m *mockAppointmentRepo) seed(a *Appointment) *Appointment {
	if a.Duration == 0 {
		a.Duration = DefaultDuration
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	_ = m.Create(context.Background(), a)
	return a
}

type mockDirectory struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*PatientSummary
	doctors  map[uuid.UUID]*DoctorSummary
	lookups  int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		patients: make(map[uuid.UUID]*PatientSummary),
		doctors:  make(map[uuid.UUID]*DoctorSummary),
	}
}

func (m *mockDirectory) addPatient() uuid.UUID {
	id := uuid.New()
	m.patients[id] = &PatientSummary{ID: id, Name: "Maria Silva"}
	return id
}

func (m *mockDirectory) addDoctor() uuid.UUID {
	id := uuid.New()
	uid := uuid.New()
	m.doctors[id] = &DoctorSummary{ID: id, UserID: uid, CRO: "CRO-SP 1234", Specialty: "Orthodontics",
		User: &UserSummary{ID: uid, Name: "Dr. Ana", Email: "ana@clinic.test"}}
	return id
}

func (m *mockDirectory) FindPatient(_ context.Context, id uuid.UUID) (*PatientSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	p, ok := m.patients[id]
	if !ok {
		return nil, newNotFound("patient not found")
	}
	return p, nil
}

func (m *mockDirectory) FindDoctor(_ context.Context, id uuid.UUID) (*DoctorSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	d, ok := m.doctors[id]
	if !ok {
		return nil, newNotFound("doctor not found")
	}
	return d, nil
}

func (m *mockDirectory) CountActivePatients(context.Context) (int, error) {
	return len(m.patients), nil
}
func (m *mockDirectory) CountActiveDoctors(context.Context) (int, error) { return len(m.doctors), nil }

type testEnv struct {
	repo *mockAppointmentRepo
	dir  *mockDirectory
	svc  *Service
}

func newTestEnv(mode OverlapMode) *testEnv {
	repo := newMockAppointmentRepo()
	dir := newMockDirectory()
	v := NewValidator(repo, mode, nil, zerolog.Nop())
	svc := NewService(repo, dir, dir, v, ServiceOptions{EnforceTransitions: true})
	return &testEnv{repo: repo, dir: dir, svc: svc}
}

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2024-06-01 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func intPtr(i int) *int          { return &i }
func strPtr(s string) *string    { return &s }
func statusPtr(s Status) *Status { return &s }

type notification struct {
	userID uuid.UUID
	event  string
	data   map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, event string, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{userID: userID, event: event, data: data})
	return n.err
}
