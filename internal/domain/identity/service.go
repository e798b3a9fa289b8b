package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/platform/auth"
)

const minPasswordLength = 6

// Profile is the user as returned to clients, with the doctor record attached
// when the user practises.
type Profile struct {
	*User
	Doctor *Doctor `json:"doctor,omitempty"`
}

type AuthResult struct {
	User         *Profile `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn    int      `json:"expiresIn"`
}

type Service struct {
	users    UserRepository
	patients PatientRepository
	doctors  DoctorRepository
	tokens   *auth.TokenManager
	logger   zerolog.Logger
}

func NewService(users UserRepository, patients PatientRepository, doctors DoctorRepository, tokens *auth.TokenManager, logger zerolog.Logger) *Service {
	return &Service{users: users, patients: patients, doctors: doctors, tokens: tokens, logger: logger}
}

// -- auth --

func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if in.Email == "" || in.Password == "" {
		return nil, newError(ErrValidation, "email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(ErrUnauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive || auth.CheckPassword(u.PasswordHash, in.Password) != nil {
		s.logger.Warn().Str("user_id", u.ID.String()).Msg("failed login")
		return nil, newError(ErrUnauthorized, "invalid credentials")
	}
	return s.issue(ctx, u)
}

// Register creates a user. While the users table is empty anyone may
// register; afterwards only an admin caller may.
func (s *Service) Register(ctx context.Context, in RegisterInput, caller *auth.Identity) (*Profile, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 && (caller == nil || caller.Role != auth.RoleAdmin) {
		return nil, newError(ErrUnauthorized, "only administrators can register users")
	}

	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, newError(ErrValidation, "invalid email")
	}
	if len(in.Password) < minPasswordLength {
		return nil, newError(ErrValidation, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, newError(ErrValidation, "name is required")
	}
	role, err := parseRole(in.Role, n == 0)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", role).Msg("user registered")
	return &Profile{User: u}, nil
}

// parseRole defaults to receptionist, or to admin for the bootstrap user.
func parseRole(role string, bootstrap bool) (string, error) {
	if role == "" {
		if bootstrap {
			return auth.RoleAdmin, nil
		}
		return auth.RoleReceptionist, nil
	}
	if r := strings.ToUpper(role); auth.ValidRole(r) {
		return r, nil
	}
	return "", newError(ErrValidation, "invalid role: "+role)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	id, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, newError(ErrUnauthorized, "invalid refresh token")
	}
	u, err := s.users.GetByID(ctx, id.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(ErrUnauthorized, "invalid refresh token")
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, newError(ErrUnauthorized, "user is inactive")
	}
	return s.issue(ctx, u)
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, u)
}

func (s *Service) profile(ctx context.Context, u *User) (*Profile, error) {
	p := &Profile{User: u}
	if u.Role != auth.RoleDoctor {
		return p, nil
	}
	d, err := s.doctors.GetByUserID(ctx, u.ID)
	switch {
	case err == nil:
		d.User = nil
		p.Doctor = d
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return p, nil
}

func (s *Service) issue(ctx context.Context, u *User) (*AuthResult, error) {
	pair, err := s.tokens.GenerateTokenPair(auth.Identity{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role})
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	p, err := s.profile(ctx, u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:         p,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// -- patients --

func (s *Service) CreatePatient(ctx context.Context, in PatientInput) (*Patient, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, newError(ErrValidation, "name is required")
	}
	if in.CPF == nil || strings.TrimSpace(*in.CPF) == "" {
		return nil, newError(ErrValidation, "cpf is required")
	}
	if in.Phone == nil || strings.TrimSpace(*in.Phone) == "" {
		return nil, newError(ErrValidation, "phone is required")
	}
	p := &Patient{IsActive: true, Tags: []string{}}
	if err := applyPatient(p, in); err != nil {
		return nil, err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient created")
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, in PatientInput) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyPatient(p, in); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if err := s.patients.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", id.String()).Msg("patient deleted")
	return nil
}

func (s *Service) ListPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	f.Tag = normalizeTag(f.Tag)
	return s.patients.List(ctx, f, limit, offset)
}

func (s *Service) PatientStats(ctx context.Context) (*PatientStats, error) {
	return s.patients.Stats(ctx)
}

func applyPatient(p *Patient, in PatientInput) error {
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return newError(ErrValidation, "name cannot be empty")
		}
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.CPF != nil {
		p.CPF = strings.TrimSpace(*in.CPF)
	}
	if in.Phone != nil {
		p.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Email != nil {
		if *in.Email != "" {
			if _, err := mail.ParseAddress(*in.Email); err != nil {
				return newError(ErrValidation, "invalid email")
			}
		}
		p.Email = in.Email
	}
	if in.DateOfBirth != nil {
		p.DateOfBirth = in.DateOfBirth
	}
	if in.Address != nil {
		p.Address = in.Address
	}
	if in.City != nil {
		p.City = in.City
	}
	if in.State != nil {
		p.State = in.State
	}
	if in.ZipCode != nil {
		p.ZipCode = in.ZipCode
	}
	if in.DentalHistory != nil {
		p.DentalHistory = in.DentalHistory
	}
	if in.Tags != nil {
		tags := make([]string, 0, len(in.Tags))
		seen := map[string]bool{}
		for _, t := range in.Tags {
			t = normalizeTag(t)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			tags = append(tags, t)
		}
		p.Tags = tags
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return nil
}

func normalizeTag(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// -- doctors --

func (s *Service) CreateDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	if in.UserID == nil {
		return nil, newError(ErrValidation, "userId is required")
	}
	if in.CRO == nil || strings.TrimSpace(*in.CRO) == "" {
		return nil, newError(ErrValidation, "cro is required")
	}
	if in.Specialty == nil || strings.TrimSpace(*in.Specialty) == "" {
		return nil, newError(ErrValidation, "specialty is required")
	}
	u, err := s.users.GetByID(ctx, *in.UserID)
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RoleDoctor {
		return nil, newError(ErrValidation, "user must have the DOCTOR role")
	}

	d := &Doctor{UserID: u.ID, IsActive: true}
	applyDoctor(d, in)
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	d.User = u
	s.logger.Info().Str("doctor_id", d.ID.String()).Msg("doctor created")
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	return s.doctors.List(ctx)
}

// ActiveSchedules returns the work schedules of active doctors.
func (s *Service) ActiveSchedules(ctx context.Context) ([]*Doctor, error) {
	all, err := s.doctors.List(ctx)
	if err != nil {
		return nil, err
	}
	active := []*Doctor{}
	for _, d := range all {
		if d.IsActive {
			active = append(active, d)
		}
	}
	return active, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, in DoctorInput) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.CRO != nil && strings.TrimSpace(*in.CRO) == "" {
		return nil, newError(ErrValidation, "cro cannot be empty")
	}
	if in.Specialty != nil && strings.TrimSpace(*in.Specialty) == "" {
		return nil, newError(ErrValidation, "specialty cannot be empty")
	}
	applyDoctor(d, in)
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	if err := s.doctors.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("doctor_id", id.String()).Msg("doctor deleted")
	return nil
}

func applyDoctor(d *Doctor, in DoctorInput) {
	if in.CRO != nil {
		d.CRO = strings.TrimSpace(*in.CRO)
	}
	if in.Specialty != nil {
		d.Specialty = strings.TrimSpace(*in.Specialty)
	}
	if in.PhotoURL != nil {
		d.PhotoURL = in.PhotoURL
	}
	if len(in.WorkSchedule) > 0 {
		d.WorkSchedule = in.WorkSchedule
	}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
}

// CountActivePatients and CountActiveDoctors feed the dashboard overview.
func (s *Service) CountActivePatients(ctx context.Context) (int, error) {
	return s.patients.CountActive(ctx)
}

func (s *Service) CountActiveDoctors(ctx context.Context) (int, error) {
	return s.doctors.CountActive(ctx)
}
