package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic/internal/domain/identity"
	"github.com/clinicdesk/clinic/internal/domain/scheduling"
)

// directoryAdapter exposes identity records to the scheduling package in its
// own summary types, keeping the two domains free of each other's imports.
type directoryAdapter struct {
	svc *identity.Service
}

func (a directoryAdapter) FindPatient(ctx context.Context, id uuid.UUID) (*scheduling.PatientSummary, error) {
	p, err := a.svc.GetPatient(ctx, id)
	if err != nil {
		return nil, translateLookup(err)
	}
	return &scheduling.PatientSummary{ID: p.ID, Name: p.Name, CPF: &p.CPF, Phone: &p.Phone, Email: p.Email}, nil
}

func (a directoryAdapter) FindDoctor(ctx context.Context, id uuid.UUID) (*scheduling.DoctorSummary, error) {
	d, err := a.svc.GetDoctor(ctx, id)
	if err != nil {
		return nil, translateLookup(err)
	}
	s := &scheduling.DoctorSummary{ID: d.ID, UserID: d.UserID, CRO: d.CRO, Specialty: d.Specialty, PhotoURL: d.PhotoURL}
	if d.User != nil {
		s.User = &scheduling.UserSummary{ID: d.UserID, Name: d.User.Name, Email: d.User.Email}
	}
	return s, nil
}

func translateLookup(err error) error {
	if errors.Is(err, identity.ErrNotFound) {
		return fmt.Errorf("%w: %v", scheduling.ErrNotFound, err)
	}
	return err
}
