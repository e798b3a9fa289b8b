package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinic/internal/domain/identity"
	"github.com/clinicdesk/clinic/internal/platform/auth"
	"github.com/clinicdesk/clinic/internal/platform/db"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo users, a doctor and sample patients on an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			password, _ := cmd.Flags().GetString("password")
			logger := newLogger(cfg.Env, cfg.LogLevel)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, poolConfig(cfg), logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			return db.WithTx(ctx, pool, db.Serializable, func(ctx context.Context) error {
				return seed(ctx, pool, password, logger)
			})
		},
	}
	cmd.Flags().String("password", "clinic123", "Password for every seeded user")
	return cmd
}

var defaultWorkSchedule = map[string]map[string]string{
	"monday":    {"start": "08:00", "end": "18:00"},
	"tuesday":   {"start": "08:00", "end": "18:00"},
	"wednesday": {"start": "08:00", "end": "18:00"},
	"thursday":  {"start": "08:00", "end": "18:00"},
	"friday":    {"start": "08:00", "end": "17:00"},
	"saturday":  {"start": "08:00", "end": "12:00"},
}

// seed is a no-op when any user already exists.
func seed(ctx context.Context, q db.Querier, password string, logger zerolog.Logger) error {
	users := identity.NewUserRepoPG(q)
	n, err := users.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info().Int("users", n).Msg("database already seeded")
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	accounts := []*identity.User{
		{Email: "admin@clinic.local", Name: "Clinic Admin", Role: auth.RoleAdmin},
		{Email: "doctor@clinic.local", Name: "Dr. Helena Costa", Role: auth.RoleDoctor},
		{Email: "front@clinic.local", Name: "Front Desk", Role: auth.RoleReceptionist},
	}
	for _, u := range accounts {
		u.PasswordHash = hash
		u.IsActive = true
		if err := users.Create(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}

	schedule, err := json.Marshal(defaultWorkSchedule)
	if err != nil {
		return err
	}
	doctor := &identity.Doctor{
		UserID:       accounts[1].ID,
		CRO:          "CRO-RJ-40211",
		Specialty:    "Orthodontics",
		WorkSchedule: schedule,
		IsActive:     true,
	}
	if err := identity.NewDoctorRepoPG(q).Create(ctx, doctor); err != nil {
		return fmt.Errorf("seed doctor: %w", err)
	}

	patients := identity.NewPatientRepoPG(q)
	for _, p := range []*identity.Patient{
		{Name: "Rafael Lima", CPF: "321.654.987-00", Phone: "(21) 99876-1020", Tags: []string{"REGULAR"}, IsActive: true},
		{Name: "Beatriz Nunes", CPF: "741.852.963-00", Phone: "(21) 98123-4455", Tags: []string{"VIP", "RETURN"}, IsActive: true},
	} {
		if err := patients.Create(ctx, p); err != nil {
			return fmt.Errorf("seed patient %s: %w", p.Name, err)
		}
	}

	logger.Info().Int("users", len(accounts)).Int("patients", 2).Msg("seed complete")
	return nil
}
