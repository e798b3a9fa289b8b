package identity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Patient struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	CPF           string     `json:"cpf"`
	Phone         string     `json:"phone"`
	Email         *string    `json:"email,omitempty"`
	DateOfBirth   *time.Time `json:"dateOfBirth,omitempty"`
	Address       *string    `json:"address,omitempty"`
	City          *string    `json:"city,omitempty"`
	State         *string    `json:"state,omitempty"`
	ZipCode       *string    `json:"zipCode,omitempty"`
	DentalHistory *string    `json:"dentalHistory,omitempty"`
	Tags          []string   `json:"tags"`
	IsActive      bool       `json:"isActive"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type Doctor struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"userId"`
	CRO          string          `json:"cro"`
	Specialty    string          `json:"specialty"`
	PhotoURL     *string         `json:"photoUrl,omitempty"`
	WorkSchedule json.RawMessage `json:"workSchedule,omitempty"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	User         *User           `json:"user,omitempty"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
}

// PatientInput is used for both create and partial update; nil fields are
// left untouched on update.
type PatientInput struct {
	Name          *string    `json:"name,omitempty"`
	CPF           *string    `json:"cpf,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	Email         *string    `json:"email,omitempty"`
	DateOfBirth   *time.Time `json:"dateOfBirth,omitempty"`
	Address       *string    `json:"address,omitempty"`
	City          *string    `json:"city,omitempty"`
	State         *string    `json:"state,omitempty"`
	ZipCode       *string    `json:"zipCode,omitempty"`
	DentalHistory *string    `json:"dentalHistory,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	IsActive      *bool      `json:"isActive,omitempty"`
}

type DoctorInput struct {
	UserID       *uuid.UUID      `json:"userId,omitempty"`
	CRO          *string         `json:"cro,omitempty"`
	Specialty    *string         `json:"specialty,omitempty"`
	PhotoURL     *string         `json:"photoUrl,omitempty"`
	WorkSchedule json.RawMessage `json:"workSchedule,omitempty"`
	IsActive     *bool           `json:"isActive,omitempty"`
}

type PatientFilter struct {
	Search string
	Tag    string
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type PatientStats struct {
	Total    int        `json:"total"`
	Active   int        `json:"active"`
	Inactive int        `json:"inactive"`
	ByTag    []TagCount `json:"byTag"`
}
