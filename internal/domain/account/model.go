package account

import (
	"time"

	"github.com/elanza/clinic/internal/platform/auth"
)

// User is a clinic account. ID is the identity uid.
type User struct {
	ID               string    `json:"id"`
	Role             auth.Role `json:"role"`
	Email            string    `json:"email"`
	Nombre           string    `json:"nombre"`
	ApPaterno        string    `json:"apPaterno"`
	ApMaterno        string    `json:"apMaterno,omitempty"`
	Telefono         string    `json:"telefono,omitempty"`
	Sexo             string    `json:"sexo,omitempty"`
	FechaNacimiento  string    `json:"fechaNacimiento,omitempty"`
	AuthProvider     string    `json:"authProvider,omitempty"`
	PerfilCompletado bool      `json:"perfilCompletado"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// FullName joins the given name and both surnames.
func (u *User) FullName() string {
	name := u.Nombre
	for _, part := range []string{u.ApPaterno, u.ApMaterno} {
		if part != "" {
			name += " " + part
		}
	}
	return name
}

// ProfileInput is the self-editable part of a user.
type ProfileInput struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Nombre          string `json:"nombre" validate:"required,max=80"`
	ApPaterno       string `json:"apPaterno" validate:"required,max=80"`
	ApMaterno       string `json:"apMaterno" validate:"max=80"`
	Telefono        string `json:"telefono" validate:"omitempty,min=7,max=20"`
	Sexo            string `json:"sexo" validate:"omitempty,oneof=masculino femenino otro"`
	FechaNacimiento string `json:"fechaNacimiento" validate:"omitempty,datetime=2006-01-02"`
	AuthProvider    string `json:"authProvider" validate:"omitempty,oneof=password google"`
}

type RoleInput struct {
	Role auth.Role `json:"role" validate:"required"`
}

// ListFilter selects users for the admin listing. Search matches the start
// of email, nombre or apPaterno, case-insensitively.
type ListFilter struct {
	Role   auth.Role
	Search string
	// AfterEmail/AfterID resume after the last row of the previous page.
	AfterEmail string
	AfterID    string
	Limit      int
}

// UserWritten is published on every user create, update and delete.
type UserWritten struct {
	UserID  string  `json:"userId"`
	Role    *string `json:"role"`
	Deleted bool    `json:"deleted"`
}
