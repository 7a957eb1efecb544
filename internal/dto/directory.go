package dto

import "github.com/noah-isme/vial-compliance-api/internal/models"

// PersonRequest creates or updates a person.
type PersonRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	DNI  string `json:"dni" validate:"required,max=32"`
}

// CourseRequest creates or updates a course.
type CourseRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// OfficialRequest creates or updates an inspector or judge.
type OfficialRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// CreateUserRequest registers a new user.
type CreateUserRequest struct {
	Username  string          `json:"username" validate:"required,min=3,max=64"`
	DNI       string          `json:"dni" validate:"required,max=32"`
	FirstName string          `json:"first_name" validate:"required,max=120"`
	LastName  string          `json:"last_name" validate:"required,max=120"`
	Password  string          `json:"password" validate:"required,min=8"`
	Role      models.UserRole `json:"role" validate:"required"`
}

// UpdateUserRequest changes mutable user attributes.
type UpdateUserRequest struct {
	FirstName *string          `json:"first_name,omitempty" validate:"omitempty,max=120"`
	LastName  *string          `json:"last_name,omitempty" validate:"omitempty,max=120"`
	Role      *models.UserRole `json:"role,omitempty"`
	Active    *bool            `json:"active,omitempty"`
	Password  *string          `json:"password,omitempty" validate:"omitempty,min=8"`
}
