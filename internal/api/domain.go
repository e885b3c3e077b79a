package api

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("requested item not found")
	ErrConflict           = errors.New("item already exists or conflict")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidationFailed   = errors.New("validation failed")
	ErrProvisioningFailed = errors.New("account provisioning failed")
)

// Violation is a single failed rule. Field names the offending form input
// and is empty when a rule runs outside a form.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError carries every violation found in one pass, in the order the
// rules ran. errors.Is(err, ErrValidationFailed) holds for every instance;
// Kind, when set, names a more specific failure such as ErrInvalidInput.
type ValidationError struct {
	Violations []Violation
	Kind       error
}

func NewValidationError(kind error, violations ...Violation) *ValidationError {
	return &ValidationError{Violations: violations, Kind: kind}
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrValidationFailed.Error()
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(e.Messages(), "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// Messages returns the human-readable text of every violation.
func (e *ValidationError) Messages() []string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return msgs
}

// Add appends violations and returns the receiver for chaining.
func (e *ValidationError) Add(v ...Violation) *ValidationError {
	e.Violations = append(e.Violations, v...)
	return e
}

// OrNil returns nil when no violation was collected, so callers can build an
// error incrementally and return it unconditionally.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}

// Role is the job function a profile holds inside GearGuard.
type Role string

const (
	RoleNone       Role = ""
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTechnician Role = "technician"
)

func (r Role) Valid() bool {
	switch r {
	case RoleNone, RoleAdmin, RoleManager, RoleTechnician:
		return true
	}
	return false
}

// UserIdentity is the authentication principal. Username never changes after
// creation and PasswordHash only ever holds a bcrypt hash.
type UserIdentity struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsStaff      bool      `json:"is_staff"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Persisted reports whether the identity has been written to the store.
func (u *UserIdentity) Persisted() bool {
	return u != nil && u.ID != uuid.Nil
}

// UserProfile is the one-to-one companion of a UserIdentity.
type UserProfile struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	FullName     string     `json:"full_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Role         Role       `json:"role"`
	Avatar       *string    `json:"avatar,omitempty"`
	TeamID       *uuid.UUID `json:"team_id,omitempty"`
	WorkCenterID *uuid.UUID `json:"work_center_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DisplayName falls back to the username when no full name is set.
func (p *UserProfile) DisplayName(user *UserIdentity) string {
	if p.FullName != "" {
		return p.FullName
	}
	if user != nil {
		return user.Username
	}
	return ""
}

// WorkCenter is a production location profiles and teams can be assigned to.
type WorkCenter struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Code               *string   `json:"code,omitempty"`
	Tag                string    `json:"tag"`
	CostPerHour        float64   `json:"cost_per_hour"`
	CapacityEfficiency float64   `json:"capacity_efficiency"`
	OEETarget          float64   `json:"oee_target"`
}

// Team groups technicians, optionally under a work center.
type Team struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	WorkCenterID *uuid.UUID `json:"work_center_id,omitempty"`
}
