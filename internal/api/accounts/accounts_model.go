package accounts

import (
	"github.com/google/uuid"

	"github.com/FACorreiaa/gearguard/internal/api"
)

// RegisterParams is the registration form. Role, Avatar and FullName are
// optional; Avatar is a reference to an already stored file.
type RegisterParams struct {
	Username        string
	Email           string
	Password        string
	PasswordConfirm string
	Role            string
	Avatar          string
	FullName        string
}

// RegisterOptions controls persistence. With Commit false the validated,
// hashed identity is returned unsaved and no profile is provisioned until
// the caller hands it to SaveUser.
type RegisterOptions struct {
	Commit bool
}

// UpdateProfileParams is a partial profile update; nil fields are left
// untouched. ClearTeam and ClearWorkCenter unset the assignments.
type UpdateProfileParams struct {
	FullName        *string
	Phone           *string
	Role            *api.Role
	Avatar          *string
	TeamID          *uuid.UUID
	WorkCenterID    *uuid.UUID
	ClearTeam       bool
	ClearWorkCenter bool
}

// SyncReport summarises a SyncAllProfiles run.
type SyncReport struct {
	Checked int `json:"checked"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}
