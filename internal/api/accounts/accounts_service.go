package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/gearguard/app/observability/metrics"
	"github.com/FACorreiaa/gearguard/internal/api"
	"github.com/FACorreiaa/gearguard/internal/api/password"
)

const (
	maxUsernameLength = 150
	maxFullNameLength = 200
	maxPhoneLength    = 50

	defaultSyncConcurrency = 4
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9.@+_-]+$`)

// Ensure implementation satisfies the interface
var _ AccountsService = (*AccountsServiceImpl)(nil)

// AccountsService provisions identities and keeps each one paired with
// exactly one profile.
type AccountsService interface {
	Register(ctx context.Context, params RegisterParams, opts RegisterOptions) (*api.UserIdentity, error)
	// SaveUser inserts or updates the identity and re-establishes its
	// profile in the same transaction.
	SaveUser(ctx context.Context, user *api.UserIdentity) error
	ChangeEmail(ctx context.Context, userID uuid.UUID, email string) (*api.UserIdentity, error)
	SetPassword(ctx context.Context, userID uuid.UUID, newPassword string) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*api.UserProfile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, params UpdateProfileParams) (*api.UserProfile, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	SyncAllProfiles(ctx context.Context) (SyncReport, error)
}

// AccountsServiceImpl provides the implementation for AccountsService.
type AccountsServiceImpl struct {
	logger          *slog.Logger
	repo            AccountsRepo
	passwords       password.PasswordService
	bcryptCost      int
	syncConcurrency int
	metrics         *metrics.AppMetrics
}

// NewAccountsService creates a new accounts service. A bcryptCost of zero
// selects bcrypt.DefaultCost.
func NewAccountsService(repo AccountsRepo, passwords password.PasswordService, bcryptCost int, logger *slog.Logger) *AccountsServiceImpl {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	metrics.InitAppMetrics()
	return &AccountsServiceImpl{
		logger:          logger,
		repo:            repo,
		passwords:       passwords,
		bcryptCost:      bcryptCost,
		syncConcurrency: defaultSyncConcurrency,
		metrics:         metrics.Get(),
	}
}

// Register validates the form and the password, hashes the password and, when
// opts.Commit is set, creates the identity and its profile in one
// transaction. A failure in the profile step rolls the identity back and is
// reported as api.ErrProvisioningFailed.
func (s *AccountsServiceImpl) Register(ctx context.Context, params RegisterParams, opts RegisterOptions) (*api.UserIdentity, error) {
	ctx, span := otel.Tracer("AccountsService").Start(ctx, "Register", trace.WithAttributes(
		attribute.String("user.username", params.Username),
		attribute.Bool("register.commit", opts.Commit),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RegisterDurationSeconds.Record(ctx, time.Since(start).Seconds())
	}()
	s.metrics.RegisterRequestsTotal.Add(ctx, 1)

	l := s.logger.With(slog.String("method", "Register"), slog.String("username", params.Username))
	l.DebugContext(ctx, "Registering user")

	params.Username = strings.TrimSpace(params.Username)
	params.Email = strings.TrimSpace(params.Email)

	verr := validateRegistration(params)
	if params.Username != "" && !hasField(verr, "username") {
		_, err := s.repo.GetUserByUsername(ctx, params.Username)
		switch {
		case err == nil:
			verr.Add(usernameTaken())
			verr.Kind = api.ErrConflict
		case !errors.Is(err, api.ErrNotFound):
			span.RecordError(err)
			span.SetStatus(codes.Error, "username lookup failed")
			return nil, fmt.Errorf("error checking username: %w", err)
		}
	}

	user := &api.UserIdentity{
		Username: params.Username,
		Email:    params.Email,
		IsActive: true,
	}

	if !hasField(verr, "password_confirm") {
		if err := s.passwords.Validate(ctx, params.Password, user); err != nil {
			var pwErr *api.ValidationError
			if !errors.As(err, &pwErr) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "password validation failed")
				return nil, fmt.Errorf("error validating password: %w", err)
			}
			for _, v := range pwErr.Violations {
				v.Field = "password"
				verr.Add(v)
			}
			if verr.Kind == nil {
				verr.Kind = pwErr.Kind
			}
		}
	}

	if err := verr.OrNil(); err != nil {
		l.InfoContext(ctx, "Registration rejected", slog.Int("violations", len(verr.Violations)))
		span.SetAttributes(attribute.Int("register.violations", len(verr.Violations)))
		span.SetStatus(codes.Error, "registration rejected")
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.bcryptCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hashing failed")
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	user.PasswordHash = string(hash)

	if !opts.Commit {
		l.DebugContext(ctx, "Returning unsaved user")
		span.SetStatus(codes.Ok, "User validated")
		return user, nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo AccountsRepo) error {
		if err := repo.CreateUser(ctx, user); err != nil {
			return err
		}
		profile, _, err := s.syncProfile(ctx, repo, user)
		if err != nil {
			return fmt.Errorf("%w: failed to create user profile: %w", api.ErrProvisioningFailed, err)
		}
		applyRegistration(profile, user, params)
		if err := repo.UpdateProfile(ctx, profile); err != nil {
			return fmt.Errorf("%w: failed to update user profile: %w", api.ErrProvisioningFailed, err)
		}
		return nil
	})
	if err != nil {
		user.ID = uuid.Nil
		span.RecordError(err)
		switch {
		case errors.Is(err, api.ErrProvisioningFailed):
			s.metrics.ProvisioningFailuresTotal.Add(ctx, 1)
			l.ErrorContext(ctx, "Profile provisioning failed, registration rolled back", slog.Any("error", err))
			span.SetStatus(codes.Error, "provisioning failed")
			return nil, err
		case errors.Is(err, api.ErrConflict):
			l.InfoContext(ctx, "Username taken during registration")
			span.SetStatus(codes.Error, "username conflict")
			return nil, api.NewValidationError(api.ErrConflict, usernameTaken())
		default:
			l.ErrorContext(ctx, "Failed to register user", slog.Any("error", err))
			span.SetStatus(codes.Error, "registration failed")
			return nil, fmt.Errorf("error registering user: %w", err)
		}
	}

	l.InfoContext(ctx, "User registered", slog.String("userID", user.ID.String()))
	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	span.SetStatus(codes.Ok, "User registered")
	return user, nil
}

func validateRegistration(params RegisterParams) *api.ValidationError {
	verr := &api.ValidationError{}

	switch n := utf8.RuneCountInString(params.Username); {
	case n == 0:
		verr.Add(api.Violation{Field: "username", Code: "required", Message: "This field is required."})
	case n > maxUsernameLength:
		verr.Add(api.Violation{Field: "username", Code: "max_length",
			Message: fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", maxUsernameLength, n)})
	case !usernamePattern.MatchString(params.Username):
		verr.Add(api.Violation{Field: "username", Code: "invalid",
			Message: "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."})
	}

	if v, ok := checkEmail(params.Email); !ok {
		verr.Add(v)
	}

	if params.Password != params.PasswordConfirm {
		verr.Add(api.Violation{Field: "password_confirm", Code: "password_mismatch",
			Message: "The two password fields didn't match."})
	}

	if role := api.Role(strings.TrimSpace(params.Role)); !role.Valid() {
		verr.Add(invalidRole(role))
	}
	return verr
}

// checkEmail accepts an empty address or a bare well-formed one.
func checkEmail(email string) (api.Violation, bool) {
	if email == "" {
		return api.Violation{}, true
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return api.Violation{Field: "email", Code: "invalid", Message: "Enter a valid email address."}, false
	}
	return api.Violation{}, true
}

func invalidRole(role api.Role) api.Violation {
	return api.Violation{Field: "role", Code: "invalid_choice",
		Message: fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", role)}
}

func usernameTaken() api.Violation {
	return api.Violation{Field: "username", Code: "unique", Message: "A user with that username already exists."}
}

func hasField(verr *api.ValidationError, field string) bool {
	for _, v := range verr.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// applyRegistration copies the optional registration fields onto the
// profile. The username only fills an empty full name.
func applyRegistration(profile *api.UserProfile, user *api.UserIdentity, params RegisterParams) {
	if role := strings.TrimSpace(params.Role); role != "" {
		profile.Role = api.Role(role)
	}
	if avatar := strings.TrimSpace(params.Avatar); avatar != "" {
		profile.Avatar = &avatar
	}
	switch fullName := strings.TrimSpace(params.FullName); {
	case fullName != "":
		profile.FullName = fullName
	case profile.FullName == "" && user.Username != "":
		profile.FullName = user.Username
	}
}

// syncProfile creates the user's profile when missing and otherwise copies
// the identity's email onto it when they differ. It reports whether it
// wrote anything.
func (s *AccountsServiceImpl) syncProfile(ctx context.Context, repo AccountsRepo, user *api.UserIdentity) (*api.UserProfile, bool, error) {
	profile, err := repo.GetProfileByUserID(ctx, user.ID)
	if errors.Is(err, api.ErrNotFound) {
		profile, err = repo.CreateProfile(ctx, user.ID, user.Email)
		if err != nil {
			return nil, false, err
		}
		s.metrics.ProfileSyncsTotal.Add(ctx, 1)
		return profile, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	if profile.Email == user.Email {
		return profile, false, nil
	}
	profile.Email = user.Email
	if err := repo.UpdateProfile(ctx, profile); err != nil {
		return nil, false, err
	}
	s.metrics.ProfileSyncsTotal.Add(ctx, 1)
	return profile, true, nil
}

func (s *AccountsServiceImpl) saveUser(ctx context.Context, repo AccountsRepo, user *api.UserIdentity) error {
	if user.Persisted() {
		if err := repo.UpdateUser(ctx, user); err != nil {
			return err
		}
	} else if err := repo.CreateUser(ctx, user); err != nil {
		return err
	}
	if _, _, err := s.syncProfile(ctx, repo, user); err != nil {
		return fmt.Errorf("%w: failed to sync user profile: %w", api.ErrProvisioningFailed, err)
	}
	return nil
}

func (s *AccountsServiceImpl) SaveUser(ctx context.Context, user *api.UserIdentity) error {
	if user == nil {
		return fmt.Errorf("%w: user is required", api.ErrInvalidArgument)
	}
	ctx, span := otel.Tracer("AccountsService").Start(ctx, "SaveUser", trace.WithAttributes(
		attribute.String("user.username", user.Username),
		attribute.Bool("user.persisted", user.Persisted()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "SaveUser"), slog.String("username", user.Username))
	l.DebugContext(ctx, "Saving user")

	before := *user
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo AccountsRepo) error {
		return s.saveUser(ctx, repo, user)
	})
	if err != nil {
		*user = before
		l.ErrorContext(ctx, "Failed to save user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return fmt.Errorf("error saving user: %w", err)
	}

	l.InfoContext(ctx, "User saved", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "User saved")
	return nil
}

func (s *AccountsServiceImpl) ChangeEmail(ctx context.Context, userID uuid.UUID, email string) (*api.UserIdentity, error) {
	ctx, span := otel.Tracer("AccountsService").Start(ctx, "ChangeEmail", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ChangeEmail"), slog.String("userID", userID.String()))

	email = strings.TrimSpace(email)
	if v, ok := checkEmail(email); !ok {
		span.SetStatus(codes.Error, "invalid email")
		return nil, api.NewValidationError(nil, v)
	}

	var user *api.UserIdentity
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo AccountsRepo) error {
		var err error
		if user, err = repo.GetUserByID(ctx, userID); err != nil {
			return err
		}
		user.Email = email
		return s.saveUser(ctx, repo, user)
	})
	if err != nil {
		l.WarnContext(ctx, "Failed to change email", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "email change failed")
		return nil, fmt.Errorf("error changing email: %w", err)
	}

	l.InfoContext(ctx, "Email changed")
	span.SetStatus(codes.Ok, "Email changed")
	return user, nil
}

// SetPassword rotates the credential after validating the new password with
// the stored user as context.
func (s *AccountsServiceImpl) SetPassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	ctx, span := otel.Tracer("AccountsService").Start(ctx, "SetPassword", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "SetPassword"), slog.String("userID", userID.String()))
	l.DebugContext(ctx, "Setting password")

	err := s.setPassword(ctx, userID, newPassword)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set password failed")
		var verr *api.ValidationError
		if errors.As(err, &verr) {
			l.InfoContext(ctx, "New password rejected", slog.Int("violations", len(verr.Violations)))
			return err
		}
		l.ErrorContext(ctx, "Failed to set password", slog.Any("error", err))
		return fmt.Errorf("error setting password: %w", err)
	}

	l.InfoContext(ctx, "Password updated")
	span.SetStatus(codes.Ok, "Password updated")
	return nil
}

// setPassword validates and hashes outside the transaction so a slow breach
// lookup never holds it open.
func (s *AccountsServiceImpl) setPassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.passwords.Validate(ctx, newPassword, user); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	return s.repo.WithTx(ctx, func(ctx context.Context, repo AccountsRepo) error {
		current, err := repo.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		current.PasswordHash = string(hash)
		return s.saveUser(ctx, repo, current)
	})
}

// profileFor returns the user's profile, creating it when absent.
func (s *AccountsServiceImpl) profileFor(ctx context.Context, repo AccountsRepo, userID uuid.UUID) (*api.UserProfile, error) {
	profile, err := repo.GetProfileByUserID(ctx, userID)
	if err == nil || !errors.Is(err, api.ErrNotFound) {
		return profile, err
	}
	user, err := repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Creating missing profile", slog.String("method", "profileFor"), slog.String("userID", userID.String()))
	profile, err = repo.CreateProfile(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	s.metrics.ProfileSyncsTotal.Add(ctx, 1)
	return profile, nil
}

// GetProfile returns the user's profile, creating it on first access when
// the identity was stored without one.
func (s *AccountsServiceImpl) GetProfile(ctx context.Context, userID uuid.UUID) (*api.UserProfile, error) {
	ctx, span := otel.Tracer("AccountsService").Start(ctx, "GetProfile", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	profile, err := s.profileFor(ctx, s.repo, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile lookup failed")
		return nil, fmt.Errorf("error fetching profile: %w", err)
	}
	span.SetStatus(codes.Ok, "Profile fetched")
	return profile, nil
}

func (s *AccountsServiceImpl) UpdateProfile(ctx context.Context, userID uuid.UUID, params UpdateProfileParams) (*api.UserProfile, error) {
	ctx, span := otel.Tracer("AccountsService").Start(ctx, "UpdateProfile", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "UpdateProfile"), slog.String("userID", userID.String()))

	if err := validateProfileUpdate(params).OrNil(); err != nil {
		span.SetStatus(codes.Error, "invalid profile update")
		return nil, err
	}

	var profile *api.UserProfile
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo AccountsRepo) error {
		var err error
		if profile, err = s.profileFor(ctx, repo, userID); err != nil {
			return err
		}
		if params.TeamID != nil {
			if _, err := repo.GetTeam(ctx, *params.TeamID); err != nil {
				return err
			}
		}
		if params.WorkCenterID != nil {
			if _, err := repo.GetWorkCenter(ctx, *params.WorkCenterID); err != nil {
				return err
			}
		}
		applyProfileUpdate(profile, params)
		return repo.UpdateProfile(ctx, profile)
	})
	if err != nil {
		l.WarnContext(ctx, "Failed to update profile", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile update failed")
		return nil, fmt.Errorf("error updating profile: %w", err)
	}

	l.InfoContext(ctx, "Profile updated")
	span.SetStatus(codes.Ok, "Profile updated")
	return profile, nil
}

func validateProfileUpdate(params UpdateProfileParams) *api.ValidationError {
	verr := &api.ValidationError{}
	if params.FullName != nil {
		if n := utf8.RuneCountInString(strings.TrimSpace(*params.FullName)); n > maxFullNameLength {
			verr.Add(api.Violation{Field: "full_name", Code: "max_length",
				Message: fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", maxFullNameLength, n)})
		}
	}
	if params.Phone != nil {
		if n := utf8.RuneCountInString(strings.TrimSpace(*params.Phone)); n > maxPhoneLength {
			verr.Add(api.Violation{Field: "phone", Code: "max_length",
				Message: fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", maxPhoneLength, n)})
		}
	}
	if params.Role != nil && !params.Role.Valid() {
		verr.Add(invalidRole(*params.Role))
	}
	return verr
}

func applyProfileUpdate(profile *api.UserProfile, params UpdateProfileParams) {
	if params.FullName != nil {
		profile.FullName = strings.TrimSpace(*params.FullName)
	}
	if params.Phone != nil {
		profile.Phone = strings.TrimSpace(*params.Phone)
	}
	if params.Role != nil {
		profile.Role = *params.Role
	}
	if params.Avatar != nil {
		if avatar := strings.TrimSpace(*params.Avatar); avatar != "" {
			profile.Avatar = &avatar
		} else {
			profile.Avatar = nil
		}
	}
	switch {
	case params.ClearTeam:
		profile.TeamID = nil
	case params.TeamID != nil:
		id := *params.TeamID
		profile.TeamID = &id
	}
	switch {
	case params.ClearWorkCenter:
		profile.WorkCenterID = nil
	case params.WorkCenterID != nil:
		id := *params.WorkCenterID
		profile.WorkCenterID = &id
	}
}

// DeleteUser removes the identity; its profile goes with it.
func (s *AccountsServiceImpl) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	ctx, span := otel.Tracer("AccountsService").Start(ctx, "DeleteUser", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("error deleting user: %w", err)
	}
	span.SetStatus(codes.Ok, "User deleted")
	return nil
}

// SyncAllProfiles re-establishes the one-profile-per-identity invariant for
// identities written by other paths. Each identity is synced in its own
// transaction; one failure does not stop the others.
func (s *AccountsServiceImpl) SyncAllProfiles(ctx context.Context) (SyncReport, error) {
	ctx, span := otel.Tracer("AccountsService").Start(ctx, "SyncAllProfiles")
	defer span.End()

	l := s.logger.With(slog.String("method", "SyncAllProfiles"))

	users, err := s.repo.ListUsersNeedingProfileSync(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing users failed")
		return SyncReport{}, fmt.Errorf("error listing users to sync: %w", err)
	}

	var (
		mu     sync.Mutex
		report = SyncReport{Checked: len(users)}
		errs   []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.syncConcurrency)
	for i := range users {
		user := &users[i]
		g.Go(func() error {
			var changed bool
			err := s.repo.WithTx(gctx, func(ctx context.Context, repo AccountsRepo) error {
				var err error
				_, changed, err = s.syncProfile(ctx, repo, user)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				errs = append(errs, fmt.Errorf("user %s: %w", user.ID, err))
				l.WarnContext(gctx, "Failed to sync profile", slog.String("userID", user.ID.String()), slog.Any("error", err))
				return nil
			}
			if changed {
				report.Synced++
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("sync.checked", report.Checked),
		attribute.Int("sync.synced", report.Synced),
		attribute.Int("sync.failed", report.Failed),
	)
	if len(errs) > 0 {
		span.SetStatus(codes.Error, "some profiles failed to sync")
		return report, fmt.Errorf("%d of %d profiles failed to sync: %w", report.Failed, report.Checked, errors.Join(errs...))
	}

	l.InfoContext(ctx, "Profiles synced", slog.Int("checked", report.Checked), slog.Int("synced", report.Synced))
	span.SetStatus(codes.Ok, "Profiles synced")
	return report, nil
}
