package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/gearguard/app/db"
	"github.com/FACorreiaa/gearguard/app/observability/metrics"
	"github.com/FACorreiaa/gearguard/internal/api"
)

var _ AccountsRepo = (*PostgresAccountsRepo)(nil)

// AccountsRepo persists identities and their profiles.
type AccountsRepo interface {
	// WithTx runs fn with a repo bound to a single transaction. Calling it on
	// a repo that is already transactional reuses the open transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, repo AccountsRepo) error) error

	// CreateUser inserts the identity and fills in its ID and timestamps.
	CreateUser(ctx context.Context, user *api.UserIdentity) error
	// UpdateUser writes email, hash and flags. The username is never updated.
	UpdateUser(ctx context.Context, user *api.UserIdentity) error
	GetUserByID(ctx context.Context, userID uuid.UUID) (*api.UserIdentity, error)
	GetUserByUsername(ctx context.Context, username string) (*api.UserIdentity, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	// ListUsersNeedingProfileSync returns identities with no profile or whose
	// profile email differs from theirs.
	ListUsersNeedingProfileSync(ctx context.Context) ([]api.UserIdentity, error)

	GetProfileByUserID(ctx context.Context, userID uuid.UUID) (*api.UserProfile, error)
	// CreateProfile inserts an empty profile carrying email. If a profile for
	// the user already exists it is returned unchanged.
	CreateProfile(ctx context.Context, userID uuid.UUID, email string) (*api.UserProfile, error)
	UpdateProfile(ctx context.Context, profile *api.UserProfile) error

	GetTeam(ctx context.Context, teamID uuid.UUID) (*api.Team, error)
	GetWorkCenter(ctx context.Context, workCenterID uuid.UUID) (*api.WorkCenter, error)
}

const (
	userColumns    = `id, username, email, password_hash, is_active, is_staff, created_at, updated_at`
	profileColumns = `id, user_id, full_name, email, phone, role, avatar, team_id, work_center_id, created_at, updated_at`
)

type PostgresAccountsRepo struct {
	logger  *slog.Logger
	db      database.DBTX
	pool    database.Beginner // nil when bound to a transaction
	metrics *metrics.AppMetrics
}

func NewPostgresAccountsRepo(pool database.Beginner, logger *slog.Logger) *PostgresAccountsRepo {
	metrics.InitAppMetrics()
	return &PostgresAccountsRepo{
		logger:  logger,
		db:      pool,
		pool:    pool,
		metrics: metrics.Get(),
	}
}

func (r *PostgresAccountsRepo) WithTx(ctx context.Context, fn func(ctx context.Context, repo AccountsRepo) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return database.WithTx(ctx, r.pool, func(ctx context.Context, tx database.DBTX) error {
		return fn(ctx, &PostgresAccountsRepo{logger: r.logger, db: tx, metrics: r.metrics})
	})
}

// mapPgError translates driver errors into the api sentinels while keeping
// the original error in the chain.
func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", api.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %w", api.ErrConflict, err)
		case "23503":
			return fmt.Errorf("%w: %w", api.ErrNotFound, err)
		case "23514":
			return fmt.Errorf("%w: %w", api.ErrInvalidArgument, err)
		}
	}
	return err
}

func (r *PostgresAccountsRepo) fail(ctx context.Context, span trace.Span, l *slog.Logger, msg string, err error) error {
	mapped := mapPgError(err)
	if errors.Is(mapped, api.ErrNotFound) || errors.Is(mapped, api.ErrConflict) {
		l.DebugContext(ctx, msg, slog.Any("error", err))
	} else {
		l.ErrorContext(ctx, msg, slog.Any("error", err))
		r.metrics.DbQueryErrorsTotal.Add(ctx, 1)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return mapped
}

func startSpan(ctx context.Context, name, operation, table string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
	}, attrs...)
	return otel.Tracer("AccountsRepo").Start(ctx, name, trace.WithAttributes(attrs...))
}

func scanUser(row pgx.Row) (*api.UserIdentity, error) {
	var u api.UserIdentity
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsStaff, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanProfile(row pgx.Row) (*api.UserProfile, error) {
	var (
		p    api.UserProfile
		role string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.Email, &p.Phone, &role, &p.Avatar,
		&p.TeamID, &p.WorkCenterID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Role = api.Role(role)
	return &p, nil
}

func (r *PostgresAccountsRepo) CreateUser(ctx context.Context, user *api.UserIdentity) error {
	ctx, span := startSpan(ctx, "CreateUser", "INSERT", "users", attribute.String("db.user.username", user.Username))
	defer span.End()

	l := r.logger.With(slog.String("method", "CreateUser"), slog.String("username", user.Username))
	l.DebugContext(ctx, "Inserting user")

	query := `
        INSERT INTO users (username, email, password_hash, is_active, is_staff)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, user.Username, user.Email, user.PasswordHash, user.IsActive, user.IsStaff).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error inserting user: %w", r.fail(ctx, span, l, "Failed to insert user", err))
	}

	span.SetAttributes(attribute.String("db.user.id", user.ID.String()))
	span.SetStatus(codes.Ok, "User created")
	return nil
}

func (r *PostgresAccountsRepo) UpdateUser(ctx context.Context, user *api.UserIdentity) error {
	ctx, span := startSpan(ctx, "UpdateUser", "UPDATE", "users", attribute.String("db.user.id", user.ID.String()))
	defer span.End()

	l := r.logger.With(slog.String("method", "UpdateUser"), slog.String("userID", user.ID.String()))
	l.DebugContext(ctx, "Updating user")

	query := `
        UPDATE users
        SET email = $2, password_hash = $3, is_active = $4, is_staff = $5, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, user.ID, user.Email, user.PasswordHash, user.IsActive, user.IsStaff).
		Scan(&user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error updating user: %w", r.fail(ctx, span, l, "Failed to update user", err))
	}

	span.SetStatus(codes.Ok, "User updated")
	return nil
}

func (r *PostgresAccountsRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*api.UserIdentity, error) {
	ctx, span := startSpan(ctx, "GetUserByID", "SELECT", "users", attribute.String("db.user.id", userID.String()))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetUserByID"), slog.String("userID", userID.String()))

	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("error fetching user: %w", r.fail(ctx, span, l, "Failed to fetch user", err))
	}

	span.SetStatus(codes.Ok, "User fetched")
	return user, nil
}

func (r *PostgresAccountsRepo) GetUserByUsername(ctx context.Context, username string) (*api.UserIdentity, error) {
	ctx, span := startSpan(ctx, "GetUserByUsername", "SELECT", "users", attribute.String("db.user.username", username))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetUserByUsername"), slog.String("username", username))

	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, fmt.Errorf("error fetching user: %w", r.fail(ctx, span, l, "Failed to fetch user", err))
	}

	span.SetStatus(codes.Ok, "User fetched")
	return user, nil
}

func (r *PostgresAccountsRepo) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	ctx, span := startSpan(ctx, "DeleteUser", "DELETE", "users", attribute.String("db.user.id", userID.String()))
	defer span.End()

	l := r.logger.With(slog.String("method", "DeleteUser"), slog.String("userID", userID.String()))

	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("error deleting user: %w", r.fail(ctx, span, l, "Failed to delete user", err))
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "User not found")
		return fmt.Errorf("user %s: %w", userID, api.ErrNotFound)
	}

	l.InfoContext(ctx, "User deleted")
	span.SetStatus(codes.Ok, "User deleted")
	return nil
}

func (r *PostgresAccountsRepo) ListUsersNeedingProfileSync(ctx context.Context) ([]api.UserIdentity, error) {
	ctx, span := startSpan(ctx, "ListUsersNeedingProfileSync", "SELECT", "users")
	defer span.End()

	l := r.logger.With(slog.String("method", "ListUsersNeedingProfileSync"))

	query := `
        SELECT u.id, u.username, u.email, u.password_hash, u.is_active, u.is_staff, u.created_at, u.updated_at
        FROM users u
        LEFT JOIN user_profiles p ON p.user_id = u.id
        WHERE p.id IS NULL OR p.email <> u.email
        ORDER BY u.created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", r.fail(ctx, span, l, "Failed to list users", err))
	}
	defer rows.Close()

	var users []api.UserIdentity
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning user: %w", r.fail(ctx, span, l, "Failed to scan user row", err))
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading users: %w", r.fail(ctx, span, l, "Error iterating user rows", err))
	}

	span.SetAttributes(attribute.Int("db.rows", len(users)))
	span.SetStatus(codes.Ok, "Users listed")
	return users, nil
}

func (r *PostgresAccountsRepo) GetProfileByUserID(ctx context.Context, userID uuid.UUID) (*api.UserProfile, error) {
	ctx, span := startSpan(ctx, "GetProfileByUserID", "SELECT", "user_profiles", attribute.String("db.user.id", userID.String()))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetProfileByUserID"), slog.String("userID", userID.String()))

	profile, err := scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("error fetching profile: %w", r.fail(ctx, span, l, "Failed to fetch profile", err))
	}

	span.SetStatus(codes.Ok, "Profile fetched")
	return profile, nil
}

func (r *PostgresAccountsRepo) CreateProfile(ctx context.Context, userID uuid.UUID, email string) (*api.UserProfile, error) {
	ctx, span := startSpan(ctx, "CreateProfile", "INSERT", "user_profiles", attribute.String("db.user.id", userID.String()))
	defer span.End()

	l := r.logger.With(slog.String("method", "CreateProfile"), slog.String("userID", userID.String()))
	l.DebugContext(ctx, "Creating profile")

	// the no-op update makes RETURNING yield the existing row on conflict
	query := `
        INSERT INTO user_profiles (user_id, email)
        VALUES ($1, $2)
        ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
        RETURNING ` + profileColumns

	profile, err := scanProfile(r.db.QueryRow(ctx, query, userID, email))
	if err != nil {
		return nil, fmt.Errorf("error creating profile: %w", r.fail(ctx, span, l, "Failed to create profile", err))
	}

	span.SetAttributes(attribute.String("db.profile.id", profile.ID.String()))
	span.SetStatus(codes.Ok, "Profile created")
	return profile, nil
}

func (r *PostgresAccountsRepo) UpdateProfile(ctx context.Context, profile *api.UserProfile) error {
	ctx, span := startSpan(ctx, "UpdateProfile", "UPDATE", "user_profiles", attribute.String("db.profile.id", profile.ID.String()))
	defer span.End()

	l := r.logger.With(slog.String("method", "UpdateProfile"), slog.String("profileID", profile.ID.String()))
	l.DebugContext(ctx, "Updating profile")

	query := `
        UPDATE user_profiles
        SET full_name = $2, email = $3, phone = $4, role = $5, avatar = $6,
            team_id = $7, work_center_id = $8, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		profile.ID, profile.FullName, profile.Email, profile.Phone, string(profile.Role), profile.Avatar,
		profile.TeamID, profile.WorkCenterID,
	).Scan(&profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error updating profile: %w", r.fail(ctx, span, l, "Failed to update profile", err))
	}

	span.SetStatus(codes.Ok, "Profile updated")
	return nil
}

func (r *PostgresAccountsRepo) GetTeam(ctx context.Context, teamID uuid.UUID) (*api.Team, error) {
	ctx, span := startSpan(ctx, "GetTeam", "SELECT", "teams", attribute.String("db.team.id", teamID.String()))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetTeam"), slog.String("teamID", teamID.String()))

	var t api.Team
	err := r.db.QueryRow(ctx, `SELECT id, name, description, work_center_id FROM teams WHERE id = $1`, teamID).
		Scan(&t.ID, &t.Name, &t.Description, &t.WorkCenterID)
	if err != nil {
		return nil, fmt.Errorf("error fetching team: %w", r.fail(ctx, span, l, "Failed to fetch team", err))
	}

	span.SetStatus(codes.Ok, "Team fetched")
	return &t, nil
}

func (r *PostgresAccountsRepo) GetWorkCenter(ctx context.Context, workCenterID uuid.UUID) (*api.WorkCenter, error) {
	ctx, span := startSpan(ctx, "GetWorkCenter", "SELECT", "work_centers", attribute.String("db.work_center.id", workCenterID.String()))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetWorkCenter"), slog.String("workCenterID", workCenterID.String()))

	query := `
        SELECT id, name, code, tag, cost_per_hour::float8, capacity_efficiency::float8, oee_target::float8
        FROM work_centers
        WHERE id = $1`

	var w api.WorkCenter
	err := r.db.QueryRow(ctx, query, workCenterID).
		Scan(&w.ID, &w.Name, &w.Code, &w.Tag, &w.CostPerHour, &w.CapacityEfficiency, &w.OEETarget)
	if err != nil {
		return nil, fmt.Errorf("error fetching work center: %w", r.fail(ctx, span, l, "Failed to fetch work center", err))
	}

	span.SetStatus(codes.Ok, "Work center fetched")
	return &w, nil
}
