package password

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/gearguard/app/cache"
	"github.com/FACorreiaa/gearguard/app/observability/metrics"
	"github.com/FACorreiaa/gearguard/internal/api"
)

// Ensure implementation satisfies the interface
var _ PasswordService = (*PasswordServiceImpl)(nil)

// PasswordService is the password policy engine consumed by registration and
// credential rotation.
type PasswordService interface {
	Score(ctx context.Context, password string) StrengthReport
	Generate(ctx context.Context, opts GenerateOptions) (string, error)
	// Validate runs the full policy and, when enabled, the breach check.
	Validate(ctx context.Context, password string, user *api.UserIdentity) error
	IsBreached(ctx context.Context, password string) bool
	PolicyInfo(ctx context.Context) PolicyInfo
	HelpTexts(ctx context.Context) []string
}

// PasswordServiceImpl provides the implementation for PasswordService.
type PasswordServiceImpl struct {
	logger    *slog.Logger
	policy    Policy
	chain     *Chain
	validator *CachedValidator
	breach    *BreachChecker
	metrics   *metrics.AppMetrics
}

// NewPasswordService builds the policy chain and puts it behind the
// validation cache. A nil breach checker disables breach lookups.
func NewPasswordService(policy Policy, store cache.Store, cacheTTL time.Duration, breach *BreachChecker, logger *slog.Logger) (*PasswordServiceImpl, error) {
	chain, err := NewPolicyChain(policy)
	if err != nil {
		return nil, fmt.Errorf("error building password policy: %w", err)
	}
	metrics.InitAppMetrics()
	return &PasswordServiceImpl{
		logger:    logger,
		policy:    policy,
		chain:     chain,
		validator: NewCachedValidator(chain, store, cacheTTL, logger),
		breach:    breach,
		metrics:   metrics.Get(),
	}, nil
}

// Score rates password strength.
func (s *PasswordServiceImpl) Score(ctx context.Context, password string) StrengthReport {
	_, span := otel.Tracer("PasswordService").Start(ctx, "Score")
	defer span.End()

	report := Score(password)
	span.SetAttributes(
		attribute.Int("password.score", report.Score),
		attribute.String("password.strength", report.Strength),
	)
	return report
}

// Generate produces a random password using the policy's special characters.
func (s *PasswordServiceImpl) Generate(ctx context.Context, opts GenerateOptions) (string, error) {
	ctx, span := otel.Tracer("PasswordService").Start(ctx, "Generate", trace.WithAttributes(
		attribute.Int("password.length", opts.Length),
	))
	defer span.End()

	if opts.SpecialCharacters == "" {
		opts.SpecialCharacters = s.policy.SpecialCharacters
	}
	pw, err := Generate(opts)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to generate password", slog.String("method", "Generate"), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", err
	}
	span.SetStatus(codes.Ok, "Password generated")
	return pw, nil
}

// Validate runs the cached policy chain and, when the breach check is
// enabled, the breach lookup concurrently. Breach lookups never fail the
// call on their own; a hit adds one violation after the policy ones.
func (s *PasswordServiceImpl) Validate(ctx context.Context, password string, user *api.UserIdentity) error {
	ctx, span := otel.Tracer("PasswordService").Start(ctx, "Validate", trace.WithAttributes(
		attribute.Bool("password.breach_check", s.breach.Enabled()),
		attribute.Bool("user.persisted", user.Persisted()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Validate"))
	l.DebugContext(ctx, "Validating password")
	s.metrics.PasswordValidationsTotal.Add(ctx, 1)

	var (
		policyErr error
		breached  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.validator.ValidateContext(gctx, password, user)
		if err != nil && !errors.Is(err, api.ErrValidationFailed) {
			return err
		}
		policyErr = err
		return nil
	})
	if s.breach.Enabled() {
		g.Go(func() error {
			breached = s.breach.IsBreached(gctx, password)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.ErrorContext(ctx, "Password validation could not run", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation error")
		return fmt.Errorf("error validating password: %w", err)
	}

	if breached {
		var verr *api.ValidationError
		if !errors.As(policyErr, &verr) {
			verr = &api.ValidationError{}
		}
		verr.Add(api.Violation{
			Code:    "password_breached",
			Message: "This password has appeared in a known data breach. Please choose a different one.",
		})
		policyErr = verr
	}

	if policyErr != nil {
		var verr *api.ValidationError
		if errors.As(policyErr, &verr) {
			l.InfoContext(ctx, "Password rejected by policy", slog.Int("violations", len(verr.Violations)))
			span.SetAttributes(attribute.Int("password.violations", len(verr.Violations)))
		}
		span.SetStatus(codes.Error, "password rejected")
		return policyErr
	}

	l.DebugContext(ctx, "Password accepted")
	span.SetStatus(codes.Ok, "Password accepted")
	return nil
}

// IsBreached runs only the breach lookup.
func (s *PasswordServiceImpl) IsBreached(ctx context.Context, password string) bool {
	ctx, span := otel.Tracer("PasswordService").Start(ctx, "IsBreached")
	defer span.End()

	breached := s.breach.IsBreached(ctx, password)
	span.SetAttributes(attribute.Bool("password.breached", breached))
	return breached
}

func (s *PasswordServiceImpl) PolicyInfo(_ context.Context) PolicyInfo {
	return s.policy.Info()
}

func (s *PasswordServiceImpl) HelpTexts(_ context.Context) []string {
	return s.chain.HelpTexts()
}
