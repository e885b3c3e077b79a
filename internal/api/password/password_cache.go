package password

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/FACorreiaa/gearguard/app/cache"
	"github.com/FACorreiaa/gearguard/app/observability/metrics"
	"github.com/FACorreiaa/gearguard/internal/api"
)

const (
	DefaultCacheTTL = 5 * time.Minute

	cacheKeyPrefix    = "pwd_validation_"
	fingerprintLength = 16
	kindInvalidInput  = "invalid_input"
)

var _ Validator = (*CachedValidator)(nil)

// CachedValidator memoises the outcome of an inner validator keyed by a
// password fingerprint. The store only ever sees the truncated hash, never
// the password itself.
type CachedValidator struct {
	inner   Validator
	store   cache.Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.AppMetrics
}

func NewCachedValidator(inner Validator, store cache.Store, ttl time.Duration, logger *slog.Logger) *CachedValidator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	metrics.InitAppMetrics()
	return &CachedValidator{
		inner:   inner,
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics.Get(),
	}
}

// cachedOutcome is what the store holds. An empty Violations list means the
// password was accepted.
type cachedOutcome struct {
	Violations []api.Violation `json:"violations"`
	Kind       string          `json:"kind,omitempty"`
}

// CacheKey fingerprints a password, scoped to a persisted user when one is
// given.
func CacheKey(password string, user *api.UserIdentity) string {
	sum := sha256.Sum256([]byte(password))
	key := cacheKeyPrefix + hex.EncodeToString(sum[:])[:fingerprintLength]
	if user.Persisted() {
		key += "_" + user.ID.String()
	}
	return key
}

// cacheable reports whether the outcome depends only on what the key covers.
// An unsaved user with a username or email would make the similarity rule
// depend on attributes the key does not capture.
func cacheable(user *api.UserIdentity) bool {
	if user == nil || user.Persisted() {
		return true
	}
	return user.Username == "" && user.Email == ""
}

func (c *CachedValidator) Validate(password string, user *api.UserIdentity) error {
	return c.ValidateContext(context.Background(), password, user)
}

// ValidateContext returns the cached outcome when present and otherwise runs
// the inner validator and stores the result. Store failures degrade to a
// miss; they never change the outcome.
func (c *CachedValidator) ValidateContext(ctx context.Context, password string, user *api.UserIdentity) error {
	if !cacheable(user) {
		return c.inner.Validate(password, user)
	}

	key := CacheKey(password, user)
	l := c.logger.With(slog.String("method", "ValidateContext"), slog.String("cache_key", key))

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		l.WarnContext(ctx, "Validation cache read failed, recomputing", slog.Any("error", err))
	}
	if found {
		var outcome cachedOutcome
		if err := json.Unmarshal(raw, &outcome); err == nil {
			l.DebugContext(ctx, "Validation cache hit")
			c.metrics.ValidationCacheHitsTotal.Add(ctx, 1)
			return outcome.err()
		}
		l.WarnContext(ctx, "Discarding undecodable validation cache entry")
	}
	c.metrics.ValidationCacheMissTotal.Add(ctx, 1)

	result := c.inner.Validate(password, user)
	outcome, ok := outcomeOf(result)
	if !ok {
		// not a policy verdict; nothing to cache
		return result
	}

	encoded, err := json.Marshal(outcome)
	if err == nil {
		err = c.store.Set(ctx, key, encoded, c.ttl)
	}
	if err != nil {
		l.WarnContext(ctx, "Validation cache write failed", slog.Any("error", err))
	}
	return result
}

func (c *CachedValidator) HelpText() string {
	return c.inner.HelpText()
}

func outcomeOf(err error) (cachedOutcome, bool) {
	if err == nil {
		return cachedOutcome{Violations: []api.Violation{}}, true
	}
	var verr *api.ValidationError
	if !errors.As(err, &verr) {
		return cachedOutcome{}, false
	}
	out := cachedOutcome{Violations: verr.Violations}
	if errors.Is(verr.Kind, api.ErrInvalidInput) {
		out.Kind = kindInvalidInput
	}
	return out, true
}

func (o cachedOutcome) err() error {
	if len(o.Violations) == 0 {
		return nil
	}
	verr := api.NewValidationError(nil, o.Violations...)
	if o.Kind == kindInvalidInput {
		verr.Kind = api.ErrInvalidInput
	}
	return verr
}
