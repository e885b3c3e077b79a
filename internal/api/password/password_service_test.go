package password

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/gearguard/app/cache"
	"github.com/FACorreiaa/gearguard/config"
	"github.com/FACorreiaa/gearguard/internal/api"
)

// breachedServer reports every password in breached as seen once and
// everything else as unknown.
func breachedServer(t *testing.T, breached ...string) string {
	t.Helper()
	var body strings.Builder
	for _, pw := range breached {
		sum := sha1.Sum([]byte(pw))
		digest := strings.ToUpper(hex.EncodeToString(sum[:]))
		fmt.Fprintf(&body, "%s:1\n", digest[5:])
	}
	srv, _ := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body.String())
	})
	return srv.URL
}

func newTestPasswordService(t *testing.T, breach *BreachChecker) *PasswordServiceImpl {
	t.Helper()
	svc, err := NewPasswordService(DefaultPolicy(), cache.NewMemoryStore(time.Minute, time.Minute), time.Minute, breach, discardLogger())
	require.NoError(t, err)
	return svc
}

func TestPasswordServiceValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a strong password", func(t *testing.T) {
		svc := newTestPasswordService(t, nil)
		assert.NoError(t, svc.Validate(ctx, "Xq7!Tr9#Lm2$Vp", nil))
	})

	t.Run("rejects with every violation", func(t *testing.T) {
		svc := newTestPasswordService(t, nil)
		err := svc.Validate(ctx, "password", nil)
		assert.ErrorIs(t, err, api.ErrValidationFailed)
		assert.Len(t, violationCodes(t, err), 5)
	})

	t.Run("breached strong password gets one violation", func(t *testing.T) {
		url := breachedServer(t, "Xq7!Tr9#Lm2$Vp")
		svc := newTestPasswordService(t, NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: url}, discardLogger()))

		err := svc.Validate(ctx, "Xq7!Tr9#Lm2$Vp", nil)
		assert.Equal(t, []string{"password_breached"}, violationCodes(t, err))
	})

	t.Run("breach violation follows policy violations", func(t *testing.T) {
		url := breachedServer(t, "password")
		svc := newTestPasswordService(t, NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: url}, discardLogger()))

		codes := violationCodes(t, svc.Validate(ctx, "password", nil))
		require.Len(t, codes, 6)
		assert.Equal(t, "password_breached", codes[5])
	})

	t.Run("breach hit does not poison the cache", func(t *testing.T) {
		url := breachedServer(t, "Xq7!Tr9#Lm2$Vp")
		store := cache.NewMemoryStore(time.Minute, time.Minute)
		breachSvc, err := NewPasswordService(DefaultPolicy(), store, time.Minute,
			NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: url}, discardLogger()), discardLogger())
		require.NoError(t, err)
		plainSvc, err := NewPasswordService(DefaultPolicy(), store, time.Minute, nil, discardLogger())
		require.NoError(t, err)

		assert.Error(t, breachSvc.Validate(ctx, "Xq7!Tr9#Lm2$Vp", nil))
		assert.NoError(t, plainSvc.Validate(ctx, "Xq7!Tr9#Lm2$Vp", nil))
	})

	t.Run("unavailable breach service does not block", func(t *testing.T) {
		svc := newTestPasswordService(t, NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: "http://127.0.0.1:1"}, discardLogger()))
		assert.NoError(t, svc.Validate(ctx, "Xq7!Tr9#Lm2$Vp", nil))
	})
}

func TestPasswordServiceGenerate(t *testing.T) {
	ctx := context.Background()
	policy := DefaultPolicy()
	policy.SpecialCharacters = "#"
	svc, err := NewPasswordService(policy, cache.NewMemoryStore(time.Minute, time.Minute), time.Minute, nil, discardLogger())
	require.NoError(t, err)

	pw, err := svc.Generate(ctx, GenerateOptions{Length: 8, Special: true})
	require.NoError(t, err)
	assert.Equal(t, "########", pw)

	_, err = svc.Generate(ctx, GenerateOptions{Length: 4, Lowercase: true})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestPasswordServiceDescribesPolicy(t *testing.T) {
	ctx := context.Background()
	svc := newTestPasswordService(t, nil)

	info := svc.PolicyInfo(ctx)
	assert.Equal(t, 12, info.MinLength)
	assert.Len(t, svc.HelpTexts(ctx), 7)
	assert.Equal(t, 95, svc.Score(ctx, "Xq7!Tr9#Lm2$Vp4&").Score)
}

func TestNewPasswordServiceRejectsBadPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.MaxRepeating = 0
	_, err := NewPasswordService(p, cache.NewMemoryStore(time.Minute, time.Minute), time.Minute, nil, discardLogger())
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}
