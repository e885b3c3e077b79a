package password

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/gearguard/internal/api"
)

func violationCodes(t *testing.T, err error) []string {
	t.Helper()
	if err == nil {
		return nil
	}
	var verr *api.ValidationError
	require.True(t, errors.As(err, &verr), "expected *api.ValidationError, got %T", err)
	codes := make([]string, 0, len(verr.Violations))
	for _, v := range verr.Violations {
		codes = append(codes, v.Code)
	}
	return codes
}

func TestComplexityValidator(t *testing.T) {
	v, err := NewComplexityValidator(1, 1, 1, 1, "")
	require.NoError(t, err)

	t.Run("accepts every class", func(t *testing.T) {
		assert.NoError(t, v.Validate("Password1!", nil))
	})

	t.Run("lists every missing class", func(t *testing.T) {
		err := v.Validate("password", nil)
		require.ErrorIs(t, err, api.ErrValidationFailed)
		var verr *api.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{
			"Password must contain at least 1 uppercase letter(s).",
			"Password must contain at least 1 digit(s).",
			"Password must contain at least 1 special character(s).",
		}, verr.Messages())
	})

	t.Run("empty is invalid input", func(t *testing.T) {
		err := v.Validate("", nil)
		assert.ErrorIs(t, err, api.ErrInvalidInput)
		assert.ErrorIs(t, err, api.ErrValidationFailed)
		assert.Equal(t, []string{"password_empty"}, violationCodes(t, err))
	})

	t.Run("invalid utf8 is invalid input", func(t *testing.T) {
		err := v.Validate("Ab1!\xff", nil)
		assert.ErrorIs(t, err, api.ErrInvalidInput)
	})

	t.Run("custom minimums", func(t *testing.T) {
		strict, err := NewComplexityValidator(2, 0, 3, 0, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"password_no_upper", "password_no_digit"}, violationCodes(t, strict.Validate("Abc12", nil)))
		assert.NoError(t, strict.Validate("ABc123", nil))
	})

	t.Run("custom special set", func(t *testing.T) {
		dash, err := NewComplexityValidator(0, 0, 0, 1, "-_")
		require.NoError(t, err)
		assert.NoError(t, dash.Validate("a-b", nil))
		assert.Error(t, dash.Validate("a!b", nil))
	})

	t.Run("non-ASCII and bracket characters in the special set", func(t *testing.T) {
		euro, err := NewComplexityValidator(1, 1, 1, 1, "!€")
		require.NoError(t, err)
		assert.NoError(t, euro.Validate("Abcdefg1€", nil))
		assert.NoError(t, euro.Validate("Abcdefg1!", nil))
		assert.Equal(t, []string{"password_no_special"}, violationCodes(t, euro.Validate("Abcdefg1#", nil)))

		brackets, err := NewComplexityValidator(0, 0, 0, 1, "]^-\\ ")
		require.NoError(t, err)
		for _, pw := range []string{"a]", "a^", "a-", `a\`, "a b"} {
			assert.NoError(t, brackets.Validate(pw, nil), pw)
		}
		assert.Error(t, brackets.Validate("ab", nil))
	})

	t.Run("negative minimum rejected", func(t *testing.T) {
		_, err := NewComplexityValidator(-1, 1, 1, 1, "")
		assert.ErrorIs(t, err, api.ErrInvalidArgument)
	})

	t.Run("help text", func(t *testing.T) {
		assert.Contains(t, v.HelpText(), "1 uppercase letter")
		assert.Contains(t, v.HelpText(), DefaultSpecialCharacters)
	})
}

func TestRepeatingValidator(t *testing.T) {
	v, err := NewRepeatingValidator(3)
	require.NoError(t, err)

	tests := []struct {
		password string
		wantErr  bool
	}{
		{"aaab", true},
		{"baaa", true},
		{"aabb", false},
		{"ab", false},
		{"", false},
		{"x111y", true},
		{"ééé", true},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := v.Validate(tt.password, nil)
			if tt.wantErr {
				assert.Equal(t, []string{"password_repeating"}, violationCodes(t, err))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err = NewRepeatingValidator(0)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestSequentialValidator(t *testing.T) {
	v, err := NewSequentialValidator(3)
	require.NoError(t, err)

	tests := []struct {
		password string
		wantErr  bool
	}{
		{"abcphone", true},
		{"acbphone", false},
		{"xcba", true},
		{"pin123", true},
		{"pin321", true},
		{"abd", false},
		{"aaa", false},
		{"ab", false},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := v.Validate(tt.password, nil)
			if tt.wantErr {
				assert.Equal(t, []string{"password_sequential"}, violationCodes(t, err))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("single character windows are never sequential", func(t *testing.T) {
		one, err := NewSequentialValidator(1)
		require.NoError(t, err)
		assert.NoError(t, one.Validate("abc", nil))
	})
}

func TestValidatorsAreIdempotent(t *testing.T) {
	complexity, _ := NewComplexityValidator(1, 1, 1, 1, "")
	repeating, _ := NewRepeatingValidator(3)
	sequential, _ := NewSequentialValidator(3)
	for _, v := range []Validator{complexity, repeating, sequential} {
		for _, pw := range []string{"password", "aaab", "abcphone", "Xq7!Tr9#Lm2$Vp"} {
			assert.Equal(t, v.Validate(pw, nil), v.Validate(pw, nil))
		}
	}
}

func TestMinimumLengthValidator(t *testing.T) {
	v := NewMinimumLengthValidator(12)
	assert.NoError(t, v.Validate("abcdefghijkl", nil))
	assert.Equal(t, []string{"password_too_short"}, violationCodes(t, v.Validate("abcdefghijk", nil)))
	// twelve runes, more than twelve bytes
	assert.NoError(t, v.Validate("éééééééééééé", nil))
}

func TestUserAttributeSimilarityValidator(t *testing.T) {
	v, err := NewUserAttributeSimilarityValidator(0.7)
	require.NoError(t, err)

	user := &api.UserIdentity{ID: uuid.New(), Username: "maintenance_bob", Email: "bob.smith@example.com"}

	t.Run("too similar to username", func(t *testing.T) {
		err := v.Validate("maintenancebob1", user)
		var verr *api.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "The password is too similar to the username.", verr.Violations[0].Message)
	})

	t.Run("too similar to email part", func(t *testing.T) {
		err := v.Validate("SmithBob", user)
		var verr *api.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "The password is too similar to the email address.", verr.Violations[0].Message)
	})

	t.Run("unrelated password", func(t *testing.T) {
		assert.NoError(t, v.Validate("Xq7!Tr9#Lm2$Vp", user))
	})

	t.Run("no user", func(t *testing.T) {
		assert.NoError(t, v.Validate("maintenancebob1", nil))
	})

	t.Run("threshold too low", func(t *testing.T) {
		_, err := NewUserAttributeSimilarityValidator(0.05)
		assert.ErrorIs(t, err, api.ErrInvalidArgument)
	})
}

func TestQuickRatio(t *testing.T) {
	assert.InDelta(t, 1.0, quickRatio("", ""), 1e-9)
	assert.InDelta(t, 1.0, quickRatio("abc", "cba"), 1e-9)
	assert.InDelta(t, 0.0, quickRatio("abc", "xyz"), 1e-9)
	assert.InDelta(t, 0.5, quickRatio("ab", "ac"), 1e-9)
}

func TestCommonPasswordValidator(t *testing.T) {
	v := NewCommonPasswordValidator()
	assert.Error(t, v.Validate("password", nil))
	assert.Error(t, v.Validate("  PASSWORD  ", nil))
	assert.NoError(t, v.Validate("Xq7!Tr9#Lm2$Vp", nil))

	custom := NewCommonPasswordValidatorFromList([]byte("hunter2\n\nCorrectHorse\n"))
	assert.Error(t, custom.Validate("correcthorse", nil))
	assert.NoError(t, custom.Validate("", nil))
}

func TestNumericPasswordValidator(t *testing.T) {
	v := NumericPasswordValidator{}
	assert.Equal(t, []string{"password_entirely_numeric"}, violationCodes(t, v.Validate("1234567890123", nil)))
	assert.NoError(t, v.Validate("123456789012a", nil))
	assert.NoError(t, v.Validate("", nil))
}
