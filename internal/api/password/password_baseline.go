package password

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FACorreiaa/gearguard/internal/api"
)

var (
	_ Validator = (*MinimumLengthValidator)(nil)
	_ Validator = (*UserAttributeSimilarityValidator)(nil)
	_ Validator = (*CommonPasswordValidator)(nil)
	_ Validator = (*NumericPasswordValidator)(nil)
)

// MinimumLengthValidator counts runes, not bytes.
type MinimumLengthValidator struct {
	minLength int
}

func NewMinimumLengthValidator(minLength int) *MinimumLengthValidator {
	return &MinimumLengthValidator{minLength: minLength}
}

func (v *MinimumLengthValidator) Validate(password string, _ *api.UserIdentity) error {
	if utf8.RuneCountInString(password) < v.minLength {
		return api.NewValidationError(nil, api.Violation{
			Code:    "password_too_short",
			Message: fmt.Sprintf("This password is too short. It must contain at least %d characters.", v.minLength),
		})
	}
	return nil
}

func (v *MinimumLengthValidator) HelpText() string {
	return fmt.Sprintf("Your password must contain at least %d characters.", v.minLength)
}

var nonWord = regexp.MustCompile(`\W+`)

// UserAttributeSimilarityValidator rejects passwords too close to the user's
// username or email, or to any word-delimited part of them.
type UserAttributeSimilarityValidator struct {
	maxSimilarity float64
}

func NewUserAttributeSimilarityValidator(maxSimilarity float64) (*UserAttributeSimilarityValidator, error) {
	if maxSimilarity < 0.1 {
		return nil, fmt.Errorf("%w: similarity threshold must be at least 0.1, got %v", api.ErrInvalidArgument, maxSimilarity)
	}
	return &UserAttributeSimilarityValidator{maxSimilarity: maxSimilarity}, nil
}

func (v *UserAttributeSimilarityValidator) Validate(password string, user *api.UserIdentity) error {
	if user == nil {
		return nil
	}
	password = strings.ToLower(password)
	for _, attr := range []struct {
		value string
		name  string
	}{
		{user.Username, "username"},
		{user.Email, "email address"},
	} {
		if attr.value == "" {
			continue
		}
		value := strings.ToLower(attr.value)
		parts := append(nonWord.Split(value, -1), value)
		for _, part := range parts {
			if part == "" || exceedsLengthRatio(password, part, v.maxSimilarity) {
				continue
			}
			if quickRatio(password, part) >= v.maxSimilarity {
				return api.NewValidationError(nil, api.Violation{
					Code:    "password_too_similar",
					Message: fmt.Sprintf("The password is too similar to the %s.", attr.name),
				})
			}
		}
	}
	return nil
}

// exceedsLengthRatio skips values so much shorter than the password that
// they cannot reach the threshold.
func exceedsLengthRatio(password, value string, maxSimilarity float64) bool {
	pwdLen := float64(utf8.RuneCountInString(password))
	valueLen := float64(utf8.RuneCountInString(value))
	return pwdLen >= 10*valueLen && valueLen < maxSimilarity/2*pwdLen
}

// quickRatio is 2*M/T where M counts runes shared by a and b as multisets
// and T is their combined length.
func quickRatio(a, b string) float64 {
	counts := make(map[rune]int)
	for _, r := range b {
		counts[r]++
	}
	matches, total := 0, utf8.RuneCountInString(b)
	for _, r := range a {
		total++
		if counts[r] > 0 {
			counts[r]--
			matches++
		}
	}
	if total == 0 {
		return 1
	}
	return 2 * float64(matches) / float64(total)
}

func (v *UserAttributeSimilarityValidator) HelpText() string {
	return "Your password can't be too similar to your other personal information."
}

//go:embed data/common_passwords.txt
var commonPasswordsList []byte

// CommonPasswordValidator rejects passwords from a list of frequently used
// ones, compared case-insensitively.
type CommonPasswordValidator struct {
	passwords map[string]struct{}
}

func NewCommonPasswordValidator() *CommonPasswordValidator {
	return NewCommonPasswordValidatorFromList(commonPasswordsList)
}

// NewCommonPasswordValidatorFromList reads one password per line.
func NewCommonPasswordValidatorFromList(list []byte) *CommonPasswordValidator {
	passwords := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(list))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			passwords[strings.ToLower(line)] = struct{}{}
		}
	}
	return &CommonPasswordValidator{passwords: passwords}
}

func (v *CommonPasswordValidator) Validate(password string, _ *api.UserIdentity) error {
	if _, ok := v.passwords[strings.ToLower(strings.TrimSpace(password))]; ok {
		return api.NewValidationError(nil, api.Violation{
			Code:    "password_too_common",
			Message: "This password is too common.",
		})
	}
	return nil
}

func (v *CommonPasswordValidator) HelpText() string {
	return "Your password can't be a commonly used password."
}

type NumericPasswordValidator struct{}

func (NumericPasswordValidator) Validate(password string, _ *api.UserIdentity) error {
	if password == "" {
		return nil
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return api.NewValidationError(nil, api.Violation{
		Code:    "password_entirely_numeric",
		Message: "This password is entirely numeric.",
	})
}

func (NumericPasswordValidator) HelpText() string {
	return "Your password can't be entirely numeric."
}
