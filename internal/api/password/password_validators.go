package password

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/FACorreiaa/gearguard/internal/api"
)

// Validator is one rule of the password policy. Validate returns nil, an
// *api.ValidationError listing every violation the rule found, or another
// error when the rule itself could not run. user may be nil.
type Validator interface {
	Validate(password string, user *api.UserIdentity) error
	HelpText() string
}

var (
	_ Validator = (*ComplexityValidator)(nil)
	_ Validator = (*RepeatingValidator)(nil)
	_ Validator = (*SequentialValidator)(nil)
)

var (
	upperPattern = regexp.MustCompile(`[A-Z]`)
	lowerPattern = regexp.MustCompile(`[a-z]`)
	digitPattern = regexp.MustCompile(`[0-9]`)
)

// ComplexityValidator requires minimum counts of uppercase, lowercase, digit
// and special characters.
type ComplexityValidator struct {
	minUppercase int
	minLowercase int
	minDigits    int
	minSpecial   int
	specialChars string
	special      *regexp.Regexp
}

func NewComplexityValidator(minUppercase, minLowercase, minDigits, minSpecial int, specialChars string) (*ComplexityValidator, error) {
	if minUppercase < 0 || minLowercase < 0 || minDigits < 0 || minSpecial < 0 {
		return nil, fmt.Errorf("%w: all minimum requirements must be non-negative integers", api.ErrInvalidArgument)
	}
	if specialChars == "" {
		specialChars = DefaultSpecialCharacters
	}
	special, err := regexp.Compile(charClass(specialChars))
	if err != nil {
		return nil, fmt.Errorf("%w: special characters %q: %v", api.ErrInvalidArgument, specialChars, err)
	}
	return &ComplexityValidator{
		minUppercase: minUppercase,
		minLowercase: minLowercase,
		minDigits:    minDigits,
		minSpecial:   minSpecial,
		specialChars: specialChars,
		special:      special,
	}, nil
}

// charClass builds a bracket expression matching exactly the runes in chars.
func charClass(chars string) string {
	var b strings.Builder
	b.WriteByte('[')
	for _, r := range chars {
		// RE2 only accepts a backslash before ASCII punctuation. QuoteMeta
		// leaves '-' alone, which is a range operator inside brackets.
		if r == '-' {
			b.WriteString(`\-`)
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	b.WriteByte(']')
	return b.String()
}

func (v *ComplexityValidator) Validate(password string, _ *api.UserIdentity) error {
	if !utf8.ValidString(password) {
		return api.NewValidationError(api.ErrInvalidInput, api.Violation{
			Code:    "password_invalid",
			Message: "Password must be a valid string.",
		})
	}
	if password == "" {
		return api.NewValidationError(api.ErrInvalidInput, api.Violation{
			Code:    "password_empty",
			Message: "Password cannot be empty.",
		})
	}

	verr := &api.ValidationError{}
	checks := []struct {
		count int
		min   int
		code  string
		noun  string
	}{
		{len(upperPattern.FindAllStringIndex(password, -1)), v.minUppercase, "password_no_upper", "uppercase letter(s)"},
		{len(lowerPattern.FindAllStringIndex(password, -1)), v.minLowercase, "password_no_lower", "lowercase letter(s)"},
		{len(digitPattern.FindAllStringIndex(password, -1)), v.minDigits, "password_no_digit", "digit(s)"},
		{len(v.special.FindAllStringIndex(password, -1)), v.minSpecial, "password_no_special", "special character(s)"},
	}
	for _, c := range checks {
		if c.count < c.min {
			verr.Add(api.Violation{
				Code:    c.code,
				Message: fmt.Sprintf("Password must contain at least %d %s.", c.min, c.noun),
			})
		}
	}
	return verr.OrNil()
}

func (v *ComplexityValidator) HelpText() string {
	return fmt.Sprintf(
		"Your password must contain at least %d uppercase letter, %d lowercase letter, %d digit, and %d special character (%s).",
		v.minUppercase, v.minLowercase, v.minDigits, v.minSpecial, v.specialChars,
	)
}

// RepeatingValidator rejects runs of maxRepeating identical characters.
type RepeatingValidator struct {
	maxRepeating int
}

func NewRepeatingValidator(maxRepeating int) (*RepeatingValidator, error) {
	if maxRepeating < 1 {
		return nil, fmt.Errorf("%w: max repeating must be positive, got %d", api.ErrInvalidArgument, maxRepeating)
	}
	return &RepeatingValidator{maxRepeating: maxRepeating}, nil
}

func (v *RepeatingValidator) Validate(password string, _ *api.UserIdentity) error {
	runes := []rune(password)
	for i := 0; i+v.maxRepeating <= len(runes); i++ {
		if allSame(runes[i : i+v.maxRepeating]) {
			return api.NewValidationError(nil, api.Violation{
				Code:    "password_repeating",
				Message: fmt.Sprintf("Password cannot contain %d or more consecutive identical characters.", v.maxRepeating),
			})
		}
	}
	return nil
}

func allSame(window []rune) bool {
	for _, r := range window[1:] {
		if r != window[0] {
			return false
		}
	}
	return true
}

func (v *RepeatingValidator) HelpText() string {
	return fmt.Sprintf("Your password cannot contain %d or more consecutive identical characters.", v.maxRepeating)
}

// SequentialValidator rejects runs of maxSequential characters whose code
// points step by exactly +1 or -1, such as "abc" or "321".
type SequentialValidator struct {
	maxSequential int
}

func NewSequentialValidator(maxSequential int) (*SequentialValidator, error) {
	if maxSequential < 1 {
		return nil, fmt.Errorf("%w: max sequential must be positive, got %d", api.ErrInvalidArgument, maxSequential)
	}
	return &SequentialValidator{maxSequential: maxSequential}, nil
}

func (v *SequentialValidator) Validate(password string, _ *api.UserIdentity) error {
	runes := []rune(password)
	for i := 0; i+v.maxSequential <= len(runes); i++ {
		if isSequential(runes[i : i+v.maxSequential]) {
			return api.NewValidationError(nil, api.Violation{
				Code:    "password_sequential",
				Message: fmt.Sprintf("Password cannot contain %d or more sequential characters.", v.maxSequential),
			})
		}
	}
	return nil
}

func isSequential(window []rune) bool {
	if len(window) < 2 {
		return false
	}
	ascending, descending := true, true
	for i := 0; i < len(window)-1; i++ {
		if window[i]+1 != window[i+1] {
			ascending = false
		}
		if window[i]-1 != window[i+1] {
			descending = false
		}
	}
	return ascending || descending
}

func (v *SequentialValidator) HelpText() string {
	return fmt.Sprintf("Your password cannot contain %d or more sequential characters (e.g., abc, 123).", v.maxSequential)
}
