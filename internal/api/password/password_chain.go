package password

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FACorreiaa/gearguard/internal/api"
)

var _ Validator = (*Chain)(nil)

// Chain runs every validator and merges their violations in order. It never
// stops at the first failing rule.
type Chain struct {
	validators []Validator
}

func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// NewPolicyChain builds the full chain for a policy: the baseline rules
// (similarity, minimum length, common, numeric) followed by complexity,
// repetition and sequence rules.
func NewPolicyChain(p Policy) (*Chain, error) {
	similarity, err := NewUserAttributeSimilarityValidator(p.SimilarityThreshold)
	if err != nil {
		return nil, err
	}
	complexity, err := NewComplexityValidator(p.MinUppercase, p.MinLowercase, p.MinDigits, p.MinSpecial, p.SpecialCharacters)
	if err != nil {
		return nil, err
	}
	repeating, err := NewRepeatingValidator(p.MaxRepeating)
	if err != nil {
		return nil, err
	}
	sequential, err := NewSequentialValidator(p.MaxSequential)
	if err != nil {
		return nil, err
	}
	return NewChain(
		similarity,
		NewMinimumLengthValidator(p.MinLength),
		NewCommonPasswordValidator(),
		NumericPasswordValidator{},
		complexity,
		repeating,
		sequential,
	), nil
}

// Validate returns nil when every rule passes and an *api.ValidationError
// holding all violations otherwise. Its Kind is the first specific kind any
// rule reported. A rule failing for another reason aborts the run.
func (c *Chain) Validate(password string, user *api.UserIdentity) error {
	out := &api.ValidationError{}
	for _, v := range c.validators {
		err := v.Validate(password, user)
		if err == nil {
			continue
		}
		var verr *api.ValidationError
		if !errors.As(err, &verr) {
			return fmt.Errorf("password validator %T: %w", v, err)
		}
		out.Add(verr.Violations...)
		if out.Kind == nil {
			out.Kind = verr.Kind
		}
	}
	return out.OrNil()
}

// HelpTexts lists the help text of each rule in chain order.
func (c *Chain) HelpTexts() []string {
	texts := make([]string, 0, len(c.validators))
	for _, v := range c.validators {
		texts = append(texts, v.HelpText())
	}
	return texts
}

func (c *Chain) HelpText() string {
	return strings.Join(c.HelpTexts(), " ")
}
