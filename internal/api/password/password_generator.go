package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/FACorreiaa/gearguard/internal/api"
)

const (
	lowercaseLetters = "abcdefghijklmnopqrstuvwxyz"
	uppercaseLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitCharacters  = "0123456789"

	// MinGeneratedLength is the shortest password Generate will produce.
	MinGeneratedLength = 8
)

// GenerateOptions selects the character classes and length of a generated
// password. The zero value enables no class and is rejected; start from
// DefaultGenerateOptions.
type GenerateOptions struct {
	Length           int
	Uppercase        bool
	Lowercase        bool
	Digits           bool
	Special          bool
	ExcludeAmbiguous bool
	// SpecialCharacters overrides DefaultSpecialCharacters when set.
	SpecialCharacters string
}

func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Length:           16,
		Uppercase:        true,
		Lowercase:        true,
		Digits:           true,
		Special:          true,
		ExcludeAmbiguous: true,
	}
}

// classPools returns one pool per enabled class in a fixed order:
// lowercase, uppercase, digits, special.
func (o GenerateOptions) classPools() []string {
	strip := func(s, chars string) string {
		if !o.ExcludeAmbiguous {
			return s
		}
		return strings.Map(func(r rune) rune {
			if strings.ContainsRune(chars, r) {
				return -1
			}
			return r
		}, s)
	}

	var pools []string
	if o.Lowercase {
		pools = append(pools, strip(lowercaseLetters, "lo"))
	}
	if o.Uppercase {
		pools = append(pools, strip(uppercaseLetters, "IO"))
	}
	if o.Digits {
		pools = append(pools, strip(digitCharacters, "01"))
	}
	if o.Special {
		special := o.SpecialCharacters
		if special == "" {
			special = DefaultSpecialCharacters
		}
		pools = append(pools, special)
	}
	return pools
}

// Generate returns a password drawn from crypto/rand containing at least one
// character of every enabled class, in shuffled positions.
func Generate(opts GenerateOptions) (string, error) {
	if opts.Length < MinGeneratedLength {
		return "", fmt.Errorf("%w: password length must be at least %d characters", api.ErrInvalidArgument, MinGeneratedLength)
	}

	pools := opts.classPools()
	if len(pools) == 0 {
		return "", fmt.Errorf("%w: at least one character type must be included", api.ErrInvalidArgument)
	}

	var all []rune
	out := make([]rune, 0, opts.Length)
	for _, pool := range pools {
		runes := []rune(pool)
		all = append(all, runes...)
		r, err := pick(runes)
		if err != nil {
			return "", err
		}
		out = append(out, r)
	}

	for len(out) < opts.Length {
		r, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, r)
	}

	if err := shuffle(out); err != nil {
		return "", err
	}
	return string(out), nil
}

func randIndex(n int) (int, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random source: %w", err)
	}
	return int(i.Int64()), nil
}

func pick(pool []rune) (rune, error) {
	i, err := randIndex(len(pool))
	if err != nil {
		return 0, err
	}
	return pool[i], nil
}

// shuffle is a Fisher-Yates shuffle driven by crypto/rand.
func shuffle(s []rune) error {
	for i := len(s) - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return err
		}
		s[i], s[j] = s[j], s[i]
	}
	return nil
}
