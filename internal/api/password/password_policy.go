package password

import (
	"fmt"

	"github.com/FACorreiaa/gearguard/config"
)

// DefaultSpecialCharacters is the fixed set counted as "special" by the
// scorer, the generator and the complexity rule.
const DefaultSpecialCharacters = `!@#$%^&*(),.?":{}|<>`

// Policy is the immutable set of thresholds the validator chain is built
// from. It is passed by value; nothing mutates it after construction.
type Policy struct {
	MinLength           int
	MinUppercase        int
	MinLowercase        int
	MinDigits           int
	MinSpecial          int
	MaxRepeating        int
	MaxSequential       int
	SimilarityThreshold float64
	SpecialCharacters   string
}

func DefaultPolicy() Policy {
	return Policy{
		MinLength:           12,
		MinUppercase:        1,
		MinLowercase:        1,
		MinDigits:           1,
		MinSpecial:          1,
		MaxRepeating:        3,
		MaxSequential:       3,
		SimilarityThreshold: 0.7,
		SpecialCharacters:   DefaultSpecialCharacters,
	}
}

// PolicyFromConfig builds a Policy from the password section of the config.
// Unset thresholds and special characters keep their defaults; the per-class
// minimums are taken as given so a deployment can set them to zero.
func PolicyFromConfig(cfg config.PasswordConfig) Policy {
	p := DefaultPolicy()
	if cfg.MinLength > 0 {
		p.MinLength = cfg.MinLength
	}
	p.MinUppercase = cfg.MinUppercase
	p.MinLowercase = cfg.MinLowercase
	p.MinDigits = cfg.MinDigits
	p.MinSpecial = cfg.MinSpecial
	if cfg.MaxRepeating > 0 {
		p.MaxRepeating = cfg.MaxRepeating
	}
	if cfg.MaxSequential > 0 {
		p.MaxSequential = cfg.MaxSequential
	}
	if cfg.SimilarityThreshold > 0 {
		p.SimilarityThreshold = cfg.SimilarityThreshold
	}
	if cfg.SpecialCharacters != "" {
		p.SpecialCharacters = cfg.SpecialCharacters
	}
	return p
}

// PolicyInfo is the read-only description of the policy shown to users.
type PolicyInfo struct {
	MinLength           int      `json:"min_length"`
	RequiresUppercase   bool     `json:"requires_uppercase"`
	RequiresLowercase   bool     `json:"requires_lowercase"`
	RequiresDigits      bool     `json:"requires_digits"`
	RequiresSpecial     bool     `json:"requires_special"`
	MaxRepeating        int      `json:"max_repeating"`
	MaxSequential       int      `json:"max_sequential"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	SpecialCharacters   string   `json:"special_characters"`
	HelpText            []string `json:"help_text"`
}

func (p Policy) Info() PolicyInfo {
	help := []string{fmt.Sprintf("Must be at least %d characters long", p.MinLength)}
	if p.MinUppercase > 0 && p.MinLowercase > 0 {
		help = append(help, "Must contain uppercase and lowercase letters")
	} else if p.MinUppercase > 0 {
		help = append(help, "Must contain at least one uppercase letter")
	} else if p.MinLowercase > 0 {
		help = append(help, "Must contain at least one lowercase letter")
	}
	if p.MinDigits > 0 {
		help = append(help, "Must contain at least one digit")
	}
	if p.MinSpecial > 0 {
		help = append(help, "Must contain at least one special character")
	}
	help = append(help,
		"Cannot be too similar to your personal information",
		"Cannot be a commonly used password",
		fmt.Sprintf("Cannot contain more than %d consecutive identical characters", p.MaxRepeating),
		"Cannot contain sequential characters (e.g., abc, 123)",
	)

	return PolicyInfo{
		MinLength:           p.MinLength,
		RequiresUppercase:   p.MinUppercase > 0,
		RequiresLowercase:   p.MinLowercase > 0,
		RequiresDigits:      p.MinDigits > 0,
		RequiresSpecial:     p.MinSpecial > 0,
		MaxRepeating:        p.MaxRepeating,
		MaxSequential:       p.MaxSequential,
		SimilarityThreshold: p.SimilarityThreshold,
		SpecialCharacters:   p.SpecialCharacters,
		HelpText:            help,
	}
}
