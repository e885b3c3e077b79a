package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Strength labels, weakest first.
const (
	StrengthVeryWeak   = "Very Weak"
	StrengthWeak       = "Weak"
	StrengthModerate   = "Moderate"
	StrengthStrong     = "Strong"
	StrengthVeryStrong = "Very Strong"
)

// StrengthReport is the outcome of Score.
type StrengthReport struct {
	Score    int      `json:"score"`
	Strength string   `json:"strength"`
	Feedback []string `json:"feedback"`
}

// Score rates a password from 0 to 100 by length and character variety.
// Any string, the empty one included, yields a report.
func Score(password string) StrengthReport {
	score := 0
	feedback := []string{}

	length := utf8.RuneCountInString(password)
	switch {
	case length >= 12:
		score += 25
	case length >= 8:
		score += 15
		feedback = append(feedback, "Consider using a longer password (12+ characters)")
	default:
		feedback = append(feedback, "Password is too short (minimum 8 characters)")
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(DefaultSpecialCharacters, r):
			hasSpecial = true
		}
	}

	variety := 0
	for _, c := range []struct {
		present bool
		hint    string
	}{
		{hasLower, "Add lowercase letters"},
		{hasUpper, "Add uppercase letters"},
		{hasDigit, "Add numbers"},
		{hasSpecial, "Add special characters"},
	} {
		if c.present {
			variety += 15
		} else {
			feedback = append(feedback, c.hint)
		}
	}
	score += variety

	if length >= 16 && variety == 60 {
		score += 10
	}
	score = min(max(score, 0), 100)

	return StrengthReport{
		Score:    score,
		Strength: strengthLabel(score),
		Feedback: feedback,
	}
}

func strengthLabel(score int) string {
	switch {
	case score >= 80:
		return StrengthVeryStrong
	case score >= 60:
		return StrengthStrong
	case score >= 40:
		return StrengthModerate
	case score >= 20:
		return StrengthWeak
	default:
		return StrengthVeryWeak
	}
}
