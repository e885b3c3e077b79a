package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		password string
		score    int
		strength string
		feedback []string
	}{
		{
			name:     "empty",
			password: "",
			score:    0,
			strength: StrengthVeryWeak,
			feedback: []string{
				"Password is too short (minimum 8 characters)",
				"Add lowercase letters",
				"Add uppercase letters",
				"Add numbers",
				"Add special characters",
			},
		},
		{
			name:     "short lowercase",
			password: "abcdefg",
			score:    15,
			strength: StrengthVeryWeak,
			feedback: []string{
				"Password is too short (minimum 8 characters)",
				"Add uppercase letters",
				"Add numbers",
				"Add special characters",
			},
		},
		{
			name:     "medium length two classes",
			password: "Abcdefgh",
			score:    45,
			strength: StrengthModerate,
			feedback: []string{
				"Consider using a longer password (12+ characters)",
				"Add numbers",
				"Add special characters",
			},
		},
		{
			name:     "long three classes",
			password: "Abcdefgh1234",
			score:    70,
			strength: StrengthStrong,
			feedback: []string{"Add special characters"},
		},
		{
			name:     "long all classes without bonus",
			password: "Abcdefgh12!?",
			score:    85,
			strength: StrengthVeryStrong,
			feedback: []string{},
		},
		{
			name:     "sixteen characters all classes",
			password: "Xq7!Tr9#Lm2$Vp4&",
			score:    95,
			strength: StrengthVeryStrong,
			feedback: []string{},
		},
		{
			name:     "digits only",
			password: "12345678901",
			score:    30,
			strength: StrengthWeak,
			feedback: []string{
				"Consider using a longer password (12+ characters)",
				"Add lowercase letters",
				"Add uppercase letters",
				"Add special characters",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Score(tt.password)
			assert.Equal(t, tt.score, report.Score)
			assert.Equal(t, tt.strength, report.Strength)
			assert.Equal(t, tt.feedback, report.Feedback)
		})
	}
}

func TestScoreProperties(t *testing.T) {
	t.Run("long passwords with every class reach the top score", func(t *testing.T) {
		for _, pw := range []string{
			"Xq7!Tr9#Lm2$Vp4&",
			"aA1!" + strings.Repeat("zZ9?", 10),
			"Maintenance#2024Crew",
		} {
			report := Score(pw)
			assert.Equal(t, 95, report.Score, pw)
			assert.Equal(t, StrengthVeryStrong, report.Strength, pw)
			assert.Empty(t, report.Feedback, pw)
		}
	})

	t.Run("short passwords never rate very strong", func(t *testing.T) {
		for _, pw := range []string{"", "a", "aA1!", "aA1!bB2", "Zz9?Yy8"} {
			report := Score(pw)
			assert.LessOrEqual(t, report.Score, 60, pw)
			assert.NotEqual(t, StrengthVeryStrong, report.Strength, pw)
		}
	})

	t.Run("score stays within bounds", func(t *testing.T) {
		for _, pw := range []string{"", strings.Repeat("aA1!", 100), "ÄÖÜäöü123"} {
			report := Score(pw)
			assert.GreaterOrEqual(t, report.Score, 0)
			assert.LessOrEqual(t, report.Score, 100)
		}
	})

	t.Run("length counts characters not bytes", func(t *testing.T) {
		// eight two-byte runes
		report := Score("éééééééé")
		assert.Equal(t, 15+15, report.Score)
	})
}

func TestStrengthLabel(t *testing.T) {
	assert.Equal(t, StrengthVeryStrong, strengthLabel(80))
	assert.Equal(t, StrengthStrong, strengthLabel(79))
	assert.Equal(t, StrengthStrong, strengthLabel(60))
	assert.Equal(t, StrengthModerate, strengthLabel(40))
	assert.Equal(t, StrengthWeak, strengthLabel(20))
	assert.Equal(t, StrengthVeryWeak, strengthLabel(19))
}
