package password

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/gearguard/internal/api"
)

const ambiguousCharacters = "loIO01"

func TestGenerate(t *testing.T) {
	t.Run("all classes length 20", func(t *testing.T) {
		opts := DefaultGenerateOptions()
		opts.Length = 20
		for i := 0; i < 200; i++ {
			pw, err := Generate(opts)
			require.NoError(t, err)
			assert.Equal(t, 20, utf8.RuneCountInString(pw))
			assert.True(t, strings.ContainsAny(pw, lowercaseLetters), pw)
			assert.True(t, strings.ContainsAny(pw, uppercaseLetters), pw)
			assert.True(t, strings.ContainsAny(pw, digitCharacters), pw)
			assert.True(t, strings.ContainsAny(pw, DefaultSpecialCharacters), pw)
			assert.False(t, strings.ContainsAny(pw, ambiguousCharacters), pw)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		pw, err := Generate(DefaultGenerateOptions())
		require.NoError(t, err)
		assert.Len(t, pw, 16)
	})

	t.Run("single class", func(t *testing.T) {
		pw, err := Generate(GenerateOptions{Length: 12, Digits: true})
		require.NoError(t, err)
		assert.Len(t, pw, 12)
		assert.Empty(t, strings.Trim(pw, digitCharacters))
	})

	t.Run("ambiguous characters allowed when requested", func(t *testing.T) {
		seen := false
		for i := 0; i < 50 && !seen; i++ {
			pw, err := Generate(GenerateOptions{Length: 64, Digits: true})
			require.NoError(t, err)
			seen = strings.ContainsAny(pw, "01")
		}
		assert.True(t, seen, "0 or 1 should appear in 3200 digits")
	})

	t.Run("custom special characters", func(t *testing.T) {
		pw, err := Generate(GenerateOptions{Length: 10, Special: true, SpecialCharacters: "#"})
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("#", 10), pw)
	})

	t.Run("required characters are not at fixed offsets", func(t *testing.T) {
		opts := GenerateOptions{Length: 8, Lowercase: true, Digits: true}
		firstIsDigit := 0
		for i := 0; i < 200; i++ {
			pw, err := Generate(opts)
			require.NoError(t, err)
			if strings.ContainsRune(digitCharacters, rune(pw[0])) {
				firstIsDigit++
			}
		}
		assert.Greater(t, firstIsDigit, 0)
		assert.Less(t, firstIsDigit, 200)
	})
}

func TestGenerateInvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		opts GenerateOptions
	}{
		{"too short", GenerateOptions{Length: 7, Lowercase: true}},
		{"zero length", GenerateOptions{Lowercase: true}},
		{"no classes", GenerateOptions{Length: 16}},
		{"no classes with ambiguous exclusion", GenerateOptions{Length: 16, ExcludeAmbiguous: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pw, err := Generate(tt.opts)
			assert.ErrorIs(t, err, api.ErrInvalidArgument)
			assert.Empty(t, pw)
		})
	}
}

func TestShuffleKeepsElements(t *testing.T) {
	in := []rune("abcdefgh")
	require.NoError(t, shuffle(in))
	assert.ElementsMatch(t, []rune("abcdefgh"), in)
}
