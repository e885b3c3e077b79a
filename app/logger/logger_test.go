package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("production logs json at info", func(t *testing.T) {
		var buf bytes.Buffer
		l := New("production", &buf)

		l.Debug("hidden")
		l.Info("Profile synced", "userID", "42")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "Profile synced", record["msg"])
		assert.Equal(t, "INFO", record["level"])
		assert.Equal(t, "42", record["userID"])
	})

	t.Run("development logs debug", func(t *testing.T) {
		var buf bytes.Buffer
		l := New("", &buf)

		l.Debug("Registering user")
		assert.Contains(t, buf.String(), "Registering user")
		assert.False(t, json.Valid(buf.Bytes()))
	})
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}
