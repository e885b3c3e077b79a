package password

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/FACorreiaa/gearguard/config"
)

// sha1("password") = 5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8
const (
	passwordHashPrefix = "5BAA6"
	passwordHashSuffix = "1E4C9B93F3F0682250B6CF8331B7EE68FD8"
)

func newRangeServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestBreachChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		var path string
		srv, _ := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			fmt.Fprintf(w, "0018A45C4D1DEF81644B54AB7F969B88D65:1\r\n%s:3861493\r\n", passwordHashSuffix)
		})
		b := NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: srv.URL + "/range"}, discardLogger())

		assert.True(t, b.IsBreached(ctx, "password"))
		assert.Equal(t, "/range/"+passwordHashPrefix, path)
	})

	t.Run("suffix match is case insensitive", func(t *testing.T) {
		srv, _ := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "%s:2\n", "1e4c9b93f3f0682250b6cf8331b7ee68fd8")
		})
		b := NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: srv.URL}, discardLogger())
		assert.True(t, b.IsBreached(ctx, "password"))
	})

	t.Run("miss", func(t *testing.T) {
		srv, _ := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "0018A45C4D1DEF81644B54AB7F969B88D65:1\n00D4F6E8FA6EECAD2A3AA415EEC418D38EC:2\n")
		})
		b := NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: srv.URL}, discardLogger())
		assert.False(t, b.IsBreached(ctx, "password"))
	})

	t.Run("padding entries are ignored", func(t *testing.T) {
		srv, _ := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "%s:0\n\n", passwordHashSuffix)
		})
		b := NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: srv.URL}, discardLogger())
		assert.False(t, b.IsBreached(ctx, "password"))
	})

	t.Run("server error fails open", func(t *testing.T) {
		srv, _ := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		})
		b := NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: srv.URL}, discardLogger())
		assert.False(t, b.IsBreached(ctx, "password"))
	})

	t.Run("malformed body fails open", func(t *testing.T) {
		srv, _ := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "%s\n", passwordHashSuffix)
		})
		b := NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: srv.URL}, discardLogger())
		assert.False(t, b.IsBreached(ctx, "password"))
	})

	t.Run("match before a malformed line is kept", func(t *testing.T) {
		srv, _ := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "%s:3861493\r\ngarbage\r\n", passwordHashSuffix)
		})
		b := NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: srv.URL}, discardLogger())
		assert.True(t, b.IsBreached(ctx, "password"))
	})

	t.Run("malformed count fails open", func(t *testing.T) {
		srv, _ := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "%s:many\n", passwordHashSuffix)
		})
		b := NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: srv.URL}, discardLogger())
		assert.False(t, b.IsBreached(ctx, "password"))
	})

	t.Run("timeout fails open", func(t *testing.T) {
		release := make(chan struct{})
		srv, _ := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)
		b := NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, discardLogger())

		start := time.Now()
		assert.False(t, b.IsBreached(ctx, "password"))
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("unreachable endpoint fails open", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		b := NewBreachChecker(config.BreachConfig{Enabled: true, Endpoint: url}, discardLogger())
		assert.False(t, b.IsBreached(ctx, "password"))
	})

	t.Run("disabled makes no request", func(t *testing.T) {
		srv, hits := newRangeServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "%s:10\n", passwordHashSuffix)
		})
		b := NewBreachChecker(config.BreachConfig{Enabled: false, Endpoint: srv.URL}, discardLogger())
		assert.False(t, b.Enabled())
		assert.False(t, b.IsBreached(ctx, "password"))
		assert.Equal(t, int32(0), hits.Load())
	})

	t.Run("nil checker is disabled", func(t *testing.T) {
		var b *BreachChecker
		assert.False(t, b.Enabled())
		assert.False(t, b.IsBreached(ctx, "password"))
	})
}

func TestNewBreachCheckerDefaults(t *testing.T) {
	b := NewBreachChecker(config.BreachConfig{Enabled: true}, discardLogger())
	assert.Equal(t, DefaultBreachEndpoint, b.endpoint)
	assert.Equal(t, DefaultBreachTimeout, b.client.Timeout)
}
