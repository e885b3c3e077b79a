package password

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FACorreiaa/gearguard/app/observability/metrics"
	"github.com/FACorreiaa/gearguard/config"
)

const (
	DefaultBreachEndpoint = "https://api.pwnedpasswords.com/range/"
	DefaultBreachTimeout  = 5 * time.Second

	breachPrefixLength = 5
	maxBreachResponse  = 1 << 20
)

// BreachChecker looks a password up in a k-anonymity breach range API. Only
// the first five hex characters of the SHA-1 leave the process.
type BreachChecker struct {
	enabled  bool
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	metrics  *metrics.AppMetrics
}

func NewBreachChecker(cfg config.BreachConfig, logger *slog.Logger) *BreachChecker {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultBreachEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultBreachTimeout
	}
	metrics.InitAppMetrics()
	return &BreachChecker{
		enabled:  cfg.Enabled,
		endpoint: strings.TrimRight(endpoint, "/") + "/",
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		metrics:  metrics.Get(),
	}
}

func (b *BreachChecker) Enabled() bool {
	return b != nil && b.enabled
}

// IsBreached reports whether the password appears in the breach corpus. It
// fails open: a disabled checker, a transport error, a non-2xx status or a
// malformed body all report false.
func (b *BreachChecker) IsBreached(ctx context.Context, password string) bool {
	if !b.Enabled() {
		return false
	}
	l := b.logger.With(slog.String("method", "IsBreached"))

	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:breachPrefixLength], digest[breachPrefixLength:]

	b.metrics.BreachChecksTotal.Add(ctx, 1)
	breached, err := b.lookup(ctx, prefix, suffix)
	if err != nil {
		l.WarnContext(ctx, "Breach check unavailable, treating password as not breached", slog.Any("error", err))
		return false
	}
	return breached
}

func (b *BreachChecker) lookup(ctx context.Context, prefix, suffix string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+prefix, nil)
	if err != nil {
		return false, fmt.Errorf("build breach request: %w", err)
	}
	req.Header.Set("User-Agent", "gearguard-password-policy")

	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("breach request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("breach service returned status %d", resp.StatusCode)
	}

	sc := bufio.NewScanner(io.LimitReader(resp.Body, maxBreachResponse))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		hashSuffix, rawCount, ok := strings.Cut(line, ":")
		if !ok {
			return false, fmt.Errorf("malformed breach response line %q", line)
		}
		count, err := strconv.Atoi(strings.TrimSpace(rawCount))
		if err != nil {
			return false, fmt.Errorf("malformed breach count in %q: %w", line, err)
		}
		// padded responses carry decoy suffixes with a zero count
		if strings.EqualFold(hashSuffix, suffix) && count > 0 {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("read breach response: %w", err)
	}
	return false, nil
}
