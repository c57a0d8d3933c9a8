package vcfops

import (
	"context"
	"sync"
	"time"

	"github.com/atrejom/vcfping/internal/logger"
	"github.com/atrejom/vcfping/internal/retry"
)

// DefaultSafetyMargin is how long before the reported expiry a token is
// already treated as stale, so a request never departs with a token that
// dies in flight.
const DefaultSafetyMargin = 60 * time.Second

// RefreshFunc performs the token acquire exchange and returns the new token
// with its expiry instant.
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// TokenManager owns the bearer token lifecycle: it hands out the cached
// token while valid, refreshes on expiry, and serializes concurrent refresh
// attempts behind one lock. Token state lives only in memory.
type TokenManager struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	margin  time.Duration
	refresh RefreshFunc
	retry   retry.Config
	logger  *logger.Logger
	now     func() time.Time
}

// NewTokenManager creates a manager around the given refresh exchange.
func NewTokenManager(refresh RefreshFunc, margin time.Duration, retryCfg retry.Config, log *logger.Logger) *TokenManager {
	if margin <= 0 {
		margin = DefaultSafetyMargin
	}
	return &TokenManager{
		margin:  margin,
		refresh: refresh,
		retry:   retryCfg,
		logger:  log,
		now:     time.Now,
	}
}

// Token returns a valid bearer token, refreshing it first when the cached
// one is within the safety margin of its expiry. Callers that race a refresh
// block on the lock and find the fresh token on the re-check, so only one
// exchange runs. Exhausted refresh retries surface as an AuthError.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expiresAt.Add(-m.margin)) {
		return m.token, nil
	}

	m.logger.Debug("token missing or near expiry, refreshing")

	var token string
	var expiresAt time.Time
	err := retry.Do(ctx, func() error {
		var refreshErr error
		token, expiresAt, refreshErr = m.refresh(ctx)
		return refreshErr
	}, m.retry)
	if err != nil {
		return "", &AuthError{Err: err}
	}

	m.token = token
	m.expiresAt = expiresAt

	m.logger.Info("bearer token refreshed",
		logger.Field{Key: "expires_at", Value: expiresAt})

	return m.token, nil
}

// Invalidate discards the cached token so the next Token call refreshes.
// Called after the suite API rejects a request with 401.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}
