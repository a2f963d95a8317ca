package tokens

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/inkleaf/notesync/pkg/types"
)

// expiryBuffer is how far ahead of the known expiry EnsureValidToken
// proactively refreshes, so a request built from the token it returns
// does not expire in flight.
const expiryBuffer = 30 * time.Second

// RefreshFunc exchanges a refresh token for a new access/refresh pair.
// It is supplied by the remote API client, kept out of this package to
// avoid an import cycle.
type RefreshFunc func(ctx context.Context, refreshToken string) (access, refresh string, expiresAt time.Time, err error)

// Emitter is the minimal event-bus surface the refresher needs, so it
// can announce auth-required/token-refreshed/token-cleared without
// importing the events package concretely.
type Emitter interface {
	Emit(name string, payload any)
}

// Refresher guards token refresh with a mutex so concurrent requests
// that all observe an expired token trigger exactly one refresh call,
// and wraps authenticated calls with a single 401-triggered retry.
type Refresher struct {
	mu      sync.Mutex
	store   *Store
	refresh RefreshFunc
	emitter Emitter
}

// NewRefresher builds a Refresher over store, calling refresh to obtain
// new tokens. emitter may be nil.
func NewRefresher(store *Store, refresh RefreshFunc, emitter Emitter) *Refresher {
	return &Refresher{store: store, refresh: refresh, emitter: emitter}
}

// EnsureValidToken returns a currently-valid access token, refreshing
// first if the stored one is expired or expiring soon. Concurrent
// callers block on the same refresh rather than each issuing their own.
func (r *Refresher) EnsureValidToken(ctx context.Context) (string, error) {
	if !r.store.IsExpired() && !r.store.IsExpiringSoon(expiryBuffer) {
		if token := r.store.AccessToken(); token != "" {
			return token, nil
		}
		return "", types.ErrNotAuthenticated
	}
	return r.doRefresh(ctx, "")
}

// doRefresh obtains a new token pair. rejected, if non-empty, is a token
// the server has just refused; it is never handed back as still valid.
func (r *Refresher) doRefresh(ctx context.Context, rejected string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have refreshed while we waited on the lock.
	if !r.store.IsExpired() && !r.store.IsExpiringSoon(expiryBuffer) {
		if token := r.store.AccessToken(); token != "" && token != rejected {
			return token, nil
		}
	}

	refreshToken := r.store.RefreshToken()
	if refreshToken == "" {
		r.emit("auth-required", nil)
		return "", types.ErrNotAuthenticated
	}

	access, refresh, expiresAt, err := r.refresh(ctx, refreshToken)
	if err != nil {
		if clearErr := r.store.Clear(); clearErr != nil {
			return "", fmt.Errorf("%w: %v (and clearing tokens: %v)", types.ErrTokenRefreshFailed, err, clearErr)
		}
		r.emit("auth-required", nil)
		return "", fmt.Errorf("%w: %v", types.ErrTokenRefreshFailed, err)
	}

	if err := r.store.Set(access, refresh, expiresAt); err != nil {
		return "", fmt.Errorf("tokens: persist refreshed pair: %w", err)
	}
	r.emit("token-refreshed", nil)
	return access, nil
}

// AuthedFunc performs one HTTP call using the given bearer token and
// reports the response status, so WithAuth can decide whether to retry.
type AuthedFunc func(ctx context.Context, bearerToken string) (status int, err error)

// WithAuth runs fn with a currently-valid token. If fn reports a 401, the
// token is forced to refresh once and fn is retried exactly once more --
// covering the case where the server invalidated a token this client
// still believes is live.
func (r *Refresher) WithAuth(ctx context.Context, fn AuthedFunc) error {
	token, err := r.EnsureValidToken(ctx)
	if err != nil {
		return err
	}

	status, err := fn(ctx, token)
	if err != nil {
		return err
	}
	if status != http.StatusUnauthorized {
		return nil
	}

	retryToken, err := r.doRefresh(ctx, token)
	if err != nil {
		return err
	}
	status, err = fn(ctx, retryToken)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		r.emit("auth-required", nil)
		return types.ErrNotAuthenticated
	}
	return nil
}

// Logout clears the token pair and announces it.
func (r *Refresher) Logout() error {
	if err := r.store.Clear(); err != nil {
		return err
	}
	r.emit("token-cleared", nil)
	return nil
}

func (r *Refresher) emit(name string, payload any) {
	if r.emitter != nil {
		r.emitter.Emit(name, payload)
	}
}
