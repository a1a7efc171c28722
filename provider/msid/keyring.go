package msid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/abhinandanshahdev/go-identity"
	"github.com/goliatone/go-errors"
)

// ErrKeyNotFound is returned when a fresh key set does not carry the
// requested key-id.
var ErrKeyNotFound = errors.New("signing key not found in key set", errors.CategoryNotFound).
	WithTextCode("signing_key_not_found").
	WithCode(errors.CodeNotFound)

// KeyRing resolves provider signing keys by key-id.
type KeyRing interface {
	Key(ctx context.Context, keyID string) (any, error)
}

// JWKSKeyRing fetches and caches the tenant's JWKS. Lookups of a fresh
// key-id read under a shared lock and never block on a refresh; a cache miss
// or TTL expiry triggers a fetch that concurrent callers share. When a fetch
// fails, the last known-good set keeps serving until MaxStale elapses, after
// which lookups fail with identity.ErrKeySetUnavailable.
type JWKSKeyRing struct {
	url          string
	client       *http.Client
	refreshTTL   time.Duration
	maxStale     time.Duration
	fetchTimeout time.Duration
	logger       identity.Logger
	now          func() time.Time

	mu        sync.RWMutex
	keys      map[string]any
	fetchedAt time.Time

	fetchMu  sync.Mutex
	inflight *fetchCall
}

type fetchCall struct {
	done chan struct{}
	err  error
}

var _ KeyRing = (*JWKSKeyRing)(nil)

// NewJWKSKeyRing builds a key ring for the configured tenant. The cache
// starts empty; the first lookup performs the initial fetch.
func NewJWKSKeyRing(cfg Config) (*JWKSKeyRing, error) {
	url, err := cfg.jwksURL()
	if err != nil {
		return nil, err
	}

	return &JWKSKeyRing{
		url:          url,
		client:       cfg.httpClient(),
		refreshTTL:   cfg.refreshTTL(),
		maxStale:     cfg.maxStale(),
		fetchTimeout: cfg.fetchTimeout(),
		logger:       cfg.logger(),
		now:          time.Now,
	}, nil
}

// WithClock overrides the clock, useful for tests.
func (k *JWKSKeyRing) WithClock(clock func() time.Time) *JWKSKeyRing {
	if clock != nil {
		k.now = clock
	}
	return k
}

// Key returns the public key for keyID. ErrKeyNotFound means a fresh set
// was consulted and the key-id is absent; identity.ErrKeySetUnavailable
// means no usable set exists at all.
func (k *JWKSKeyRing) Key(ctx context.Context, keyID string) (any, error) {
	if key, ok := k.freshKey(keyID); ok {
		return key, nil
	}

	fetchErr := k.refresh(ctx)

	k.mu.RLock()
	defer k.mu.RUnlock()

	if fetchErr == nil {
		if key, ok := k.keys[keyID]; ok {
			return key, nil
		}
		// Fresh set, kid genuinely absent.
		return nil, ErrKeyNotFound
	}

	if k.keys != nil && k.now().Sub(k.fetchedAt) < k.maxStale {
		if key, ok := k.keys[keyID]; ok {
			return key, nil
		}
		// Stale-but-available set exists, just without this kid.
		return nil, ErrKeyNotFound
	}

	return nil, identity.ErrKeySetUnavailable
}

// freshKey serves lookups that do not require a refresh. Readers holding
// only the RLock never wait on an in-flight fetch.
func (k *JWKSKeyRing) freshKey(keyID string) (any, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.keys == nil || k.now().Sub(k.fetchedAt) >= k.refreshTTL {
		return nil, false
	}

	key, ok := k.keys[keyID]
	return key, ok
}

// refresh fetches the key set, coalescing concurrent callers onto a single
// network request. Failures are logged, not raised past the stale window, so
// a transient provider outage degrades rather than crashes call sites.
func (k *JWKSKeyRing) refresh(ctx context.Context) error {
	k.fetchMu.Lock()
	if call := k.inflight; call != nil {
		k.fetchMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	call := &fetchCall{done: make(chan struct{})}
	k.inflight = call
	k.fetchMu.Unlock()

	call.err = k.fetch(ctx)
	close(call.done)

	k.fetchMu.Lock()
	k.inflight = nil
	k.fetchMu.Unlock()

	return call.err
}

func (k *JWKSKeyRing) fetch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, k.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("msid: failed to build JWKS request: %w", err)
	}

	res, err := k.client.Do(req)
	if err != nil {
		k.logger.Warn("JWKS fetch failed", "url", k.url, "error", err)
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		k.logger.Warn("JWKS fetch returned unexpected status", "url", k.url, "status", res.StatusCode)
		return fmt.Errorf("msid: JWKS endpoint returned %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		k.logger.Warn("JWKS body read failed", "error", err)
		return err
	}

	jwks, err := keyfunc.NewJSON(json.RawMessage(body))
	if err != nil {
		k.logger.Warn("JWKS parse failed", "error", err)
		return err
	}

	keys := jwks.ReadOnlyKeys()

	// Replace the cache atomically; readers see either the old set or the
	// new one, never a partial state.
	k.mu.Lock()
	k.keys = keys
	k.fetchedAt = k.now()
	k.mu.Unlock()

	k.logger.Debug("JWKS refreshed", "keys", len(keys))

	return nil
}
