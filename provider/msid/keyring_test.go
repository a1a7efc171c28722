package msid

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abhinandanshahdev/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func jwksJSON(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	})
	require.NoError(t, err)
	return body
}

type jwksServer struct {
	*httptest.Server
	fetches atomic.Int64
	mu      sync.Mutex
	body    []byte
	status  int
}

func newJWKSServer(t *testing.T, body []byte) *jwksServer {
	t.Helper()

	s := &jwksServer{body: body, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		s.mu.Lock()
		status, payload := s.status, s.body
		s.mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) fail() {
	s.mu.Lock()
	s.status = http.StatusInternalServerError
	s.mu.Unlock()
}

func (s *jwksServer) restore(body []byte) {
	s.mu.Lock()
	s.status = http.StatusOK
	s.body = body
	s.mu.Unlock()
}

func newTestKeyRing(t *testing.T, url string) *JWKSKeyRing {
	t.Helper()

	ring, err := NewJWKSKeyRing(Config{
		JWKSURL:    url,
		RefreshTTL: 15 * time.Minute,
		MaxStale:   time.Hour,
	})
	require.NoError(t, err)
	return ring
}

func TestKeyRingRequiresTenantOrURL(t *testing.T) {
	_, err := NewJWKSKeyRing(Config{})
	assert.Error(t, err)

	ring, err := NewJWKSKeyRing(Config{TenantID: "common"})
	require.NoError(t, err)
	assert.Equal(t, "https://login.microsoftonline.com/common/discovery/v2.0/keys", ring.url)
}

func TestKeyRingFetchesOnFirstLookup(t *testing.T) {
	key := generateRSAKey(t)
	server := newJWKSServer(t, jwksJSON(t, "kid-1", &key.PublicKey))
	ring := newTestKeyRing(t, server.URL)

	got, err := ring.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, int64(1), server.fetches.Load())
}

func TestKeyRingCachesWithinTTL(t *testing.T) {
	key := generateRSAKey(t)
	server := newJWKSServer(t, jwksJSON(t, "kid-1", &key.PublicKey))
	ring := newTestKeyRing(t, server.URL)

	for i := 0; i < 5; i++ {
		_, err := ring.Key(context.Background(), "kid-1")
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), server.fetches.Load(), "fresh lookups never refetch")
}

func TestKeyRingRefreshesAfterTTL(t *testing.T) {
	key := generateRSAKey(t)
	server := newJWKSServer(t, jwksJSON(t, "kid-1", &key.PublicKey))
	ring := newTestKeyRing(t, server.URL)

	now := time.Now()
	ring.WithClock(func() time.Time { return now })

	_, err := ring.Key(context.Background(), "kid-1")
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)

	_, err = ring.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), server.fetches.Load())
}

func TestKeyRingUnknownKidOnFreshSet(t *testing.T) {
	key := generateRSAKey(t)
	server := newJWKSServer(t, jwksJSON(t, "kid-1", &key.PublicKey))
	ring := newTestKeyRing(t, server.URL)

	_, err := ring.Key(context.Background(), "kid-unknown")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestKeyRingServesStaleDuringOutage(t *testing.T) {
	key := generateRSAKey(t)
	server := newJWKSServer(t, jwksJSON(t, "kid-1", &key.PublicKey))
	ring := newTestKeyRing(t, server.URL)

	now := time.Now()
	ring.WithClock(func() time.Time { return now })

	_, err := ring.Key(context.Background(), "kid-1")
	require.NoError(t, err)

	server.fail()

	// Past the refresh TTL but inside the stale window: the refetch fails and
	// the cached set keeps answering.
	now = now.Add(30 * time.Minute)
	got, err := ring.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestKeyRingFailsClosedPastStaleWindow(t *testing.T) {
	key := generateRSAKey(t)
	server := newJWKSServer(t, jwksJSON(t, "kid-1", &key.PublicKey))
	ring := newTestKeyRing(t, server.URL)

	now := time.Now()
	ring.WithClock(func() time.Time { return now })

	_, err := ring.Key(context.Background(), "kid-1")
	require.NoError(t, err)

	server.fail()

	now = now.Add(2 * time.Hour)
	_, err = ring.Key(context.Background(), "kid-2")
	assert.ErrorIs(t, err, identity.ErrKeySetUnavailable)
}

func TestKeyRingRecoversAfterOutage(t *testing.T) {
	oldKey := generateRSAKey(t)
	server := newJWKSServer(t, jwksJSON(t, "kid-old", &oldKey.PublicKey))
	ring := newTestKeyRing(t, server.URL)

	now := time.Now()
	ring.WithClock(func() time.Time { return now })

	_, err := ring.Key(context.Background(), "kid-old")
	require.NoError(t, err)

	server.fail()
	now = now.Add(2 * time.Hour)
	_, err = ring.Key(context.Background(), "kid-old")
	assert.ErrorIs(t, err, identity.ErrKeySetUnavailable)

	// Provider comes back with a rotated key set.
	newKey := generateRSAKey(t)
	server.restore(jwksJSON(t, "kid-new", &newKey.PublicKey))

	got, err := ring.Key(context.Background(), "kid-new")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestKeyRingCoalescesConcurrentFetches(t *testing.T) {
	key := generateRSAKey(t)
	body := jwksJSON(t, "kid-1", &key.PublicKey)

	var fetches atomic.Int64
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		<-release
		_, _ = w.Write(body)
	}))
	defer server.Close()

	ring := newTestKeyRing(t, server.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ring.Key(context.Background(), "kid-1")
			assert.NoError(t, err)
		}()
	}

	// Give every goroutine time to reach the coalescing point, then let the
	// single in-flight request complete.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), fetches.Load(), "concurrent misses share one fetch")
}
