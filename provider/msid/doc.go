// Package msid verifies Microsoft identity platform access tokens offline.
//
// A KeyRing caches the tenant's published JWKS keyed by key-id and refreshes
// it on TTL expiry, coalescing concurrent refreshes into a single fetch. The
// TokenVerifier checks signature and expiry against those keys and extracts
// a normalized identity.ExternalIdentity.
//
// When the key set is unreachable the verifier can decode the payload
// without signature verification and flag the result as unverified. That
// path is a deliberate availability/security tradeoff and is disabled by
// default; deployments must opt in via Config.AllowUnverified.
package msid
