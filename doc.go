// Package identity implements the identity and access-control core for an
// administrative catalog application: session token issuance, offline
// verification of Microsoft-issued access tokens against rotating JWKS keys,
// and reconciliation of user role/status from an admin allow-list.
//
// User lifecycle:
//   - Users carry a UserStatus field persisted via Bun. Statuses cover the
//     pending, active, and suspended flows; pending users have no
//     authorization beyond reading their own profile, suspended users have
//     none at all regardless of role.
//   - Reconciler derives the authoritative (role, status) pair from a
//     verified external identity. The admin allow-list is the only source of
//     automatic elevation; directory role claims never out-rank it.
//
// Token trust:
//   - Session tokens are HS256 JWTs signed with process-held secrets and are
//     fully stateless. Callers that need up-to-date role/status must re-fetch
//     the User record; a token can outlive a suspension.
//   - External tokens verify against the provider JWKS through a KeyRing.
//     When the key set is unreachable the verifier can degrade to an
//     unverified decode, but only when explicitly enabled; the default fails
//     closed.
//
// Self-protection:
//   - Guard predicates reject suspend, delete, and demote operations where
//     the actor is the target, so a single bad request can never strand the
//     system without an active admin.
package identity
