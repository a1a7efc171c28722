package identity

import (
	"context"
	"time"
)

// IdentityReconciler synchronizes a persisted user record with an external
// identity assertion.
type IdentityReconciler interface {
	Reconcile(ctx context.Context, ext ExternalIdentity, trust Trust) (*User, error)
}

// Auther orchestrates external-identity login: offline verification of the
// provider token, reconciliation of the persisted record, the status gate,
// and issuance of an application session token.
type Auther struct {
	verifier     ExternalTokenVerifier
	reconciler   IdentityReconciler
	repo         RepositoryManager
	tokenService TokenService
	logger       Logger
	sink         ActivitySink
}

// NewAuthenticator returns a new Auther
func NewAuthenticator(verifier ExternalTokenVerifier, reconciler IdentityReconciler, repo RepositoryManager, tokenService TokenService) *Auther {
	return &Auther{
		verifier:     verifier,
		reconciler:   reconciler,
		repo:         repo,
		tokenService: tokenService,
		logger:       defLogger{},
		sink:         noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink routes login audit events to the given sink.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.sink = normalizeActivitySink(sink)
	return s
}

// TokenService returns the TokenService instance used by this Auther
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// ExternalLogin validates a provider access token and exchanges it for an
// application session token plus the persisted user record. The token is
// issued from the post-reconciliation record, never from the login-time
// snapshot, so a just-applied allow-list elevation is already visible.
func (s *Auther) ExternalLogin(ctx context.Context, rawToken string) (string, *User, error) {
	ext, trust, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		s.logger.Error("ExternalLogin verification failed", "error", err)
		return "", nil, err
	}

	if trust == TrustUnverified {
		// Deliberate availability/security tradeoff: the key set was
		// unreachable and degraded mode is enabled. The identity is
		// non-authoritative for privilege escalation.
		s.logger.Warn("ExternalLogin proceeding with UNVERIFIED token claims",
			"email", ext.Email, "subject", ext.SubjectID)
	}

	user, err := s.reconciler.Reconcile(ctx, *ext, trust)
	if err != nil {
		s.logger.Error("ExternalLogin reconciliation failed", "error", err, "email", ext.Email)
		return "", nil, err
	}

	// Pending accounts still receive a session so they can read their own
	// profile; everything else stays gated. Suspension revokes login.
	if user.Status == UserStatusSuspended {
		s.logger.Warn("ExternalLogin blocked, account suspended", "email", user.Email)
		s.recordLogin(ctx, ActivityEventLoginDenied, user)
		return "", nil, ErrUserSuspended
	}

	token, err := s.tokenService.Issue(IdentityFromUser(user))
	if err != nil {
		s.logger.Error("ExternalLogin failed to issue session token", "error", err)
		return "", nil, err
	}

	s.recordLogin(ctx, ActivityEventLoginSuccess, user)

	return token, user, nil
}

func (s *Auther) recordLogin(ctx context.Context, eventType ActivityEventType, user *User) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		Email:      user.Email,
		OccurredAt: time.Now(),
	}
	if err := s.sink.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record login event", "type", eventType, "error", err)
	}
}

// SessionFromToken validates an application session token and returns its
// claims. Pure signature+expiry check; no directory lookup happens here.
func (s *Auther) SessionFromToken(raw string) (AuthClaims, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed", "error", err)
		return nil, err
	}

	return claims, nil
}

// UserFromClaims re-fetches the persisted record behind validated claims.
// Status-sensitive operations must use this rather than the token's embedded
// role: tokens can outlive a suspension.
func (s *Auther) UserFromClaims(ctx context.Context, claims AuthClaims) (*User, error) {
	if claims == nil {
		return nil, ErrUnauthorized
	}

	user, err := s.repo.Users().GetByEmail(ctx, claims.UserEmail())
	if err != nil {
		s.logger.Error("UserFromClaims lookup failed", "error", err)
		return nil, ErrIdentityNotFound
	}

	return user, nil
}
