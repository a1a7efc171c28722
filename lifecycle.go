package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// ErrInvalidTransition is returned when a requested status change is not
// allowed by the lifecycle rules.
var ErrInvalidTransition = errors.New("invalid user status transition", errors.CategoryValidation).
	WithTextCode("invalid_status_transition").
	WithCode(errors.CodeBadRequest)

// UserLifecycle defines status transitions for users. Approval moves a
// pending account to active; suspension and reinstatement flip between
// active and suspended; an approved account never regresses to pending.
type UserLifecycle interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus, opts ...TransitionOption) (*User, error)
	CanTransition(from, to UserStatus) bool
}

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	reason   string
	metadata map[string]any
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.reason = reason
	}
}

// WithTransitionMetadata merges metadata into the recorded audit event.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata == nil {
			opts.metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata[k] = v
		}
	}
}

// LifecycleOption customizes lifecycle construction.
type LifecycleOption func(*userLifecycle)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *userLifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLifecycleSink sets the ActivitySink used to publish lifecycle events.
func WithLifecycleSink(sink ActivitySink) LifecycleOption {
	return func(l *userLifecycle) {
		l.sink = normalizeActivitySink(sink)
	}
}

// WithLifecycleLogger overrides the logger used for sink failures.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *userLifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewUserLifecycle returns the default implementation backed by the provided
// repository.
func NewUserLifecycle(users Users, opts ...LifecycleOption) UserLifecycle {
	l := &userLifecycle{
		users: users,
		transitions: map[UserStatus]map[UserStatus]struct{}{
			UserStatusPending: {
				UserStatusActive:    {},
				UserStatusSuspended: {},
			},
			UserStatusActive: {
				UserStatusSuspended: {},
			},
			UserStatusSuspended: {
				UserStatusActive: {},
			},
		},
		now:    time.Now,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

type userLifecycle struct {
	users       Users
	transitions map[UserStatus]map[UserStatus]struct{}
	now         func() time.Time
	sink        ActivitySink
	logger      Logger
}

func (l *userLifecycle) CanTransition(from, to UserStatus) bool {
	if from == to {
		return true
	}
	targets, ok := l.transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// Transition validates and persists a status change, then publishes the
// audit event. A same-status request is a no-op that skips both the write
// and the event.
func (l *userLifecycle) Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, ErrIdentityNotFound
	}

	if !IsValidStatus(target) {
		return nil, decorate(ErrInvalidTransition).WithMetadata(map[string]any{
			"target": target,
			"reason": "unknown status",
		})
	}

	from := user.Status
	if from == "" {
		from = UserStatusActive
	}

	if from == target {
		return user, nil
	}

	if !l.CanTransition(from, target) {
		return nil, decorate(ErrInvalidTransition).WithMetadata(map[string]any{
			"from":   from,
			"target": target,
		})
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	updated, err := l.users.UpdateStatus(ctx, user.ID, target)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist status transition")
	}

	event := ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		Email:      user.Email,
		FromStatus: from,
		ToStatus:   target,
		Metadata:   options.metadata,
		OccurredAt: l.now(),
	}
	if options.reason != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]any{}
		}
		event.Metadata["reason"] = options.reason
	}

	if err := l.sink.Record(ctx, event); err != nil {
		l.logger.Warn("failed to record status transition event", "error", err)
	}

	return updated, nil
}
