package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported audit categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess      ActivityEventType = "auth.login.success"
	ActivityEventLoginDenied       ActivityEventType = "auth.login.denied"
	ActivityEventUserStatusChanged ActivityEventType = "user.status.changed"
	ActivityEventUserRoleChanged   ActivityEventType = "user.role.changed"
	ActivityEventUserRemoved       ActivityEventType = "user.removed"
)

// ActorRef identifies who triggered an audited action. Type is "user" for
// session-authenticated actors and "system" for automated ones.
type ActorRef struct {
	ID   string
	Type string
}

// SystemActor is the actor recorded for actions no session initiated.
var SystemActor = ActorRef{ID: "system", Type: "system"}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Email      string
	FromStatus UserStatus
	ToStatus   UserStatus
	FromRole   UserRole
	ToRole     UserRole
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink receives audit events. Implementations must be safe for
// concurrent use; a sink failure is logged by callers, never raised into the
// request path.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function into an ActivitySink.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error { return nil }

func normalizeActivitySink(sink ActivitySink) ActivitySink {
	if sink == nil {
		return noopActivitySink{}
	}
	return sink
}

// NewLogActivitySink writes audit events through the given logger. It is the
// default sink for deployments without a dedicated audit store.
func NewLogActivitySink(logger Logger) ActivitySink {
	if logger == nil {
		logger = defLogger{}
	}
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		logger.Info("audit event",
			"type", event.EventType,
			"actor", event.Actor.ID,
			"user_id", event.UserID,
			"email", event.Email)
		return nil
	})
}
