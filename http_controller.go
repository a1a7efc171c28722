package identity

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"

	"github.com/abhinandanshahdev/go-identity/middleware/guard"
)

// AuthControllerRoutes names the paths the controller mounts.
type AuthControllerRoutes struct {
	ExternalLogin string
	Me            string
	Users         string
}

// AuthController exposes the auth core over HTTP. Everything beyond the
// external-login endpoint sits behind the guard middleware.
type AuthController struct {
	Debug     bool
	Logger    Logger
	Auther    *Auther
	Repo      RepositoryManager
	Config    Config
	Routes    *AuthControllerRoutes
	Lifecycle UserLifecycle
	Sink      ActivitySink
}

type AuthControllerOption func(*AuthController)

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) {
		c.Debug = debug
	}
}

// WithControllerActivitySink routes audit events to the given sink.
func WithControllerActivitySink(sink ActivitySink) AuthControllerOption {
	return func(c *AuthController) {
		c.Sink = normalizeActivitySink(sink)
	}
}

// WithControllerLifecycle overrides the status lifecycle.
func WithControllerLifecycle(lifecycle UserLifecycle) AuthControllerOption {
	return func(c *AuthController) {
		if lifecycle != nil {
			c.Lifecycle = lifecycle
		}
	}
}

func NewAuthController(auther *Auther, repo RepositoryManager, cfg Config, opts ...AuthControllerOption) *AuthController {
	controller := &AuthController{
		Logger: defLogger{},
		Auther: auther,
		Repo:   repo,
		Config: cfg,
		Routes: &AuthControllerRoutes{
			ExternalLogin: "/auth/microsoft",
			Me:            "/auth/me",
			Users:         "/users",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(controller)
		}
	}

	if controller.Sink == nil {
		controller.Sink = noopActivitySink{}
	}
	if controller.Lifecycle == nil {
		controller.Lifecycle = NewUserLifecycle(repo.Users(), WithLifecycleSink(controller.Sink))
	}

	return controller
}

// RegisterAuthRoutes mounts the controller onto a fiber app. The external
// login endpoint stays public; profile routes require any valid session;
// user administration requires an active admin.
func RegisterAuthRoutes(app *fiber.App, controller *AuthController) {
	sessionRequired := guard.New(guard.Config{
		TokenValidator: validatorAdapter{controller.Auther.TokenService()},
		ContextKey:     controller.Config.GetContextKey(),
		AuthScheme:     controller.Config.GetAuthScheme(),
	})

	adminRequired := guard.New(guard.Config{
		TokenValidator: validatorAdapter{controller.Auther.TokenService()},
		ContextKey:     controller.Config.GetContextKey(),
		AuthScheme:     controller.Config.GetAuthScheme(),
		MinimumRole:    RoleAdmin,
	})

	app.Post(controller.Routes.ExternalLogin, controller.ExternalLoginPost)
	app.Get(controller.Routes.Me, sessionRequired, controller.MeGet)
	app.Patch(controller.Routes.Users+"/:id/name", sessionRequired, controller.UserNamePatch)
	app.Patch(controller.Routes.Users+"/:id/role", adminRequired, controller.UserRolePatch)
	app.Patch(controller.Routes.Users+"/:id/status", adminRequired, controller.UserStatusPatch)
	app.Delete(controller.Routes.Users+"/:id", adminRequired, controller.UserDelete)
}

// validatorAdapter bridges the root TokenService onto the middleware's
// local interface.
type validatorAdapter struct {
	service TokenService
}

func (a validatorAdapter) Validate(tokenString string) (guard.AuthClaims, error) {
	claims, err := a.service.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ExternalLoginPayload is the external-login request body
type ExternalLoginPayload struct {
	AccessToken string `json:"accessToken" form:"accessToken"`
}

// Validate will validate the payload
func (p ExternalLoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.AccessToken, validation.Required),
	)
}

// UserRolePayload carries a role change
type UserRolePayload struct {
	Role string `json:"role" form:"role"`
}

func (p UserRolePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Role, validation.Required, validation.In(RoleViewer, RoleContributor, RoleAdmin)),
	)
}

// UserStatusPayload carries a status change
type UserStatusPayload struct {
	Status string `json:"status" form:"status"`
}

func (p UserStatusPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Status, validation.Required, validation.In(UserStatusPending, UserStatusActive, UserStatusSuspended)),
	)
}

// UserNamePayload carries a display-name change
type UserNamePayload struct {
	Name string `json:"name" form:"name"`
}

func (p UserNamePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 200)),
	)
}

type userResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Status string `json:"status,omitempty"`
}

func userToResponse(u *User, includeStatus bool) userResponse {
	res := userResponse{
		ID:    u.ID.String(),
		Email: u.Email,
		Name:  u.Name,
		Role:  string(u.Role),
	}
	if includeStatus {
		res.Status = string(u.Status)
	}
	return res
}

// ExternalLoginPost exchanges a Microsoft access token for an application
// session token. Authentication failures return a deliberately generic 401;
// authorization failures (pending, suspended) return their safe reason.
func (a *AuthController) ExternalLoginPost(c *fiber.Ctx) error {
	payload := ExternalLoginPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "accessToken is required"})
	}

	token, user, err := a.Auther.ExternalLogin(c.Context(), payload.AccessToken)
	if err != nil {
		return a.loginError(c, err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  userToResponse(user, false),
	})
}

// MeGet returns the caller's own record. This is the one read a pending
// account is allowed.
func (a *AuthController) MeGet(c *fiber.Ctx) error {
	_, user, err := a.actingUser(c)
	if err != nil {
		return a.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"user": userToResponse(user, true)})
}

// UserNamePatch lets a user rename themselves.
func (a *AuthController) UserNamePatch(c *fiber.Ctx) error {
	claims, actor, err := a.actingUser(c)
	if err != nil {
		return a.errorResponse(c, err)
	}

	// Pending accounts may read their profile but not mutate it.
	if err := RequireActiveStatus(actor); err != nil {
		return a.errorResponse(c, err)
	}

	targetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	// Display name is owner-mutable only.
	if claims.UserID() != targetID.String() {
		return a.errorResponse(c, ErrForbidden)
	}

	payload := UserNamePayload{}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	user, err := a.Repo.Users().UpdateName(c.Context(), targetID, payload.Name)
	if err != nil {
		return a.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"user": userToResponse(user, true)})
}

// UserRolePatch changes a user's role. Self-demotion is structurally
// rejected; a self "set to admin" stays a legal no-op.
func (a *AuthController) UserRolePatch(c *fiber.Ctx) error {
	_, actor, err := a.activeAdmin(c)
	if err != nil {
		return a.errorResponse(c, err)
	}

	payload := UserRolePayload{}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	target, err := a.targetUser(c)
	if err != nil {
		return a.errorResponse(c, err)
	}

	role := NormalizeRole(payload.Role)
	if err := EnsureCanChangeRole(actor.ID.String(), target, role); err != nil {
		return a.errorResponse(c, err)
	}

	user, err := a.Repo.Users().UpdateRole(c.Context(), target.ID, role)
	if err != nil {
		return a.errorResponse(c, err)
	}

	a.recordEvent(c, ActivityEvent{
		EventType: ActivityEventUserRoleChanged,
		Actor:     ActorRef{ID: actor.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Email:     user.Email,
		FromRole:  target.Role,
		ToRole:    user.Role,
	})

	return c.JSON(fiber.Map{"user": userToResponse(user, true)})
}

// UserStatusPatch changes a user's status. Self-suspension is structurally
// rejected.
func (a *AuthController) UserStatusPatch(c *fiber.Ctx) error {
	_, actor, err := a.activeAdmin(c)
	if err != nil {
		return a.errorResponse(c, err)
	}

	payload := UserStatusPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	target, err := a.targetUser(c)
	if err != nil {
		return a.errorResponse(c, err)
	}

	if payload.Status == UserStatusSuspended {
		if err := EnsureCanSuspend(actor.ID.String(), target); err != nil {
			return a.errorResponse(c, err)
		}
	}

	user, err := a.Lifecycle.Transition(c.Context(),
		ActorRef{ID: actor.ID.String(), Type: "user"}, target, payload.Status)
	if err != nil {
		return a.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"user": userToResponse(user, true)})
}

// UserDelete removes a user. Self-deletion is structurally rejected.
func (a *AuthController) UserDelete(c *fiber.Ctx) error {
	_, actor, err := a.activeAdmin(c)
	if err != nil {
		return a.errorResponse(c, err)
	}

	target, err := a.targetUser(c)
	if err != nil {
		return a.errorResponse(c, err)
	}

	if err := EnsureCanDelete(actor.ID.String(), target); err != nil {
		return a.errorResponse(c, err)
	}

	if err := a.Repo.Users().Remove(c.Context(), target.ID); err != nil {
		return a.errorResponse(c, err)
	}

	a.recordEvent(c, ActivityEvent{
		EventType: ActivityEventUserRemoved,
		Actor:     ActorRef{ID: actor.ID.String(), Type: "user"},
		UserID:    target.ID.String(),
		Email:     target.Email,
	})

	return c.SendStatus(fiber.StatusNoContent)
}

// actingUser resolves the validated claims plus the caller's fresh record.
// The record re-fetch is deliberate: the token's role snapshot must not
// authorize status-sensitive operations.
func (a *AuthController) actingUser(c *fiber.Ctx) (AuthClaims, *User, error) {
	raw, ok := guard.ClaimsFromContext(c, a.Config.GetContextKey())
	if !ok {
		return nil, nil, ErrUnauthorized
	}

	claims, ok := raw.(AuthClaims)
	if !ok {
		return nil, nil, ErrUnauthorized
	}

	user, err := a.Auther.UserFromClaims(c.Context(), claims)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}

	return claims, user, nil
}

// activeAdmin gates the administrative routes on fresh role AND status.
func (a *AuthController) activeAdmin(c *fiber.Ctx) (AuthClaims, *User, error) {
	claims, actor, err := a.actingUser(c)
	if err != nil {
		return nil, nil, err
	}

	if err := RequireActiveStatus(actor); err != nil {
		return nil, nil, err
	}

	if !RoleAtLeast(actor.Role, RoleAdmin) {
		return nil, nil, ErrForbidden
	}

	return claims, actor, nil
}

func (a *AuthController) targetUser(c *fiber.Ctx) (*User, error) {
	targetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, ErrIdentityNotFound
	}

	target, err := a.Repo.Users().FindByID(c.Context(), targetID)
	if err != nil {
		return nil, ErrIdentityNotFound
	}

	return target, nil
}

// recordEvent publishes an audit event; sink failures are logged, never
// surfaced to the client.
func (a *AuthController) recordEvent(c *fiber.Ctx, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := a.Sink.Record(c.Context(), event); err != nil {
		a.Logger.Warn("failed to record audit event", "type", event.EventType, "error", err)
	}
}

// loginError keeps authentication failures generic on the wire while the
// authorization gates (pending, suspended) surface their safe reason.
func (a *AuthController) loginError(c *fiber.Ctx, err error) error {
	richErr := AsRichError(err)

	if a.Debug {
		a.Logger.Debug("external login error", "details", print.MaybePrettyJSON(richErr.Metadata))
	}

	switch richErr.Category {
	case errors.CategoryAuthz:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": richErr.Message})
	case errors.CategoryAuth:
		a.Logger.Warn("external login rejected", "text_code", richErr.TextCode)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication failed"})
	default:
		a.Logger.Error("external login failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

func (a *AuthController) errorResponse(c *fiber.Ctx, err error) error {
	richErr := AsRichError(err)

	status := fiber.StatusInternalServerError
	switch richErr.Category {
	case errors.CategoryAuth:
		status = fiber.StatusUnauthorized
	case errors.CategoryAuthz:
		status = fiber.StatusForbidden
	case errors.CategoryNotFound:
		status = fiber.StatusNotFound
	case errors.CategoryValidation, errors.CategoryBadInput:
		status = fiber.StatusBadRequest
	case errors.CategoryConflict:
		status = fiber.StatusConflict
	}

	if status == fiber.StatusInternalServerError {
		a.Logger.Error("request failed", "error", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}

	return c.Status(status).JSON(fiber.Map{"error": richErr.Message})
}
