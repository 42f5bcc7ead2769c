package main

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"hearme/internal/auth"
	"hearme/internal/bootstrap"
	"hearme/internal/domain"
	"hearme/internal/usecase"
)

const (
	localIdentity = "identity"
	localToken    = "token"

	sessionCookie = "hearme_session"
	stateCookie   = "hearme_oauth_state"

	maxBodyBytes = 2 << 20
)

// App is the HTTP and websocket surface of the server.
type App struct {
	services *bootstrap.Services
	log      zerolog.Logger
	fiber    *fiber.App
}

func NewApp(services *bootstrap.Services) *App {
	a := &App{
		services: services,
		log:      services.Log.With().Str("component", "http").Logger(),
	}
	a.fiber = fiber.New(fiber.Config{
		AppName:               "hearme",
		BodyLimit:             maxBodyBytes,
		DisableStartupMessage: true,
		ErrorHandler:          a.handleError,
	})
	a.routes()
	return a
}

func (a *App) Listen(addr string) error {
	return a.fiber.Listen(addr)
}

func (a *App) Shutdown(timeout time.Duration) error {
	return a.fiber.ShutdownWithTimeout(timeout)
}

func (a *App) routes() {
	r := a.fiber

	r.Get("/health", a.health)

	r.Post("/api/auth/signup", a.signUp)
	r.Post("/api/auth/login", a.signIn)
	r.Post("/api/auth/logout", a.requireAuth, a.signOut)
	r.Get("/api/auth/me", a.requireAuth, a.me)
	r.Get("/auth/google/login", a.googleLogin)
	r.Get("/auth/google/callback", a.googleCallback)

	api := r.Group("/api", a.requireAuth)
	api.Get("/profile", a.profile)
	api.Put("/profile/name", a.rename)
	api.Put("/profile/avatar", a.avatar)
	api.Get("/phrases", a.phrases)
	api.Get("/transcripts", a.transcripts)
	api.Get("/recordings/:name", a.recording)
	api.Get("/admin/overview", a.adminOverview)
	api.Delete("/admin/posts/:id", a.adminDeletePost)
	api.Put("/admin/users/:uid/role", a.adminChangeRole)

	ws := r.Group("/ws", a.requireUpgrade, a.requireAuth)
	ws.Get("/captions", websocket.New(a.captionSocket))
	ws.Get("/feed", websocket.New(a.feedSocket))
	ws.Get("/recorder", websocket.New(a.recorderSocket))
}

// bearerToken reads the session token from the Authorization header, the
// token query parameter (browser websockets cannot set headers) or the
// session cookie.
func bearerToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := c.Query("token"); token != "" {
		return token
	}
	return c.Cookies(sessionCookie)
}

func (a *App) requireAuth(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return domain.NewAuthError(domain.AuthInvalidToken)
	}
	identity, err := a.services.Accounts.Current(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(localIdentity, identity)
	c.Locals(localToken, token)
	return c.Next()
}

func (a *App) requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func identityOf(c *fiber.Ctx) domain.Identity {
	return identityValue(c.Locals(localIdentity))
}

func identityValue(v any) domain.Identity {
	identity, _ := v.(domain.Identity)
	return identity
}

func (a *App) setSession(c *fiber.Ctx, session usecase.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    session.Token,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(a.services.Config.Auth.TokenTTL),
	})
}

func (a *App) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"captions": a.services.CaptionsAvailable(),
		"google":   a.services.Google != nil,
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return domain.NewValidationError("body", "invalid request body")
	}
	return nil
}

func (a *App) signUp(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	session, err := a.services.Accounts.SignUp(c.UserContext(), req.Email, req.Password, req.Confirm)
	if err != nil {
		return err
	}
	a.setSession(c, session)
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (a *App) signIn(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	session, err := a.services.Accounts.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	a.setSession(c, session)
	return c.JSON(session)
}

func (a *App) signOut(c *fiber.Ctx) error {
	token, _ := c.Locals(localToken).(string)
	if err := a.services.Accounts.SignOut(c.UserContext(), token); err != nil {
		return err
	}
	c.ClearCookie(sessionCookie)
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *App) me(c *fiber.Ctx) error {
	return c.JSON(identityOf(c))
}

func (a *App) googleLogin(c *fiber.Ctx) error {
	if a.services.Google == nil {
		return fiber.NewError(fiber.StatusNotFound, "Google sign-in is not configured")
	}
	state, err := auth.NewState()
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/google",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	})
	return c.Redirect(a.services.Google.AuthCodeURL(state), fiber.StatusTemporaryRedirect)
}

func (a *App) googleCallback(c *fiber.Ctx) error {
	if a.services.Google == nil {
		return fiber.NewError(fiber.StatusNotFound, "Google sign-in is not configured")
	}
	state := c.Query("state")
	if state == "" || state != c.Cookies(stateCookie) {
		return domain.NewValidationError("state", "Sign-in expired. Please try again.")
	}
	c.ClearCookie(stateCookie)

	ctx := c.UserContext()
	profile, err := a.services.Google.Exchange(ctx, c.Query("code"))
	if err != nil {
		return domain.NewBackendError("google sign-in", err)
	}
	identity, err := a.services.Auth.SignInFederated(ctx, profile.Email, auth.ProviderGoogle)
	if err != nil {
		return err
	}
	session, err := a.services.Accounts.SignInExternal(ctx, identity, profile.Name)
	if err != nil {
		return err
	}
	a.setSession(c, session)
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (a *App) profile(c *fiber.Ctx) error {
	user, err := a.services.Profiles.Load(c.UserContext(), identityOf(c))
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (a *App) rename(c *fiber.Ctx) error {
	var req struct {
		DisplayName string `json:"displayName"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	identity := identityOf(c)
	updated, err := a.services.Profiles.Rename(c.UserContext(), identity.UserID, req.DisplayName)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"displayName": strings.TrimSpace(req.DisplayName), "postsUpdated": updated})
}

func (a *App) avatar(c *fiber.Ctx) error {
	identity := identityOf(c)
	contentType, _, _ := strings.Cut(c.Get(fiber.HeaderContentType), ";")
	url, err := a.services.Profiles.SetAvatar(c.UserContext(), identity.UserID, strings.TrimSpace(contentType), c.Body())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"photoData": url})
}

func (a *App) phrases(c *fiber.Ctx) error {
	return c.JSON(usecase.Phrases())
}

func (a *App) transcripts(c *fiber.Ctx) error {
	identity := identityOf(c)
	list, err := usecase.ListTranscripts(c.UserContext(), a.services.Backend.Store, identity.UserID)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (a *App) recording(c *fiber.Ctx) error {
	name := c.Params("name")
	identity := identityOf(c)
	rc, err := a.services.Backend.Files.Open(c.UserContext(), usecase.RecordingKey(identity.UserID, name))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "audio/flac")
	c.Attachment(name)
	return c.SendStream(rc)
}

func (a *App) adminOverview(c *fiber.Ctx) error {
	overview, err := a.services.Admin.Overview(c.UserContext(), identityOf(c))
	if err != nil {
		return err
	}
	return c.JSON(overview)
}

func (a *App) adminDeletePost(c *fiber.Ctx) error {
	if err := a.services.Admin.DeletePost(c.UserContext(), identityOf(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *App) adminChangeRole(c *fiber.Ctx) error {
	var req struct {
		Role domain.Role `json:"role"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := a.services.Admin.ChangeRole(c.UserContext(), identityOf(c), c.Params("uid"), req.Role); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// handleError maps domain errors onto HTTP status codes and the messages
// shown to users.
func (a *App) handleError(c *fiber.Ctx, err error) error {
	status, body := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		a.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(body)
}

func errorStatus(err error) (int, errorResponse) {
	var (
		authErr    *domain.AuthError
		validation *domain.ValidationError
		fiberErr   *fiber.Error
	)
	switch {
	case errors.As(err, &authErr):
		status := fiber.StatusUnauthorized
		if authErr.Code == domain.AuthTooManyRequests {
			status = fiber.StatusTooManyRequests
		} else if authErr.Code == domain.AuthEmailInUse {
			status = fiber.StatusConflict
		} else if authErr.Code == domain.AuthInvalidEmail || authErr.Code == domain.AuthWeakPassword {
			status = fiber.StatusBadRequest
		}
		return status, errorResponse{Error: domain.AuthMessage(err), Code: string(authErr.Code)}
	case errors.As(err, &validation):
		return fiber.StatusBadRequest, errorResponse{Error: validation.Message, Code: string(domain.ErrorCodeValidation)}
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden, errorResponse{Error: "You do not have access to this page."}
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, errorResponse{Error: "Not found."}
	case errors.Is(err, domain.ErrUnsupportedEnvironment):
		return fiber.StatusServiceUnavailable, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrBackend):
		return fiber.StatusBadGateway, errorResponse{Error: "Something went wrong. Please try again."}
	case errors.As(err, &fiberErr):
		return fiberErr.Code, errorResponse{Error: fiberErr.Message}
	default:
		return fiber.StatusInternalServerError, errorResponse{Error: "Something went wrong. Please try again."}
	}
}
