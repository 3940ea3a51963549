package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"taskdeck/internal/auth"
	apierrors "taskdeck/internal/errors"
	"taskdeck/internal/middleware"
)

var validate = validator.New()

// AuthHandler handles login and credential verification
type AuthHandler struct {
	service    *auth.Service
	cookieName string
	logger     *slog.Logger
}

// NewAuthHandler creates the auth handler
func NewAuthHandler(service *auth.Service, cookieName string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:    service,
		cookieName: cookieName,
		logger:     logger.With(slog.String("handler", "auth")),
	}
}

// LoginRequest is the POST /api/auth/login payload
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Bind implements render.Binder
func (l *LoginRequest) Bind(r *http.Request) error {
	return validate.Struct(l)
}

// LoginResponse carries the issued credential and its identity
type LoginResponse struct {
	User       auth.Identity `json:"user"`
	Credential string        `json:"credential"`
}

// VerifyResponse carries the identity recovered from a credential
type VerifyResponse struct {
	User auth.Identity `json:"user"`
}

// Routes returns the auth endpoints
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	r.Get("/verify", h.Verify)
	return r
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &LoginRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	identity, credential, err := h.service.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			render.Render(w, r, apierrors.NewErrorResponse(
				apierrors.New(http.StatusUnauthorized, "AUTH_INVALID", "Invalid username or password")))
			return
		}
		h.logger.ErrorContext(ctx, "login failed",
			slog.String("username", req.Username),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}

	// The cookie is the fallback transport for browser requests that
	// cannot set the Authorization header.
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    credential,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	render.JSON(w, r, LoginResponse{User: identity, Credential: credential})
}

// Verify handles GET /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	credential := middleware.ExtractCredential(r, h.cookieName)
	if credential == "" {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrAuthRequired))
		return
	}

	identity := h.service.Verify(credential)
	if identity == nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrAuthInvalid))
		return
	}

	render.JSON(w, r, VerifyResponse{User: *identity})
}
