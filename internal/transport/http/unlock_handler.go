package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "taskdeck/internal/errors"
	"taskdeck/internal/license"
	"taskdeck/internal/middleware"
	"taskdeck/internal/security"
)

// UnlockHandler handles unlock code submission and unlock status
type UnlockHandler struct {
	service *license.Service
	logger  *slog.Logger
}

// NewUnlockHandler creates the unlock handler
func NewUnlockHandler(service *license.Service, logger *slog.Logger) *UnlockHandler {
	return &UnlockHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "unlock")),
	}
}

// UnlockRequest is the POST /api/decrypt payload. Both fields are
// base64 strings produced by the code vendor.
type UnlockRequest struct {
	EncryptedAesKeyAndIv string `json:"encryptedAesKeyAndIv" validate:"required"`
	EncryptedData        string `json:"encryptedData" validate:"required"`
}

// Bind implements render.Binder
func (u *UnlockRequest) Bind(r *http.Request) error {
	return validate.Struct(u)
}

// UnlockResponse echoes the decrypted plaintext back to the caller
type UnlockResponse struct {
	DecryptedData string `json:"decryptedData"`
	Unlocked      bool   `json:"unlocked"`
}

// Decrypt handles POST /api/decrypt
func (h *UnlockHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := middleware.IdentityFromContext(ctx)
	if identity == nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrAuthRequired))
		return
	}

	req := &UnlockRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	plaintext, err := h.service.Activate(ctx, *identity, req.EncryptedAesKeyAndIv, req.EncryptedData)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrDecryptionFailed):
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrDecryptionFailed))
		case errors.Is(err, license.ErrMalformedPayload):
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrMalformedCode))
		case errors.Is(err, license.ErrIdentityMismatch):
			render.Render(w, r, apierrors.NewErrorResponse(
				apierrors.ValidationMismatch("cannot unlock another identity")))
		case errors.Is(err, license.ErrStaleDate):
			render.Render(w, r, apierrors.NewErrorResponse(
				apierrors.ValidationMismatch("unlock code is not valid today")))
		default:
			h.logger.ErrorContext(ctx, "unlock activation failed",
				slog.String("username", identity.Username),
				slog.String("error", err.Error()))
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		}
		return
	}

	render.JSON(w, r, UnlockResponse{DecryptedData: plaintext, Unlocked: true})
}

// Status handles GET /api/unlock-status
func (h *UnlockHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := middleware.IdentityFromContext(ctx)
	if identity == nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrAuthRequired))
		return
	}

	status, err := h.service.Status(ctx, identity.Username)
	if err != nil {
		h.logger.ErrorContext(ctx, "unlock status lookup failed",
			slog.String("username", identity.Username),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}

	render.JSON(w, r, status)
}
