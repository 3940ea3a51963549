package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"taskdeck/internal/auth"
	apierrors "taskdeck/internal/errors"
	"taskdeck/internal/license"
)

// CredentialVerifier recovers the identity from a session credential,
// or nil. Implemented by auth.Codec.
type CredentialVerifier interface {
	Verify(credential string) *auth.Identity
}

// AccessChecker decides whether a mutating request from a username may
// proceed. Implemented by license.Service.
type AccessChecker interface {
	CheckAccess(ctx context.Context, username string) error
}

// Gate is the enforcement point for the credential and unlock checks.
// Every request behind it needs a valid credential; mutating requests
// additionally need an active trial or a re-validated unlock record.
type Gate struct {
	verifier   CredentialVerifier
	checker    AccessChecker
	cookieName string
	logger     *slog.Logger
	metrics    *GateMetrics
}

// GateMetrics holds the gate's OpenTelemetry counters
type GateMetrics struct {
	RequestsTotal metric.Int64Counter
	Passed        metric.Int64Counter
	Rejected      metric.Int64Counter
}

// NewGateMetrics registers the gate counters on the given meter
func NewGateMetrics(meter metric.Meter) (*GateMetrics, error) {
	requests, err := meter.Int64Counter("gate_requests_total",
		metric.WithDescription("Requests evaluated by the unlock gate"))
	if err != nil {
		return nil, err
	}
	passed, err := meter.Int64Counter("gate_passed_total",
		metric.WithDescription("Requests accepted by the unlock gate"))
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("gate_rejected_total",
		metric.WithDescription("Requests rejected by the unlock gate"))
	if err != nil {
		return nil, err
	}
	return &GateMetrics{RequestsTotal: requests, Passed: passed, Rejected: rejected}, nil
}

// NewGate creates the gate middleware
func NewGate(verifier CredentialVerifier, checker AccessChecker, cookieName string, logger *slog.Logger) *Gate {
	return &Gate{
		verifier:   verifier,
		checker:    checker,
		cookieName: cookieName,
		logger:     logger.With(slog.String("component", "gate")),
	}
}

// SetMetrics attaches OpenTelemetry counters to the gate
func (g *Gate) SetMetrics(m *GateMetrics) {
	g.metrics = m
}

// Handler evaluates the gate state machine for each request:
// missing credential, invalid credential, read bypass, explicit
// exemption, trial window, then ledger re-validation.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		op := OperationFromContext(ctx)

		if g.metrics != nil {
			g.metrics.RequestsTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("operation", op.String())))
		}

		credential := ExtractCredential(r, g.cookieName)
		if credential == "" {
			g.reject(w, r, apierrors.ErrAuthRequired, "auth_required")
			return
		}

		identity := g.verifier.Verify(credential)
		if identity == nil {
			g.reject(w, r, apierrors.ErrAuthInvalid, "auth_invalid")
			return
		}
		ctx = WithIdentity(ctx, identity)
		r = r.WithContext(ctx)

		if op == OpRead || IsExempt(ctx) {
			g.pass(ctx)
			next.ServeHTTP(w, r)
			return
		}

		if err := g.checker.CheckAccess(ctx, identity.Username); err != nil {
			switch {
			case errors.Is(err, license.ErrUnlockRequired):
				g.logger.InfoContext(ctx, "mutating request blocked, unlock required",
					slog.String("username", identity.Username),
					slog.String("path", r.URL.Path))
				g.reject(w, r, apierrors.ErrUnlockRequired, "unlock_required")
			case errors.Is(err, license.ErrValidationFailed):
				g.logger.WarnContext(ctx, "mutating request blocked, unlock record failed re-validation",
					slog.String("username", identity.Username),
					slog.String("path", r.URL.Path))
				g.reject(w, r, apierrors.ErrValidationMismatch, "validation_failed")
			default:
				g.logger.ErrorContext(ctx, "gate access check failed",
					slog.String("username", identity.Username),
					slog.String("error", err.Error()))
				g.reject(w, r, apierrors.ErrInternalServer, "internal_error")
			}
			return
		}

		g.pass(ctx)
		next.ServeHTTP(w, r)
	})
}

// ExtractCredential reads the credential from the Authorization header
// or, failing that, the named session cookie. The header wins when
// both are present; a malformed header does not fall back.
func ExtractCredential(r *http.Request, cookieName string) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func (g *Gate) pass(ctx context.Context) {
	if g.metrics != nil {
		g.metrics.Passed.Add(ctx, 1)
	}
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError, reason string) {
	if g.metrics != nil {
		g.metrics.Rejected.Add(r.Context(), 1, metric.WithAttributes(
			attribute.String("reason", reason)))
	}
	apierrors.WriteError(w, apiErr)
}
