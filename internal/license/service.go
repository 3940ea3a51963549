package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"taskdeck/internal/auth"
	"taskdeck/internal/security"
	"taskdeck/internal/store"
)

const (
	// dateLayout is the 8-digit calendar date embedded in unlock codes
	dateLayout = "20060102"

	// codeSeparator joins the two base64 halves of an unlock code in
	// the ledger. It cannot occur inside standard base64, so the
	// stored string splits unambiguously.
	codeSeparator = ":"
)

// Typed failures of the unlock flow and the access check. Handlers and
// the gate map these onto the HTTP error taxonomy.
var (
	// ErrMalformedPayload means the decrypted plaintext was not an
	// exact (username, yyyyMMdd) pair.
	ErrMalformedPayload = errors.New("license: unlock code payload is malformed")

	// ErrIdentityMismatch means the code embeds a different username
	// than the caller's session identity.
	ErrIdentityMismatch = errors.New("license: cannot unlock another identity")

	// ErrStaleDate means the code's embedded date is not today.
	ErrStaleDate = errors.New("license: unlock code is not valid today")

	// ErrUnlockRequired means the trial has ended and no unlock
	// record exists for the identity.
	ErrUnlockRequired = errors.New("license: trial ended, unlock required")

	// ErrValidationFailed means a stored unlock record failed
	// re-validation: decrypt failure, malformed plaintext, or any
	// mismatch between the plaintext, the record, and the identity.
	ErrValidationFailed = errors.New("license: unlock validation failed")
)

// Service composes the hybrid decryption engine, the trial clock, and
// the unlock ledger into the unlock flow and the per-request access
// check.
type Service struct {
	engine *security.Engine
	store  *store.Store
	trial  *TrialClock
	clock  Clock
	logger *slog.Logger
}

// NewService creates the license service
func NewService(engine *security.Engine, st *store.Store, trial *TrialClock, clock Clock, logger *slog.Logger) *Service {
	return &Service{
		engine: engine,
		store:  st,
		trial:  trial,
		clock:  clock,
		logger: logger.With(slog.String("component", "license_service")),
	}
}

// TrialClock exposes the trial clock for status composition
func (s *Service) TrialClock() *TrialClock { return s.trial }

// Activate runs the unlock flow for the caller: decrypt the code,
// check the embedded identity and date, and commit the record to the
// ledger. Returns the decrypted plaintext on success. The ledger is
// only written after every check passes; a rejected code leaves no
// trace.
func (s *Service) Activate(ctx context.Context, identity auth.Identity, wrapped, payload string) (string, error) {
	plaintext, err := s.engine.Decrypt(wrapped, payload)
	if err != nil {
		s.logger.WarnContext(ctx, "unlock code decryption failed",
			slog.String("username", identity.Username))
		return "", err
	}

	username, date, err := splitPlaintext(plaintext)
	if err != nil {
		s.logger.WarnContext(ctx, "unlock code payload malformed",
			slog.String("username", identity.Username))
		return "", err
	}

	if username != identity.Username {
		s.logger.WarnContext(ctx, "unlock code identity mismatch",
			slog.String("session_username", identity.Username))
		return "", ErrIdentityMismatch
	}

	today := s.clock.Now().Format(dateLayout)
	if date != today {
		s.logger.WarnContext(ctx, "unlock code date is stale",
			slog.String("username", identity.Username),
			slog.String("embedded_date", date),
			slog.String("today", today))
		return "", ErrStaleDate
	}

	rec := store.UnlockRecord{
		Username:   username,
		Date:       date,
		UnlockCode: wrapped + codeSeparator + payload,
	}
	if err := s.store.UpsertUnlock(ctx, rec); err != nil {
		return "", fmt.Errorf("license: committing unlock record: %w", err)
	}

	s.logger.InfoContext(ctx, "unlock committed",
		slog.String("username", username),
		slog.String("date", date))
	return plaintext, nil
}

// CheckAccess decides whether a mutating request from username may
// proceed. Returns nil to accept, ErrUnlockRequired when the trial has
// ended with no record, or ErrValidationFailed when the stored record
// does not re-validate.
func (s *Service) CheckAccess(ctx context.Context, username string) error {
	inTrial, err := s.trial.InTrialPeriod(ctx)
	if err != nil {
		return err
	}
	if inTrial {
		return nil
	}

	rec, err := s.store.GetUnlock(ctx, username)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrUnlockRequired
	}

	return s.revalidate(ctx, username, rec)
}

// revalidate decrypts the stored unlock code and checks that the
// plaintext, the record, and the session identity all agree. Running
// this on every gated request means a corrupted or foreign stored code
// silently re-locks the account.
func (s *Service) revalidate(ctx context.Context, username string, rec *store.UnlockRecord) error {
	parts := strings.Split(rec.UnlockCode, codeSeparator)
	if len(parts) != 2 {
		return ErrValidationFailed
	}

	plaintext, err := s.engine.Decrypt(parts[0], parts[1])
	if err != nil {
		return ErrValidationFailed
	}

	decryptedUsername, decryptedDate, err := splitPlaintext(plaintext)
	if err != nil {
		return ErrValidationFailed
	}

	if decryptedUsername != username || decryptedDate != rec.Date || decryptedUsername != rec.Username {
		s.logger.WarnContext(ctx, "stored unlock record failed re-validation",
			slog.String("username", username))
		return ErrValidationFailed
	}
	return nil
}

// Status is the composite unlock state reported by GET /api/unlock-status
type Status struct {
	Unlocked        bool   `json:"unlocked"`
	TrialPeriod     bool   `json:"trialPeriod"`
	HasUnlockRecord bool   `json:"hasUnlockRecord"`
	RemainingDays   int    `json:"remainingDays"`
	Message         string `json:"message"`
}

// Status composes the trial clock and the ledger into the read-only
// unlock state for username.
func (s *Service) Status(ctx context.Context, username string) (Status, error) {
	base, err := s.trial.BaseTime(ctx)
	if err != nil {
		return Status{}, err
	}

	now := s.clock.Now()
	inTrial := !now.After(base.Add(TrialPeriod))
	remaining := RemainingDays(base, now)

	rec, err := s.store.GetUnlock(ctx, username)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		TrialPeriod:     inTrial,
		HasUnlockRecord: rec != nil,
		RemainingDays:   remaining,
	}

	recordValid := rec != nil && s.revalidate(ctx, username, rec) == nil
	st.Unlocked = inTrial || recordValid

	switch {
	case recordValid:
		st.Message = "unlocked"
	case inTrial:
		st.Message = fmt.Sprintf("trial active, %d day(s) remaining", remaining)
	case rec != nil:
		st.Message = "unlock record is invalid, a new unlock code is required"
	default:
		st.Message = "trial ended, unlock required"
	}
	return st, nil
}

// splitPlaintext parses "username,yyyyMMdd" and validates the date
// shape. Any other shape is malformed.
func splitPlaintext(plaintext string) (username, date string, err error) {
	parts := strings.Split(plaintext, ",")
	if len(parts) != 2 {
		return "", "", ErrMalformedPayload
	}
	username, date = parts[0], parts[1]
	if username == "" || !isEightDigits(date) {
		return "", "", ErrMalformedPayload
	}
	return username, date, nil
}

func isEightDigits(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
