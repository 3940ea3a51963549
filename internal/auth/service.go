package auth

import (
	"context"
	"errors"
	"log/slog"
)

// ErrBadCredentials is returned by UserDirectory implementations when
// the username is unknown or the password does not match. Handlers map
// it to 401 without distinguishing the two cases.
var ErrBadCredentials = errors.New("auth: invalid username or password")

// UserDirectory is the boundary to the user-account store, which owns
// account records and password hashes. The store package ships the
// sqlite-backed implementation used by the packaged desktop build.
type UserDirectory interface {
	// Authenticate checks the password for username and returns the
	// account's identity. Returns ErrBadCredentials on any mismatch.
	Authenticate(ctx context.Context, username, password string) (Identity, error)
}

// Service performs login and credential verification for the HTTP
// layer.
type Service struct {
	codec     *Codec
	directory UserDirectory
	logger    *slog.Logger
}

// NewService creates an auth service
func NewService(codec *Codec, directory UserDirectory, logger *slog.Logger) *Service {
	return &Service{
		codec:     codec,
		directory: directory,
		logger:    logger.With(slog.String("component", "auth_service")),
	}
}

// Login authenticates the user and issues a session credential
func (s *Service) Login(ctx context.Context, username, password string) (Identity, string, error) {
	id, err := s.directory.Authenticate(ctx, username, password)
	if err != nil {
		if !errors.Is(err, ErrBadCredentials) {
			s.logger.ErrorContext(ctx, "user directory lookup failed",
				slog.String("username", username),
				slog.String("error", err.Error()))
		}
		return Identity{}, "", err
	}

	credential, err := s.codec.Issue(id)
	if err != nil {
		s.logger.ErrorContext(ctx, "credential issuance failed",
			slog.String("username", username),
			slog.String("error", err.Error()))
		return Identity{}, "", err
	}

	s.logger.InfoContext(ctx, "login succeeded",
		slog.String("username", username),
		slog.String("user_id", id.UserID))
	return id, credential, nil
}

// Verify recovers the identity from a credential, or nil
func (s *Service) Verify(credential string) *Identity {
	return s.codec.Verify(credential)
}
