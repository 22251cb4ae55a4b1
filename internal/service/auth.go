// Package service holds the business rules of the cupcakes API.
//
//	Handler (HTTP) → Service (rules) → Repository (SQL)
//
// Services take plain values and return model structs or apperror values.
// They never see an *http.Request, so every rule here is testable with
// ordinary function calls and in-memory fakes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/cupcakes/internal/apperror"
	"github.com/sakif/cupcakes/internal/auth"
	"github.com/sakif/cupcakes/internal/model"
	"github.com/sakif/cupcakes/internal/repository"
)

// AuthService connects the two halves of authentication: identity claims
// from the session, and bearer tokens this service signs.
//
//	SessionGate ─ claim ─→ Reconcile ─→ UserRepository.Upsert
//	MeHandler  ─ nickname → Me ─→ GetByUsername → TokenService.Issue
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewAuthService wires an AuthService.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// AuthResult is the body of GET /me: the local user and a fresh token
// for the bearer-gated routes.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Reconcile projects an identity claim onto the local users table.
//
// FIND-OR-CREATE:
// The nickname is the key. The first request carrying a given nickname
// creates the row; every later one refreshes name and email from the claim
// (the identity provider is the source of truth for them) and keeps the id.
// The repository does this as one atomic statement, so calling Reconcile
// twice at once for the same person still leaves one row.
func (s *AuthService) Reconcile(ctx context.Context, claim auth.Claim) (*model.User, error) {
	username := strings.TrimSpace(claim.Nickname)
	if username == "" {
		return nil, apperror.ValidationFailed("nickname", "identity claim has no nickname")
	}

	user := &model.User{
		Username: username,
		Name:     claim.Name,
		Email:    claim.Email,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: reconciling user %q: %w", username, err)
	}

	s.logger.Debug("user reconciled",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Me looks up the user behind a session nickname and issues them a token.
func (s *AuthService) Me(ctx context.Context, username string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("nickname", "identity claim has no nickname")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %q: %w", username, err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}

	s.logger.Info("token issued",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return &AuthResult{User: user, Token: token}, nil
}
