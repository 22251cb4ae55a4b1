package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/cupcakes/internal/apperror"
	"github.com/sakif/cupcakes/internal/model"
	"github.com/sakif/cupcakes/internal/repository"
)

// Validation limits for cupcakes.
const (
	MaxTitleLength  = 100
	MaxFlavorLength = 100
)

// CupcakeService handles the cupcake list and creation.
type CupcakeService struct {
	repo   repository.CupcakeRepository
	users  repository.UserRepository
	logger *slog.Logger
}

// NewCupcakeService creates a CupcakeService. users is consulted to make
// sure a token's owner still exists before anything is written for them.
func NewCupcakeService(repo repository.CupcakeRepository, users repository.UserRepository, logger *slog.Logger) *CupcakeService {
	return &CupcakeService{
		repo:   repo,
		users:  users,
		logger: logger,
	}
}

// List returns every cupcake. The result is never nil.
func (s *CupcakeService) List(ctx context.Context) ([]model.Cupcake, error) {
	cupcakes, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list cupcakes", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing cupcakes: %w", err)
	}
	if cupcakes == nil {
		cupcakes = []model.Cupcake{}
	}
	return cupcakes, nil
}

// Create validates and stores a cupcake owned by ownerID.
//
// ownerID comes from a verified bearer token, never from the request body:
// a caller can only create cupcakes for themselves.
func (s *CupcakeService) Create(ctx context.Context, ownerID, title, flavor string, stars int) (*model.Cupcake, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperror.Unauthorized("No valid token, access denied")
	}

	title = strings.TrimSpace(title)
	flavor = strings.TrimSpace(flavor)

	if title == "" {
		return nil, apperror.ValidationFailed("title", "cupcake title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("cupcake title must be %d characters or less", MaxTitleLength))
	}
	if utf8.RuneCountInString(flavor) > MaxFlavorLength {
		return nil, apperror.ValidationFailed("flavor",
			fmt.Sprintf("flavor must be %d characters or less", MaxFlavorLength))
	}
	if stars < 0 {
		return nil, apperror.ValidationFailed("stars", "stars must not be negative")
	}

	// A token outlives the row it was issued for if the database is reset.
	if _, err := s.users.GetUserByID(ctx, ownerID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("token owner no longer exists")
		}
		return nil, fmt.Errorf("checking cupcake owner %s: %w", ownerID, err)
	}

	cupcake := &model.Cupcake{
		Title:  title,
		Flavor: flavor,
		Stars:  stars,
		UserID: ownerID,
	}
	if err := s.repo.Create(ctx, cupcake); err != nil {
		s.logger.Error("failed to create cupcake",
			slog.String("title", title),
			slog.String("userID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating cupcake: %w", err)
	}

	s.logger.Info("cupcake created",
		slog.String("id", cupcake.ID),
		slog.String("userID", cupcake.UserID),
	)
	return cupcake, nil
}
