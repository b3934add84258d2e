package users

import (
	"context"

	"go.uber.org/zap"
)

// Service serves read access to the mirror for HTTP handlers.
type Service struct {
	repo   *Repository
	logger *zap.Logger
}

// NewService creates a new users service.
func NewService(repo *Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Filter narrows a user listing.
type Filter struct {
	// Active filters on the active flag when set.
	Active *bool
	// Department filters on an exact department when not empty.
	Department string
}

// List returns the users matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]User, error) {
	all, err := s.repo.Users(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(all))
	for _, u := range all {
		if f.Active != nil && u.Active != *f.Active {
			continue
		}
		if f.Department != "" && (u.Department == nil || *u.Department != f.Department) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// Get returns one user by id or email.
func (s *Service) Get(ctx context.Context, key string) (*User, error) {
	return s.repo.User(ctx, key)
}
