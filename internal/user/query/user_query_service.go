package query

import (
	"context"

	"github.com/graphbank/backoffice/internal/cqrs"
	"github.com/graphbank/backoffice/internal/models"
	"github.com/graphbank/backoffice/internal/user/repository"
)

// UserQueryService serves user reads. Point reads go through the cached read
// repository; list and by-email reads hit PostgreSQL directly.
type UserQueryService struct {
	writeRepo *repository.UserWriteRepository
	readRepo  *repository.UserReadRepository
}

func NewUserQueryService(writeRepo *repository.UserWriteRepository, readRepo *repository.UserReadRepository) *UserQueryService {
	return &UserQueryService{writeRepo: writeRepo, readRepo: readRepo}
}

func (s *UserQueryService) GetUser(ctx context.Context, q cqrs.GetUserQuery) (*models.UserView, error) {
	if s.readRepo != nil {
		return s.readRepo.GetByID(ctx, q.UserID)
	}
	user, err := s.writeRepo.GetByID(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	return repository.UserToView(user), nil
}

func (s *UserQueryService) GetUserByEmail(ctx context.Context, q cqrs.GetUserByEmailQuery) (*models.UserView, error) {
	user, err := s.writeRepo.GetByEmail(ctx, q.Email)
	if err != nil {
		return nil, err
	}
	return repository.UserToView(user), nil
}

func (s *UserQueryService) ListUsers(ctx context.Context) ([]models.UserView, error) {
	users, err := s.writeRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]models.UserView, len(users))
	for i := range users {
		views[i] = *repository.UserToView(&users[i])
	}
	return views, nil
}
