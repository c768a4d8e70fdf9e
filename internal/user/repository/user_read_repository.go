package repository

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/graphbank/backoffice/internal/logging"
	"github.com/graphbank/backoffice/internal/models"
	sharedredis "github.com/graphbank/backoffice/internal/redis"
)

const (
	userViewKeyPrefix    = "user:view:"
	userTxCountKeyPrefix = "user:txcount:"
)

// UserReadRepository serves user views from Redis, falling back to the
// write repository on a miss. It also keeps a per-user transaction counter
// maintained from the transaction events stream.
type UserReadRepository struct {
	writeRepo *UserWriteRepository
	cache     *sharedredis.ViewCache[models.UserView]
	client    *goredis.Client
	log       *logging.Logger
}

func NewUserReadRepository(writeRepo *UserWriteRepository, redisClient *goredis.Client, log *logging.Logger) *UserReadRepository {
	return &UserReadRepository{
		writeRepo: writeRepo,
		cache:     sharedredis.NewViewCache[models.UserView](redisClient, 0, log),
		client:    redisClient,
		log:       log,
	}
}

// GetByID returns a UserView, Redis first, PostgreSQL on a miss.
func (r *UserReadRepository) GetByID(ctx context.Context, id int64) (*models.UserView, error) {
	key := fmt.Sprintf("%s%d", userViewKeyPrefix, id)
	if view, ok := r.cache.Get(ctx, key); ok {
		return view, nil
	}
	user, err := r.writeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := UserToView(user)
	r.cache.Set(ctx, key, view)
	return view, nil
}

// CacheUserView stores the read model for a user. Called by the command
// service immediately after a successful write.
func (r *UserReadRepository) CacheUserView(ctx context.Context, view *models.UserView) {
	r.cache.Set(ctx, fmt.Sprintf("%s%d", userViewKeyPrefix, view.ID), view)
}

// InvalidateUserView drops the cached view after a delete.
func (r *UserReadRepository) InvalidateUserView(ctx context.Context, id int64) {
	r.cache.Delete(ctx, fmt.Sprintf("%s%d", userViewKeyPrefix, id))
}

// IncrTransactionCount bumps the per-user transaction counter.
func (r *UserReadRepository) IncrTransactionCount(ctx context.Context, userID int64) {
	if err := r.client.Incr(ctx, fmt.Sprintf("%s%d", userTxCountKeyPrefix, userID)).Err(); err != nil {
		r.log.WithUserID(userID).Warnf("Failed to increment transaction count: %v", err)
	}
}

// DecrTransactionCount lowers the per-user transaction counter.
func (r *UserReadRepository) DecrTransactionCount(ctx context.Context, userID int64) {
	if err := r.client.Decr(ctx, fmt.Sprintf("%s%d", userTxCountKeyPrefix, userID)).Err(); err != nil {
		r.log.WithUserID(userID).Warnf("Failed to decrement transaction count: %v", err)
	}
}

// UserToView converts the write model to the read view model.
func UserToView(u *models.User) *models.UserView {
	return &models.UserView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
