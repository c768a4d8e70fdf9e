package repository

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/graphbank/backoffice/internal/logging"
	"github.com/graphbank/backoffice/internal/models"
	"github.com/graphbank/backoffice/internal/redis"
)

// TransactionViews is the read-side projection cache for transactions, keyed
// by numeric id and by reference. The lifecycle engine writes through on
// every mutation and drops both keys on delete, so the query side never
// serves a record the store no longer holds.
type TransactionViews interface {
	GetByID(ctx context.Context, id int64) (*models.Transaction, bool)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, bool)
	Put(ctx context.Context, tx *models.Transaction)
	Drop(ctx context.Context, id int64, reference string)
}

const (
	viewKeyPrefix = "transaction:view:"

	// TTL backstops the write-through: an entry that slips past an
	// invalidation still ages out.
	defaultViewTTL = 5 * time.Minute
)

// RedisTransactionViews backs TransactionViews with the shared Redis cache.
type RedisTransactionViews struct {
	cache *redis.ViewCache[models.Transaction]
}

func NewRedisTransactionViews(client *goredis.Client, log *logging.Logger) *RedisTransactionViews {
	return &RedisTransactionViews{
		cache: redis.NewViewCache[models.Transaction](client, defaultViewTTL, log),
	}
}

func idKey(id int64) string { return fmt.Sprintf("%sid:%d", viewKeyPrefix, id) }

func referenceKey(reference string) string { return viewKeyPrefix + "ref:" + reference }

func (v *RedisTransactionViews) GetByID(ctx context.Context, id int64) (*models.Transaction, bool) {
	return v.cache.Get(ctx, idKey(id))
}

func (v *RedisTransactionViews) GetByReference(ctx context.Context, reference string) (*models.Transaction, bool) {
	return v.cache.Get(ctx, referenceKey(reference))
}

// Put stores the projection under both keys.
func (v *RedisTransactionViews) Put(ctx context.Context, tx *models.Transaction) {
	v.cache.Set(ctx, idKey(tx.ID), tx)
	v.cache.Set(ctx, referenceKey(tx.Reference), tx)
}

// Drop removes both keys.
func (v *RedisTransactionViews) Drop(ctx context.Context, id int64, reference string) {
	v.cache.Delete(ctx, idKey(id))
	v.cache.Delete(ctx, referenceKey(reference))
}
