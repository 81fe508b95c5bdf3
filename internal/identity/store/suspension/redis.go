package suspension

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	id "caseflow/pkg/domain"
)

const suspendedSetKey = "caseflow:suspended_users"

// Redis keeps the suspension list in a Redis set so it is shared across
// instances and survives process restarts.
type Redis struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Add(ctx context.Context, userID id.UserID) error {
	if err := r.client.SAdd(ctx, suspendedSetKey, userID.String()).Err(); err != nil {
		return fmt.Errorf("add suspended user: %w", err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, userID id.UserID) error {
	if err := r.client.SRem(ctx, suspendedSetKey, userID.String()).Err(); err != nil {
		return fmt.Errorf("remove suspended user: %w", err)
	}
	return nil
}

func (r *Redis) Contains(ctx context.Context, userID id.UserID) (bool, error) {
	ok, err := r.client.SIsMember(ctx, suspendedSetKey, userID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check suspended user: %w", err)
	}
	return ok, nil
}
