package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	model "github.com/glkeru/loyalty/wallet/internal/models"
	redis "github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore() (store *RedisStore, err error) {

	// config
	addr := os.Getenv("WALLET_REDIS_URL")
	if addr == "" {
		return nil, fmt.Errorf("env WALLET_REDIS_URL is not set")
	}
	user := os.Getenv("WALLET_REDIS_USER")
	pwd := os.Getenv("WALLET_REDIS_PWD")

	// redis
	db := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    pwd,
		Username:    user,
		DB:          0,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	err = db.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return &RedisStore{db}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (value string, err error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("key %s: %w", key, model.ErrNotFound)
	} else if err != nil {
		return "", err
	}
	return val, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *RedisStore) PutIfAbsent(ctx context.Context, key string, value string) error {
	ok, err := r.client.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %s: %w", key, model.ErrConflict)
	}
	return nil
}

// CAS через WATCH: транзакция отменяется, если ключ изменился между чтением и записью
func (r *RedisStore) CompareAndSwap(ctx context.Context, key string, oldValue string, newValue string) error {
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return fmt.Errorf("key %s: %w", key, model.ErrNotFound)
		} else if err != nil {
			return err
		}
		if cur != oldValue {
			return fmt.Errorf("key %s: %w", key, model.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newValue, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("key %s: %w", key, model.ErrConflict)
	}
	return err
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
