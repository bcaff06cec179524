package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(addr, password string, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", addr))
	return rdb, nil
}

// CartCache はユーザーのカート明細をJSONで持つ読み取りキャッシュ。
// 正はDB側で、更新のたびに世代を進めて消す。
type CartCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// 世代キーはデータより長く残す
const cartGenTTL = 24 * time.Hour

var errStaleGen = errors.New("cart cache generation changed")

func NewCartCache(rdb *redis.Client, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CartCache{rdb: rdb, ttl: ttl}
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func cartGenKey(userID int64) string {
	return fmt.Sprintf("cart:%d:gen", userID)
}

func (c *CartCache) Get(ctx context.Context, userID int64) ([]model.CartItem, int64, bool, error) {
	pipe := c.rdb.Pipeline()
	dataCmd := pipe.Get(ctx, cartKey(userID))
	genCmd := pipe.Get(ctx, cartGenKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, err
	}

	gen, err := genCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, err
	}

	raw, err := dataCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}

	var items []model.CartItem
	if err := json.Unmarshal(raw, &items); err != nil {
		// 壊れた値は捨ててDBから読み直させる
		_ = c.rdb.Del(ctx, cartKey(userID)).Err()
		return nil, gen, false, fmt.Errorf("decode cached cart: %w", err)
	}
	return items, gen, true, nil
}

// 世代キーをWATCHして、genのままなら書く
func (c *CartCache) Set(ctx context.Context, userID int64, gen int64, items []model.CartItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}

	genKey := cartGenKey(userID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGen
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, cartKey(userID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	if errors.Is(err, errStaleGen) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *CartCache) Delete(ctx context.Context, userID int64) error {
	genKey := cartGenKey(userID)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Expire(ctx, genKey, cartGenTTL)
		p.Del(ctx, cartKey(userID))
		return nil
	})
	return err
}
