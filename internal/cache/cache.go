// cache — необязательный Redis-кэш refresh-токенов перед PostgreSQL.
// Кэш снимает нагрузку с БД на горячем пути refresh/logout; источником
// истины остаётся хранилище.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mkozyreva/accounts-service/internal/models"
)

// RefreshCache — минимальный контракт кэша refresh-токенов.
// Ключом служит RefreshTokenHash записи.
type RefreshCache interface {
	// Get возвращает запись по хэшу и признак её наличия в кэше.
	Get(ctx context.Context, hash string) (*models.RefreshToken, bool, error)
	// Set сохраняет запись с TTL (обычно ExpiresAt-now).
	Set(ctx context.Context, token *models.RefreshToken, ttl time.Duration) error
	// MarkRevoked помечает запись отозванной, сохраняя остаточный TTL.
	MarkRevoked(ctx context.Context, hash string) error
	// Close закрывает клиент Redis.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "accounts:rt:".
func NewRedisCache(redisURL, prefix string) (RefreshCache, error) {
	if prefix == "" {
		prefix = "accounts:rt:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) key(hash string) string { return c.prefix + hash }

// Поля Redis Hash, в которых раскладывается models.RefreshToken.
const (
	fieldUserID    = "uid"
	fieldRevoked   = "rev" // 0/1
	fieldCreatedAt = "iat" // unix
	fieldExpiresAt = "exp" // unix
)

func (c *redisCache) Get(ctx context.Context, hash string) (*models.RefreshToken, bool, error) {
	m, err := c.rdb.HGetAll(ctx, c.key(hash)).Result()
	if err != nil {
		return nil, false, err
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	token, err := tokenFromFields(hash, m)
	if err != nil {
		return nil, false, err
	}

	return token, true, nil
}

func (c *redisCache) Set(ctx context.Context, token *models.RefreshToken, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(token.RefreshTokenHash), tokenToFields(token))
	pipe.Expire(ctx, c.key(token.RefreshTokenHash), ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisCache) MarkRevoked(ctx context.Context, hash string) error {
	return c.rdb.HSet(ctx, c.key(hash), fieldRevoked, "1").Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }

func tokenToFields(token *models.RefreshToken) map[string]string {
	revoked := "0"
	if token.Revoked {
		revoked = "1"
	}

	return map[string]string{
		fieldUserID:    token.UserID.String(),
		fieldRevoked:   revoked,
		fieldCreatedAt: strconv.FormatInt(token.CreatedAt.Unix(), 10),
		fieldExpiresAt: strconv.FormatInt(token.ExpiresAt.Unix(), 10),
	}
}

func tokenFromFields(hash string, m map[string]string) (*models.RefreshToken, error) {
	uid, err := uuid.Parse(m[fieldUserID])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldUserID, err)
	}

	createdUnix, err := strconv.ParseInt(m[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldCreatedAt, err)
	}

	expUnix, err := strconv.ParseInt(m[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldExpiresAt, err)
	}

	return &models.RefreshToken{
		RefreshTokenHash: hash,
		UserID:           uid,
		CreatedAt:        time.Unix(createdUnix, 0).UTC(),
		ExpiresAt:        time.Unix(expUnix, 0).UTC(),
		Revoked:          m[fieldRevoked] == "1",
	}, nil
}
