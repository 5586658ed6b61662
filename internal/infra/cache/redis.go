package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/metrics"
)

const (
	referencePrefix = "media:ref:"
	reservePrefix   = "media:lock:"
	releaseTimeout  = 2 * time.Second
)

// releaseScript удаляет резерв, только если он всё ещё принадлежит владельцу токена.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache реализует domain.ReferenceCache через Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis создаёт кэш. ttl <= 0 означает хранение без срока.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Поля хэша под ключом media:ref:<url>.
const (
	fieldFileID    = "file_id"
	fieldMediaType = "media_type"
)

// GetReference возвращает file_id и тип медиа по ссылке.
func (c *RedisCache) GetReference(ctx context.Context, url string) (domain.CachedMedia, error) {
	start := time.Now()
	vals, err := c.client.HGetAll(ctx, referencePrefix+url).Result()
	metrics.ObserveNetworkRequest("redis", "get_reference", "media_ref", start, err)
	if err != nil {
		return domain.CachedMedia{}, err
	}
	fileID := vals[fieldFileID]
	if fileID == "" {
		return domain.CachedMedia{}, domain.ErrNotFound
	}
	return domain.CachedMedia{URL: url, FileID: fileID, MediaType: vals[fieldMediaType]}, nil
}

// SetReference сохраняет file_id вместе с типом медиа. Значение неизменно, поэтому перезапись безопасна.
func (c *RedisCache) SetReference(ctx context.Context, media domain.CachedMedia) error {
	key := referencePrefix + media.URL
	start := time.Now()
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldFileID, media.FileID, fieldMediaType, media.MediaType)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	metrics.ObserveNetworkRequest("redis", "set_reference", "media_ref", start, err)
	return err
}

// Reserve захватывает право первой загрузки ссылки на ttl.
// Если резерв уже занят, ok == false. release безопасно вызывать несколько раз.
func (c *RedisCache) Reserve(ctx context.Context, url string, ttl time.Duration) (func(), bool, error) {
	key := reservePrefix + url
	token := uuid.NewString()

	start := time.Now()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	metrics.ObserveNetworkRequest("redis", "reserve", "media_lock", start, err)
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		start := time.Now()
		err := releaseScript.Run(ctx, c.client, []string{key}, token).Err()
		metrics.ObserveNetworkRequest("redis", "release", "media_lock", start, err)
	}
	return release, true, nil
}

var _ domain.ReferenceCache = (*RedisCache)(nil)
