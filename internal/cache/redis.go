// Package cache содержит read-through кеш на Redis. Источник истины всегда
// PostgreSQL, кеш только ускоряет чтение балансов и может быть потерян без последствий.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/credit-engine/internal/config"
)

const (
	balancePrefix    = "credits:balance:"
	generationSuffix = ":gen"
	generationTTL    = 24 * time.Hour
)

// setIfGeneration пишет KEYS[1], только если счётчик KEYS[2] всё ещё равен ARGV[1].
var setIfGeneration = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if current == false then current = "0" end
if current ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// Cache обёртка над клиентом Redis с JSON-сериализацией значений.
type Cache struct {
	Db *redis.Client
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// BalanceKey ключ кешированного баланса пользователя.
func BalanceKey(userUID string) string {
	return balancePrefix + userUID
}

// Get читает значение по ключу в result. false без ошибки означает промах.
func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal(val, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Set сохраняет значение с временем жизни expiration.
func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	const op = "cache.Set"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = c.Db.Set(ctx, key, jsonData, expiration).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Generation возвращает счётчик инвалидаций ключа. Прочитанное значение
// передаётся в SetIfGeneration.
func (c *Cache) Generation(ctx context.Context, key string) (int64, error) {
	const op = "cache.Generation"
	gen, err := c.Db.Get(ctx, key+generationSuffix).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return gen, nil
}

// SetIfGeneration сохраняет значение, только если с момента чтения gen ключ
// не инвалидировали. false без ошибки означает, что значение устарело.
func (c *Cache) SetIfGeneration(ctx context.Context, key string, gen int64, value any, expiration time.Duration) (bool, error) {
	const op = "cache.SetIfGeneration"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	stored, err := setIfGeneration.Run(ctx, c.Db,
		[]string{key, key + generationSuffix},
		strconv.FormatInt(gen, 10), jsonData, expiration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return stored == 1, nil
}

// Invalidate удаляет ключи и сдвигает их счётчики инвалидаций, чтобы
// запоздавшее чтение не вернуло старое значение в кеш.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	const op = "cache.Invalidate"
	_, err := c.Db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		for _, key := range keys {
			pipe.Incr(ctx, key+generationSuffix)
			pipe.Expire(ctx, key+generationSuffix, generationTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает соединение.
func (c *Cache) Close() error {
	return c.Db.Close()
}
