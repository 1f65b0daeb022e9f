package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore 實作IStore介面，以Redis hash儲存session資料，
// 多個服務實例可以共用同一份session
type RedisStore struct {
	client  *redis.Client
	options StoreOptions
}

type StoreOptions struct {
	Prefix string
}

type StoreOption func(*StoreOptions)

// WithStorePrefix 設定儲存時的key前綴
func WithStorePrefix(prefix string) StoreOption {
	return func(o *StoreOptions) {
		o.Prefix = prefix
	}
}

// NewRedisStore 建立一個新的RedisStore實例
func NewRedisStore(client *redis.Client, opts ...StoreOption) IStore {
	options := &StoreOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return &RedisStore{
		client:  client,
		options: *options,
	}
}

// Load 從Redis中載入指定名稱的資料，key不存在時回傳空map
func (s *RedisStore) Load(ctx context.Context, name string) (map[string]string, error) {
	const op = "RedisStore.Load"
	key := s.options.Prefix + name

	result, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get hash: %w", op, err)
	}

	return result, nil
}

// saveScript 原子性地刪除並重設hash欄位
var saveScript = redis.NewScript(`
local key = KEYS[1]
redis.call('DEL', key)
if #ARGV > 0 then
    redis.call('HSET', key, unpack(ARGV))
end
return 1
`)

// Save 將資料寫入Redis，舊資料會先被刪除，整個過程是原子性的
func (s *RedisStore) Save(ctx context.Context, name string, data map[string]string) error {
	const op = "RedisStore.Save"
	key := s.options.Prefix + name
	args := make([]any, 0, len(data)*2)
	for k, v := range data {
		args = append(args, k, v)
	}
	err := saveScript.Run(ctx, s.client, []string{key}, args...).Err()
	if err != nil {
		return fmt.Errorf("%s: failed to execute save script: %w", op, err)
	}

	return nil
}
