package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BookCache keeps catalog reads. It is best effort: misses and failures fall
// through to the database, so no method returns an error.
//
// Readers take Generation before querying the database and pass it to
// SetBooks/SetBook. Every Invalidate bumps the generation, so a value read
// before a concurrent write is never stored after that write's invalidation.
type BookCache interface {
	Generation(ctx context.Context) int64
	Books(ctx context.Context) ([]model.Book, bool)
	SetBooks(ctx context.Context, gen int64, books []model.Book)
	Book(ctx context.Context, id int64) (model.Book, bool)
	SetBook(ctx context.Context, gen int64, book model.Book)
	Invalidate(ctx context.Context, ids ...int64)
}

type Config struct {
	Addr     string        `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string        `yaml:"password" json:"-" envconfig:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" envconfig:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" envconfig:"REDIS_TTL" default:"1m"`
}

func (cfg Config) Enabled() bool {
	return cfg.Addr != ""
}

const (
	booksKey      = "library:books"
	bookKeyPrefix = "library:books:"
	generationKey = "library:books:generation"
)

// noGeneration disables the following Set when the generation is unknown.
const noGeneration int64 = -1

var errStale = errors.New("cache generation changed")

func bookKey(id int64) string {
	return bookKeyPrefix + strconv.FormatInt(id, 10)
}

type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	return rdb, nil
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) BookCache {
	return &redisCache{rdb: rdb, ttl: ttl, log: log.Named("cache")}
}

func (c *redisCache) Generation(ctx context.Context) int64 {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0
		}
		c.log.Warn("generation", zap.Error(err))
		return noGeneration
	}
	return gen
}

func (c *redisCache) Books(ctx context.Context) ([]model.Book, bool) {
	var books []model.Book
	if !c.get(ctx, booksKey, &books) {
		return nil, false
	}
	return books, true
}

func (c *redisCache) SetBooks(ctx context.Context, gen int64, books []model.Book) {
	c.set(ctx, gen, booksKey, books)
}

func (c *redisCache) Book(ctx context.Context, id int64) (model.Book, bool) {
	var book model.Book
	if !c.get(ctx, bookKey(id), &book) {
		return model.Book{}, false
	}
	return book, true
}

func (c *redisCache) SetBook(ctx context.Context, gen int64, book model.Book) {
	c.set(ctx, gen, bookKey(book.ID), book)
}

// Invalidate drops the list and the given books.
func (c *redisCache) Invalidate(ctx context.Context, ids ...int64) {
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, booksKey)
	for _, id := range ids {
		keys = append(keys, bookKey(id))
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		c.log.Warn("Invalidate", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *redisCache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("get", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn("unmarshal", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// set stores v only while the generation is still gen.
func (c *redisCache) set(ctx context.Context, gen int64, key string, v any) {
	if gen == noGeneration {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("marshal", zap.String("key", key), zap.Error(err))
		return
	}
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, generationKey)
	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		c.log.Debug("skip stale value", zap.String("key", key))
	default:
		c.log.Warn("set", zap.String("key", key), zap.Error(err))
	}
}

type nopCache struct{}

func NewNop() BookCache {
	return nopCache{}
}

func (nopCache) Generation(context.Context) int64               { return 0 }
func (nopCache) Books(context.Context) ([]model.Book, bool)     { return nil, false }
func (nopCache) SetBooks(context.Context, int64, []model.Book)  {}
func (nopCache) Book(context.Context, int64) (model.Book, bool) { return model.Book{}, false }
func (nopCache) SetBook(context.Context, int64, model.Book)     {}
func (nopCache) Invalidate(context.Context, ...int64)           {}
