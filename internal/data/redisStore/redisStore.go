package redisStore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

var (
	instances = make(map[int]*Store)
	mu        sync.RWMutex
	logger    = logger_i.NewLogger("redis store")
	once      sync.Once
)

// Options locate the redis server. Each logical store lives in its own DB index.
type Options struct {
	Addr     string
	Password string
}

type Store struct {
	client *redis.Client
	DB     int
}

// GetRedisStore returns the shared client for a DB index, creating and pinging it on first use.
// nil means redis is not reachable and the caller should fall back.
func GetRedisStore(ctx context.Context, opts Options, dbIndex int) *Store {
	mu.RLock()
	instance, exists := instances[dbIndex]
	mu.RUnlock()

	if exists {
		return instance
	}

	mu.Lock()
	defer mu.Unlock()

	if instance, exists = instances[dbIndex]; exists {
		return instance
	}
	return createNewStore(ctx, opts, dbIndex)
}

func closeRedisStores(ctx context.Context) {
	<-ctx.Done()
	logger.Info("closing redis stores")
	mu.Lock()
	defer mu.Unlock()
	for db, store := range instances {
		if err := store.client.Close(); err != nil {
			logger.Error("error closing redis client", "db", db, "error", err)
		}
		delete(instances, db)
	}
	logger.Info("redis stores closed")
}

func createNewStore(ctx context.Context, opts Options, dbIndex int) *Store {
	newClient := redis.NewClient(&redis.Options{
		Addr:                  opts.Addr,
		Password:              opts.Password,
		DB:                    dbIndex,
		ContextTimeoutEnabled: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := newClient.Ping(pingCtx).Err(); err != nil {
		logger.Error("redis is offline", "addr", opts.Addr, "db", dbIndex, "error", err)
		_ = newClient.Close()
		return nil
	}

	logger.Info("redis store ready", "addr", opts.Addr, "db", dbIndex)

	newStore := &Store{
		client: newClient,
		DB:     dbIndex,
	}

	instances[dbIndex] = newStore
	once.Do(func() {
		go closeRedisStores(ctx)
	})
	return newStore
}

// NewStore wraps an existing client, used by tests against miniredis.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) String() string {
	return fmt.Sprintf("redis db %d", s.DB)
}
