// Initialization of Redis client to be used internally in Menuboard.

package db

import (
	"Menuboard/pkg/log"
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Keys written by Menuboard tests live in this DB number only, CleanTestDbData refuses to flush any other.
const TestDbNumber = 1

// RedisDB represents a redis client connection to be used internally in Menuboard.
type RedisDB struct {
	client *redis.Client
}

// Options needed to reach the redis-server.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Client returns the redis client wrapped by RedisDB.
func (db *RedisDB) Client() *redis.Client {
	return db.client
}

// Returns a new Redis DB connection wrapped up by RedisDB struct.
// The connection is lazy, use CheckDbConnection to find out whether the server is reachable.
func NewDbConnection(ctx context.Context, opts Options, logger log.Logger) (*RedisDB, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is empty")
	}
	// Initializing a connection to Redis-server
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	logger.WithCtx(ctx).Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Initialized redis client")
	return &RedisDB{client: client}, nil
}

// Helper to check connection status of redis client to redis-server.
// Equivalent to a PING request on redis-server, returns PONG on success.
func (db *RedisDB) CheckDbConnection(ctx context.Context, logger log.Logger) error {
	logger.WithCtx(ctx).Info().Msg("Checking DB Connection . . .")
	// Pinging the Redis-server to check connection status
	if cnterr := db.Client().Ping(ctx).Err(); cnterr != nil {
		// Most likely, DB connection failure
		logger.WithCtx(ctx).Error().Err(cnterr).Msg("Redis client couldn't PING the redis-server.")
		return fmt.Errorf("pinging redis: %w", cnterr)
	}
	// Connection successful
	logger.WithCtx(ctx).Info().Msg("Connection to DB Successful")
	return nil
}

// Helper to clean up test db after finishing Menuboard tests.
func (db *RedisDB) CleanTestDbData(ctx context.Context, logger log.Logger) {
	if db.Client().Options().DB == TestDbNumber {
		dberr := db.Client().FlushDB(ctx).Err()
		if dberr != nil {
			// Error during flushing test db
			logger.Error().Err(dberr).Msg("Error occured during the execution of FlushDB() in db.CleanTestDbData")
		}
	}
}

// Helper to close the RedisDB client, should be called before closing the server.
func (db *RedisDB) CloseDbConnection(ctx context.Context) error {
	return db.Client().Close()
}
