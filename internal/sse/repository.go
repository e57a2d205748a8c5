// sse repository encapsulates the data access logic (interactions with the DB) related to sse clients in Menuboard.

package sse

import (
	"Menuboard/internal/entity"
	"Menuboard/internal/errors"
	"Menuboard/internal/metrics"
	"Menuboard/pkg/db"
	"Menuboard/pkg/log"
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Sorted set of every connected stream ID across all Menuboard instances, scored by the unix time its record expires.
// Members of a crashed instance fall out once their score passes.
const clientsDbKey string = "sse_clients:expiry"

// Hash of one connected stream, expires unless a heartbeat refreshes it.
func clientDbKey(id string) string {
	return "sse_client:" + id
}

type Repository interface {
	// AddClient records a freshly connected dashboard stream for ttl.
	AddClient(ctx context.Context, logger log.Logger, client entity.SSEClient, ttl time.Duration) error
	// TouchClients extends the records of still connected streams by ttl. Unknown IDs are skipped.
	TouchClients(ctx context.Context, logger log.Logger, ids []string, ttl time.Duration) error
	// RemoveClient removes a disconnected dashboard stream.
	RemoveClient(ctx context.Context, logger log.Logger, id string) error
	// GetClient returns the recorded stream, errors.NotFound if it isn't recorded.
	GetClient(ctx context.Context, logger log.Logger, id string) (entity.SSEClient, error)
	// CountClients returns how many unexpired streams are recorded.
	CountClients(ctx context.Context, logger log.Logger) (int64, error)
}

// repository struct of sse Repository.
// Object of this will be passed around from main to internal.
// Helps to access the repository layer interface and call methods.
type repository struct {
	db *db.RedisDB
}

// Returns a new instance of sse repository for other packages to access its interface.
func NewRepository(dbwrp *db.RedisDB) Repository {
	return repository{db: dbwrp}
}

// Score of a record expiring ttl from now.
func expiryScore(ttl time.Duration) float64 {
	return float64(time.Now().Add(ttl).Unix())
}

// Returns nil if client got successfully added into the DB.
func (r repository) AddClient(ctx context.Context, logger log.Logger, client entity.SSEClient, ttl time.Duration) error {
	_, dberr := r.db.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, clientDbKey(client.ID), map[string]interface{}{
			"id":           client.ID,
			"remote_addr":  client.RemoteAddr,
			"user_agent":   client.UserAgent,
			"connected_at": strconv.FormatInt(client.ConnectedAt, 10),
		})
		pipe.Expire(ctx, clientDbKey(client.ID), ttl)
		pipe.ZAdd(ctx, clientsDbKey, &redis.Z{Score: expiryScore(ttl), Member: client.ID})
		return nil
	})
	if dberr != nil {
		metrics.PresenceErrors.WithLabelValues("add").Inc()
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of TxPipelined in sse.AddClient")
		return errors.InternalServerError("")
	}
	return nil
}

// Returns nil once every known client got its expiry pushed back by ttl.
func (r repository) TouchClients(ctx context.Context, logger log.Logger, ids []string, ttl time.Duration) error {
	if len(ids) == 0 {
		return nil
	}
	score := expiryScore(ttl)
	_, dberr := r.db.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Expire(ctx, clientDbKey(id), ttl)
			// XX: a client removed meanwhile must not come back
			pipe.ZAddXX(ctx, clientsDbKey, &redis.Z{Score: score, Member: id})
		}
		return nil
	})
	if dberr != nil {
		metrics.PresenceErrors.WithLabelValues("touch").Inc()
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of Pipelined in sse.TouchClients")
		return errors.InternalServerError("")
	}
	return nil
}

// Returns nil if client got successfully removed from the DB, removing an unknown client is not an error.
func (r repository) RemoveClient(ctx context.Context, logger log.Logger, id string) error {
	_, dberr := r.db.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, clientDbKey(id))
		pipe.ZRem(ctx, clientsDbKey, id)
		return nil
	})
	if dberr != nil {
		metrics.PresenceErrors.WithLabelValues("remove").Inc()
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of TxPipelined in sse.RemoveClient")
		return errors.InternalServerError("")
	}
	return nil
}

func (r repository) GetClient(ctx context.Context, logger log.Logger, id string) (entity.SSEClient, error) {
	// check if the stream is recorded in the db
	available, dberr := r.db.Client().Exists(ctx, clientDbKey(id)).Result()
	if dberr != nil && dberr != redis.Nil {
		metrics.PresenceErrors.WithLabelValues("get").Inc()
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Exists() in sse.GetClient")
		return entity.SSEClient{}, errors.InternalServerError("")
	} else if available == 0 {
		return entity.SSEClient{}, errors.NotFound("")
	}
	var client entity.SSEClient
	if dberr = r.db.Client().HGetAll(ctx, clientDbKey(id)).Scan(&client); dberr != nil {
		metrics.PresenceErrors.WithLabelValues("get").Inc()
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.HGetAll() in sse.GetClient")
		return entity.SSEClient{}, errors.InternalServerError("")
	}
	return client, nil
}

// Prunes expired members first, so the count only covers live records.
func (r repository) CountClients(ctx context.Context, logger log.Logger) (int64, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	var count *redis.IntCmd
	_, dberr := r.db.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, clientsDbKey, "-inf", "("+now)
		count = pipe.ZCard(ctx, clientsDbKey)
		return nil
	})
	if dberr != nil {
		metrics.PresenceErrors.WithLabelValues("count").Inc()
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of TxPipelined in sse.CountClients")
		return 0, errors.InternalServerError("")
	}
	return count.Val(), nil
}

// nopRepository is used when no redis-server is configured, presence is then unknown.
type nopRepository struct{}

// Returns a Repository which records nothing.
func NewNopRepository() Repository {
	return nopRepository{}
}

func (nopRepository) AddClient(context.Context, log.Logger, entity.SSEClient, time.Duration) error {
	return nil
}

func (nopRepository) TouchClients(context.Context, log.Logger, []string, time.Duration) error {
	return nil
}

func (nopRepository) RemoveClient(context.Context, log.Logger, string) error { return nil }

func (nopRepository) GetClient(context.Context, log.Logger, string) (entity.SSEClient, error) {
	return entity.SSEClient{}, errors.NotFound("")
}

func (nopRepository) CountClients(context.Context, log.Logger) (int64, error) {
	return -1, nil
}
