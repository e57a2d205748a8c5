// Mock methods required in Menuboard tests are all here.

package test

import (
	"Menuboard/internal/entity"
	"Menuboard/internal/errors"
	"Menuboard/pkg/log"
	"Menuboard/pkg/middlewares"
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Returns a fresh gin router with the same global middlewares Menuboard runs with.
func MockRouter(logger log.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.CORSMiddleware("*")) // CORS middleware which allows request from all origin
	router.Use(middlewares.CorrelationMiddleware(logger))
	return router
}

// MockPresenceRepository keeps presence records in memory, it satisfies sse.Repository.
type MockPresenceRepository struct {
	mu      sync.Mutex
	clients map[string]entity.SSEClient
	ttls    map[string]time.Duration
	touches map[string]int
	// When set, every call fails with it
	Err error
}

func NewMockPresenceRepository() *MockPresenceRepository {
	return &MockPresenceRepository{
		clients: make(map[string]entity.SSEClient),
		ttls:    make(map[string]time.Duration),
		touches: make(map[string]int),
	}
}

func (r *MockPresenceRepository) AddClient(ctx context.Context, logger log.Logger, client entity.SSEClient, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.clients[client.ID] = client
	r.ttls[client.ID] = ttl
	return nil
}

func (r *MockPresenceRepository) TouchClients(ctx context.Context, logger log.Logger, ids []string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, id := range ids {
		if _, ok := r.clients[id]; ok {
			r.ttls[id] = ttl
			r.touches[id]++
		}
	}
	return nil
}

// TTL returns the last expiry set for id and how many heartbeats refreshed it.
func (r *MockPresenceRepository) TTL(id string) (time.Duration, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttls[id], r.touches[id]
}

func (r *MockPresenceRepository) RemoveClient(ctx context.Context, logger log.Logger, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	delete(r.clients, id)
	delete(r.ttls, id)
	delete(r.touches, id)
	return nil
}

func (r *MockPresenceRepository) GetClient(ctx context.Context, logger log.Logger, id string) (entity.SSEClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return entity.SSEClient{}, r.Err
	}
	client, ok := r.clients[id]
	if !ok {
		return entity.SSEClient{}, errors.NotFound("")
	}
	return client, nil
}

func (r *MockPresenceRepository) CountClients(ctx context.Context, logger log.Logger) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	return int64(len(r.clients)), nil
}
