package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthStatus represents current status of external services.
type HealthStatus struct {
	Mongo     bool      `json:"mongo"`
	Redis     []bool    `json:"redis"`
	CheckedAt time.Time `json:"checkedAt"`
}

var (
	currentHealth HealthStatus
	mu            sync.RWMutex
)

// GetHealthStatus returns latest stored health snapshot.
func GetHealthStatus() HealthStatus {
	mu.RLock()
	defer mu.RUnlock()
	return currentHealth
}

// StartHealthMonitor performs periodic health checks and updates in-memory state.
// A nil mongoClient (memory store) is reported healthy.
func StartHealthMonitor(ctx context.Context, redisClients []*redis.Client, mongoClient *mongo.Client) {
	check := func() {
		var redisHealth []bool
		for _, client := range redisClients {
			if client == nil {
				redisHealth = append(redisHealth, false)
				continue
			}
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			redisHealth = append(redisHealth, client.Ping(pingCtx).Err() == nil)
			cancel()
		}

		mongoHealthy := true
		if mongoClient != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			mongoHealthy = mongoClient.Ping(pingCtx, nil) == nil
			cancel()
		}

		mu.Lock()
		currentHealth = HealthStatus{
			Mongo:     mongoHealthy,
			Redis:     redisHealth,
			CheckedAt: time.Now(),
		}
		mu.Unlock()
	}

	go func() {
		check()
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}
