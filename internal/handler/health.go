package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 2 * time.Second

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
}

// NewHealthHandler checks RabbitMQ only when amqpConn is non-nil.
func NewHealthHandler(dbPool *pgxpool.Pool, redisClient *redis.Client, amqpConn *amqp.Connection) *HealthHandler {
	checks := map[string]Check{
		"postgres": dbPool.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if amqpConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if amqpConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz probes every dependency concurrently.
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		status = gin.H{}
		g      errgroup.Group
	)
	for name, check := range h.checks {
		name, check := name, check
		g.Go(func() error {
			err := check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				status[name] = "unavailable"
				return err
			}
			status[name] = "connected"
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		status["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	status["status"] = "ok"
	c.JSON(http.StatusOK, status)
}
