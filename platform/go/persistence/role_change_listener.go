package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RoleChangeChannel carries the user id of every user_roles insert, update or
// delete. Migration 0006 installs the trigger that sends it.
const RoleChangeChannel = "insight_role_changes"

// PermissionCache is the part of the authorization evaluator the listener drives.
type PermissionCache interface {
	Invalidate(userIDs ...uuid.UUID)
	Purge()
}

// RoleChangeListener keeps a dedicated connection on RoleChangeChannel and
// evicts cached permissions as roles change on any replica. While it is
// disconnected the cache TTL bounds staleness, and every (re)connect purges
// the cache to cover notifications missed in between.
type RoleChangeListener struct {
	pool       *pgxpool.Pool
	cache      PermissionCache
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

// NewRoleChangeListener wires a listener; call Run to start it.
func NewRoleChangeListener(pool *pgxpool.Pool, cache PermissionCache, logger *zap.Logger) (*RoleChangeListener, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if cache == nil {
		return nil, errors.New("permission cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleChangeListener{
		pool:   pool,
		cache:  cache,
		logger: logger.Named("role-listener"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}, nil
}

// Run blocks until ctx is cancelled, reconnecting with exponential backoff.
func (l *RoleChangeListener) Run(ctx context.Context) {
	retry := l.newBackOff()
	for {
		err := l.listen(ctx, retry.Reset)
		if ctx.Err() != nil {
			return
		}
		wait := retry.NextBackOff()
		l.logger.Warn("role change listener disconnected", zap.Error(err), zap.Duration("retryIn", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *RoleChangeListener) listen(ctx context.Context, connected func()) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	// LISTEN state must not leak back into the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{RoleChangeChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", RoleChangeChannel, err)
	}
	connected()
	l.cache.Purge()
	l.logger.Info("listening for role changes", zap.String("channel", RoleChangeChannel))

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.handle(notification.Payload)
	}
}

// handle evicts one user; a payload that is not a uuid purges everything.
func (l *RoleChangeListener) handle(payload string) {
	userID, err := uuid.Parse(payload)
	if err != nil {
		l.logger.Warn("unreadable role change payload, purging cache", zap.String("payload", payload))
		l.cache.Purge()
		return
	}
	l.cache.Invalidate(userID)
}
