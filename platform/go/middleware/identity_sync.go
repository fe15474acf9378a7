package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	platformlogging "github.com/zenGate-Global/aso-insight/platform/go/logging"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

// IdentityEnsurer records verified token subjects.
type IdentityEnsurer interface {
	EnsureIdentity(ctx context.Context, id uuid.UUID, email string) (persistence.Identity, error)
}

// IdentitySync mirrors authenticated callers into insight.identities so role
// rows can reference them. Recently seen (id, email) pairs skip the write.
func IdentitySync(store IdentityEnsurer, size int, ttl time.Duration) func(http.Handler) http.Handler {
	if store == nil {
		panic("identity store is required")
	}
	if size <= 0 {
		size = 4096
	}
	seen := lru.NewLRU[uuid.UUID, string](size, nil, ttl)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds == nil {
				next.ServeHTTP(w, r)
				return
			}
			id, err := creds.UserID()
			if err != nil {
				problem.Write(w, problem.Classify(err))
				return
			}

			if email, hit := seen.Get(id); hit && email == creds.Email {
				next.ServeHTTP(w, r)
				return
			}

			if _, err := store.EnsureIdentity(r.Context(), id, creds.Email); err != nil {
				logger := platformlogging.FromContextOr(r.Context(), zap.NewNop())
				if errors.Is(err, persistence.ErrIdentityConflict) {
					logger.Warn("identity email already claimed", zap.String("user_id", id.String()))
					problem.Write(w, problem.Classify(fmt.Errorf("identity email %w", problem.ErrConflict)))
					return
				}
				logger.Error("ensure identity", zap.String("user_id", id.String()), zap.Error(err))
				problem.Write(w, problem.Classify(err))
				return
			}
			seen.Add(id, creds.Email)

			next.ServeHTTP(w, r)
		})
	}
}
