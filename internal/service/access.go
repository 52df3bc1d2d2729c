// Package service holds the business rules of the remote store.
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, enforces the lock, orchestrates
//	Repository      → reads/writes SQLite
//
// Services accept repository interfaces, never *sqlite.DB, so tests run
// against in-memory fakes and the CLI could reuse them without HTTP.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/repository"
)

// DefaultLockTTL is how long a lock stays valid after it was last acquired.
const DefaultLockTTL = 30 * time.Minute

// AccessService grants the single-writer lock on a package of examples.
//
// LOCK LIFECYCLE:
// The lock is taken by lockAndList and taken again by every create/update,
// which pushes the expiration out. Nothing renews it in the background; an
// author who stops writing loses it once it expires, and the next caller
// takes it over.
type AccessService struct {
	locks  repository.LockRepository
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewAccessService(locks repository.LockRepository, ttl time.Duration, logger *slog.Logger) *AccessService {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &AccessService{
		locks:  locks,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Acquire takes or refreshes the lock for identity and returns the lock as it
// stands, which may belong to someone else.
func (s *AccessService) Acquire(ctx context.Context, res model.ResourceID, identity string) (*model.AccessLock, error) {
	if err := validateResource(res); err != nil {
		return nil, err
	}
	if identity == "" {
		return nil, apperror.Unauthorized("an identity is required to acquire a lock")
	}

	lock, err := s.locks.AcquireLock(ctx, res, identity, s.now(), s.ttl)
	if err != nil {
		s.logger.Error("failed to acquire lock",
			slog.String("resource", res.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("acquiring lock on %s: %w", res, err)
	}

	if lock.UserEmail == identity {
		s.logger.Debug("lock held",
			slog.String("resource", res.String()),
			slog.String("identity", identity),
			slog.Time("expiration", lock.Expiration),
		)
	} else {
		s.logger.Info("lock held by another identity",
			slog.String("resource", res.String()),
			slog.String("identity", identity),
			slog.String("owner", lock.UserEmail),
		)
	}
	return lock, nil
}

// Require acquires the lock and fails with a lock conflict (code 8) unless
// identity ends up holding it.
func (s *AccessService) Require(ctx context.Context, res model.ResourceID, identity string) error {
	lock, err := s.Acquire(ctx, res, identity)
	if err != nil {
		return err
	}
	if lock.UserEmail != identity {
		return apperror.LockConflict(identity, lock.UserEmail)
	}
	return nil
}

// Release drops identity's lock. It is a no-op when someone else holds it.
func (s *AccessService) Release(ctx context.Context, res model.ResourceID, identity string) error {
	if err := validateResource(res); err != nil {
		return err
	}
	if err := s.locks.ReleaseLock(ctx, res, identity); err != nil {
		return fmt.Errorf("releasing lock on %s: %w", res, err)
	}
	s.logger.Info("lock released",
		slog.String("resource", res.String()),
		slog.String("identity", identity),
	)
	return nil
}

// Accessors maps every currently locked package to its holder.
func (s *AccessService) Accessors(ctx context.Context) (map[model.ResourceID]string, error) {
	locks, err := s.locks.ActiveLocks(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("listing active locks: %w", err)
	}
	out := make(map[model.ResourceID]string, len(locks))
	for _, l := range locks {
		out[model.ResourceID{Language: l.Language, Package: l.Package}] = l.UserEmail
	}
	return out, nil
}

func validateResource(res model.ResourceID) error {
	if strings.TrimSpace(res.Language) == "" {
		return apperror.ValidationFailed("language", "language is required").WithCode(apperror.CodeBadExampleBody)
	}
	if strings.TrimSpace(res.Package) == "" {
		return apperror.ValidationFailed("package", "package is required").WithCode(apperror.CodeBadExampleBody)
	}
	return nil
}
