package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/repository"
)

var _ repository.LockRepository = (*DB)(nil)

// AcquireLock grants or extends the lock on resource for identity.
//
// CONDITIONAL UPSERT:
// The whole decision happens in one statement, so two requests racing for a
// free lock cannot both win:
//   - no row                      → INSERT, identity gets the lock
//   - row held by identity        → UPDATE, expiration is pushed out
//   - row expired (exp <= now)    → UPDATE, identity takes it over
//   - row held by someone else    → WHERE fails, row is left alone
//
// The lock is then read back, so the caller sees the holder either way.
func (db *DB) AcquireLock(ctx context.Context, resource model.ResourceID, identity string, now time.Time, ttl time.Duration) (*model.AccessLock, error) {
	expiration := now.Add(ttl).Unix()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO access_locks (language, package, user_email, expiration)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (language, package) DO UPDATE
		 SET user_email = excluded.user_email, expiration = excluded.expiration
		 WHERE access_locks.user_email = excluded.user_email
		    OR access_locks.expiration <= ?`,
		resource.Language, resource.Package, identity, expiration,
		now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: acquiring lock on %s: %w", resource, err)
	}

	lock := model.AccessLock{Language: resource.Language, Package: resource.Package}
	var exp int64
	err = db.conn.QueryRowContext(ctx,
		`SELECT user_email, expiration FROM access_locks WHERE language = ? AND package = ?`,
		resource.Language, resource.Package,
	).Scan(&lock.UserEmail, &exp)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading lock on %s: %w", resource, err)
	}
	lock.Expiration = time.Unix(exp, 0)
	return &lock, nil
}

// ReleaseLock drops the lock if identity holds it. Releasing a lock held by
// someone else, or no lock at all, is a no-op.
func (db *DB) ReleaseLock(ctx context.Context, resource model.ResourceID, identity string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM access_locks WHERE language = ? AND package = ? AND user_email = ?`,
		resource.Language, resource.Package, identity,
	)
	if err != nil {
		return fmt.Errorf("sqlite: releasing lock on %s: %w", resource, err)
	}
	return nil
}

// ActiveLocks returns every lock that has not expired at now.
func (db *DB) ActiveLocks(ctx context.Context, now time.Time) ([]model.AccessLock, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT language, package, user_email, expiration
		 FROM access_locks WHERE expiration > ?
		 ORDER BY language, package`,
		now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing active locks: %w", err)
	}
	defer rows.Close()

	var locks []model.AccessLock
	for rows.Next() {
		var l model.AccessLock
		var exp int64
		if err := rows.Scan(&l.Language, &l.Package, &l.UserEmail, &exp); err != nil {
			return nil, fmt.Errorf("sqlite: scanning lock row: %w", err)
		}
		l.Expiration = time.Unix(exp, 0)
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating locks: %w", err)
	}
	return locks, nil
}
