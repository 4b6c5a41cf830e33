package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

// OwnerLockKey namespaces the advisory lock guarding one tutor's calendar.
func OwnerLockKey(ownerID string) string {
	return "schedule-owner:" + ownerID
}

// AdvisoryLocker takes transaction-scoped postgres advisory locks.
type AdvisoryLocker struct{}

// Lock blocks until every key is held by the current transaction. Keys are taken in sorted
// order so two units locking the same set cannot deadlock each other.
func (AdvisoryLocker) Lock(ctx context.Context, exec sqlx.ExtContext, keys ...string) error {
	if exec == nil {
		return fmt.Errorf("advisory lock requires a transaction")
	}
	unique := make(map[string]struct{}, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, seen := unique[key]; seen || key == "" {
			continue
		}
		unique[key] = struct{}{}
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	for _, key := range ordered {
		if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("acquire advisory lock %s: %w", key, err)
		}
	}
	return nil
}
