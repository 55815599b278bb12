package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
)

// BlacklistEntry is one banned number. UserID is always the canonical
// identity form.
type BlacklistEntry struct {
	UserID    string
	AddedBy   string
	Reason    string
	CreatedAt time.Time
}

// BlacklistRepo stores globally banned numbers. Entries apply to every group
// the bot moderates.
type BlacklistRepo struct {
	db *sql.DB
}

// IsBlocked reports whether the user is on the blacklist.
func (r *BlacklistRepo) IsBlocked(ctx context.Context, userID string) (bool, error) {
	userID = identity.Normalize(userID)
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blacklist WHERE user_id = $1)`, userID).Scan(&exists)
	return exists, err
}

// Add inserts a number into the blacklist. It is idempotent; the second
// return value reports whether the number was already present.
func (r *BlacklistRepo) Add(ctx context.Context, userID string, addedBy string, reason string) (alreadyPresent bool, err error) {
	userID = identity.Normalize(userID)
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO blacklist (user_id, added_by, reason)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, identity.Normalize(addedBy), reason)
	if err != nil {
		return false, err
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return inserted == 0, nil
}

// Remove deletes a number from the blacklist and reports whether it was
// present.
func (r *BlacklistRepo) Remove(ctx context.Context, userID string) (wasPresent bool, err error) {
	userID = identity.Normalize(userID)
	result, err := r.db.ExecContext(ctx, `DELETE FROM blacklist WHERE user_id = $1`, userID)
	if err != nil {
		return false, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

// List returns every blacklist entry, newest first.
func (r *BlacklistRepo) List(ctx context.Context) ([]BlacklistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, added_by, reason, created_at FROM blacklist ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []BlacklistEntry
	for rows.Next() {
		var e BlacklistEntry
		if err := rows.Scan(&e.UserID, &e.AddedBy, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FilterBlocked returns the subset of userIDs that are blacklisted, in one
// round trip. Input ids are normalized before matching.
func (r *BlacklistRepo) FilterBlocked(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	normalized := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		normalized = append(normalized, identity.Normalize(id))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM blacklist WHERE user_id = ANY($1::text[])`, pgTextArray(normalized))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		blocked = append(blocked, id)
	}
	return blocked, rows.Err()
}
