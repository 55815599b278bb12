package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
)

// StrikeRepo tracks per-user, per-group warning counts.
type StrikeRepo struct {
	db *sql.DB
}

// Increment raises the user's strike count in the group by one and returns
// the new total. The upsert keeps concurrent increments from losing updates.
func (r *StrikeRepo) Increment(ctx context.Context, userID string, groupID string) (int, error) {
	userID = identity.Normalize(userID)
	var count int
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO strikes (user_id, group_id, count, updated_at)
		 VALUES ($1, $2, 1, now())
		 ON CONFLICT (user_id, group_id)
		 DO UPDATE SET count = strikes.count + 1, updated_at = now()
		 RETURNING count`,
		userID, groupID).Scan(&count)
	return count, err
}

// Count returns the user's current strike count in the group, zero when the
// user has no record.
func (r *StrikeRepo) Count(ctx context.Context, userID string, groupID string) (int, error) {
	userID = identity.Normalize(userID)
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count FROM strikes WHERE user_id = $1 AND group_id = $2`,
		userID, groupID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// Reset clears the user's strike record in the group.
func (r *StrikeRepo) Reset(ctx context.Context, userID string, groupID string) error {
	userID = identity.Normalize(userID)
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM strikes WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	return err
}

// pgTextArray renders ids as a PostgreSQL text[] literal for ANY() matching
// through database/sql.
func pgTextArray(items []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, item := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(item))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}
