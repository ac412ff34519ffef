package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// LoadSubscriptions returns all rows in insertion order.
func (r *SQLiteRepo) LoadSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, vote_url_id, guild_id, window_start, window_end,
		       mode, channel_id, timezone, last_known_display_name,
		       last_voted_at, last_reminder_at
		FROM subscriptions
		ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Subscription
	for rows.Next() {
		var (
			id, userID, mode               string
			voteURLID, guildID, start, end sql.NullString
			channelID, tz, displayName     sql.NullString
			votedNS, remindedNS            sql.NullInt64
		)
		if err := rows.Scan(
			&id, &userID, &voteURLID, &guildID, &start, &end,
			&mode, &channelID, &tz, &displayName,
			&votedNS, &remindedNS,
		); err != nil {
			return nil, err
		}
		res = append(res, domain.Subscription{
			ID:                   id,
			UserID:               userID,
			VoteURLID:            voteURLID.String,
			GuildID:              guildID.String,
			Window:               domain.NormalizeWindow(&domain.Window{Start: start.String, End: end.String}),
			Mode:                 domain.NormalizeMode(mode),
			ChannelID:            channelID.String,
			Timezone:             tz.String,
			LastKnownDisplayName: displayName.String,
			LastVotedAt:          fromNullInt64(votedNS),
			LastReminderAt:       fromNullInt64(remindedNS),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// SaveSubscriptions replaces the table content in one transaction.
func (r *SQLiteRepo) SaveSubscriptions(ctx context.Context, subs []domain.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO subscriptions (
			id, position, user_id, vote_url_id, guild_id, window_start, window_end,
			mode, channel_id, timezone, last_known_display_name,
			last_voted_at, last_reminder_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, s := range subs {
		var start, end string
		if s.Window != nil {
			start, end = s.Window.Start, s.Window.End
		}
		if _, err := stmt.ExecContext(ctx,
			s.ID, i, s.UserID, toNullString(s.VoteURLID), toNullString(s.GuildID),
			toNullString(start), toNullString(end),
			string(s.Mode), toNullString(s.ChannelID), toNullString(s.Timezone),
			toNullString(s.LastKnownDisplayName),
			toNullInt64(s.LastVotedAt), toNullInt64(s.LastReminderAt),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
