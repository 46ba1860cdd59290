package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS match_results (
	id TEXT PRIMARY KEY,
	winner_id INTEGER NOT NULL,
	players INTEGER NOT NULL,
	ticks INTEGER NOT NULL,
	seed INTEGER NOT NULL,
	ended_at INTEGER NOT NULL
);
`

func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveMatchResult(ctx context.Context, result MatchResult) error {
	q := `
	INSERT INTO match_results (id, winner_id, players, ticks, seed, ended_at)
	VALUES (?, ?, ?, ?, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, q,
		result.ID.String(), result.WinnerID, result.Players,
		int64(result.Ticks), int64(result.Seed), result.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match result: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) ListMatchResults(ctx context.Context, limit int) ([]MatchResult, error) {
	q := `
	SELECT id, winner_id, players, ticks, seed, ended_at
	FROM match_results ORDER BY ended_at DESC LIMIT ?;
	`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match results: %v", err)
	}
	defer rows.Close()

	var results []MatchResult
	for rows.Next() {
		var id string
		var result MatchResult
		var ticks, seed int64
		if err := rows.Scan(&id, &result.WinnerID, &result.Players, &ticks, &seed, &result.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match result: %v", err)
		}
		result.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse match result id: %v", err)
		}
		result.Ticks = uint64(ticks)
		result.Seed = uint64(seed)
		results = append(results, result)
	}
	return results, rows.Err()
}
