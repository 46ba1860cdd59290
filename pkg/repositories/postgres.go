package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voltgrid/voltgrid/pkg/log"
)

type PostgresRepository struct {
	conn *pgx.Conn
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS match_results (
	id UUID PRIMARY KEY,
	winner_id BIGINT NOT NULL,
	players INTEGER NOT NULL,
	ticks BIGINT NOT NULL,
	seed BIGINT NOT NULL,
	ended_at BIGINT NOT NULL
);
`

func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	var username, database string
	if err := conn.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database); err != nil {
		return nil, fmt.Errorf("failed to query database: %v", err)
	}
	log.Info("Connected to %s as %s", database, username)

	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) SaveMatchResult(ctx context.Context, result MatchResult) error {
	q := `
	INSERT INTO match_results (id, winner_id, players, ticks, seed, ended_at)
	VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := r.conn.Exec(ctx, q,
		result.ID, result.WinnerID, result.Players,
		int64(result.Ticks), int64(result.Seed), result.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match result: %v", err)
	}
	return nil
}

func (r *PostgresRepository) ListMatchResults(ctx context.Context, limit int) ([]MatchResult, error) {
	q := `
	SELECT id, winner_id, players, ticks, seed, ended_at
	FROM match_results ORDER BY ended_at DESC LIMIT $1;
	`
	rows, err := r.conn.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match results: %v", err)
	}
	defer rows.Close()

	var results []MatchResult
	for rows.Next() {
		var result MatchResult
		var ticks, seed int64
		if err := rows.Scan(&result.ID, &result.WinnerID, &result.Players, &ticks, &seed, &result.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match result: %v", err)
		}
		result.Ticks = uint64(ticks)
		result.Seed = uint64(seed)
		results = append(results, result)
	}
	return results, rows.Err()
}
