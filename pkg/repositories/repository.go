package repositories

import (
	"context"

	"github.com/google/uuid"
)

// MatchResult is the durable record of one finished match.
type MatchResult struct {
	ID       uuid.UUID
	WinnerID uint32
	Players  int
	Ticks    uint64
	Seed     uint64
	EndedAt  int64
}

type Repository interface {
	Close(ctx context.Context) error
	SaveMatchResult(ctx context.Context, result MatchResult) error
	ListMatchResults(ctx context.Context, limit int) ([]MatchResult, error)
}
