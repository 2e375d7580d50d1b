package persist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/survarena/server/internal/sim"
)

// MatchRepo stores finished matches. It implements sim.ResultSink.
type MatchRepo struct {
	db *DB
}

func NewMatchRepo(db *DB) *MatchRepo {
	return &MatchRepo{db: db}
}

// SaveMatch writes the match row and its player rows in one transaction.
// Saving the same match twice is a no-op.
func (r *MatchRepo) SaveMatch(ctx context.Context, res sim.Result) error {
	id, err := uuid.Parse(res.ID)
	if err != nil {
		return fmt.Errorf("match id %q: %w", res.ID, err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("match begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO matches (id, mode, started_at, ended_at, winner, player_count, ticks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		id, res.Mode, res.StartedAt, res.EndedAt, res.Winner, res.PlayerCount, int64(res.Ticks),
	)
	if err != nil {
		return fmt.Errorf("match insert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for slot, p := range res.Players {
		batch.Queue(
			`INSERT INTO match_players (match_id, slot, name, rank, kills, damage)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, slot, p.Name, p.Rank, p.Kills, p.Damage,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("match players insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("match commit: %w", err)
	}
	r.db.log.Info("match saved",
		zap.String("match", res.ID),
		zap.String("mode", res.Mode),
		zap.Int("players", len(res.Players)),
	)
	return nil
}
