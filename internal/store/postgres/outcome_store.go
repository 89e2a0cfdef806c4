package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OutcomeStore implements domain.TradeOutcomeStore using PostgreSQL. Leg
// results are stored as JSONB so the schema does not chase the leg shape.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates an OutcomeStore backed by the given pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// Create inserts a settled trade outcome.
func (s *OutcomeStore) Create(ctx context.Context, outcome domain.TradeOutcome) error {
	legs, err := json.Marshal(outcome.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs for %s: %w", outcome.ID, err)
	}
	hedgeLegs, err := json.Marshal(outcome.HedgeLegs)
	if err != nil {
		return fmt.Errorf("postgres: marshal hedge legs for %s: %w", outcome.ID, err)
	}

	const query = `
		INSERT INTO trade_outcomes (
			id, opportunity_id, kind, strategy, instrument, state,
			legs, hedge_legs, realized_profit, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, query,
		outcome.ID, outcome.OpportunityID, string(outcome.Kind),
		outcome.Strategy, outcome.Instrument, string(outcome.State),
		legs, hedgeLegs, outcome.RealizedProfit,
		outcome.StartedAt, outcome.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create trade outcome %s: %w", outcome.ID, err)
	}
	return nil
}

// ListBefore returns all outcomes completed strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *OutcomeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeOutcome, error) {
	const query = `
		SELECT id, opportunity_id, kind, strategy, instrument, state,
		       legs, hedge_legs, realized_profit, started_at, completed_at
		FROM trade_outcomes
		WHERE completed_at < $1
		ORDER BY completed_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.TradeOutcome
	for rows.Next() {
		var (
			o               domain.TradeOutcome
			kind, state     string
			legs, hedgeLegs []byte
		)
		if err := rows.Scan(
			&o.ID, &o.OpportunityID, &kind, &o.Strategy, &o.Instrument, &state,
			&legs, &hedgeLegs, &o.RealizedProfit, &o.StartedAt, &o.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade outcome: %w", err)
		}
		o.Kind = domain.OpportunityKind(kind)
		o.State = domain.TradeState(state)
		if err := json.Unmarshal(legs, &o.Legs); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal legs for %s: %w", o.ID, err)
		}
		if err := json.Unmarshal(hedgeLegs, &o.HedgeLegs); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal hedge legs for %s: %w", o.ID, err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

var _ domain.TradeOutcomeStore = (*OutcomeStore)(nil)
