package store

import (
	"context"
	"fmt"
)

// RecomputeResult reports how many aggregate rows a recompute overwrote.
type RecomputeResult struct {
	Rounds       int64
	Applications int64
}

// RecomputeDonationStats rebuilds the donation aggregates of every round and
// application from the donations table, in one transaction. The result
// replaces whatever the incremental counters accumulated.
func (s *Store) RecomputeDonationStats(ctx context.Context) (RecomputeResult, error) {
	var res RecomputeResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("recompute donation stats: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE rounds SET
			total_amount_donated_in_usd_micros = COALESCE((
				SELECT SUM(d.amount_in_usd_micros) FROM donations d
				WHERE d.chain_id = rounds.chain_id AND d.round_id = rounds.id
			), 0),
			total_donations_count = (
				SELECT COUNT(*) FROM donations d
				WHERE d.chain_id = rounds.chain_id AND d.round_id = rounds.id
			),
			unique_donors_count = (
				SELECT COUNT(DISTINCT d.donor_address) FROM donations d
				WHERE d.chain_id = rounds.chain_id AND d.round_id = rounds.id
			)
	`)
	if err != nil {
		return res, fmt.Errorf("recompute donation stats: rounds: %w", err)
	}
	if res.Rounds, err = result.RowsAffected(); err != nil {
		return res, fmt.Errorf("recompute donation stats: rounds affected: %w", err)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE applications SET
			total_amount_donated_in_usd_micros = COALESCE((
				SELECT SUM(d.amount_in_usd_micros) FROM donations d
				WHERE d.chain_id = applications.chain_id
					AND d.round_id = applications.round_id
					AND d.application_id = applications.id
			), 0),
			total_donations_count = (
				SELECT COUNT(*) FROM donations d
				WHERE d.chain_id = applications.chain_id
					AND d.round_id = applications.round_id
					AND d.application_id = applications.id
			),
			unique_donors_count = (
				SELECT COUNT(DISTINCT d.donor_address) FROM donations d
				WHERE d.chain_id = applications.chain_id
					AND d.round_id = applications.round_id
					AND d.application_id = applications.id
			)
	`)
	if err != nil {
		return res, fmt.Errorf("recompute donation stats: applications: %w", err)
	}
	if res.Applications, err = result.RowsAffected(); err != nil {
		return res, fmt.Errorf("recompute donation stats: applications affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("recompute donation stats: commit: %w", err)
	}
	return res, nil
}
