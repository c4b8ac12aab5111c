package store

import (
	"context"
	"fmt"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// LoggedChange is one row of the change log.
type LoggedChange struct {
	ID     string
	Seq    int64
	Kind   model.ChangeKind
	Change model.DataChange
}

// LastChangeSeq returns the highest logged seq, or 0 for an empty log.
// The applier resumes its clock from here on restart.
func (s *Store) LastChangeSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM changes").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last change seq: %w", err)
	}
	return seq, nil
}

// CountChanges returns the number of logged changes.
func (s *Store) CountChanges(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM changes").Scan(&n); err != nil {
		return 0, fmt.Errorf("count changes: %w", err)
	}
	return n, nil
}

// ReadChanges returns up to limit logged changes with seq > afterSeq, in log
// order. A limit <= 0 reads to the end of the log.
//
// An entry whose kind this build does not know fails the read with
// *model.UnknownChangeKindError rather than being skipped.
func (s *Store) ReadChanges(ctx context.Context, afterSeq int64, limit int) ([]LoggedChange, error) {
	query := `
		SELECT id, seq, kind, payload
		FROM changes
		WHERE seq > ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`
	args := []any{afterSeq}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}
	defer rows.Close()

	changes := []LoggedChange{}
	for rows.Next() {
		var (
			lc      LoggedChange
			kind    string
			payload string
		)
		if err := rows.Scan(&lc.ID, &lc.Seq, &kind, &payload); err != nil {
			return nil, fmt.Errorf("read changes: scan: %w", err)
		}
		lc.Kind = model.ChangeKind(kind)
		if lc.Change, err = model.UnmarshalChange([]byte(payload)); err != nil {
			return nil, fmt.Errorf("read changes: seq %d: %w", lc.Seq, err)
		}
		changes = append(changes, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read changes: iterate: %w", err)
	}
	return changes, nil
}

// Replay re-applies every logged change of src into s, keeping each
// change's original seq. Changes s already holds are skipped, so replaying
// twice is the same as replaying once. Returns the number of changes newly
// applied.
func (s *Store) Replay(ctx context.Context, src *Store, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	var (
		after   int64
		applied int
	)
	for {
		batch, err := src.ReadChanges(ctx, after, batchSize)
		if err != nil {
			return applied, fmt.Errorf("replay: %w", err)
		}
		if len(batch) == 0 {
			return applied, nil
		}
		for _, lc := range batch {
			ok, err := s.ApplyChange(ctx, lc.Seq, lc.Change)
			if err != nil {
				return applied, fmt.Errorf("replay: seq %d: %w", lc.Seq, err)
			}
			if ok {
				applied++
			}
			after = lc.Seq
		}
	}
}
