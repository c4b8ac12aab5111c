package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// MaxStatementParams is SQLite's default limit on bound parameters in a
// single statement. Bulk inserts are chunked to stay under it.
const MaxStatementParams = 999

const (
	donationColumnCount = 14
	priceColumnCount    = 5
)

// MaxDonationChunk is the largest number of donations one insert statement
// can carry.
const MaxDonationChunk = MaxStatementParams / donationColumnCount

const maxPriceChunk = MaxStatementParams / priceColumnCount

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ApplyChange logs change at seq and applies its mutation in one
// transaction. It returns applied=false when the same change was already
// logged at the same seq; nothing is written in that case.
//
// Every variant of model.DataChange is handled. A change of any other kind
// fails with *model.UnknownChangeKindError and leaves the store untouched.
func (s *Store) ApplyChange(ctx context.Context, seq int64, change model.DataChange) (applied bool, err error) {
	if change == nil {
		return false, fmt.Errorf("apply change: nil change")
	}
	kind := change.Kind()

	id, err := model.ChangeID(seq, change)
	if err != nil {
		return false, fmt.Errorf("apply change %s: %w", kind, err)
	}
	payload, err := model.MarshalChange(change)
	if err != nil {
		return false, fmt.Errorf("apply change %s: %w", kind, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("apply change %s: begin tx: %w", kind, err)
	}
	defer tx.Rollback() // No-op if committed

	// Claim the log slot first; a conflict means this exact change at this
	// seq was already applied.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO changes (id, seq, kind, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, seq, string(kind), string(payload))
	if err != nil {
		return false, fmt.Errorf("apply change %s: log: %w", kind, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply change %s: rows affected: %w", kind, err)
	}
	if rowsAffected == 0 {
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("apply change %s: commit (existing): %w", kind, err)
		}
		return false, nil
	}

	if err := applyMutation(ctx, tx, change); err != nil {
		return false, fmt.Errorf("apply change %s: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("apply change %s: commit: %w", kind, err)
	}
	return true, nil
}

func applyMutation(ctx context.Context, ex execer, change model.DataChange) error {
	switch c := change.(type) {
	case model.InsertPendingProjectRole:
		return insertPendingProjectRole(ctx, ex, c.PendingProjectRole)
	case model.DeletePendingProjectRoles:
		return deletePendingProjectRoles(ctx, ex, c.IDs)
	case model.InsertProject:
		return insertProject(ctx, ex, c.Project)
	case model.UpdateProject:
		return updateProject(ctx, ex, c)
	case model.InsertProjectRole:
		return insertProjectRole(ctx, ex, c.ProjectRole)
	case model.DeleteAllProjectRolesByRole:
		return deleteProjectRolesByRole(ctx, ex, c)
	case model.InsertRound:
		return insertRound(ctx, ex, c.Round)
	case model.UpdateRound:
		return updateRound(ctx, ex, c)
	case model.InsertApplication:
		return insertApplication(ctx, ex, c.Application)
	case model.UpdateApplication:
		return updateApplication(ctx, ex, c)
	case model.InsertDonation:
		return insertDonations(ctx, ex, []model.Donation{c.Donation})
	case model.NewDonations:
		return insertDonations(ctx, ex, c.Donations)
	case model.NewPrices:
		return insertPrices(ctx, ex, c.Prices)
	case model.IncrementRoundDonationStats:
		return incrementRoundStats(ctx, ex, c)
	case model.IncrementApplicationDonationStats:
		return incrementApplicationStats(ctx, ex, c)
	default:
		return &model.UnknownChangeKindError{Kind: string(change.Kind())}
	}
}

func insertPendingProjectRole(ctx context.Context, ex execer, r model.PendingProjectRole) error {
	addr, err := normalizeAddress("address", r.Address)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO pending_project_roles (chain_id, role, address, created_at_block)
		VALUES (?, ?, ?, ?)
	`, r.ChainID, r.Role, addr, r.CreatedAtBlock)
	if err != nil {
		return fmt.Errorf("insert pending project role: %w", err)
	}
	return nil
}

func deletePendingProjectRoles(ctx context.Context, ex execer, ids []int64) error {
	for start := 0; start < len(ids); start += MaxStatementParams {
		end := min(start+MaxStatementParams, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		_, err := ex.ExecContext(ctx,
			"DELETE FROM pending_project_roles WHERE id IN ("+placeholders(len(chunk))+")",
			args...)
		if err != nil {
			return fmt.Errorf("delete pending project roles: %w", err)
		}
	}
	return nil
}

func insertProject(ctx context.Context, ex execer, p model.Project) error {
	registry, err := normalizeOptionalAddress("registryAddress", p.RegistryAddress)
	if err != nil {
		return err
	}
	createdBy, err := normalizeOptionalAddress("createdByAddress", p.CreatedByAddress)
	if err != nil {
		return err
	}
	metadata, err := marshalObject(p.Metadata)
	if err != nil {
		return err
	}
	tags, err := marshalTags(p.Tags)
	if err != nil {
		return err
	}
	var number sql.NullInt64
	if p.ProjectNumber != nil {
		number = sql.NullInt64{Int64: *p.ProjectNumber, Valid: true}
	}
	projectType := p.ProjectType
	if projectType == "" {
		projectType = model.ProjectTypeCanonical
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO projects
		(chain_id, id, name, project_number, registry_address, metadata_cid, metadata,
		 created_by_address, created_at_block, updated_at_block, tags, project_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ChainID, p.ID, p.Name, number, registry, nullIfEmpty(p.MetadataCID), metadata,
		createdBy, p.CreatedAtBlock, p.UpdatedAtBlock, tags, string(projectType),
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func updateProject(ctx context.Context, ex execer, c model.UpdateProject) error {
	var set setClause
	u := c.Project
	if u.Name != nil {
		set.add("name", *u.Name)
	}
	if u.MetadataCID != nil {
		set.add("metadata_cid", nullIfEmpty(*u.MetadataCID))
	}
	if u.Metadata != nil {
		metadata, err := marshalObject(u.Metadata)
		if err != nil {
			return err
		}
		set.add("metadata", metadata)
	}
	if u.UpdatedAtBlock != nil {
		set.add("updated_at_block", *u.UpdatedAtBlock)
	}
	if u.ProjectType != nil {
		set.add("project_type", string(*u.ProjectType))
	}
	if set.empty() {
		return nil
	}

	_, err := ex.ExecContext(ctx,
		"UPDATE projects SET "+set.clause()+" WHERE chain_id = ? AND id = ?",
		append(set.args, c.ChainID, c.ProjectID)...)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func insertProjectRole(ctx context.Context, ex execer, r model.ProjectRole) error {
	addr, err := normalizeAddress("address", r.Address)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO project_roles (chain_id, project_id, address, role, created_at_block)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, r.ChainID, r.ProjectID, addr, r.Role, r.CreatedAtBlock)
	if err != nil {
		return fmt.Errorf("insert project role: %w", err)
	}
	return nil
}

func deleteProjectRolesByRole(ctx context.Context, ex execer, c model.DeleteAllProjectRolesByRole) error {
	query := "DELETE FROM project_roles WHERE chain_id = ? AND project_id = ? AND role = ?"
	args := []any{c.ChainID, c.ProjectID, c.Role}
	if c.Address != nil {
		addr, err := normalizeAddress("address", *c.Address)
		if err != nil {
			return err
		}
		query += " AND address = ?"
		args = append(args, addr)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete project roles: %w", err)
	}
	return nil
}

func insertRound(ctx context.Context, ex execer, r model.Round) error {
	token, err := normalizeAddress("matchTokenAddress", r.MatchTokenAddress)
	if err != nil {
		return err
	}
	createdBy, err := normalizeOptionalAddress("createdByAddress", r.CreatedByAddress)
	if err != nil {
		return err
	}
	appMeta, err := marshalObject(r.ApplicationMetadata)
	if err != nil {
		return err
	}
	roundMeta, err := marshalObject(r.RoundMetadata)
	if err != nil {
		return err
	}
	tags, err := marshalTags(r.Tags)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO rounds
		(chain_id, id, match_token_address, match_amount, match_amount_in_usd_micros,
		 application_metadata_cid, application_metadata, round_metadata_cid, round_metadata,
		 project_id, strategy_name, created_by_address, created_at_block, updated_at_block,
		 total_amount_donated_in_usd_micros, total_donations_count, unique_donors_count, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ChainID, r.ID, token, amountColumn(r.MatchAmount), usdToMicros(r.MatchAmountInUSD),
		nullIfEmpty(r.ApplicationMetadataCID), appMeta, nullIfEmpty(r.RoundMetadataCID), roundMeta,
		r.ProjectID, nullIfEmpty(r.StrategyName), createdBy, r.CreatedAtBlock, r.UpdatedAtBlock,
		usdToMicros(r.TotalAmountDonatedInUSD), r.TotalDonationsCount, r.UniqueDonorsCount, tags,
	)
	if err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// updateRound never touches match_token_address: RoundUpdate has no field
// for it, so a round's token is fixed at insert.
func updateRound(ctx context.Context, ex execer, c model.UpdateRound) error {
	var set setClause
	u := c.Round
	if u.MatchAmount != nil {
		set.add("match_amount", amountColumn(*u.MatchAmount))
	}
	if u.MatchAmountInUSD != nil {
		set.add("match_amount_in_usd_micros", usdToMicros(*u.MatchAmountInUSD))
	}
	if u.ApplicationMetadataCID != nil {
		set.add("application_metadata_cid", nullIfEmpty(*u.ApplicationMetadataCID))
	}
	if u.ApplicationMetadata != nil {
		meta, err := marshalObject(u.ApplicationMetadata)
		if err != nil {
			return err
		}
		set.add("application_metadata", meta)
	}
	if u.RoundMetadataCID != nil {
		set.add("round_metadata_cid", nullIfEmpty(*u.RoundMetadataCID))
	}
	if u.RoundMetadata != nil {
		meta, err := marshalObject(u.RoundMetadata)
		if err != nil {
			return err
		}
		set.add("round_metadata", meta)
	}
	if u.UpdatedAtBlock != nil {
		set.add("updated_at_block", *u.UpdatedAtBlock)
	}
	if set.empty() {
		return nil
	}

	_, err := ex.ExecContext(ctx,
		"UPDATE rounds SET "+set.clause()+" WHERE chain_id = ? AND id = ?",
		append(set.args, c.ChainID, c.RoundID)...)
	if err != nil {
		return fmt.Errorf("update round: %w", err)
	}
	return nil
}

func insertApplication(ctx context.Context, ex execer, a model.Application) error {
	createdBy, err := normalizeOptionalAddress("createdByAddress", a.CreatedByAddress)
	if err != nil {
		return err
	}
	snapshots, err := marshalSnapshots(a.StatusSnapshots)
	if err != nil {
		return err
	}
	metadata, err := marshalObject(a.Metadata)
	if err != nil {
		return err
	}
	tags, err := marshalTags(a.Tags)
	if err != nil {
		return err
	}
	status := a.Status
	if status == "" {
		status = model.ApplicationPending
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO applications
		(chain_id, round_id, id, project_id, status, status_snapshots, status_updated_at_block,
		 metadata_cid, metadata, created_by_address, created_at_block,
		 total_amount_donated_in_usd_micros, total_donations_count, unique_donors_count, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ChainID, a.RoundID, a.ID, a.ProjectID, string(status), snapshots, a.StatusUpdatedAtBlock,
		nullIfEmpty(a.MetadataCID), metadata, createdBy, a.CreatedAtBlock,
		usdToMicros(a.TotalAmountDonatedInUSD), a.TotalDonationsCount, a.UniqueDonorsCount, tags,
	)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func updateApplication(ctx context.Context, ex execer, c model.UpdateApplication) error {
	var set setClause
	u := c.Application
	if u.Status != nil {
		set.add("status", string(*u.Status))
	}
	if u.StatusSnapshots != nil {
		snapshots, err := marshalSnapshots(u.StatusSnapshots)
		if err != nil {
			return err
		}
		set.add("status_snapshots", snapshots)
	}
	if u.StatusUpdatedAtBlock != nil {
		set.add("status_updated_at_block", *u.StatusUpdatedAtBlock)
	}
	if u.MetadataCID != nil {
		set.add("metadata_cid", nullIfEmpty(*u.MetadataCID))
	}
	if u.Metadata != nil {
		metadata, err := marshalObject(u.Metadata)
		if err != nil {
			return err
		}
		set.add("metadata", metadata)
	}
	if set.empty() {
		return nil
	}

	_, err := ex.ExecContext(ctx,
		"UPDATE applications SET "+set.clause()+" WHERE chain_id = ? AND round_id = ? AND id = ?",
		append(set.args, c.ChainID, c.RoundID, c.ApplicationID)...)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return nil
}

// insertDonations writes donations in order, MaxDonationChunk rows per
// statement. A donation whose id already exists is skipped.
func insertDonations(ctx context.Context, ex execer, donations []model.Donation) error {
	for start := 0; start < len(donations); start += MaxDonationChunk {
		end := min(start+MaxDonationChunk, len(donations))
		chunk := donations[start:end]

		args := make([]any, 0, len(chunk)*donationColumnCount)
		for _, d := range chunk {
			row, err := donationRow(d)
			if err != nil {
				return fmt.Errorf("donation %s: %w", d.ID, err)
			}
			args = append(args, row...)
		}

		_, err := ex.ExecContext(ctx, `
			INSERT INTO donations
			(id, chain_id, round_id, application_id, donor_address, recipient_address,
			 project_id, transaction_hash, block_number, token_address, amount,
			 amount_in_usd_micros, amount_in_round_match_token, timestamp)
			VALUES `+rowPlaceholders(donationColumnCount, len(chunk))+`
			ON CONFLICT(id) DO NOTHING
		`, args...)
		if err != nil {
			return fmt.Errorf("insert donations: %w", err)
		}
	}
	return nil
}

func donationRow(d model.Donation) ([]any, error) {
	donor, err := normalizeAddress("donorAddress", d.DonorAddress)
	if err != nil {
		return nil, err
	}
	recipient, err := normalizeOptionalAddress("recipientAddress", d.RecipientAddress)
	if err != nil {
		return nil, err
	}
	token, err := normalizeAddress("tokenAddress", d.TokenAddress)
	if err != nil {
		return nil, err
	}
	return []any{
		d.ID, d.ChainID, d.RoundID, d.ApplicationID, donor, recipient,
		d.ProjectID, d.TransactionHash, d.BlockNumber, token, d.Amount.String(),
		usdToMicros(d.AmountInUSD), d.AmountInRoundMatchToken.String(), timeToMillis(d.Timestamp),
	}, nil
}

func insertPrices(ctx context.Context, ex execer, prices []model.Price) error {
	for start := 0; start < len(prices); start += maxPriceChunk {
		end := min(start+maxPriceChunk, len(prices))
		chunk := prices[start:end]

		args := make([]any, 0, len(chunk)*priceColumnCount)
		for _, p := range chunk {
			token, err := normalizeAddress("tokenAddress", p.TokenAddress)
			if err != nil {
				return fmt.Errorf("price: %w", err)
			}
			args = append(args, p.ChainID, token, p.PriceInUSD.String(), timeToMillis(p.Timestamp), p.BlockNumber)
		}

		_, err := ex.ExecContext(ctx, `
			INSERT INTO prices (chain_id, token_address, price_in_usd, timestamp, block_number)
			VALUES `+rowPlaceholders(priceColumnCount, len(chunk)), args...)
		if err != nil {
			return fmt.Errorf("insert prices: %w", err)
		}
	}
	return nil
}

func incrementRoundStats(ctx context.Context, ex execer, c model.IncrementRoundDonationStats) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE rounds SET
			total_amount_donated_in_usd_micros = total_amount_donated_in_usd_micros + ?,
			total_donations_count = total_donations_count + 1
		WHERE chain_id = ? AND id = ?
	`, usdToMicros(c.AmountInUSD), c.ChainID, c.RoundID)
	if err != nil {
		return fmt.Errorf("increment round donation stats: %w", err)
	}
	return nil
}

func incrementApplicationStats(ctx context.Context, ex execer, c model.IncrementApplicationDonationStats) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE applications SET
			total_amount_donated_in_usd_micros = total_amount_donated_in_usd_micros + ?,
			total_donations_count = total_donations_count + 1
		WHERE chain_id = ? AND round_id = ? AND id = ?
	`, usdToMicros(c.AmountInUSD), c.ChainID, c.RoundID, c.ApplicationID)
	if err != nil {
		return fmt.Errorf("increment application donation stats: %w", err)
	}
	return nil
}

// setClause accumulates "col = ?" assignments for a partial UPDATE.
type setClause struct {
	cols []string
	args []any
}

func (s *setClause) add(col string, v any) {
	s.cols = append(s.cols, col+" = ?")
	s.args = append(s.args, v)
}

func (s *setClause) empty() bool { return len(s.cols) == 0 }

func (s *setClause) clause() string { return strings.Join(s.cols, ", ") }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func rowPlaceholders(cols, rows int) string {
	row := "(" + placeholders(cols) + ")"
	return strings.TrimSuffix(strings.Repeat(row+", ", rows), ", ")
}
