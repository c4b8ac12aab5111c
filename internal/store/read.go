package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// GetPendingProjectRolesByRole returns pending grants of role on a chain,
// oldest first. Returns an empty slice (not nil) when there are none.
func (s *Store) GetPendingProjectRolesByRole(ctx context.Context, chainID int64, role string) ([]model.PendingProjectRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chain_id, role, address, created_at_block
		FROM pending_project_roles
		WHERE chain_id = ? AND role = ?
		ORDER BY id ASC
	`, chainID, role)
	if err != nil {
		return nil, fmt.Errorf("query pending project roles: %w", err)
	}
	defer rows.Close()

	roles := []model.PendingProjectRole{}
	for rows.Next() {
		var r model.PendingProjectRole
		if err := rows.Scan(&r.ID, &r.ChainID, &r.Role, &r.Address, &r.CreatedAtBlock); err != nil {
			return nil, fmt.Errorf("scan pending project role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending project roles: %w", err)
	}
	return roles, nil
}

// GetProjectRoles returns the role grants on a project ordered by role and
// address.
func (s *Store) GetProjectRoles(ctx context.Context, chainID int64, projectID string) ([]model.ProjectRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_id, project_id, address, role, created_at_block
		FROM project_roles
		WHERE chain_id = ? AND project_id = ?
		ORDER BY role ASC, address ASC
	`, chainID, projectID)
	if err != nil {
		return nil, fmt.Errorf("query project roles: %w", err)
	}
	defer rows.Close()

	roles := []model.ProjectRole{}
	for rows.Next() {
		var r model.ProjectRole
		if err := rows.Scan(&r.ChainID, &r.ProjectID, &r.Address, &r.Role, &r.CreatedAtBlock); err != nil {
			return nil, fmt.Errorf("scan project role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project roles: %w", err)
	}
	return roles, nil
}

const projectColumns = `chain_id, id, name, project_number, registry_address, metadata_cid, metadata,
	created_by_address, created_at_block, updated_at_block, tags, project_type`

// GetProjectByID returns a project or a *model.NotFoundError.
func (s *Store) GetProjectByID(ctx context.Context, chainID int64, id string) (model.Project, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE chain_id = ? AND id = ?", chainID, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, model.NewNotFound("project", chainID, id)
	}
	return p, err
}

// ListProjectsByChain returns all projects on a chain ordered by id.
func (s *Store) ListProjectsByChain(ctx context.Context, chainID int64) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE chain_id = ? ORDER BY id ASC", chainID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

func scanProject(row rowScanner) (model.Project, error) {
	var (
		p           model.Project
		number      sql.NullInt64
		metadataCID sql.NullString
		metadata    sql.NullString
		tags        string
		projectType string
	)
	err := row.Scan(&p.ChainID, &p.ID, &p.Name, &number, &p.RegistryAddress, &metadataCID, &metadata,
		&p.CreatedByAddress, &p.CreatedAtBlock, &p.UpdatedAtBlock, &tags, &projectType)
	if errors.Is(err, sql.ErrNoRows) {
		return p, err
	}
	if err != nil {
		return p, fmt.Errorf("scan project: %w", err)
	}

	if number.Valid {
		n := number.Int64
		p.ProjectNumber = &n
	}
	p.MetadataCID = metadataCID.String
	p.ProjectType = model.ProjectType(projectType)
	if p.Metadata, err = unmarshalObject(metadata); err != nil {
		return p, err
	}
	if p.Tags, err = unmarshalTags(tags); err != nil {
		return p, err
	}
	return p, nil
}

const roundColumns = `chain_id, id, match_token_address, match_amount, match_amount_in_usd_micros,
	application_metadata_cid, application_metadata, round_metadata_cid, round_metadata,
	project_id, strategy_name, created_by_address, created_at_block, updated_at_block,
	total_amount_donated_in_usd_micros, total_donations_count, unique_donors_count, tags`

// GetRoundByID returns a round or a *model.NotFoundError.
func (s *Store) GetRoundByID(ctx context.Context, chainID int64, id string) (model.Round, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+roundColumns+" FROM rounds WHERE chain_id = ? AND id = ?", chainID, id)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Round{}, model.NewNotFound("round", chainID, id)
	}
	return r, err
}

// GetRoundMatchTokenAddress returns the match token of a round, or a
// *model.NotFoundError when the round does not exist.
func (s *Store) GetRoundMatchTokenAddress(ctx context.Context, chainID int64, roundID string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `
		SELECT match_token_address FROM rounds WHERE chain_id = ? AND id = ?
	`, chainID, roundID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.NewNotFound("round match token", chainID, roundID)
	}
	if err != nil {
		return "", fmt.Errorf("query round match token: %w", err)
	}
	return token, nil
}

// ListRoundsByChain returns all rounds on a chain ordered by id.
func (s *Store) ListRoundsByChain(ctx context.Context, chainID int64) ([]model.Round, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+roundColumns+" FROM rounds WHERE chain_id = ? ORDER BY id ASC", chainID)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	rounds := []model.Round{}
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return rounds, nil
}

func scanRound(row rowScanner) (model.Round, error) {
	var (
		r                model.Round
		matchAmount      string
		matchUSD         int64
		appMetadataCID   sql.NullString
		appMetadata      sql.NullString
		roundMetadataCID sql.NullString
		roundMetadata    sql.NullString
		strategyName     sql.NullString
		totalUSD         int64
		tags             string
	)
	err := row.Scan(&r.ChainID, &r.ID, &r.MatchTokenAddress, &matchAmount, &matchUSD,
		&appMetadataCID, &appMetadata, &roundMetadataCID, &roundMetadata,
		&r.ProjectID, &strategyName, &r.CreatedByAddress, &r.CreatedAtBlock, &r.UpdatedAtBlock,
		&totalUSD, &r.TotalDonationsCount, &r.UniqueDonorsCount, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("scan round: %w", err)
	}

	if r.MatchAmount, err = parseAmountColumn("match_amount", matchAmount); err != nil {
		return r, err
	}
	r.MatchAmountInUSD = microsToUSD(matchUSD)
	r.TotalAmountDonatedInUSD = microsToUSD(totalUSD)
	r.ApplicationMetadataCID = appMetadataCID.String
	r.RoundMetadataCID = roundMetadataCID.String
	r.StrategyName = strategyName.String
	if r.ApplicationMetadata, err = unmarshalObject(appMetadata); err != nil {
		return r, err
	}
	if r.RoundMetadata, err = unmarshalObject(roundMetadata); err != nil {
		return r, err
	}
	if r.Tags, err = unmarshalTags(tags); err != nil {
		return r, err
	}
	return r, nil
}

const applicationColumns = `chain_id, round_id, id, project_id, status, status_snapshots,
	status_updated_at_block, metadata_cid, metadata, created_by_address, created_at_block,
	total_amount_donated_in_usd_micros, total_donations_count, unique_donors_count, tags`

// GetApplicationByID returns an application or a *model.NotFoundError.
func (s *Store) GetApplicationByID(ctx context.Context, chainID int64, roundID, id string) (model.Application, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE chain_id = ? AND round_id = ? AND id = ?",
		chainID, roundID, id)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Application{}, model.NewNotFound("application", chainID, roundID, id)
	}
	return a, err
}

// ListApplicationsByRound returns a round's applications ordered by id.
func (s *Store) ListApplicationsByRound(ctx context.Context, chainID int64, roundID string) ([]model.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE chain_id = ? AND round_id = ? ORDER BY id ASC",
		chainID, roundID)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	apps := []model.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, nil
}

func scanApplication(row rowScanner) (model.Application, error) {
	var (
		a           model.Application
		status      string
		snapshots   string
		metadataCID sql.NullString
		metadata    sql.NullString
		totalUSD    int64
		tags        string
	)
	err := row.Scan(&a.ChainID, &a.RoundID, &a.ID, &a.ProjectID, &status, &snapshots,
		&a.StatusUpdatedAtBlock, &metadataCID, &metadata, &a.CreatedByAddress, &a.CreatedAtBlock,
		&totalUSD, &a.TotalDonationsCount, &a.UniqueDonorsCount, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return a, err
	}
	if err != nil {
		return a, fmt.Errorf("scan application: %w", err)
	}

	a.Status = model.ApplicationStatus(status)
	a.MetadataCID = metadataCID.String
	a.TotalAmountDonatedInUSD = microsToUSD(totalUSD)
	if a.StatusSnapshots, err = unmarshalSnapshots(snapshots); err != nil {
		return a, err
	}
	if a.Metadata, err = unmarshalObject(metadata); err != nil {
		return a, err
	}
	if a.Tags, err = unmarshalTags(tags); err != nil {
		return a, err
	}
	return a, nil
}

// ListDonationsByRound returns a round's donations ordered by id.
func (s *Store) ListDonationsByRound(ctx context.Context, chainID int64, roundID string) ([]model.Donation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chain_id, round_id, application_id, donor_address, recipient_address,
			project_id, transaction_hash, block_number, token_address, amount,
			amount_in_usd_micros, amount_in_round_match_token, timestamp
		FROM donations
		WHERE chain_id = ? AND round_id = ?
		ORDER BY id ASC
	`, chainID, roundID)
	if err != nil {
		return nil, fmt.Errorf("query donations: %w", err)
	}
	defer rows.Close()

	donations := []model.Donation{}
	for rows.Next() {
		var (
			d           model.Donation
			amount      string
			usd         int64
			amountMatch string
			ts          int64
		)
		if err := rows.Scan(&d.ID, &d.ChainID, &d.RoundID, &d.ApplicationID, &d.DonorAddress,
			&d.RecipientAddress, &d.ProjectID, &d.TransactionHash, &d.BlockNumber, &d.TokenAddress,
			&amount, &usd, &amountMatch, &ts); err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		if d.Amount, err = parseAmountColumn("amount", amount); err != nil {
			return nil, err
		}
		if d.AmountInRoundMatchToken, err = parseAmountColumn("amount_in_round_match_token", amountMatch); err != nil {
			return nil, err
		}
		d.AmountInUSD = microsToUSD(usd)
		d.Timestamp = millisToTime(ts)
		donations = append(donations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donations: %w", err)
	}
	return donations, nil
}

// CountDonations returns the number of donations stored in the namespace.
func (s *Store) CountDonations(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM donations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count donations: %w", err)
	}
	return n, nil
}

const priceColumns = "chain_id, token_address, price_in_usd, timestamp, block_number"

// ListPricesByChain returns all prices on a chain ordered by block.
func (s *Store) ListPricesByChain(ctx context.Context, chainID int64) ([]model.Price, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+priceColumns+" FROM prices WHERE chain_id = ? ORDER BY block_number ASC, id ASC", chainID)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	prices := []model.Price{}
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prices: %w", err)
	}
	return prices, nil
}

// LatestPriceTimestamp returns the newest price timestamp on a chain. ok is
// false when the chain has no prices yet.
func (s *Store) LatestPriceTimestamp(ctx context.Context, chainID int64) (ts time.Time, ok bool, err error) {
	var ms sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		"SELECT MAX(timestamp) FROM prices WHERE chain_id = ?", chainID).Scan(&ms)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query latest price timestamp: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return millisToTime(ms.Int64), true, nil
}

// PriceAtBlock returns the most recent price of token at or before block.
// Returns a *model.NotFoundError when no such price exists.
func (s *Store) PriceAtBlock(ctx context.Context, chainID int64, token string, block int64) (model.Price, error) {
	addr, err := model.NormalizeAddress(token)
	if err != nil {
		return model.Price{}, fmt.Errorf("price at block: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+priceColumns+`
		FROM prices
		WHERE chain_id = ? AND token_address = ? AND block_number <= ?
		ORDER BY block_number DESC, id DESC
		LIMIT 1
	`, chainID, addr, block)
	p, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Price{}, model.NewNotFound("price", chainID, addr, block)
	}
	return p, err
}

// LatestPrice returns the most recent price of token on a chain.
func (s *Store) LatestPrice(ctx context.Context, chainID int64, token string) (model.Price, error) {
	addr, err := model.NormalizeAddress(token)
	if err != nil {
		return model.Price{}, fmt.Errorf("latest price: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+priceColumns+`
		FROM prices
		WHERE chain_id = ? AND token_address = ?
		ORDER BY block_number DESC, id DESC
		LIMIT 1
	`, chainID, addr)
	p, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Price{}, model.NewNotFound("price", chainID, addr)
	}
	return p, err
}

func scanPrice(row rowScanner) (model.Price, error) {
	var (
		p     model.Price
		price string
		ts    int64
	)
	err := row.Scan(&p.ChainID, &p.TokenAddress, &price, &ts, &p.BlockNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return p, err
	}
	if err != nil {
		return p, fmt.Errorf("scan price: %w", err)
	}
	if p.PriceInUSD, err = parseDecimalColumn("price_in_usd", price); err != nil {
		return p, err
	}
	p.Timestamp = millisToTime(ts)
	return p, nil
}
