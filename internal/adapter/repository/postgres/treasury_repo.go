package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

const treasuryColumns = `id, name, type, company_id, bank_name, account_number,
	opening_balance, balance, version, is_active, created_by, created_at, updated_at`

// TreasuryRepository implements usecase.TreasuryRepository.
type TreasuryRepository struct {
	db querier
}

// NewTreasuryRepository creates a new TreasuryRepository.
func NewTreasuryRepository(pool *pgxpool.Pool) *TreasuryRepository {
	return &TreasuryRepository{db: pool}
}

// Create inserts a treasury within a transaction.
func (r *TreasuryRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Treasury) error {
	_, err := pgxTx(tx).Exec(ctx, `
		INSERT INTO treasuries (`+treasuryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID,
		t.Name,
		string(t.Type),
		t.CompanyID,
		t.BankName,
		t.AccountNumber,
		decimalToNumeric(t.OpeningBalance),
		decimalToNumeric(t.Balance),
		t.Version,
		t.IsActive,
		t.CreatedBy,
		timeToPgTimestamptz(t.CreatedAt),
		timeToPgTimestamptz(t.UpdatedAt),
	)

	return translateError(err)
}

// GetByID retrieves a treasury by ID.
func (r *TreasuryRepository) GetByID(ctx context.Context, id string) (*domain.Treasury, error) {
	row := r.db.QueryRow(ctx, `SELECT `+treasuryColumns+` FROM treasuries WHERE id = $1`, id)
	return scanTreasuryRow(row)
}

// GetByIDForUpdate retrieves a treasury by ID with a FOR UPDATE lock.
func (r *TreasuryRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Treasury, error) {
	row := pgxTx(tx).QueryRow(ctx, `SELECT `+treasuryColumns+` FROM treasuries WHERE id = $1 FOR UPDATE`, id)
	return scanTreasuryRow(row)
}

// GetByIDsForUpdate locks several treasuries.
// DEADLOCK PREVENTION: rows are locked in ascending id order regardless of
// the order of ids, so concurrent transfers between the same pair always
// acquire locks in the same sequence.
func (r *TreasuryRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Treasury, error) {
	rows, err := pgxTx(tx).Query(ctx,
		`SELECT `+treasuryColumns+` FROM treasuries WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	treasuries := make([]*domain.Treasury, 0, len(ids))
	for rows.Next() {
		t, err := scanTreasury(rows)
		if err != nil {
			return nil, err
		}
		treasuries = append(treasuries, t)
	}

	return treasuries, rows.Err()
}

// UpdateBalance stores a new cached balance and version.
func (r *TreasuryRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, version int64, updatedAt time.Time) error {
	tag, err := pgxTx(tx).Exec(ctx, `
		UPDATE treasuries SET balance = $2, version = $3, updated_at = $4
		WHERE id = $1 AND version = $3 - 1`,
		id, decimalToNumeric(balance), version, timeToPgTimestamptz(updatedAt))
	if err != nil {
		return translateError(err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}

	return nil
}

// SetActive flips the lifecycle flag.
func (r *TreasuryRepository) SetActive(ctx context.Context, tx usecase.Transaction, id string, active bool, updatedAt time.Time) error {
	tag, err := pgxTx(tx).Exec(ctx,
		`UPDATE treasuries SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, timeToPgTimestamptz(updatedAt))
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrTreasuryNotFound
	}

	return nil
}

// Delete removes a treasury with no history.
func (r *TreasuryRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	tag, err := pgxTx(tx).Exec(ctx, `DELETE FROM treasuries WHERE id = $1`, id)
	if err != nil {
		err = translateError(err)
		if errors.Is(err, domain.ErrConflict) {
			return domain.ErrTreasuryInUse
		}
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrTreasuryNotFound
	}

	return nil
}

// List returns a page of treasuries ordered by id and the total count.
func (r *TreasuryRepository) List(ctx context.Context, filter domain.TreasuryFilter) ([]*domain.Treasury, int64, error) {
	var where whereBuilder
	if filter.Type != nil {
		where.add("type = $%d", string(*filter.Type))
	}
	if filter.IsActive != nil {
		where.add("is_active = $%d", *filter.IsActive)
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM treasuries`+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, args := where.page(filter.Limit, filter.Offset)
	rows, err := r.db.Query(ctx, `SELECT `+treasuryColumns+` FROM treasuries`+where.sql()+` ORDER BY id`+limit, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	treasuries := make([]*domain.Treasury, 0, filter.Limit)
	for rows.Next() {
		t, err := scanTreasury(rows)
		if err != nil {
			return nil, 0, err
		}
		treasuries = append(treasuries, t)
	}

	return treasuries, total, rows.Err()
}

// SumByType sums cached balances grouped by treasury type.
func (r *TreasuryRepository) SumByType(ctx context.Context, activeOnly bool) ([]domain.TypeTotal, error) {
	query := `SELECT type, COUNT(*), COALESCE(SUM(balance), 0) FROM treasuries`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` GROUP BY type`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTypeTotals(rows)
}

// BalancesByType sums cached balances and the signed log per treasury type in
// one statement, so both totals come from the same snapshot.
func (r *TreasuryRepository) BalancesByType(ctx context.Context) ([]domain.TypeTotal, []domain.TypeTotal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.type,
		       COUNT(*),
		       COALESCE(SUM(t.balance), 0),
		       COALESCE(SUM(l.signed), 0)
		FROM treasuries t
		LEFT JOIN (
			SELECT treasury_id,
			       SUM(CASE WHEN type = 'WITHDRAWAL' THEN -amount ELSE amount END) AS signed
			FROM treasury_transactions
			GROUP BY treasury_id
		) l ON l.treasury_id = t.id
		GROUP BY t.type`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cached, logged []domain.TypeTotal
	for rows.Next() {
		var (
			typ          string
			count        int64
			balance, sum pgtype.Numeric
		)
		if err := rows.Scan(&typ, &count, &balance, &sum); err != nil {
			return nil, nil, err
		}
		cached = append(cached, domain.TypeTotal{Type: domain.TreasuryType(typ), Count: count, Balance: numericToDecimal(balance)})
		logged = append(logged, domain.TypeTotal{Type: domain.TreasuryType(typ), Count: count, Balance: numericToDecimal(sum)})
	}

	return cached, logged, rows.Err()
}

func scanTreasuryRow(row pgx.Row) (*domain.Treasury, error) {
	t, err := scanTreasury(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTreasuryNotFound
	}
	return t, err
}

func scanTreasury(row rowScanner) (*domain.Treasury, error) {
	var (
		t              domain.Treasury
		typ            string
		openingBalance pgtype.Numeric
		balance        pgtype.Numeric
		createdAt      pgtype.Timestamptz
		updatedAt      pgtype.Timestamptz
	)

	err := row.Scan(
		&t.ID,
		&t.Name,
		&typ,
		&t.CompanyID,
		&t.BankName,
		&t.AccountNumber,
		&openingBalance,
		&balance,
		&t.Version,
		&t.IsActive,
		&t.CreatedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Type = domain.TreasuryType(typ)
	t.OpeningBalance = numericToDecimal(openingBalance)
	t.Balance = numericToDecimal(balance)
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time

	return &t, nil
}

func scanTypeTotals(rows pgx.Rows) ([]domain.TypeTotal, error) {
	var totals []domain.TypeTotal
	for rows.Next() {
		var (
			typ     string
			count   int64
			balance pgtype.Numeric
		)
		if err := rows.Scan(&typ, &count, &balance); err != nil {
			return nil, err
		}
		totals = append(totals, domain.TypeTotal{
			Type:    domain.TreasuryType(typ),
			Count:   count,
			Balance: numericToDecimal(balance),
		})
	}

	return totals, rows.Err()
}
