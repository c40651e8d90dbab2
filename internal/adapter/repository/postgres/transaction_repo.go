package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

const transactionColumns = `id, treasury_id, type, source, amount, balance_after,
	description, pair_id, sequence, created_at, created_by`

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db querier
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: pool}
}

// Create appends a transaction. A duplicate (treasury_id, sequence) is a conflict.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	_, err := pgxTx(tx).Exec(ctx, `
		INSERT INTO treasury_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID,
		t.TreasuryID,
		string(t.Type),
		string(t.Source),
		decimalToNumeric(t.Amount),
		decimalToNumeric(t.BalanceAfter),
		t.Description,
		t.PairID,
		t.Sequence,
		timeToPgTimestamptz(t.CreatedAt),
		t.CreatedBy,
	)

	return translateError(err)
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM treasury_transactions WHERE id = $1`, id)

	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}

	return t, err
}

// GetByPairID returns both legs of a transfer.
func (r *TransactionRepository) GetByPairID(ctx context.Context, pairID string) ([]*domain.Transaction, error) {
	legs, err := r.query(ctx, `SELECT `+transactionColumns+`
		FROM treasury_transactions WHERE pair_id = $1 ORDER BY id`, pairID)
	if err != nil {
		return nil, err
	}

	if len(legs) == 0 {
		return nil, domain.ErrTransferNotFound
	}

	return legs, nil
}

// CountByTreasury counts a treasury's transactions inside tx.
func (r *TransactionRepository) CountByTreasury(ctx context.Context, tx usecase.Transaction, treasuryID string) (int64, error) {
	var count int64
	err := pgxTx(tx).QueryRow(ctx,
		`SELECT COUNT(*) FROM treasury_transactions WHERE treasury_id = $1`, treasuryID).Scan(&count)

	return count, err
}

// List returns transactions newest first and the total matching the filter.
func (r *TransactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, int64, error) {
	var where whereBuilder
	if filter.TreasuryID != nil {
		where.add("treasury_id = $%d", *filter.TreasuryID)
	}
	if filter.Type != nil {
		if *filter.Type == domain.TransactionTypeTransfer {
			where.addRaw("pair_id IS NOT NULL")
		} else {
			where.add("type = $%d", string(*filter.Type))
		}
	}
	if filter.Source != nil {
		where.add("source = $%d", string(*filter.Source))
	}
	if filter.PairID != nil {
		where.add("pair_id = $%d", *filter.PairID)
	}
	if filter.StartDate != nil {
		where.add("created_at >= $%d", timeToPgTimestamptz(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where.add("created_at < $%d", timeToPgTimestamptz(*filter.EndDate))
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM treasury_transactions`+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, args := where.page(filter.Limit, filter.Offset)
	transactions, err := r.query(ctx, `SELECT `+transactionColumns+` FROM treasury_transactions`+
		where.sql()+` ORDER BY created_at DESC, sequence DESC, id DESC`+limit, args...)
	if err != nil {
		return nil, 0, err
	}

	return transactions, total, nil
}

// ListChronological returns a treasury's full history oldest first.
func (r *TransactionRepository) ListChronological(ctx context.Context, treasuryID string) ([]*domain.Transaction, error) {
	return r.query(ctx, `SELECT `+transactionColumns+`
		FROM treasury_transactions WHERE treasury_id = $1
		ORDER BY created_at, sequence`, treasuryID)
}

func (r *TransactionRepository) query(ctx context.Context, sql string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t            domain.Transaction
		typ          string
		source       string
		amount       pgtype.Numeric
		balanceAfter pgtype.Numeric
		createdAt    pgtype.Timestamptz
	)

	err := row.Scan(
		&t.ID,
		&t.TreasuryID,
		&typ,
		&source,
		&amount,
		&balanceAfter,
		&t.Description,
		&t.PairID,
		&t.Sequence,
		&createdAt,
		&t.CreatedBy,
	)
	if err != nil {
		return nil, err
	}

	t.Type = domain.TransactionType(typ)
	t.Source = domain.Source(source)
	t.Amount = numericToDecimal(amount)
	t.BalanceAfter = numericToDecimal(balanceAfter)
	t.CreatedAt = createdAt.Time

	return &t, nil
}
