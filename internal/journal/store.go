package journal

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"vascredit/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("purchase not found")

// Store is the local saga journal. Its conditional updates are what make
// credit recording at-most-once across the live saga and the reconciliation
// worker.
type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *Store) Create(ctx context.Context, p *models.Purchase) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO purchases (
			id, owner_id, kind, product_code, destination, amount_cents,
			custom_reference, ledger_transaction_id, reference, state,
			attempts, token, failure_reason, credited_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		p.ID,
		p.OwnerID,
		p.Kind,
		p.ProductCode,
		p.Destination,
		p.AmountCents,
		p.CustomReference,
		p.LedgerTransactionID,
		p.Reference,
		p.State,
		p.Attempts,
		p.Token,
		p.FailureReason,
		p.CreditedAt,
	)
	return err
}

func (s *Store) AttachReference(ctx context.Context, purchaseID, ledgerTransactionID, reference string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE purchases
		SET ledger_transaction_id=$2, reference=$3, updated_at=now()
		WHERE id=$1
	`, purchaseID, ledgerTransactionID, reference)
	return err
}

func (s *Store) SetState(ctx context.Context, purchaseID string, state models.PurchaseState, attempts int) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE purchases
		SET state=$2, attempts=$3, updated_at=now()
		WHERE id=$1
	`, purchaseID, state, attempts)
	return err
}

func (s *Store) SetFailure(ctx context.Context, purchaseID string, state models.PurchaseState, reason string, attempts int) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE purchases
		SET state=$2, failure_reason=$3, attempts=$4, updated_at=now()
		WHERE id=$1
	`, purchaseID, state, reason, attempts)
	return err
}

func (s *Store) MarkSettled(ctx context.Context, purchaseID, token string, attempts int) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE purchases
		SET state=$2, token=$3, attempts=$4, updated_at=now()
		WHERE id=$1
	`, purchaseID, models.StateSettled, token, attempts)
	return err
}

// ClaimCredit flips the credited marker for exactly one caller. Whoever gets
// rows-affected 1 owns the ledger credit call; everyone else backs off.
func (s *Store) ClaimCredit(ctx context.Context, purchaseID string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE purchases
		SET credited_at=now(), updated_at=now()
		WHERE id=$1 AND credited_at IS NULL
	`, purchaseID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) Get(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	row := s.Pool.QueryRow(ctx, selectColumns+` FROM purchases WHERE id=$1`, purchaseID)
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListStale returns purchases that look abandoned: in flight past the cutoff,
// or settled without a recorded credit. Input for the reconciliation worker.
func (s *Store) ListStale(ctx context.Context, cutoff time.Time) ([]*models.Purchase, error) {
	rows, err := s.Pool.Query(ctx, selectColumns+`
		FROM purchases
		WHERE updated_at < $1
		  AND (state IN ('submitted','pending','confirming')
		       OR (state='settled' AND credited_at IS NULL))
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const selectColumns = `
	SELECT id, owner_id, kind, product_code, destination, amount_cents,
		custom_reference, ledger_transaction_id, reference, state,
		attempts, token, failure_reason, credited_at, created_at, updated_at`

func scanPurchase(row pgx.Row) (*models.Purchase, error) {
	var p models.Purchase
	var creditedAt sql.NullTime
	if err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Kind,
		&p.ProductCode,
		&p.Destination,
		&p.AmountCents,
		&p.CustomReference,
		&p.LedgerTransactionID,
		&p.Reference,
		&p.State,
		&p.Attempts,
		&p.Token,
		&p.FailureReason,
		&creditedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if creditedAt.Valid {
		p.CreditedAt = &creditedAt.Time
	}
	return &p, nil
}
