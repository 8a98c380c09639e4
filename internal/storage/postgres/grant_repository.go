package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jaonoctus/lndoor/internal/domain"
)

type GrantRepository struct {
	pool *pgxpool.Pool
}

func NewGrantRepository(pool *pgxpool.Pool) *GrantRepository {
	return &GrantRepository{pool: pool}
}

func (r *GrantRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *GrantRepository) CountPending(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM grants WHERE consumed_at IS NULL`

	var count int
	if err := r.queryRow(ctx, query).Scan(&count); err != nil {
		return 0, classify("count pending grants", err)
	}
	return count, nil
}

// ListPendingForUpdate returns the ids of all unconsumed grants, locking
// the rows. Callers must run it inside WithTx; the row locks are what
// keep two concurrent consumers from both claiming the same grant.
func (r *GrantRepository) ListPendingForUpdate(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM grants WHERE consumed_at IS NULL FOR UPDATE`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, classify("list pending grants", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending grant: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list pending grants", err)
	}
	return ids, nil
}

// MarkConsumed stamps consumed_at for the given ids and reports how many
// rows changed. Already-consumed ids are skipped, never re-stamped.
func (r *GrantRepository) MarkConsumed(ctx context.Context, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	const stmt = `UPDATE grants SET consumed_at = $2 WHERE id = ANY($1) AND consumed_at IS NULL`

	tag, err := r.exec(ctx, stmt, ids, now)
	if err != nil {
		return 0, classify("mark grants consumed", err)
	}
	return tag.RowsAffected(), nil
}

func (r *GrantRepository) CreateGrant(ctx context.Context, grant domain.Grant) error {
	const stmt = `INSERT INTO grants (id, invoice_id, created_at) VALUES ($1, $2, $3)`

	_, err := r.exec(ctx, stmt, grant.ID, grant.InvoiceID, grant.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrGrantExists
		}
		return classify("create grant", err)
	}
	return nil
}

// GetGrantByInvoiceID returns the grant for an invoice, or nil when none
// exists yet.
func (r *GrantRepository) GetGrantByInvoiceID(ctx context.Context, invoiceID string) (*domain.Grant, error) {
	const query = `SELECT id, invoice_id, created_at, consumed_at FROM grants WHERE invoice_id = $1`

	var g domain.Grant
	err := r.queryRow(ctx, query, invoiceID).Scan(&g.ID, &g.InvoiceID, &g.CreatedAt, &g.ConsumedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, classify("get grant by invoice", err)
	}
	return &g, nil
}

func classify(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *GrantRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *GrantRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *GrantRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
