package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devicehub/devicehub/internal/platform/db"
)

// Repository exposes read paths and transactional writes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	PeekSequence(ctx context.Context, year int) (int, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	List(ctx context.Context, limit, offset int) ([]Invoice, int, error)
}

// TxRepository is available inside WithTx.
type TxRepository interface {
	NextSequence(ctx context.Context, year int) (int, error)
	Insert(ctx context.Context, inv Invoice) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

type txRepository struct {
	tx pgx.Tx
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// PeekSequence returns the sequence the next invoice of year will take.
func (r *repository) PeekSequence(ctx context.Context, year int) (int, error) {
	var last int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE((SELECT last FROM invoice_counters WHERE year = $1), 0)`, year).Scan(&last)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

const invoiceColumns = `id, number, issued_on, client, items, articles, vat_total, shipping, total, created_at`

func (r *repository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}
	return inv, err
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY issued_on DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// NextSequence claims the next sequence of year. The counter row stays
// locked until the transaction ends.
func (t *txRepository) NextSequence(ctx context.Context, year int) (int, error) {
	var seq int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoice_counters (year, last) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last = invoice_counters.last + 1
		RETURNING last`, year).Scan(&seq)
	return seq, err
}

func (t *txRepository) Insert(ctx context.Context, inv Invoice) (int64, error) {
	client, err := json.Marshal(inv.Client)
	if err != nil {
		return 0, err
	}
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRow(ctx, `
		INSERT INTO invoices (number, issued_on, client, items, articles, vat_total, shipping, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		inv.Number, inv.Date, client, items, inv.Articles, inv.VATTotal, inv.Shipping, inv.Total, inv.CreatedAt,
	).Scan(&id)
	return id, err
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv    Invoice
		client []byte
		items  []byte
	)
	if err := row.Scan(&inv.ID, &inv.Number, &inv.Date, &client, &items, &inv.Articles, &inv.VATTotal,
		&inv.Shipping, &inv.Total, &inv.CreatedAt); err != nil {
		return Invoice{}, err
	}
	if err := json.Unmarshal(client, &inv.Client); err != nil {
		return Invoice{}, fmt.Errorf("decode client of invoice %d: %w", inv.ID, err)
	}
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return Invoice{}, fmt.Errorf("decode items of invoice %d: %w", inv.ID, err)
	}
	return inv, nil
}
