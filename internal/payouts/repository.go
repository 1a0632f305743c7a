package payouts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devicehub/devicehub/internal/platform/db"
	"github.com/devicehub/devicehub/internal/repairs"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	ListLedger(ctx context.Context, since time.Time) ([]LedgerLine, error)
	PurgePaid(ctx context.Context, before time.Time) (int64, error)
	PurgeLedger(ctx context.Context, before time.Time) (int64, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LockItems(ctx context.Context, deviceIDs []int64) (map[int64]Item, error)
	MarkPaid(ctx context.Context, deviceIDs []int64, paidAt time.Time, batchRef string) (int64, error)
	InsertLedger(ctx context.Context, lines []LedgerLine) error
}

// ItemFilter narrows repair listings.
type ItemFilter struct {
	Status          repairs.PaymentStatus
	PaidSince       time.Time
	TechnicianEmail string
}

// Repository persists payouts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const itemColumns = `id, device_id, imei, model, technician_name, technician_email, labor,
	total_technician_cost, payment_status, paid_at, batch_ref, repaired_at`

// ListItems returns repairs matching filter, newest repair first.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}
	if !filter.PaidSince.IsZero() {
		conditions = append(conditions, fmt.Sprintf("paid_at >= $%d", argPos))
		args = append(args, filter.PaidSince)
		argPos++
	}
	if filter.TechnicianEmail != "" {
		conditions = append(conditions, fmt.Sprintf("technician_email = $%d", argPos))
		args = append(args, strings.ToLower(filter.TechnicianEmail))
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM repairs %s ORDER BY repaired_at DESC, id DESC`, itemColumns, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListLedger returns ledger lines paid at or after since.
func (r *Repository) ListLedger(ctx context.Context, since time.Time) ([]LedgerLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, batch_ref, repair_id, device_id, imei, model, technician_name, technician_email, amount, paid_at
		FROM payout_ledger
		WHERE paid_at >= $1
		ORDER BY paid_at DESC, id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerLine
	for rows.Next() {
		var (
			line LedgerLine
			imei pgtype.Text
		)
		if err := rows.Scan(&line.ID, &line.BatchRef, &line.RepairID, &line.DeviceID, &imei, &line.Model,
			&line.Technician.Name, &line.Technician.Email, &line.Amount, &line.PaidAt); err != nil {
			return nil, err
		}
		line.IMEI = imei.String
		out = append(out, line)
	}
	return out, rows.Err()
}

// PurgePaid deletes paid repair records paid before the cutoff. Devices and
// sale snapshots keep their embedded copy.
func (r *Repository) PurgePaid(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM repairs WHERE payment_status = 'paid' AND paid_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeLedger deletes ledger lines paid before the cutoff.
func (r *Repository) PurgeLedger(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payout_ledger WHERE paid_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) LockItems(ctx context.Context, deviceIDs []int64) (map[int64]Item, error) {
	rows, err := t.tx.Query(ctx, fmt.Sprintf(`SELECT %s FROM repairs WHERE device_id = ANY($1) FOR UPDATE`, itemColumns), deviceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Item, len(deviceIDs))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[item.DeviceID] = item
	}
	return out, rows.Err()
}

// MarkPaid flips unpaid repairs to paid and mirrors the change into the
// repair_info copies held by stock devices and sold line items.
func (t *txRepo) MarkPaid(ctx context.Context, deviceIDs []int64, paidAt time.Time, batchRef string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE repairs SET payment_status = 'paid', paid_at = $2, batch_ref = $3
		WHERE device_id = ANY($1) AND payment_status = 'unpaid'`, deviceIDs, paidAt, batchRef)
	if err != nil {
		return 0, err
	}
	stamp, err := json.Marshal(paidAt)
	if err != nil {
		return 0, err
	}
	const patch = `repair_info || jsonb_build_object('payment_status', 'paid', 'paid_at', $2::jsonb)`
	if _, err := t.tx.Exec(ctx, `UPDATE devices SET repair_info = `+patch+`, updated_at = NOW()
		WHERE id = ANY($1) AND repair_info IS NOT NULL`, deviceIDs, string(stamp)); err != nil {
		return 0, err
	}
	if _, err := t.tx.Exec(ctx, `UPDATE sale_items SET repair_info = `+patch+`
		WHERE device_id = ANY($1) AND repair_info IS NOT NULL`, deviceIDs, string(stamp)); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) InsertLedger(ctx context.Context, lines []LedgerLine) error {
	if len(lines) == 0 {
		return nil
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"payout_ledger"},
		[]string{"batch_ref", "repair_id", "device_id", "imei", "model", "technician_name", "technician_email", "amount", "paid_at"},
		pgx.CopyFromSlice(len(lines), func(i int) ([]any, error) {
			l := lines[i]
			var imei pgtype.Text
			if l.IMEI != "" {
				imei = pgtype.Text{String: l.IMEI, Valid: true}
			}
			return []any{l.BatchRef, l.RepairID, l.DeviceID, imei, l.Model, l.Technician.Name, l.Technician.Email, l.Amount, l.PaidAt}, nil
		}),
	)
	return err
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item     Item
		imei     pgtype.Text
		labor    []byte
		paidAt   pgtype.Timestamptz
		batchRef pgtype.Text
	)
	err := row.Scan(&item.RepairID, &item.DeviceID, &imei, &item.Model, &item.Technician.Name, &item.Technician.Email,
		&labor, &item.TechnicianCost, &item.PaymentStatus, &paidAt, &batchRef, &item.RepairedAt)
	if err != nil {
		return Item{}, err
	}
	item.IMEI = imei.String
	item.BatchRef = batchRef.String
	if paidAt.Valid {
		t := paidAt.Time
		item.PaidAt = &t
	}
	if err := json.Unmarshal(labor, &item.Labor); err != nil {
		return Item{}, fmt.Errorf("decode labor of repair %d: %w", item.RepairID, err)
	}
	return item, nil
}
