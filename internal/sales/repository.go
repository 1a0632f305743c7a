package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devicehub/devicehub/internal/inventory"
	"github.com/devicehub/devicehub/internal/platform/db"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// TxRepository exposes transactional operations used by service. Stock
// devices are read and written through the same transaction.
type TxRepository interface {
	LockDevices(ctx context.Context, ids []int64) ([]inventory.Device, error)
	DeleteDevices(ctx context.Context, ids []int64) (int64, error)
	InsertDevice(ctx context.Context, dev inventory.Device) (int64, error)
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	LockSale(ctx context.Context, id int64) (Sale, error)
	UpdateState(ctx context.Context, sale Sale) error
	DeleteSale(ctx context.Context, id int64) error
	DeleteDeliveredBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// Repository persists sales in PostgreSQL.
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

const saleColumns = `id, customer_id, customer_name, shipment_number, shipping_cost, commission_rate,
	custom_total_price, total_price, status, return_platform, return_reason, returned_at, sold_at`

const itemColumns = `id, sale_id, position, device_id, device_type, brand, model, condition, grade, color, memory,
	imei, info, arrival_price, sale_price, repair_info`

func (r *Repository) Get(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, fmt.Errorf("sale %d: %w", id, ErrNotFound)
		}
		return Sale{}, err
	}
	sales := []Sale{sale}
	if err := loadItems(ctx, r.pool, sales); err != nil {
		return Sale{}, err
	}
	return sales[0], nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(`(s.customer_name ILIKE $%d OR s.shipment_number ILIKE $%d
			OR EXISTS (SELECT 1 FROM sale_items i WHERE i.sale_id = s.id AND i.imei ILIKE $%d))`, argPos, argPos, argPos))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM sales s %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM sales s %s ORDER BY s.sold_at DESC, s.id DESC LIMIT $%d OFFSET $%d`,
		prefixColumns("s", saleColumns), whereClause, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var sales []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := loadItems(ctx, r.pool, sales); err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func (t *txRepo) LockDevices(ctx context.Context, ids []int64) ([]inventory.Device, error) {
	return inventory.LockDevices(ctx, t.tx, ids)
}

func (t *txRepo) DeleteDevices(ctx context.Context, ids []int64) (int64, error) {
	return inventory.DeleteDevices(ctx, t.tx, ids)
}

func (t *txRepo) InsertDevice(ctx context.Context, dev inventory.Device) (int64, error) {
	return inventory.InsertDevice(ctx, t.tx, dev)
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales (customer_id, customer_name, shipment_number, shipping_cost, commission_rate,
		                   custom_total_price, total_price, status, sold_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		sale.CustomerID, sale.CustomerName, sale.ShipmentNumber, sale.ShippingCost, sale.CommissionRate,
		sale.CustomTotalPrice, sale.TotalPrice, sale.Status, sale.SoldAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, item := range sale.Items {
		var repairInfo []byte
		if item.RepairInfo != nil {
			if repairInfo, err = json.Marshal(item.RepairInfo); err != nil {
				return 0, err
			}
		}
		batch.Queue(`
			INSERT INTO sale_items (sale_id, position, device_id, device_type, brand, model, condition, grade, color,
			                        memory, imei, info, arrival_price, sale_price, repair_info)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14, $15)`,
			id, item.Position, item.DeviceID, item.DeviceType, item.Brand, item.Model, item.Condition, item.Grade,
			item.Color, item.Memory, item.IMEI, item.Info, item.ArrivalPrice, item.SalePrice, repairInfo)
	}
	results := t.tx.SendBatch(ctx, batch)
	for range sale.Items {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, err
		}
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *txRepo) LockSale(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, fmt.Errorf("sale %d: %w", id, ErrNotFound)
		}
		return Sale{}, err
	}
	sales := []Sale{sale}
	if err := loadItems(ctx, t.tx, sales); err != nil {
		return Sale{}, err
	}
	return sales[0], nil
}

func (t *txRepo) UpdateState(ctx context.Context, sale Sale) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales SET status = $2, return_platform = NULLIF($3, ''), return_reason = NULLIF($4, ''),
		       returned_at = $5, updated_at = NOW()
		WHERE id = $1`,
		sale.ID, sale.Status, sale.ReturnPlatform, sale.ReturnReason, sale.ReturnedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sale %d: %w", sale.ID, ErrNotFound)
	}
	return nil
}

func (t *txRepo) DeleteSale(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sale %d: %w", id, ErrNotFound)
	}
	return nil
}

func (t *txRepo) DeleteDeliveredBetween(ctx context.Context, from, to time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE status = $1 AND sold_at >= $2 AND sold_at < $3`,
		StatusDelivered, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// loadItems fills Items of every sale with one query.
func loadItems(ctx context.Context, q querier, sales []Sale) error {
	if len(sales) == 0 {
		return nil
	}
	index := make(map[int64]int, len(sales))
	ids := make([]int64, len(sales))
	for i, s := range sales {
		index[s.ID] = i
		ids[i] = s.ID
	}
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM sale_items WHERE sale_id = ANY($1) ORDER BY sale_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item       LineItem
			saleID     int64
			imei       pgtype.Text
			repairInfo []byte
		)
		if err := rows.Scan(&item.ID, &saleID, &item.Position, &item.DeviceID, &item.DeviceType, &item.Brand,
			&item.Model, &item.Condition, &item.Grade, &item.Color, &item.Memory, &imei, &item.Info,
			&item.ArrivalPrice, &item.SalePrice, &repairInfo); err != nil {
			return err
		}
		item.IMEI = imei.String
		if len(repairInfo) > 0 {
			if err := json.Unmarshal(repairInfo, &item.RepairInfo); err != nil {
				return fmt.Errorf("sales: item %d repair info: %w", item.ID, err)
			}
		}
		i := index[saleID]
		sales[i].Items = append(sales[i].Items, item)
	}
	return rows.Err()
}

func scanSale(row pgx.Row) (Sale, error) {
	var (
		s                      Sale
		customerID             pgtype.Int8
		returnPlatform, reason pgtype.Text
		returnedAt             pgtype.Timestamptz
	)
	err := row.Scan(&s.ID, &customerID, &s.CustomerName, &s.ShipmentNumber, &s.ShippingCost, &s.CommissionRate,
		&s.CustomTotalPrice, &s.TotalPrice, &s.Status, &returnPlatform, &reason, &returnedAt, &s.SoldAt)
	if err != nil {
		return Sale{}, err
	}
	if customerID.Valid {
		id := customerID.Int64
		s.CustomerID = &id
	}
	s.ReturnPlatform = returnPlatform.String
	s.ReturnReason = reason.String
	if returnedAt.Valid {
		at := returnedAt.Time
		s.ReturnedAt = &at
	}
	return s, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
