package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devicehub/devicehub/internal/platform/db"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx. Other packages pass
// their own transaction to the helpers below.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Device, error)
	List(ctx context.Context, filter ListFilter) ([]Device, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Insert(ctx context.Context, dev Device) (int64, error)
	Lock(ctx context.Context, id int64) (Device, error)
	Update(ctx context.Context, dev Device) error
	Delete(ctx context.Context, id int64) error
}

// Repository persists devices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	q Querier
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const deviceColumns = `id, device_type, brand, model, condition, grade, color, memory, imei, info,
	arrival_price, status, status_reason, repair_info, created_at, updated_at`

// Get loads one device.
func (r *Repository) Get(ctx context.Context, id int64) (Device, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	dev, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	return dev, err
}

// List returns devices matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Device, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}
	if filter.DeviceType != "" {
		conditions = append(conditions, fmt.Sprintf("device_type = $%d", argPos))
		args = append(args, filter.DeviceType)
		argPos++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(brand ILIKE $%d OR model ILIKE $%d OR imei ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM devices %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		deviceColumns, where, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dev)
	}
	return out, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, dev Device) (int64, error) {
	return InsertDevice(ctx, t.q, dev)
}

func (t *txRepo) Lock(ctx context.Context, id int64) (Device, error) {
	devices, err := LockDevices(ctx, t.q, []int64{id})
	if err != nil {
		return Device{}, err
	}
	return devices[0], nil
}

func (t *txRepo) Update(ctx context.Context, dev Device) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE devices SET device_type = $2, brand = $3, model = $4, condition = $5, grade = $6, color = $7,
		       memory = $8, imei = NULLIF($9, ''), info = $10, arrival_price = $11, status = $12,
		       status_reason = $13, updated_at = NOW()
		WHERE id = $1`,
		dev.ID, dev.DeviceType, dev.Brand, dev.Model, dev.Condition, dev.Grade, dev.Color,
		dev.Memory, dev.IMEI, dev.Info, dev.ArrivalPrice, dev.Status, dev.StatusReason)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateIMEI
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("device %d: %w", dev.ID, ErrNotFound)
	}
	return nil
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	n, err := DeleteDevices(ctx, t.q, []int64{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	return nil
}

// InsertDevice stores dev and returns its id. A non-zero dev.ID is kept, so a
// device coming back from a sale regains its original identity.
func InsertDevice(ctx context.Context, q Querier, dev Device) (int64, error) {
	var repairInfo []byte
	if dev.RepairInfo != nil {
		raw, err := json.Marshal(dev.RepairInfo)
		if err != nil {
			return 0, err
		}
		repairInfo = raw
	}
	args := []any{dev.DeviceType, dev.Brand, dev.Model, dev.Condition, dev.Grade, dev.Color, dev.Memory,
		dev.IMEI, dev.Info, dev.ArrivalPrice, dev.Status, dev.StatusReason, repairInfo}
	query := `
		INSERT INTO devices (device_type, brand, model, condition, grade, color, memory, imei, info,
		                     arrival_price, status, status_reason, repair_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13)
		RETURNING id`
	if dev.ID > 0 {
		args = append(args, dev.ID)
		query = `
		INSERT INTO devices (device_type, brand, model, condition, grade, color, memory, imei, info,
		                     arrival_price, status, status_reason, repair_info, id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13, $14)
		RETURNING id`
	}
	var id int64
	if err := q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrDuplicateIMEI
		}
		return 0, err
	}
	return id, nil
}

// LockDevices selects the devices FOR UPDATE in id order. Every id must exist.
func LockDevices(ctx context.Context, q Querier, ids []int64) ([]Device, error) {
	rows, err := q.Query(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[int64]Device, len(ids))
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		found[dev.ID] = dev
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		dev, ok := found[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, dev)
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return nil, fmt.Errorf("devices %v: %w", missing, ErrNotFound)
	}
	return out, nil
}

// DeleteDevices removes the given devices and reports how many rows went.
func DeleteDevices(ctx context.Context, q Querier, ids []int64) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM devices WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanDevice(row pgx.Row) (Device, error) {
	var (
		dev        Device
		imei       pgtype.Text
		reason     pgtype.Text
		repairInfo []byte
	)
	err := row.Scan(&dev.ID, &dev.DeviceType, &dev.Brand, &dev.Model, &dev.Condition, &dev.Grade, &dev.Color,
		&dev.Memory, &imei, &dev.Info, &dev.ArrivalPrice, &dev.Status, &reason, &repairInfo,
		&dev.CreatedAt, &dev.UpdatedAt)
	if err != nil {
		return Device{}, err
	}
	dev.IMEI = imei.String
	dev.StatusReason = reason.String
	if len(repairInfo) > 0 {
		if err := json.Unmarshal(repairInfo, &dev.RepairInfo); err != nil {
			return Device{}, fmt.Errorf("inventory: device %d repair info: %w", dev.ID, err)
		}
	}
	return dev, nil
}
