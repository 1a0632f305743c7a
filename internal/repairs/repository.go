package repairs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/devicehub/devicehub/internal/platform/db"
)

// deviceStatusRepaired mirrors inventory.StatusRepaired.
const deviceStatusRepaired = "Repaired"

// Repository exposes read paths and transactional writes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListCostTables(ctx context.Context, kind CostKind) ([]CostTable, error)
	GetCostTable(ctx context.Context, kind CostKind, model string) (CostTable, error)
	ListRepairs(ctx context.Context, filter ListFilter) ([]Record, error)
}

// TxRepository is available inside WithTx.
type TxRepository interface {
	GetCostTable(ctx context.Context, kind CostKind, model string) (CostTable, error)
	ReplaceCostTable(ctx context.Context, kind CostKind, model string, costs CostMap) error
	DeleteCostTable(ctx context.Context, kind CostKind, model string) error
	LockDevice(ctx context.Context, id int64) (DeviceRef, error)
	InsertRepair(ctx context.Context, rec Record) (int64, error)
	RecordCost(ctx context.Context, rec Record) error
	AttachToDevice(ctx context.Context, deviceID int64, info RepairInfo) error
}

// ListFilter narrows repair listings.
type ListFilter struct {
	TechnicianEmail string
	Status          PaymentStatus
	Limit           int
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) ListCostTables(ctx context.Context, kind CostKind) ([]CostTable, error) {
	rows, err := r.db.Query(ctx, `SELECT model, component, amount, updated_at FROM repair_costs WHERE kind = $1 ORDER BY model, component`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []CostTable
	for rows.Next() {
		var (
			model, component string
			amount           decimal.Decimal
			updatedAt        time.Time
		)
		if err := rows.Scan(&model, &component, &amount, &updatedAt); err != nil {
			return nil, err
		}
		if len(tables) == 0 || tables[len(tables)-1].Model != model {
			tables = append(tables, CostTable{Kind: kind, Model: model})
		}
		current := &tables[len(tables)-1]
		if err := current.Costs.Set(Component(component), amount); err != nil {
			return nil, fmt.Errorf("repairs: stored cost for %s: %w", model, err)
		}
		if updatedAt.After(current.UpdatedAt) {
			current.UpdatedAt = updatedAt
		}
	}
	return tables, rows.Err()
}

func (r *repository) GetCostTable(ctx context.Context, kind CostKind, model string) (CostTable, error) {
	rows, err := r.db.Query(ctx, `SELECT component, amount, updated_at FROM repair_costs WHERE kind = $1 AND model = $2`, kind, model)
	if err != nil {
		return CostTable{}, err
	}
	defer rows.Close()

	table := CostTable{Kind: kind, Model: model}
	found := false
	for rows.Next() {
		var (
			component string
			amount    decimal.Decimal
			updatedAt time.Time
		)
		if err := rows.Scan(&component, &amount, &updatedAt); err != nil {
			return CostTable{}, err
		}
		if err := table.Costs.Set(Component(component), amount); err != nil {
			return CostTable{}, fmt.Errorf("repairs: stored cost for %s: %w", model, err)
		}
		if updatedAt.After(table.UpdatedAt) {
			table.UpdatedAt = updatedAt
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return CostTable{}, err
	}
	if !found {
		return CostTable{}, ErrNotFound
	}
	return table, nil
}

func (r *repository) ReplaceCostTable(ctx context.Context, kind CostKind, model string, costs CostMap) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM repair_costs WHERE kind = $1 AND model = $2`, kind, model); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, c := range costs.Keys() {
		amount, _ := costs.Get(c)
		batch.Queue(`INSERT INTO repair_costs (kind, model, component, amount, updated_at) VALUES ($1, $2, $3, $4, NOW())`, kind, model, string(c), amount)
	}
	results := r.db.SendBatch(ctx, batch)
	for range costs.Keys() {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func (r *repository) DeleteCostTable(ctx context.Context, kind CostKind, model string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM repair_costs WHERE kind = $1 AND model = $2`, kind, model)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) LockDevice(ctx context.Context, id int64) (DeviceRef, error) {
	var (
		ref  DeviceRef
		imei pgtype.Text
	)
	err := r.db.QueryRow(ctx, `SELECT id, imei, model, repair_info IS NOT NULL FROM devices WHERE id = $1 FOR UPDATE`, id).
		Scan(&ref.ID, &imei, &ref.Model, &ref.HasRepair)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeviceRef{}, fmt.Errorf("device %d: %w", id, ErrNotFound)
		}
		return DeviceRef{}, err
	}
	ref.IMEI = imei.String
	return ref, nil
}

func (r *repository) InsertRepair(ctx context.Context, rec Record) (int64, error) {
	materials, err := json.Marshal(rec.Materials)
	if err != nil {
		return 0, err
	}
	labor, err := json.Marshal(rec.Labor)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO repairs (device_id, imei, model, materials, labor, technician_name, technician_email,
		                     total_technician_cost, payment_status, notes, repaired_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		rec.DeviceID, rec.IMEI, rec.Model, materials, labor, rec.Technician.Name, rec.Technician.Email,
		rec.TechnicianCost(), rec.PaymentStatus, rec.Notes, rec.RepairedAt,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrAlreadyRepaired
		}
		return 0, err
	}
	return id, nil
}

// RecordCost appends the repair's technician cost to repair_cost_history.
// Payout retention never deletes from that table, so period totals stay put
// after paid repairs are purged.
func (r *repository) RecordCost(ctx context.Context, rec Record) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO repair_cost_history (repair_id, device_id, technician_email, material_cost, technician_cost, repaired_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.DeviceID, rec.Technician.Email, rec.MaterialCost(), rec.TechnicianCost(), rec.RepairedAt)
	return err
}

func (r *repository) AttachToDevice(ctx context.Context, deviceID int64, info RepairInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE devices SET repair_info = $2, status = $3, updated_at = NOW() WHERE id = $1`, deviceID, payload, deviceStatusRepaired)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
	}
	return nil
}

func (r *repository) ListRepairs(ctx context.Context, filter ListFilter) ([]Record, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.TechnicianEmail != "" {
		conditions = append(conditions, fmt.Sprintf("technician_email = $%d", argPos))
		args = append(args, strings.ToLower(filter.TechnicianEmail))
		argPos++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, device_id, imei, model, materials, labor, technician_name, technician_email,
		       payment_status, paid_at, notes, repaired_at
		FROM repairs %s
		ORDER BY repaired_at DESC, id DESC
		LIMIT $%d`, where, argPos)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// scanRecord reads the column list used by ListRepairs.
func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec              Record
		imei             pgtype.Text
		materials, labor []byte
		paidAt           pgtype.Timestamptz
	)
	err := row.Scan(&rec.ID, &rec.DeviceID, &imei, &rec.Model, &materials, &labor,
		&rec.Technician.Name, &rec.Technician.Email, &rec.PaymentStatus, &paidAt, &rec.Notes, &rec.RepairedAt)
	if err != nil {
		return Record{}, err
	}
	rec.IMEI = imei.String
	if err := json.Unmarshal(materials, &rec.Materials); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(labor, &rec.Labor); err != nil {
		return Record{}, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		rec.PaidAt = &t
	}
	return rec, nil
}
