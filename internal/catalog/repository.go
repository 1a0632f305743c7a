package catalog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devicehub/devicehub/internal/inventory"
	"github.com/devicehub/devicehub/internal/platform/db"
)

// Repository stores catalog entries.
type Repository interface {
	List(ctx context.Context) ([]Entry, error)
	Insert(ctx context.Context, e Entry) error
	Delete(ctx context.Context, e Entry) (bool, error)
	Exists(ctx context.Context, e Entry) (bool, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT device_type, brand, model FROM device_models ORDER BY device_type, lower(brand), lower(model)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
		)
		if err := rows.Scan(&kind, &e.Brand, &e.Model); err != nil {
			return nil, err
		}
		e.DeviceType = inventory.DeviceType(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *pgRepository) Insert(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO device_models (device_type, brand, model) VALUES ($1, $2, $3)`,
		string(e.DeviceType), e.Brand, e.Model)
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *pgRepository) Delete(ctx context.Context, e Entry) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM device_models
		WHERE device_type = $1 AND lower(brand) = lower($2) AND lower(model) = lower($3)`,
		string(e.DeviceType), e.Brand, e.Model)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgRepository) Exists(ctx context.Context, e Entry) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM device_models
			WHERE device_type = $1 AND lower(brand) = lower($2) AND lower(model) = lower($3))`,
		string(e.DeviceType), e.Brand, e.Model).Scan(&ok)
	return ok, err
}
