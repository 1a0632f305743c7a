package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository exposes the aggregate queries behind the dashboard.
type Repository interface {
	Stock(ctx context.Context) (Stock, error)
	Sales(ctx context.Context, from, to time.Time) (SalesTotals, error)
	TechnicianCost(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Stock(ctx context.Context) (Stock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT device_type, COUNT(*), COALESCE(SUM(arrival_price), 0)
		FROM devices
		GROUP BY device_type`)
	if err != nil {
		return Stock{}, err
	}
	defer rows.Close()

	stock := Stock{ByType: map[string]int64{}, Value: decimal.Zero}
	for rows.Next() {
		var (
			kind  string
			count int64
			value decimal.Decimal
		)
		if err := rows.Scan(&kind, &count, &value); err != nil {
			return Stock{}, err
		}
		stock.ByType[kind] = count
		stock.Devices += count
		stock.Value = stock.Value.Add(value)
	}
	return stock, rows.Err()
}

// Sales sums delivered sales sold in [from, to). The custom total replaces
// the recorded total when set.
func (r *pgRepository) Sales(ctx context.Context, from, to time.Time) (SalesTotals, error) {
	var totals SalesTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(COALESCE(custom_total_price, total_price)), 0),
		       COALESCE(SUM((SELECT COUNT(*) FROM sale_items i WHERE i.sale_id = s.id)), 0)
		FROM sales s
		WHERE s.status = 'delivered' AND s.sold_at >= $1 AND s.sold_at < $2`, from, to).
		Scan(&totals.Count, &totals.Amount, &totals.Devices)
	if err != nil {
		return SalesTotals{}, err
	}
	return totals, nil
}

// technicianCostQuery reads the append-only cost history rather than repairs,
// whose paid rows the payout retention job deletes.
const technicianCostQuery = `
	SELECT COALESCE(SUM(technician_cost), 0)
	FROM repair_cost_history
	WHERE repaired_at >= $1 AND repaired_at < $2`

// TechnicianCost sums labor of repairs confirmed in [from, to).
func (r *pgRepository) TechnicianCost(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, technicianCostQuery, from, to).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return total, nil
}
