package profit

import "context"

// View is the profit view of one sale.
type View struct {
	SaleID      int64     `json:"sale_id"`
	Fingerprint string    `json:"fingerprint"`
	Breakdown   Breakdown `json:"breakdown"`
	Summary     Summary   `json:"summary"`
}

// SaleView computes the view of a sale, served from cache while its inputs
// are unchanged.
func (c *Cache) SaleView(ctx context.Context, saleID int64, in Input) (View, error) {
	fp := in.Fingerprint()
	var view View
	err := c.FetchJSON(ctx, "sale", ViewKey(saleID, fp), &view, func(context.Context) (any, error) {
		breakdown, err := Calculate(in)
		if err != nil {
			return nil, err
		}
		return View{SaleID: saleID, Fingerprint: fp, Breakdown: breakdown, Summary: breakdown.Rounded()}, nil
	})
	if err != nil {
		return View{}, err
	}
	return view, nil
}
