package profit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicehub/devicehub/internal/repairs"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func costs(t *testing.T, amounts map[repairs.Component]string) repairs.CostMap {
	t.Helper()
	m := make(map[repairs.Component]decimal.Decimal, len(amounts))
	for c, v := range amounts {
		m[c] = d(v)
	}
	out, err := repairs.NewCostMap(m)
	require.NoError(t, err)
	return out
}

func baseInput() Input {
	return Input{
		ArrivalPrice:   d("100"),
		SoldPrice:      decimal.NewNullDecimal(d("300")),
		ShippingCost:   d("20"),
		CommissionRate: d("10"),
	}
}

func TestCalculateWithoutRepair(t *testing.T) {
	out, err := Calculate(baseInput())
	require.NoError(t, err)

	assert.True(t, d("30").Equal(out.CommissionAmount), out.CommissionAmount.String())
	assert.True(t, d("270").Equal(out.AmountAfterCommission))
	assert.True(t, d("250").Equal(out.AmountAfterShipping))
	assert.True(t, d("150").Equal(out.NetProfit))
	assert.True(t, d("120").Equal(out.TotalCost))
	assert.True(t, out.CostOfComponents.IsZero())
	assert.True(t, out.TechnicianCost.IsZero())
}

func TestCalculateWithRepair(t *testing.T) {
	in := baseInput()
	in.Repair = &RepairCosts{
		Materials: costs(t, map[repairs.Component]string{repairs.ComponentLCD: "40"}),
		Labor:     costs(t, map[repairs.Component]string{repairs.ComponentLCD: "25"}),
	}
	out, err := Calculate(in)
	require.NoError(t, err)

	assert.True(t, d("40").Equal(out.CostOfComponents))
	assert.True(t, d("25").Equal(out.TechnicianCost))
	assert.True(t, d("185").Equal(out.TotalCost))
	assert.True(t, d("125").Equal(out.NetProfit))
}

func TestCalculateNoRepairNetProfitProperty(t *testing.T) {
	cases := []struct{ arrival, sold, shipping, rate string }{
		{"0", "0", "0", "0"},
		{"89.90", "199.99", "7.5", "12.5"},
		{"250", "240", "15", "100"},
		{"10", "1000", "0", "3.3"},
	}
	for _, tc := range cases {
		in := Input{
			ArrivalPrice:   d(tc.arrival),
			SoldPrice:      decimal.NewNullDecimal(d(tc.sold)),
			ShippingCost:   d(tc.shipping),
			CommissionRate: d(tc.rate),
		}
		out, err := Calculate(in)
		require.NoError(t, err)
		keep := decimal.NewFromInt(1).Sub(d(tc.rate).Div(hundred))
		want := d(tc.sold).Mul(keep).Sub(d(tc.shipping)).Sub(d(tc.arrival))
		assert.True(t, want.Equal(out.NetProfit), "sold=%s rate=%s want=%s got=%s", tc.sold, tc.rate, want, out.NetProfit)
	}
}

func TestCalculateTotalCostSumsEveryComponent(t *testing.T) {
	in := baseInput()
	in.Repair = &RepairCosts{
		Materials: costs(t, map[repairs.Component]string{repairs.ComponentLCD: "40", repairs.ComponentBattery: "18.35", repairs.ComponentCamera: "9"}),
		Labor:     costs(t, map[repairs.Component]string{repairs.ComponentLCD: "25", repairs.ComponentBattery: "10", repairs.ComponentCamera: "4.15"}),
	}
	out, err := Calculate(in)
	require.NoError(t, err)
	assert.True(t, d("67.35").Equal(out.CostOfComponents))
	assert.True(t, d("39.15").Equal(out.TechnicianCost))
	assert.True(t, d("226.50").Equal(out.TotalCost))
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	cases := map[string]func(*Input){
		"missing sold price": func(in *Input) { in.SoldPrice = decimal.NullDecimal{} },
		"negative sold":      func(in *Input) { in.SoldPrice = decimal.NewNullDecimal(d("-1")) },
		"negative arrival":   func(in *Input) { in.ArrivalPrice = d("-0.01") },
		"negative shipping":  func(in *Input) { in.ShippingCost = d("-5") },
		"rate above 100":     func(in *Input) { in.CommissionRate = d("100.5") },
		"negative rate":      func(in *Input) { in.CommissionRate = d("-1") },
		"key set mismatch": func(in *Input) {
			in.Repair = &RepairCosts{
				Materials: costs(t, map[repairs.Component]string{repairs.ComponentLCD: "40"}),
				Labor:     costs(t, map[repairs.Component]string{repairs.ComponentBattery: "25"}),
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := baseInput()
			mutate(&in)
			_, err := Calculate(in)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCalculateDefaultsOptionalAmounts(t *testing.T) {
	out, err := Calculate(Input{SoldPrice: decimal.NewNullDecimal(d("80"))})
	require.NoError(t, err)
	assert.True(t, d("80").Equal(out.NetProfit))
	assert.True(t, out.TotalCost.IsZero())
}

func TestRoundedKeepsInternalPrecision(t *testing.T) {
	in := Input{
		ArrivalPrice:   d("10"),
		SoldPrice:      decimal.NewNullDecimal(d("33.33")),
		CommissionRate: d("7.5"),
	}
	out, err := Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, "20.83025", out.NetProfit.String())
	assert.Equal(t, "20.83", out.Rounded().NetProfit.String())
}

func TestForSaleMergesLines(t *testing.T) {
	repair := &repairs.RepairInfo{
		Materials: costs(t, map[repairs.Component]string{repairs.ComponentLCD: "40"}),
		Labor:     costs(t, map[repairs.Component]string{repairs.ComponentLCD: "25"}),
	}
	other := &repairs.RepairInfo{
		Materials: costs(t, map[repairs.Component]string{repairs.ComponentLCD: "35", repairs.ComponentBattery: "15"}),
		Labor:     costs(t, map[repairs.Component]string{repairs.ComponentLCD: "20", repairs.ComponentBattery: "8"}),
	}
	lines := []Line{
		{ArrivalPrice: d("100"), SalePrice: d("180"), Repair: repair},
		{ArrivalPrice: d("60"), SalePrice: d("120"), Repair: other},
		{ArrivalPrice: d("40"), SalePrice: d("90")},
	}

	in := ForSale(lines, d("20"), d("10"), decimal.NullDecimal{})
	assert.True(t, d("200").Equal(in.ArrivalPrice))
	assert.True(t, d("390").Equal(in.SoldPrice.Decimal))
	require.NotNil(t, in.Repair)
	lcd, _ := in.Repair.Materials.Get(repairs.ComponentLCD)
	assert.True(t, d("75").Equal(lcd))
	assert.True(t, d("53").Equal(in.Repair.Labor.Sum()))

	in = ForSale(lines, d("20"), d("10"), decimal.NewNullDecimal(d("350")))
	assert.True(t, d("350").Equal(in.SoldPrice.Decimal))

	empty := ForSale(nil, decimal.Zero, decimal.Zero, decimal.NullDecimal{})
	_, err := Calculate(empty)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestFingerprintTracksInputs(t *testing.T) {
	a := baseInput()
	b := baseInput()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.ShippingCost = d("21")
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := baseInput()
	c.Repair = &RepairCosts{
		Materials: costs(t, map[repairs.Component]string{repairs.ComponentLCD: "40"}),
		Labor:     costs(t, map[repairs.Component]string{repairs.ComponentLCD: "25"}),
	}
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, c.Fingerprint(), 16)
}
