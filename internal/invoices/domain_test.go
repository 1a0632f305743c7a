package invoices

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeAddsVATAndShipping(t *testing.T) {
	req := CreateRequest{
		ClientCode:   " C-7 ",
		ShippingCost: dec("12.50"),
		Items: []ItemInput{
			{Description: "iPhone 12 Grade A", Quantity: 2, UnitPrice: dec("200"), VAT: dec("21")},
			{Description: "Charger", Quantity: 3, UnitPrice: dec("5"), VAT: dec("0")},
		},
	}
	inv, err := Compute(req, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, "400", inv.Items[0].Net.String())
	assert.Equal(t, "84", inv.Items[0].VATAmount.String())
	assert.Equal(t, "484", inv.Items[0].Gross.String())
	assert.Equal(t, "415", inv.Articles.String())
	assert.Equal(t, "84", inv.VATTotal.String())
	assert.Equal(t, "511.5", inv.Total.String())
	assert.Equal(t, "C-7", inv.Client.Code)
}

func TestComputeRejectsBadAmounts(t *testing.T) {
	base := CreateRequest{Items: []ItemInput{{Description: "x", Quantity: 1, UnitPrice: dec("10"), VAT: dec("21")}}}
	at := time.Now()

	bad := base
	bad.ShippingCost = dec("-1")
	_, err := Compute(bad, at)
	require.ErrorIs(t, err, ErrInvalidInput)

	bad = base
	bad.Items = []ItemInput{{Description: "x", Quantity: 1, UnitPrice: dec("0")}}
	_, err = Compute(bad, at)
	require.ErrorIs(t, err, ErrInvalidInput)

	bad = base
	bad.Items = []ItemInput{{Description: "x", Quantity: 1, UnitPrice: dec("10"), VAT: dec("120")}}
	_, err = Compute(bad, at)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "INV-2025-00042", FormatNumber(2025, 42))
}
