package sales

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var hundred = decimal.NewFromInt(100)

// Money formats amounts for one locale and currency.
type Money struct {
	printer *message.Printer
	unit    currency.Unit
	point   string
}

// NewMoney builds a formatter from a BCP 47 tag and an ISO 4217 code.
func NewMoney(lang, code string) (*Money, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("sales: locale %q: %w", lang, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("sales: currency %q: %w", code, err)
	}
	printer := message.NewPrinter(tag)
	point := "."
	if sample := printer.Sprintf("%.1f", 0.5); len(sample) > 2 {
		point = sample[1 : len(sample)-1]
	}
	return &Money{printer: printer, unit: unit, point: point}, nil
}

// Format renders amount rounded to cents with the locale's grouping, e.g.
// "EUR 1,234.50". Digits come from the decimal itself, never from a float.
func (m *Money) Format(amount decimal.Decimal) string {
	amount = amount.Round(2)
	whole, cents, _ := strings.Cut(amount.Abs().StringFixed(2), ".")
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		whole = m.printer.Sprintf("%d", n)
	}
	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return m.unit.String() + " " + sign + whole + m.point + cents
}

// InvoiceLine is one device on an invoice.
type InvoiceLine struct {
	Position             int             `json:"position"`
	Description          string          `json:"description"`
	IMEI                 string          `json:"imei,omitempty"`
	Price                decimal.Decimal `json:"price"`
	PriceAfterCommission decimal.Decimal `json:"price_after_commission"`
	Display              string          `json:"display"`
}

// Invoice is the printable view of a sale.
type Invoice struct {
	SaleID         int64             `json:"sale_id"`
	Customer       string            `json:"customer"`
	ShipmentNumber string            `json:"shipment_number"`
	Date           time.Time         `json:"date"`
	Lines          []InvoiceLine     `json:"lines"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	Commission     decimal.Decimal   `json:"commission"`
	Shipping       decimal.Decimal   `json:"shipping"`
	Total          decimal.Decimal   `json:"total"`
	Currency       string            `json:"currency"`
	Formatted      map[string]string `json:"formatted"`
}

// BuildInvoice renders sale with prices net of commission. When a custom
// total overrides the recorded one, it is spread over the lines in proportion
// to their prices so the lines always add up to Subtotal. Total is the
// subtotal net of commission plus shipping.
func BuildInvoice(sale Sale, money *Money) Invoice {
	keep := decimal.NewFromInt(1).Sub(sale.CommissionRate.Div(hundred))
	inv := Invoice{
		SaleID:         sale.ID,
		Customer:       sale.CustomerName,
		ShipmentNumber: sale.ShipmentNumber,
		Date:           sale.SoldAt,
		Subtotal:       sale.SoldPrice(),
		Shipping:       sale.ShippingCost,
		Currency:       money.unit.String(),
	}
	prices := linePrices(sale)
	for i, item := range sale.Items {
		net := prices[i].Mul(keep)
		inv.Lines = append(inv.Lines, InvoiceLine{
			Position:             item.Position,
			Description:          describe(item),
			IMEI:                 item.IMEI,
			Price:                prices[i],
			PriceAfterCommission: net,
			Display:              money.Format(net),
		})
	}
	inv.Commission = inv.Subtotal.Mul(sale.CommissionRate).Div(hundred)
	inv.Total = inv.Subtotal.Sub(inv.Commission).Add(inv.Shipping)
	inv.Formatted = map[string]string{
		"subtotal":   money.Format(inv.Subtotal),
		"commission": money.Format(inv.Commission),
		"shipping":   money.Format(inv.Shipping),
		"total":      money.Format(inv.Total),
	}
	return inv
}

// linePrices returns the price each line carries on the invoice. Without a
// custom total these are the recorded prices. With one, the custom total is
// split by recorded price share, rounded to cents, and the last line takes
// the rounding remainder.
func linePrices(sale Sale) []decimal.Decimal {
	prices := make([]decimal.Decimal, len(sale.Items))
	recorded := decimal.Zero
	for i, item := range sale.Items {
		prices[i] = item.SalePrice
		recorded = recorded.Add(item.SalePrice)
	}
	if !sale.CustomTotalPrice.Valid || len(prices) == 0 {
		return prices
	}
	target := sale.CustomTotalPrice.Decimal
	n := decimal.NewFromInt(int64(len(prices)))
	assigned := decimal.Zero
	for i := range prices {
		if i == len(prices)-1 {
			prices[i] = target.Sub(assigned)
			break
		}
		if recorded.IsZero() {
			prices[i] = target.Div(n).Round(2)
		} else {
			prices[i] = target.Mul(sale.Items[i].SalePrice).Div(recorded).Round(2)
		}
		assigned = assigned.Add(prices[i])
	}
	return prices
}

func describe(item LineItem) string {
	parts := []string{item.Brand, item.Model, item.Memory, item.Color}
	if item.Grade != "" {
		parts = append(parts, "Grade "+item.Grade)
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
