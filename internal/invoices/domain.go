// Package invoices issues numbered VAT invoices to trade clients.
package invoices

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("invoices: invoice not found")
	ErrInvalidInput = errors.New("invoices: invalid amount")
)

var hundred = decimal.NewFromInt(100)

// FormatNumber renders the invoice number of the seq-th invoice of year.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("INV-%d-%05d", year, seq)
}

// ItemInput is one billed article.
type ItemInput struct {
	Description string          `json:"description" validate:"required,max=200"`
	Quantity    int             `json:"quantity" validate:"gt=0,lte=10000"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VAT         decimal.Decimal `json:"vat"`
}

// CreateRequest issues an invoice. Date defaults to today.
type CreateRequest struct {
	Date          string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	ClientCode    string          `json:"client_code" validate:"required,max=40"`
	ClientName    string          `json:"client_name" validate:"required,max=120"`
	ClientAddress string          `json:"client_address" validate:"required,max=200"`
	ClientCity    string          `json:"client_city" validate:"required,max=80"`
	ClientCountry string          `json:"client_country" validate:"required,max=80"`
	VATNumber     string          `json:"vat_number" validate:"max=40"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	Items         []ItemInput     `json:"items" validate:"required,min=1,max=200,dive"`
}

// Client identifies who is billed.
type Client struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Country   string `json:"country"`
	VATNumber string `json:"vat_number,omitempty"`
}

// Item is a billed article with its computed amounts.
type Item struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VAT         decimal.Decimal `json:"vat"`
	Net         decimal.Decimal `json:"net"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	Gross       decimal.Decimal `json:"gross"`
}

// Invoice is an issued invoice.
type Invoice struct {
	ID        int64             `json:"id"`
	Number    string            `json:"invoice_number"`
	Date      time.Time         `json:"date"`
	Client    Client            `json:"client"`
	Items     []Item            `json:"items"`
	Articles  decimal.Decimal   `json:"articles"`
	VATTotal  decimal.Decimal   `json:"vat_total"`
	Shipping  decimal.Decimal   `json:"shipping"`
	Total     decimal.Decimal   `json:"total"`
	Formatted map[string]string `json:"formatted,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Compute builds the unnumbered invoice of req dated date. Each article costs
// quantity x unit price plus its VAT percentage; shipping is added once.
func Compute(req CreateRequest, date time.Time) (Invoice, error) {
	if req.ShippingCost.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: shipping cost %s", ErrInvalidInput, req.ShippingCost)
	}
	inv := Invoice{
		Date: date,
		Client: Client{
			Code:      strings.TrimSpace(req.ClientCode),
			Name:      strings.TrimSpace(req.ClientName),
			Address:   strings.TrimSpace(req.ClientAddress),
			City:      strings.TrimSpace(req.ClientCity),
			Country:   strings.TrimSpace(req.ClientCountry),
			VATNumber: strings.TrimSpace(req.VATNumber),
		},
		Articles: decimal.Zero,
		VATTotal: decimal.Zero,
		Shipping: req.ShippingCost,
	}
	for i, in := range req.Items {
		if !in.UnitPrice.IsPositive() {
			return Invoice{}, fmt.Errorf("%w: item %d unit price must be > 0", ErrInvalidInput, i+1)
		}
		if in.VAT.IsNegative() || in.VAT.GreaterThan(hundred) {
			return Invoice{}, fmt.Errorf("%w: item %d vat must be within 0..100", ErrInvalidInput, i+1)
		}
		net := in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
		vat := net.Mul(in.VAT).Div(hundred)
		inv.Items = append(inv.Items, Item{
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			VAT:         in.VAT,
			Net:         net,
			VATAmount:   vat,
			Gross:       net.Add(vat),
		})
		inv.Articles = inv.Articles.Add(net)
		inv.VATTotal = inv.VATTotal.Add(vat)
	}
	inv.Total = inv.Articles.Add(inv.VATTotal).Add(inv.Shipping)
	return inv, nil
}
