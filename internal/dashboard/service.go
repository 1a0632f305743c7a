// Package dashboard summarises stock and sales for the back-office home page.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Stock describes what is currently held.
type Stock struct {
	Devices int64            `json:"devices"`
	ByType  map[string]int64 `json:"by_type"`
	Value   decimal.Decimal  `json:"value"`
}

// SalesTotals aggregates delivered sales in a window.
type SalesTotals struct {
	Count   int64           `json:"count"`
	Devices int64           `json:"devices"`
	Amount  decimal.Decimal `json:"amount"`
}

// Window is one reporting period.
type Window struct {
	From           string          `json:"from"`
	To             string          `json:"to"`
	Sales          SalesTotals     `json:"sales"`
	TechnicianCost decimal.Decimal `json:"technician_cost"`
	Net            decimal.Decimal `json:"net"`
}

// Summary is the dashboard payload.
type Summary struct {
	AsOf    string `json:"as_of"`
	Stock   Stock  `json:"stock"`
	Monthly Window `json:"monthly"`
	Yearly  Window `json:"yearly"`
}

// Service builds dashboard summaries, served from cache when possible.
type Service struct {
	repo  Repository
	cache *Cache
	loc   *time.Location
	now   func() time.Time
}

// NewService wires a Repository with a Cache helper. A nil loc means UTC.
func NewService(repo Repository, cache *Cache, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, cache: cache, loc: loc, now: time.Now}
}

// Summary returns the month and year containing the calendar day of asOf. A
// zero asOf means today.
func (s *Service) Summary(ctx context.Context, asOf time.Time) (Summary, error) {
	if asOf.IsZero() {
		asOf = s.now().In(s.loc)
	}
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, s.loc)
	key, err := s.cache.BuildKey(ctx, "dashboard", "summary", asOf.Format(time.DateOnly))
	if err != nil {
		return Summary{}, err
	}
	var out Summary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.build(ctx, asOf)
	})
	return out, err
}

// Warm builds and caches today's summary.
func (s *Service) Warm(ctx context.Context) error {
	_, err := s.Summary(ctx, time.Time{})
	return err
}

// Invalidate drops every cached summary.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) build(ctx context.Context, asOf time.Time) (Summary, error) {
	monthStart := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, s.loc)
	yearStart := time.Date(asOf.Year(), time.January, 1, 0, 0, 0, 0, s.loc)

	out := Summary{AsOf: asOf.Format(time.DateOnly)}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stock, err := s.repo.Stock(ctx)
		if err != nil {
			return fmt.Errorf("stock: %w", err)
		}
		out.Stock = stock
		return nil
	})
	g.Go(func() error {
		w, err := s.window(ctx, monthStart, monthStart.AddDate(0, 1, 0))
		if err != nil {
			return fmt.Errorf("monthly: %w", err)
		}
		out.Monthly = w
		return nil
	})
	g.Go(func() error {
		w, err := s.window(ctx, yearStart, yearStart.AddDate(1, 0, 0))
		if err != nil {
			return fmt.Errorf("yearly: %w", err)
		}
		out.Yearly = w
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *Service) window(ctx context.Context, from, to time.Time) (Window, error) {
	sales, err := s.repo.Sales(ctx, from, to)
	if err != nil {
		return Window{}, err
	}
	cost, err := s.repo.TechnicianCost(ctx, from, to)
	if err != nil {
		return Window{}, err
	}
	return Window{
		From:           from.Format(time.DateOnly),
		To:             to.AddDate(0, 0, -1).Format(time.DateOnly),
		Sales:          sales,
		TechnicianCost: cost,
		Net:            sales.Amount.Sub(cost),
	}, nil
}
