// Package catalog keeps the registry of device models that stock entry picks
// from, organised as type, then brand, then model.
package catalog

import (
	"errors"
	"sort"
	"strings"

	"github.com/devicehub/devicehub/internal/inventory"
)

var (
	ErrNotFound  = errors.New("catalog: model not found")
	ErrDuplicate = errors.New("catalog: model already registered")
	ErrBlank     = errors.New("catalog: brand and model required")
)

// Entry is one registered model.
type Entry struct {
	DeviceType inventory.DeviceType `json:"device_type"`
	Brand      string               `json:"brand"`
	Model      string               `json:"model"`
}

// CreateRequest registers a model.
type CreateRequest struct {
	DeviceType inventory.DeviceType `json:"device_type" validate:"required,oneof=Mobile Tablet Laptop"`
	Brand      string               `json:"brand" validate:"required,max=80"`
	Model      string               `json:"model" validate:"required,max=120"`
}

func (r CreateRequest) entry() Entry {
	return Entry{DeviceType: r.DeviceType, Brand: strings.TrimSpace(r.Brand), Model: strings.TrimSpace(r.Model)}
}

// Brand lists the models of one brand.
type Brand struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
}

// TypeGroup lists the brands of one device type.
type TypeGroup struct {
	DeviceType inventory.DeviceType `json:"device_type"`
	Brands     []Brand              `json:"brands"`
}

// Group nests entries by type and brand. Types, brands and models are sorted
// case-insensitively.
func Group(entries []Entry) []TypeGroup {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.DeviceType != b.DeviceType {
			return a.DeviceType < b.DeviceType
		}
		if !strings.EqualFold(a.Brand, b.Brand) {
			return strings.ToLower(a.Brand) < strings.ToLower(b.Brand)
		}
		return strings.ToLower(a.Model) < strings.ToLower(b.Model)
	})

	var out []TypeGroup
	for _, e := range sorted {
		if len(out) == 0 || out[len(out)-1].DeviceType != e.DeviceType {
			out = append(out, TypeGroup{DeviceType: e.DeviceType})
		}
		g := &out[len(out)-1]
		if len(g.Brands) == 0 || !strings.EqualFold(g.Brands[len(g.Brands)-1].Name, e.Brand) {
			g.Brands = append(g.Brands, Brand{Name: e.Brand})
		}
		b := &g.Brands[len(g.Brands)-1]
		b.Models = append(b.Models, e.Model)
	}
	return out
}

// matches reports whether e passes a free text search over brand and model.
func (e Entry) matches(search string) bool {
	if search == "" {
		return true
	}
	search = strings.ToLower(search)
	return strings.Contains(strings.ToLower(e.Brand), search) || strings.Contains(strings.ToLower(e.Model), search)
}
