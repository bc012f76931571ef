// Package inventory keeps the stock levels of the materials held in the warehouses.
package inventory

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/iterkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/testcase/clock"
	"gopkg.in/yaml.v3"
)

const (
	ErrNotFound     errorkit.Error = "Inventory item not found"
	ErrAlreadyExist errorkit.Error = "Inventory item already exists"
	ErrCodeRequired errorkit.Error = "Material code is required"
)

const (
	StatusLowStock  = "LOW_STOCK"
	StatusOverstock = "OVERSTOCK"
	StatusHealthy   = "HEALTHY"
)

type Item struct {
	MaterialCode string    `ext:"id" json:"material_code" yaml:"material_code"`
	Name         string    `json:"name" yaml:"name"`
	Category     string    `json:"category" yaml:"category"`
	Warehouse    string    `json:"warehouse" yaml:"warehouse"`
	Quantity     float64   `json:"quantity" yaml:"quantity"`
	Unit         string    `json:"unit" yaml:"unit"`
	MinStock     float64   `json:"min_stock" yaml:"min_stock"`
	MaxStock     float64   `json:"max_stock" yaml:"max_stock"`
	Available    float64   `json:"available" yaml:"available"`
	Reserved     float64   `json:"reserved" yaml:"reserved"`
	InTransit    float64   `json:"in_transit" yaml:"in_transit"`
	Status       string    `json:"status" yaml:"status"`
	CreatedBy    string    `json:"created_by" yaml:"-"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedBy    string    `json:"updated_by,omitempty" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

// StockStatus is LOW_STOCK at or below the minimum, OVERSTOCK from 90% of the maximum, HEALTHY otherwise.
func (i Item) StockStatus() string {
	switch {
	case i.Quantity <= i.MinStock:
		return StatusLowStock
	case i.Quantity >= i.MaxStock*0.9:
		return StatusOverstock
	default:
		return StatusHealthy
	}
}

type Repository interface {
	crud.Creator[Item]
	crud.ByIDFinder[Item, string]
	crud.AllFinder[Item]
	crud.Updater[Item]
	crud.ByIDDeleter[string]
	crud.AllDeleter
}

type Service struct {
	Items Repository
}

// List returns every item ordered by material code.
func (s Service) List(ctx context.Context) ([]Item, error) {
	items, err := iterkit.CollectE(s.Items.FindAll(ctx))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].MaterialCode < items[j].MaterialCode
	})
	return items, nil
}

func (s Service) Create(ctx context.Context, username string, item Item) (Item, error) {
	item.MaterialCode = strings.TrimSpace(item.MaterialCode)
	if item.MaterialCode == "" {
		return Item{}, ErrCodeRequired
	}
	now := clock.Now().UTC()
	item.CreatedBy = username
	item.CreatedAt = now
	item.UpdatedAt = now
	item.UpdatedBy = ""
	if item.Status == "" {
		item.Status = item.StockStatus()
	}
	if err := s.Items.Create(ctx, &item); err != nil {
		if errors.Is(err, crud.ErrAlreadyExists) {
			return Item{}, ErrAlreadyExist.F("%s", item.MaterialCode)
		}
		return Item{}, err
	}
	return item, nil
}

// Patch holds the stock figures of a partial update. Nil fields are left unchanged.
type Patch struct {
	Quantity  *float64 `json:"quantity"`
	MinStock  *float64 `json:"min_stock"`
	MaxStock  *float64 `json:"max_stock"`
	Available *float64 `json:"available"`
	Reserved  *float64 `json:"reserved"`
	InTransit *float64 `json:"in_transit"`
	Warehouse *string  `json:"warehouse"`
}

func (s Service) Update(ctx context.Context, username, code string, p Patch) (Item, error) {
	item, found, err := s.Items.FindByID(ctx, code)
	if err != nil {
		return Item{}, err
	}
	if !found {
		return Item{}, ErrNotFound
	}
	for dst, src := range map[*float64]*float64{
		&item.Quantity:  p.Quantity,
		&item.MinStock:  p.MinStock,
		&item.MaxStock:  p.MaxStock,
		&item.Available: p.Available,
		&item.Reserved:  p.Reserved,
		&item.InTransit: p.InTransit,
	} {
		if src != nil {
			*dst = *src
		}
	}
	if p.Warehouse != nil {
		item.Warehouse = *p.Warehouse
	}
	item.Status = item.StockStatus()
	item.UpdatedBy = username
	item.UpdatedAt = clock.Now().UTC()
	if err := s.Items.Update(ctx, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

func (s Service) Delete(ctx context.Context, code string) error {
	_, found, err := s.Items.FindByID(ctx, code)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return s.Items.DeleteByID(ctx, code)
}

// DeleteAll empties the inventory and reports how many items were removed.
func (s Service) DeleteAll(ctx context.Context) (int, error) {
	n, err := iterkit.CountE(s.Items.FindAll(ctx))
	if err != nil {
		return 0, err
	}
	if err := s.Items.DeleteAll(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

type InitResult struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
	// Created is false when the inventory already held items.
	Created bool `json:"-"`
}

// Initialize stores the default material set, but only into an empty inventory.
func (s Service) Initialize(ctx context.Context, username string) (InitResult, error) {
	n, err := iterkit.CountE(s.Items.FindAll(ctx))
	if err != nil {
		return InitResult{}, err
	}
	if n > 0 {
		return InitResult{Message: "Inventory already initialized", Count: n}, nil
	}
	items, err := Seed()
	if err != nil {
		return InitResult{}, err
	}
	for _, item := range items {
		if _, err := s.Create(ctx, username, item); err != nil {
			return InitResult{}, fmt.Errorf("seed %s: %w", item.MaterialCode, err)
		}
	}
	logger.Info(ctx, "inventory initialized", logging.Field("count", len(items)))
	return InitResult{Message: "Inventory initialized successfully", Count: len(items), Created: true}, nil
}

// Warehouses lists the distinct non-empty warehouse names, sorted.
func (s Service) Warehouses(ctx context.Context) ([]string, error) {
	items, err := iterkit.CollectE(s.Items.FindAll(ctx))
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, item := range items {
		if item.Warehouse == "" {
			continue
		}
		if _, ok := seen[item.Warehouse]; ok {
			continue
		}
		seen[item.Warehouse] = struct{}{}
		out = append(out, item.Warehouse)
	}
	sort.Strings(out)
	return out, nil
}

//go:embed seed.yaml
var seedYAML []byte

type seedDTO struct {
	Warehouse string `yaml:"warehouse"`
	Items     []Item `yaml:"items"`
}

var parseSeed = sync.OnceValues(func() ([]Item, error) {
	var dto seedDTO
	if err := yaml.Unmarshal(seedYAML, &dto); err != nil {
		return nil, fmt.Errorf("inventory seed: %w", err)
	}
	for i := range dto.Items {
		if dto.Items[i].Warehouse == "" {
			dto.Items[i].Warehouse = dto.Warehouse
		}
	}
	return dto.Items, nil
})

// Seed returns the default material set.
func Seed() ([]Item, error) {
	items, err := parseSeed()
	if err != nil {
		return nil, err
	}
	return append([]Item(nil), items...), nil
}
