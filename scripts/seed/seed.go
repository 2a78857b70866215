package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-backoffice/internal/accounting"
	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
)

// File is the seed document layout.
type File struct {
	Companies []Company `yaml:"companies"`
}

// Company lists what gets provisioned for one tenant.
type Company struct {
	ID      int64        `yaml:"id"`
	ActorID int64        `yaml:"actor_id"`
	Stock   []StockEntry `yaml:"stock"`
}

// StockEntry is an opening balance for one product at one location.
type StockEntry struct {
	ProductID  int64           `yaml:"product_id"`
	Warehouse  int64           `yaml:"warehouse"`
	Shop       int64           `yaml:"shop"`
	Quantity   int64           `yaml:"quantity"`
	UnitCost   decimal.Decimal `yaml:"unit_cost"`
	StockAlert int64           `yaml:"stock_alert"`
}

func (e StockEntry) location() (inventory.Location, error) {
	switch {
	case e.Warehouse > 0 && e.Shop > 0:
		return inventory.Location{}, fmt.Errorf("product %d: warehouse and shop are exclusive", e.ProductID)
	case e.Warehouse > 0:
		return inventory.Warehouse(e.Warehouse), nil
	case e.Shop > 0:
		return inventory.Shop(e.Shop), nil
	}
	return inventory.Location{}, fmt.Errorf("product %d: location required", e.ProductID)
}

// Load decodes a seed document, rejecting unknown keys.
func Load(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, errors.New("seed: empty document")
		}
		return File{}, fmt.Errorf("seed: decode: %w", err)
	}
	for _, c := range f.Companies {
		if c.ID <= 0 {
			return File{}, errors.New("seed: company id required")
		}
		for _, s := range c.Stock {
			if _, err := s.location(); err != nil {
				return File{}, fmt.Errorf("seed: company %d: %w", c.ID, err)
			}
			if s.Quantity < 0 || s.StockAlert < 0 {
				return File{}, fmt.Errorf("seed: company %d product %d: negative quantity", c.ID, s.ProductID)
			}
		}
	}
	return f, nil
}

// LoadFile opens and decodes path.
func LoadFile(path string) (File, error) {
	file, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("seed: open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()
	return Load(file)
}

// Ledger provisions system accounts.
type Ledger interface {
	InitializeSystemAccounts(ctx context.Context, companyID, actorID int64) (accounting.ProvisionResult, error)
}

// Stock loads opening balances.
type Stock interface {
	RecordMovement(ctx context.Context, in inventory.MovementInput) (inventory.StockMovement, error)
	SetStockAlert(ctx context.Context, companyID, productID int64, loc inventory.Location, alert int64) (inventory.StockRecord, error)
}

// Summary counts what a seed run created.
type Summary struct {
	AccountsCreated   int
	CategoriesCreated int
	Movements         int
}

// Apply provisions each company and books opening stock as purchase entries.
func Apply(ctx context.Context, f File, ledger Ledger, stock Stock) (Summary, error) {
	var sum Summary
	for _, c := range f.Companies {
		res, err := ledger.InitializeSystemAccounts(ctx, c.ID, c.ActorID)
		if err != nil {
			return sum, fmt.Errorf("seed: provision company %d: %w", c.ID, err)
		}
		sum.AccountsCreated += res.AccountsCreated
		sum.CategoriesCreated += res.CategoriesCreated

		for _, s := range c.Stock {
			loc, _ := s.location()
			if s.Quantity > 0 {
				dest := loc
				if _, err := stock.RecordMovement(ctx, inventory.MovementInput{
					CompanyID:   c.ID,
					ActorID:     c.ActorID,
					Type:        inventory.MovementPurchaseEntry,
					ProductID:   s.ProductID,
					Quantity:    s.Quantity,
					Destination: &dest,
					UnitCost:    s.UnitCost,
					Note:        "opening stock",
				}); err != nil {
					return sum, fmt.Errorf("seed: company %d product %d: %w", c.ID, s.ProductID, err)
				}
				sum.Movements++
			}
			if s.StockAlert > 0 {
				if _, err := stock.SetStockAlert(ctx, c.ID, s.ProductID, loc, s.StockAlert); err != nil {
					return sum, fmt.Errorf("seed: company %d product %d alert: %w", c.ID, s.ProductID, err)
				}
			}
		}
	}
	return sum, nil
}
