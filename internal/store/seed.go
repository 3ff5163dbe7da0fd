package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
)

// LoadSeedFile upserts every product listed in the JSON array at path.
// It stops at the first invalid product and returns how many were written.
func LoadSeedFile(ctx context.Context, admin CatalogAdmin, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog seed: %w", err)
	}
	var products []model.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return 0, fmt.Errorf("parse catalog seed %s: %w", path, err)
	}
	for i, p := range products {
		if p.Status == "" {
			p.Status = model.ProductActive
		}
		if err := p.Validate(); err != nil {
			return i, fmt.Errorf("catalog seed entry %d: %w", i, err)
		}
		if _, err := admin.UpsertProduct(ctx, p); err != nil {
			return i, fmt.Errorf("catalog seed entry %d: %w", i, err)
		}
	}
	return len(products), nil
}
