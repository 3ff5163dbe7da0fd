package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestLoadSeedFile(t *testing.T) {
	m := NewMemory()
	path := writeSeed(t, `[
		{"id":"p1","name":"Widget","sku":"W-1","price":"19.99","stock":10},
		{"id":"p2","name":"Retired","price":"1","stock":0,"status":"inactive"}
	]`)
	n, err := LoadSeedFile(context.Background(), m, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 products, got %d", n)
	}
	p1, err := m.GetProduct(context.Background(), "p1")
	if err != nil || p1.Status != model.ProductActive || p1.Price.String() != "19.99" {
		t.Fatalf("unexpected p1 %+v err=%v", p1, err)
	}
	p2, _ := m.GetProduct(context.Background(), "p2")
	if p2.Orderable() {
		t.Fatalf("expected p2 inactive")
	}
}

func TestLoadSeedFileRejectsInvalidEntry(t *testing.T) {
	m := NewMemory()
	path := writeSeed(t, `[{"id":"ok","name":"Ok","price":"1","stock":1},{"id":"bad","name":"Bad","price":"-1","stock":1}]`)
	n, err := LoadSeedFile(context.Background(), m, path)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 product written before failure, got %d", n)
	}
}

func TestLoadSeedFileMissing(t *testing.T) {
	if _, err := LoadSeedFile(context.Background(), NewMemory(), filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
