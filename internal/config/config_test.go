package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"MAX_ITEMS_PER_CATEGORY", "REFRESH_INTERVAL", "RETRY_ATTEMPTS", "FETCH_TIMEOUT", "DEBUG"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxItemsPerCategory != 20 {
		t.Errorf("MaxItemsPerCategory = %d, want 20", cfg.MaxItemsPerCategory)
	}
	if cfg.RefreshInterval != 5*time.Minute {
		t.Errorf("RefreshInterval = %v, want 5m", cfg.RefreshInterval)
	}
	if cfg.RetryAttempts != 1 {
		t.Errorf("RetryAttempts = %d, want 1", cfg.RetryAttempts)
	}
	if cfg.Debug {
		t.Error("Debug should default to false")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MAX_ITEMS_PER_CATEGORY", "30")
	t.Setenv("DESCRIPTION_MAX_RUNES", "320")
	t.Setenv("REFRESH_INTERVAL", "90s")
	t.Setenv("FETCH_TIMEOUT", "invalid")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxItemsPerCategory != 30 || cfg.DescriptionMaxRunes != 320 {
		t.Errorf("limits = %d/%d, want 30/320", cfg.MaxItemsPerCategory, cfg.DescriptionMaxRunes)
	}
	if cfg.RefreshInterval != 90*time.Second {
		t.Errorf("RefreshInterval = %v", cfg.RefreshInterval)
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Errorf("invalid FETCH_TIMEOUT should fall back to default, got %v", cfg.FetchTimeout)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
}

func TestValidateRejectsBadLimits(t *testing.T) {
	t.Setenv("MAX_ITEMS_PER_CATEGORY", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero max items")
	}

	t.Setenv("MAX_ITEMS_PER_CATEGORY", "")
	t.Setenv("RETRY_ATTEMPTS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero retry attempts")
	}

	t.Setenv("RETRY_ATTEMPTS", "")
	t.Setenv("FETCH_RATE", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative fetch rate")
	}

	t.Setenv("FETCH_RATE", "2")
	t.Setenv("FETCH_BURST", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero burst")
	}
}

func TestLoadCategoriesMissingFileUsesDefaults(t *testing.T) {
	cats, err := LoadCategories(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadCategories: %v", err)
	}
	if len(cats) != 4 || cats[0].ID != "latest" {
		t.Errorf("unexpected defaults: %+v", cats)
	}
}

func TestLoadCategoriesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	content := `categories:
  - id: editorial
    label: Editorials
    queries:
      - 'editorial OR opinion'
  - id: pib
    label: PIB
    queries: [PIB, "Press Information Bureau"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cats, err := LoadCategories(path)
	if err != nil {
		t.Fatalf("LoadCategories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	if cats[0].Queries[0] != "editorial OR opinion" {
		t.Errorf("query = %q", cats[0].Queries[0])
	}
	if len(cats[1].Queries) != 2 {
		t.Errorf("pib queries = %v", cats[1].Queries)
	}
}

func TestLoadCategoriesInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"duplicate id", "categories:\n  - {id: a, queries: [x]}\n  - {id: a, queries: [y]}\n", "duplicate"},
		{"no queries", "categories:\n  - {id: a, queries: []}\n", "no queries"},
		{"blank query", "categories:\n  - {id: a, queries: ['  ']}\n", "blank query"},
		{"missing id", "categories:\n  - {label: A, queries: [x]}\n", "no id"},
		{"empty", "categories: []\n", "no categories"},
		{"unknown field", "categories:\n  - {id: a, queries: [x], color: red}\n", "color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadCategories(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRepositoryCategoriesFileIsValid(t *testing.T) {
	cats, err := LoadCategories(filepath.Join("..", "..", "configs", "categories.yaml"))
	if err != nil {
		t.Fatalf("LoadCategories: %v", err)
	}
	if len(cats) != len(DefaultCategories()) {
		t.Errorf("configs/categories.yaml has %d categories, defaults have %d", len(cats), len(DefaultCategories()))
	}
}
