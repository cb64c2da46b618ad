package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glimpsehq/glimpse/internal/extract"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if len(c.Categories) != len(extract.Categories) {
		t.Fatalf("got %d seed categories, want %d", len(c.Categories), len(extract.Categories))
	}
	for _, cat := range c.Categories {
		if !extract.ValidCategory(cat.Name) {
			t.Errorf("seed category %q is not a valid category", cat.Name)
		}
		if len(cat.Keywords) == 0 {
			t.Errorf("seed category %q has no keywords", cat.Name)
		}
		if len(cat.URLs) == 0 {
			t.Errorf("seed category %q has no urls", cat.Name)
		}
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.yaml")
	content := `categories:
  - name: coding
    keywords: [rust, cargo]
    urls: ["https://crates.io"]
  - name: gaming
    keywords: [speedrun]
    urls: ["https://speedrun.com"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing seed file: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(c.Categories) != 2 {
		t.Fatalf("got %d categories, want 2", len(c.Categories))
	}
	if c.Categories[0].Name != "coding" || c.Categories[0].Keywords[0] != "rust" {
		t.Errorf("unexpected first category: %+v", c.Categories[0])
	}
}

func TestLoadCatalogRejectsUnknownCategory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.yaml")
	content := `categories:
  - name: shopping
    keywords: [deals]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing seed file: %v", err)
	}

	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected error for unknown category name")
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := LoadCatalog("/nonexistent/seeds.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCatalogHints(t *testing.T) {
	c := &Catalog{
		Categories: []SeedCategory{
			{Name: "sports", Keywords: []string{"game", "match"}, URLs: []string{"https://espn.com"}},
			{Name: "gaming", Keywords: []string{"game", "level"}, URLs: []string{"https://twitch.tv"}},
		},
	}
	h := c.Hints()

	// "game" appears in two categories but only once in the hints.
	wantKW := []string{"game", "level", "match"}
	if len(h.Keywords) != len(wantKW) {
		t.Fatalf("keywords = %v, want %v", h.Keywords, wantKW)
	}
	for i, kw := range wantKW {
		if h.Keywords[i] != kw {
			t.Errorf("keywords[%d] = %q, want %q", i, h.Keywords[i], kw)
		}
	}
	if len(h.URLs) != 2 {
		t.Errorf("urls = %v, want 2 entries", h.URLs)
	}
}
