// Package knowledge composes read-side views over what Glimpse has
// learned: the static seed catalog, the combined (seed + learned +
// session-report) view, and learning-trend summaries.
package knowledge

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/glimpsehq/glimpse/internal/extract"
)

// SeedCategory is one category's curated starting knowledge.
type SeedCategory struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	URLs     []string `yaml:"urls"`
}

// Catalog is the static seed knowledge supplied at startup. Never mutated
// by the engine.
type Catalog struct {
	Categories []SeedCategory `yaml:"categories"`
}

// DefaultCatalog returns the built-in seed catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Categories: []SeedCategory{
			{
				Name:     "entertainment",
				Keywords: []string{"movie", "music", "show", "celebrity", "streaming"},
				URLs:     []string{"https://netflix.com", "https://spotify.com", "https://youtube.com"},
			},
			{
				Name:     "sports",
				Keywords: []string{"game", "match", "player", "team", "score"},
				URLs:     []string{"https://espn.com", "https://nba.com", "https://fifa.com"},
			},
			{
				Name:     "gaming",
				Keywords: []string{"game", "player", "level", "score", "achievement"},
				URLs:     []string{"https://twitch.tv", "https://steam.com", "https://epicgames.com"},
			},
			{
				Name:     "coding",
				Keywords: []string{"code", "programming", "developer", "software", "git"},
				URLs:     []string{"https://github.com", "https://stackoverflow.com", "https://dev.to"},
			},
			{
				Name:     "adult",
				Keywords: []string{"18+", "mature", "adult", "nsfw"},
				URLs:     []string{"https://onlyfans.com"},
			},
		},
	}
}

// LoadCatalog reads a seed catalog from a YAML file. Unknown category
// names are rejected so seeds stay inside the closed category set.
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed catalog %s: %w", path, err)
	}

	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parsing seed catalog %s: %w", path, err)
	}

	for _, cat := range c.Categories {
		if !extract.ValidCategory(cat.Name) {
			return nil, fmt.Errorf("seed catalog %s: unknown category %q", path, cat.Name)
		}
	}
	return &c, nil
}

// Hints flattens the catalog into classifier seed hints.
func (c *Catalog) Hints() extract.SeedHints {
	var h extract.SeedHints
	seenKW := map[string]struct{}{}
	seenURL := map[string]struct{}{}
	for _, cat := range c.Categories {
		for _, kw := range cat.Keywords {
			if _, ok := seenKW[kw]; ok {
				continue
			}
			seenKW[kw] = struct{}{}
			h.Keywords = append(h.Keywords, kw)
		}
		for _, u := range cat.URLs {
			if _, ok := seenURL[u]; ok {
				continue
			}
			seenURL[u] = struct{}{}
			h.URLs = append(h.URLs, u)
		}
	}
	sort.Strings(h.Keywords)
	sort.Strings(h.URLs)
	return h
}
