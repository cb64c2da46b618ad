package knowledge

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/glimpsehq/glimpse/internal/extract"
	"github.com/glimpsehq/glimpse/internal/store"
)

// Row sources, in precedence order. When the same normalized key appears
// in several sources, the first one wins and later ones are skipped.
const (
	SourceLearned = "learned"
	SourceSession = "session"
	SourceSeed    = "seed"
)

// CategoryRow is one category in the combined view.
type CategoryRow struct {
	Name            string    `json:"name"`
	Count           int       `json:"count"`
	LastSeen        time.Time `json:"last_seen"`
	RelatedKeywords []string  `json:"related_keywords"`
	Source          string    `json:"source"`
}

// KeywordRow is one keyword in the combined view.
type KeywordRow struct {
	Keyword    string    `json:"keyword"`
	Count      int       `json:"count"`
	Category   string    `json:"category"`
	Importance int       `json:"importance"`
	LastSeen   time.Time `json:"last_seen"`
	Source     string    `json:"source"`
}

// URLRow is one URL in the combined view.
type URLRow struct {
	URL          string    `json:"url"`
	Visits       int       `json:"visits"`
	Category     string    `json:"category"`
	SafetyRating string    `json:"safety_rating"`
	LastVisited  time.Time `json:"last_visited"`
	Source       string    `json:"source"`
}

// ViewStats summarizes a combined view. Totals are collection sizes, not
// sums of per-row counts.
type ViewStats struct {
	TotalCategories int       `json:"total_categories"`
	TotalKeywords   int       `json:"total_keywords"`
	TotalURLs       int       `json:"total_urls"`
	LastUpdated     time.Time `json:"last_updated"`
}

// CombinedView is the deduplicated union of learned, session-report, and
// seed knowledge for one user.
type CombinedView struct {
	UserID     string        `json:"user_id"`
	Categories []CategoryRow `json:"categories"`
	Keywords   []KeywordRow  `json:"keywords"`
	URLs       []URLRow      `json:"urls"`
	Stats      ViewStats     `json:"stats"`
}

// Builder assembles combined views from the store and the seed catalog.
type Builder struct {
	store   *store.Store
	catalog *Catalog
}

// NewBuilder wires a Builder.
func NewBuilder(st *store.Store, catalog *Catalog) *Builder {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Builder{store: st, catalog: catalog}
}

// Build merges three sources by normalized key with first-source-wins
// precedence: (1) the learned aggregate, (2) ended sessions' reports,
// (3) the seed catalog. Rows added from (2) and (3) record presence, not
// frequency: their count/visits is 1 regardless of later matches.
func (b *Builder) Build(ctx context.Context, userID string) (*CombinedView, error) {
	agg, err := b.store.Aggregate(ctx, userID)
	if err != nil {
		return nil, err
	}
	reports, err := b.store.SessionReports(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &CombinedView{UserID: userID}
	cats := map[string]struct{}{}
	kws := map[string]struct{}{}
	urls := map[string]struct{}{}

	// (1) learned aggregate
	for name, e := range agg.Categories {
		cats[name] = struct{}{}
		view.Categories = append(view.Categories, CategoryRow{
			Name:            name,
			Count:           e.Count,
			LastSeen:        e.LastSeen,
			RelatedKeywords: e.RelatedKeywords,
			Source:          SourceLearned,
		})
	}
	for kw, e := range agg.Keywords {
		kws[kw] = struct{}{}
		view.Keywords = append(view.Keywords, KeywordRow{
			Keyword:    kw,
			Count:      e.Count,
			Category:   e.Category,
			Importance: e.Importance,
			LastSeen:   e.LastSeen,
			Source:     SourceLearned,
		})
	}
	for u, e := range agg.URLs {
		urls[u] = struct{}{}
		view.URLs = append(view.URLs, URLRow{
			URL:          u,
			Visits:       e.Visits,
			Category:     e.Category,
			SafetyRating: e.SafetyRating,
			LastVisited:  e.LastVisited,
			Source:       SourceLearned,
		})
	}

	// (2) session reports not yet reflected in the aggregate
	for _, rec := range reports {
		a := rec.Analysis
		name := strings.ToLower(strings.TrimSpace(a.Category))
		if name != "" {
			if _, ok := cats[name]; !ok {
				cats[name] = struct{}{}
				view.Categories = append(view.Categories, CategoryRow{
					Name:            name,
					Count:           1,
					LastSeen:        rec.EndedAt,
					RelatedKeywords: a.Keywords,
					Source:          SourceSession,
				})
			}
		}
		for _, kw := range a.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if _, ok := kws[kw]; ok {
				continue
			}
			kws[kw] = struct{}{}
			view.Keywords = append(view.Keywords, KeywordRow{
				Keyword:    kw,
				Count:      1,
				Category:   name,
				Importance: store.DefaultKeywordImportance,
				LastSeen:   rec.EndedAt,
				Source:     SourceSession,
			})
		}
		for _, raw := range a.URLs {
			u, ok := extract.NormalizeURL(raw)
			if !ok {
				continue
			}
			if _, dup := urls[u]; dup {
				continue
			}
			urls[u] = struct{}{}
			view.URLs = append(view.URLs, URLRow{
				URL:          u,
				Visits:       1,
				Category:     name,
				SafetyRating: store.SafetyUnknown,
				LastVisited:  rec.EndedAt,
				Source:       SourceSession,
			})
		}
	}

	// (3) seed catalog
	for _, cat := range b.catalog.Categories {
		name := strings.ToLower(strings.TrimSpace(cat.Name))
		if _, ok := cats[name]; !ok {
			cats[name] = struct{}{}
			view.Categories = append(view.Categories, CategoryRow{
				Name:            name,
				Count:           1,
				RelatedKeywords: cat.Keywords,
				Source:          SourceSeed,
			})
		}
		for _, kw := range cat.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if _, ok := kws[kw]; ok {
				continue
			}
			kws[kw] = struct{}{}
			view.Keywords = append(view.Keywords, KeywordRow{
				Keyword:    kw,
				Count:      1,
				Category:   name,
				Importance: store.DefaultKeywordImportance,
				Source:     SourceSeed,
			})
		}
		for _, raw := range cat.URLs {
			u, ok := extract.NormalizeURL(raw)
			if !ok {
				continue
			}
			if _, dup := urls[u]; dup {
				continue
			}
			urls[u] = struct{}{}
			view.URLs = append(view.URLs, URLRow{
				URL:          u,
				Visits:       1,
				Category:     name,
				SafetyRating: store.SafetyUnknown,
				Source:       SourceSeed,
			})
		}
	}

	// Frontends show busiest-first.
	sort.Slice(view.Categories, func(i, j int) bool {
		if view.Categories[i].Count != view.Categories[j].Count {
			return view.Categories[i].Count > view.Categories[j].Count
		}
		return view.Categories[i].Name < view.Categories[j].Name
	})
	sort.Slice(view.Keywords, func(i, j int) bool {
		if view.Keywords[i].Count != view.Keywords[j].Count {
			return view.Keywords[i].Count > view.Keywords[j].Count
		}
		return view.Keywords[i].Keyword < view.Keywords[j].Keyword
	})
	sort.Slice(view.URLs, func(i, j int) bool {
		if view.URLs[i].Visits != view.URLs[j].Visits {
			return view.URLs[i].Visits > view.URLs[j].Visits
		}
		return view.URLs[i].URL < view.URLs[j].URL
	})

	view.Stats = ViewStats{
		TotalCategories: len(view.Categories),
		TotalKeywords:   len(view.Keywords),
		TotalURLs:       len(view.URLs),
		LastUpdated:     agg.LastUpdated,
	}
	return view, nil
}
