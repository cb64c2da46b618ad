package knowledge

import (
	"context"
	"sort"

	"github.com/glimpsehq/glimpse/internal/store"
)

// CategoryTrend is one category ranked by observation count.
type CategoryTrend struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// KeywordTrend is one keyword ranked by importance-weighted frequency.
type KeywordTrend struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
	Weight  int    `json:"weight"` // importance * count
}

// URLTrend is one safe URL ranked by visits.
type URLTrend struct {
	URL    string `json:"url"`
	Visits int    `json:"visits"`
}

// Trends summarizes where a user's attention has been going.
type Trends struct {
	TopCategories []CategoryTrend `json:"top_categories"`
	TopKeywords   []KeywordTrend  `json:"top_keywords"`
	SafeURLs      []URLTrend      `json:"safe_urls"`
}

const (
	trendCategoryLimit = 5
	trendKeywordLimit  = 10
)

// AnalyzeTrends ranks the user's aggregate: five busiest categories, ten
// heaviest keywords by importance*count, and all safe URLs by visits.
func AnalyzeTrends(ctx context.Context, st *store.Store, userID string) (*Trends, error) {
	agg, err := st.Aggregate(ctx, userID)
	if err != nil {
		return nil, err
	}

	t := &Trends{}

	for name, e := range agg.Categories {
		t.TopCategories = append(t.TopCategories, CategoryTrend{Name: name, Count: e.Count})
	}
	sort.Slice(t.TopCategories, func(i, j int) bool {
		if t.TopCategories[i].Count != t.TopCategories[j].Count {
			return t.TopCategories[i].Count > t.TopCategories[j].Count
		}
		return t.TopCategories[i].Name < t.TopCategories[j].Name
	})
	if len(t.TopCategories) > trendCategoryLimit {
		t.TopCategories = t.TopCategories[:trendCategoryLimit]
	}

	for kw, e := range agg.Keywords {
		t.TopKeywords = append(t.TopKeywords, KeywordTrend{
			Keyword: kw,
			Count:   e.Count,
			Weight:  e.Importance * e.Count,
		})
	}
	sort.Slice(t.TopKeywords, func(i, j int) bool {
		if t.TopKeywords[i].Weight != t.TopKeywords[j].Weight {
			return t.TopKeywords[i].Weight > t.TopKeywords[j].Weight
		}
		return t.TopKeywords[i].Keyword < t.TopKeywords[j].Keyword
	})
	if len(t.TopKeywords) > trendKeywordLimit {
		t.TopKeywords = t.TopKeywords[:trendKeywordLimit]
	}

	for u, e := range agg.URLs {
		if e.SafetyRating != store.SafetySafe {
			continue
		}
		t.SafeURLs = append(t.SafeURLs, URLTrend{URL: u, Visits: e.Visits})
	}
	sort.Slice(t.SafeURLs, func(i, j int) bool {
		if t.SafeURLs[i].Visits != t.SafeURLs[j].Visits {
			return t.SafeURLs[i].Visits > t.SafeURLs[j].Visits
		}
		return t.SafeURLs[i].URL < t.SafeURLs[j].URL
	})

	return t, nil
}
