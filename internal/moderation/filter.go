// Package moderation decides whether group messages are spam and carries a
// flagged message through deletion, notification and notice expiry.
package moderation

import (
	"strings"
	"sync/atomic"

	"github.com/whisper/spamguard/internal/catalog"
)

// ReasonKeyword is the FilterResult reason for a keyword hit.
const ReasonKeyword = "blocked_keyword"

// FilterResult describes the outcome of checking a single message.
type FilterResult struct {
	Blocked  bool
	Reason   string
	Term     string // keyword as stored in the catalog
	Category string
}

// KeywordSource provides the current keyword catalog. *catalog.Catalog
// satisfies it.
type KeywordSource interface {
	Snapshot() catalog.Snapshot
}

type term struct {
	keyword  string
	lower    string
	category string
}

// compiled is the lower-cased keyword list for one catalog version.
type compiled struct {
	version uint64
	terms   []term
}

// Filter is the keyword matcher. It is safe for concurrent use; keyword
// changes in the source are picked up on the next Check.
type Filter struct {
	source KeywordSource
	cache  atomic.Pointer[compiled]
}

// NewFilter creates a Filter reading keywords from source.
func NewFilter(source KeywordSource) *Filter {
	return &Filter{source: source}
}

// NewFilterWithTerms creates a Filter over a fixed keyword list, all filed
// under the custom category.
func NewFilterWithTerms(terms []string) *Filter {
	snap := catalog.Snapshot{Categories: catalog.Categories{
		{Name: catalog.CategoryCustom, Keywords: terms},
	}}
	return NewFilter(staticSource{snap: snap})
}

type staticSource struct {
	snap catalog.Snapshot
}

func (s staticSource) Snapshot() catalog.Snapshot { return s.snap }

// Check trims and lower-cases text, then returns the first keyword in
// catalog order that occurs in it as a substring. Empty text never matches.
func (f *Filter) Check(text string) FilterResult {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return FilterResult{}
	}

	for _, t := range f.terms() {
		if strings.Contains(normalized, t.lower) {
			return FilterResult{
				Blocked:  true,
				Reason:   ReasonKeyword,
				Term:     t.keyword,
				Category: t.category,
			}
		}
	}
	return FilterResult{}
}

func (f *Filter) terms() []term {
	snap := f.source.Snapshot()
	if c := f.cache.Load(); c != nil && c.version == snap.Version {
		return c.terms
	}

	c := &compiled{version: snap.Version, terms: make([]term, 0, snap.Total())}
	for _, cat := range snap.Categories {
		for _, kw := range cat.Keywords {
			lower := strings.ToLower(kw)
			// An empty keyword would match every message.
			if lower == "" {
				continue
			}
			c.terms = append(c.terms, term{keyword: kw, lower: lower, category: cat.Name})
		}
	}
	f.cache.Store(c)
	return c.terms
}
