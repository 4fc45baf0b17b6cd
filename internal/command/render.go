package command

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/whisper/spamguard/internal/audit"
	"github.com/whisper/spamguard/internal/catalog"
)

const (
	// listPerCategory is how many keywords /list shows per category.
	listPerCategory = 10

	// maxReplyRunes bounds a /list reply, truncation marker included.
	maxReplyRunes = 4000

	truncatedMarker = "\n\n... (message too long, truncated)"

	timeLayout = "2006-01-02 15:04:05"
)

var displayNames = map[string]string{
	catalog.CategoryGambling: "🎰 Gambling",
	catalog.CategoryAdult:    "🔞 Adult",
	catalog.CategoryCustom:   "⚙️ Custom",
	catalog.CategoryCrypto:   "🪙 Crypto scam",
}

// DisplayName returns the heading for a category. Unknown categories are
// shown generically.
func DisplayName(category string) string {
	if name, ok := displayNames[category]; ok {
		return name
	}
	return "📂 " + category
}

// RenderList formats the catalog for /list.
func RenderList(snap catalog.Snapshot) string {
	if snap.Total() == 0 {
		return "📝 Keyword list is empty"
	}

	parts := []string{"📝 Current keyword list:\n"}
	for _, c := range snap.Categories {
		if len(c.Keywords) == 0 {
			continue
		}
		parts = append(parts, "\n"+DisplayName(c.Name)+":")
		for i, kw := range c.Keywords {
			if i == listPerCategory {
				break
			}
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, kw))
		}
		if extra := len(c.Keywords) - listPerCategory; extra > 0 {
			parts = append(parts, fmt.Sprintf("... and %d more keywords", extra))
		}
	}

	return truncate(strings.Join(parts, "\n"))
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxReplyRunes {
		return s
	}
	keep := maxReplyRunes - utf8.RuneCountInString(truncatedMarker)
	return string([]rune(s)[:keep]) + truncatedMarker
}

// StatsView is the data behind a /stats reply.
type StatsView struct {
	Snapshot catalog.Snapshot
	// RemovedLastDay is the number of messages removed in this chat in the
	// last 24 hours, or -1 when unknown.
	RemovedLastDay int
	// TopTerms are the most matched keywords in the same window.
	TopTerms []audit.TermCount
}

// RenderStats formats the catalog statistics for /stats.
func RenderStats(v StatsView) string {
	var b strings.Builder
	b.WriteString("📊 Bot Statistics\n\n")
	fmt.Fprintf(&b, "🔢 Total keywords: %d\n", v.Snapshot.Total())
	for _, c := range v.Snapshot.Categories {
		fmt.Fprintf(&b, "• %s: %d\n", DisplayName(c.Name), len(c.Keywords))
	}
	if v.RemovedLastDay >= 0 {
		fmt.Fprintf(&b, "\n🧹 Removed in last 24h: %d\n", v.RemovedLastDay)
	}
	if len(v.TopTerms) > 0 {
		parts := make([]string, len(v.TopTerms))
		for i, tc := range v.TopTerms {
			parts[i] = fmt.Sprintf("%s (%d)", tc.Term, tc.Count)
		}
		fmt.Fprintf(&b, "🔝 Top matches: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "\n📅 Last updated: %s\n", FormatTime(v.Snapshot.UpdatedAt))
	b.WriteString("🟢 Status: Running normally")
	return b.String()
}

// FormatTime renders t the way replies show timestamps.
func FormatTime(t time.Time) string {
	return t.Local().Format(timeLayout)
}
