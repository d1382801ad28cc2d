// Package matcher evaluates feed criteria against catalog records.
package matcher

import (
	"strings"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// Matches reports whether book satisfies every non-blank predicate in c.
// Blank predicates are ignored; an unknown classification mode never matches.
func Matches(book feed.BookRecord, c feed.Criteria) bool {
	if series := strings.TrimSpace(c.SeriesName); series != "" {
		if book.Series == "" || book.Series != series {
			return false
		}
	}

	if keyword := strings.TrimSpace(c.TitleKeyword); keyword != "" {
		if !strings.Contains(strings.ToLower(book.Title), strings.ToLower(keyword)) {
			return false
		}
	}

	if publisher := strings.TrimSpace(c.Publisher); publisher != "" {
		if book.Publisher != publisher {
			return false
		}
	}

	if code := strings.TrimSpace(c.ClassificationCode); code != "" {
		if !matchClassification(book.ClassificationCode, code, c.NormalizedMode()) {
			return false
		}
	}

	return true
}

func matchClassification(bookCode, want string, mode feed.MatchMode) bool {
	if bookCode == "" {
		return false
	}
	switch mode {
	case feed.MatchExact:
		return bookCode == want
	case feed.MatchPrefix:
		return strings.HasPrefix(bookCode, want)
	case feed.MatchSuffix:
		return strings.HasSuffix(bookCode, want)
	default:
		return false
	}
}

// Filter returns the books matching c, preserving batch order.
func Filter(books []feed.BookRecord, c feed.Criteria) []feed.BookRecord {
	var out []feed.BookRecord
	for _, b := range books {
		if Matches(b, c) {
			out = append(out, b)
		}
	}
	return out
}
