// Package scraper runs per-user scrape passes: it visits every portal named
// by the user's active filters, ingests what they return and hands new
// matches to the auto-apply policy.
package scraper

import (
	"jobmate/autoapply-service/internal/keyword"
	"jobmate/autoapply-service/internal/model"
)

// IsExcluded reports whether any excluded term appears (case-insensitive) in
// the posting's title, company or description. Excluded postings are
// discarded before persistence.
func IsExcluded(p model.JobPosting, excluded []string) bool {
	return keyword.ContainsAny(p.SearchableText(), excluded)
}
