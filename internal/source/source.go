// Package source abstracts the marketplace listing source. The core never
// parses marketplace HTML or JSON itself; adapters hand it normalized
// listing records per results page.
package source

import (
	"context"

	"github.com/sirupsen/logrus"

	"marktwatch/server/internal/models"
)

// Source yields the raw listing records of one search results page. Pages
// are numbered from 1. An empty page is a valid response meaning the result
// set is exhausted.
type Source interface {
	FetchPage(ctx context.Context, query string, page int) ([]models.RawListing, error)
}

// FetchAll fetches result pages for a query until a page contributes no
// listing id that was not already seen in this run, which signals the end of
// the result set or a repeated page. Duplicate ids keep their first
// occurrence; commercial advertisements and records without an id are
// dropped. maxPages of zero or less means no page cap.
func FetchAll(ctx context.Context, src Source, query string, maxPages int, logger *logrus.Logger) ([]models.RawListing, error) {
	seen := make(map[string]struct{})
	var all []models.RawListing

	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		listings, err := src.FetchPage(ctx, query, page)
		if err != nil {
			return nil, err
		}

		fresh := 0
		for _, listing := range listings {
			if listing.ID == "" || listing.Commercial {
				continue
			}
			if _, ok := seen[listing.ID]; ok {
				continue
			}
			seen[listing.ID] = struct{}{}
			all = append(all, listing)
			fresh++
		}

		if logger != nil {
			logger.WithFields(logrus.Fields{
				"query": query,
				"page":  page,
				"fresh": fresh,
			}).Debug("Fetched search results page")
		}

		if fresh == 0 {
			break
		}
	}

	return all, nil
}
