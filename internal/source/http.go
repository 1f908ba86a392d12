package source

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"marktwatch/server/internal/models"
)

// HTTPSource fetches listings from a JSON search API:
//
//	GET {base}/api/search?q=<query>&page=<n>
//	-> {"listings": [...]}
//
// The API is expected to do all marketplace-specific parsing and return
// normalized listing records.
type HTTPSource struct {
	client *resty.Client
}

func NewHTTPSource(baseURL, userAgent string, timeout time.Duration) *HTTPSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)

	return &HTTPSource{client: client}
}

type searchResponse struct {
	Listings []models.RawListing `json:"listings"`
}

func (s *HTTPSource) FetchPage(ctx context.Context, query string, page int) ([]models.RawListing, error) {
	var result searchResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":    query,
			"page": strconv.Itoa(page),
		}).
		SetResult(&result).
		Get("/api/search")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %d for %q: %w", page, query, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search request for %q page %d returned %s", query, page, resp.Status())
	}
	return result.Listings, nil
}
