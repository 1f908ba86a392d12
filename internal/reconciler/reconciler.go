// Package reconciler drives the listing lifecycle state machine. One run
// fetches every result page of a search, merges the batch into the store and
// infers sales from ids that stopped appearing.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"marktwatch/server/internal/database"
	"marktwatch/server/internal/models"
	"marktwatch/server/internal/queue"
	"marktwatch/server/internal/source"
)

type Reconciler struct {
	store      *database.Store
	src        source.Source
	soldQueue  *queue.SoldQueue
	logger     *logrus.Logger
	maxPages   int
	maxRetries int
	retryDelay time.Duration
}

type Options struct {
	MaxPages   int
	MaxRetries int
	RetryDelay time.Duration
}

// RunResult summarizes one reconciliation run.
type RunResult struct {
	Query     string   `json:"query"`
	Fetched   int      `json:"fetched"`
	NewlySold []string `json:"newly_sold"`
}

func New(store *database.Store, src source.Source, soldQueue *queue.SoldQueue, opts Options, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		src:        src,
		soldQueue:  soldQueue,
		logger:     logger,
		maxPages:   opts.MaxPages,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// Run executes one reconciliation run for a search query: fetch all pages,
// upsert the deduplicated batch and sweep this query's missing listings to
// sold, all in one store transaction. The sold-absence inference is a
// heuristic: a listing hidden by a pagination gap gets marked sold and flips
// back to active on the next successful run.
func (r *Reconciler) Run(ctx context.Context, searchQuery string) (*RunResult, error) {
	raw, err := source.FetchAll(ctx, r.src, searchQuery, r.maxPages, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings for %q: %w", searchQuery, err)
	}

	now := time.Now().UTC()
	seenIDs := make(map[string]struct{}, len(raw))
	batch := make([]*models.Listing, 0, len(raw))
	for _, rl := range raw {
		seenIDs[rl.ID] = struct{}{}
		batch = append(batch, &models.Listing{
			ID:          rl.ID,
			SearchQuery: searchQuery,
			Title:       rl.Title,
			Price:       rl.Price,
			HighestBid:  rl.HighestBid,
			StartDate:   rl.StartDate,
			URL:         rl.URL,
			LastSeen:    now,
		})
	}

	sold, err := r.commitWithRetry(searchQuery, batch, seenIDs)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"query":      searchQuery,
		"fetched":    len(batch),
		"newly_sold": len(sold),
	}).Info("Reconciliation run completed")

	if len(sold) > 0 && r.soldQueue != nil {
		listings, err := r.store.GetByIDs(sold)
		if err != nil {
			r.logger.WithError(err).Error("Failed to load sold listings for notification")
		} else {
			ptrs := make([]*models.Listing, len(listings))
			for i := range listings {
				ptrs[i] = &listings[i]
			}
			if err := r.soldQueue.Push(ptrs); err != nil {
				r.logger.WithError(err).Error("Failed to enqueue sold batch")
			}
		}
	}

	return &RunResult{Query: searchQuery, Fetched: len(batch), NewlySold: sold}, nil
}

// commitWithRetry retries the whole store transaction on failure. A failed
// attempt leaves no partial state, so retrying wholesale is safe.
func (r *Reconciler) commitWithRetry(searchQuery string, batch []*models.Listing, seenIDs map[string]struct{}) ([]string, error) {
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Infof("Retrying reconciliation commit, attempt %d of %d", attempt, r.maxRetries)
			time.Sleep(r.retryDelay)
		}

		var sold []string
		sold, err = r.store.Reconcile(searchQuery, batch, seenIDs)
		if err == nil {
			return sold, nil
		}
		r.logger.Errorf("Reconciliation commit failed: %v", err)
	}
	return nil, fmt.Errorf("failed to commit reconciliation after %d attempts: %w", r.maxRetries, err)
}
