package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"marktwatch/server/internal/database"
	"marktwatch/server/internal/reconciler"
	"marktwatch/server/internal/valuation"
)

// Scheduler manages periodic reconciliation and valuation runs. Jobs run
// sequentially behind jobMutex; a slow reconciliation defers the next tick
// instead of overlapping it.
type Scheduler struct {
	reconciler *reconciler.Reconciler
	engine     *valuation.Engine
	store      *database.Store
	cache      *valuation.Cache
	logger     *logrus.Logger
	searches   []string
	window     time.Duration
	stopChan   chan struct{}
	wg         sync.WaitGroup
	jobMutex   sync.Mutex
	startupRun bool
}

func New(rec *reconciler.Reconciler, engine *valuation.Engine, store *database.Store, cache *valuation.Cache, searches []string, window time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		reconciler: rec,
		engine:     engine,
		store:      store,
		cache:      cache,
		logger:     logger,
		searches:   searches,
		window:     window,
		stopChan:   make(chan struct{}),
		startupRun: true,
	}
}

// Start begins the scheduled tasks.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts the ticker loop and waits for the current job to finish.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run startup jobs in a separate goroutine so the ticker loop starts
	// immediately.
	go func() {
		s.jobMutex.Lock()
		defer s.jobMutex.Unlock()
		s.logger.Info("Running startup reconciliation")
		s.reconcileAll()
		s.refreshValuations()
		s.startupRun = false
		s.logger.Info("Startup jobs completed")
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.C:
			s.executeScheduledJobs(t)
		}
	}
}

func (s *Scheduler) executeScheduledJobs(t time.Time) {
	if s.startupRun {
		s.logger.Debug("Skipping scheduled jobs while startup is in progress")
		return
	}

	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	// Hourly reconciliation of every configured search
	if t.Minute() == 0 {
		s.logger.Info("Starting scheduled reconciliation jobs")
		s.reconcileAll()
		s.logger.Info("Completed scheduled reconciliation jobs")
	}

	// Valuation refresh at midnight
	if t.Hour() == 0 && t.Minute() == 0 {
		s.logger.Info("Starting scheduled valuation refresh")
		s.refreshValuations()
		s.logger.Info("Completed scheduled valuation refresh")
	}
}

func (s *Scheduler) reconcileAll() {
	for _, query := range s.searches {
		result, err := s.reconciler.Run(context.Background(), query)
		if err != nil {
			s.logger.WithError(err).WithField("query", query).Error("Reconciliation run failed")
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"query":      query,
			"fetched":    result.Fetched,
			"newly_sold": len(result.NewlySold),
		}).Info("Reconciliation run succeeded")
	}
}

func (s *Scheduler) refreshValuations() {
	now := time.Now().UTC()
	records, err := s.store.QueryWindow(now.Add(-s.window))
	if err != nil {
		s.logger.WithError(err).Error("Failed to load listings for valuation")
		return
	}
	results := s.engine.Analyze(records, now)
	s.cache.Set(results, now)
	s.logger.WithField("products", len(results)).Info("Valuation report refreshed")
}
