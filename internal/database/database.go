package database

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"marktwatch/server/internal/models"
)

// Store is the durable listing table. All mutations run inside a gorm
// transaction so a failed batch leaves no partial status transitions behind.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent reconciliation runs.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) RunMigrations() error {
	if err := s.db.AutoMigrate(&models.Listing{}); err != nil {
		return fmt.Errorf("failed to migrate listings table: %w", err)
	}
	return nil
}

// UpsertBatch inserts unknown listings with status new and refreshes known
// ones, forcing status back to active. Re-observing a sold listing means it
// was relisted, so the stale final price is cleared along with the status.
// The whole batch commits atomically.
func (s *Store) UpsertBatch(records []*models.Listing) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return upsertBatch(tx, records)
	})
}

func upsertBatch(tx *gorm.DB, records []*models.Listing) error {
	now := time.Now().UTC()
	for _, rec := range records {
		if rec.ID == "" {
			return errors.New("listing id must not be empty")
		}
		if rec.LastSeen.IsZero() {
			rec.LastSeen = now
		}

		var existing models.Listing
		err := tx.Where("id = ?", rec.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec.Status = models.StatusNew
			rec.FinalPrice = nil
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("failed to insert listing %s: %w", rec.ID, err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up listing %s: %w", rec.ID, err)
		default:
			lastSeen := rec.LastSeen
			if lastSeen.Before(existing.LastSeen) {
				// last_seen never moves backwards
				lastSeen = existing.LastSeen
			}
			updates := map[string]interface{}{
				"search_query": rec.SearchQuery,
				"title":        rec.Title,
				"price":        rec.Price,
				"highest_bid":  rec.HighestBid,
				"url":          rec.URL,
				"status":       models.StatusActive,
				"final_price":  nil,
				"last_seen":    lastSeen,
			}
			if existing.StartDate == nil && rec.StartDate != nil {
				updates["start_date"] = rec.StartDate
			}
			if err := tx.Model(&models.Listing{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update listing %s: %w", rec.ID, err)
			}
		}
	}
	return nil
}

// MarkMissingAsSold transitions every new/active listing of the given search
// query that is absent from seenIDs to sold, preserving the last known ask as
// final_price. It returns the ids that transitioned. The sweep is scoped to
// one query so listings discovered under other searches are never touched.
func (s *Store) MarkMissingAsSold(searchQuery string, seenIDs map[string]struct{}) ([]string, error) {
	var sold []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		sold, err = markMissingAsSold(tx, searchQuery, seenIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sold, nil
}

func markMissingAsSold(tx *gorm.DB, searchQuery string, seenIDs map[string]struct{}) ([]string, error) {
	var candidates []models.Listing
	err := tx.
		Where("search_query = ? AND status IN ?", searchQuery, []string{models.StatusNew, models.StatusActive}).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load open listings for %q: %w", searchQuery, err)
	}

	var sold []string
	for _, listing := range candidates {
		if _, ok := seenIDs[listing.ID]; ok {
			continue
		}
		updates := map[string]interface{}{
			"status":      models.StatusSold,
			"final_price": listing.Price,
			"price":       nil,
		}
		if err := tx.Model(&models.Listing{}).Where("id = ?", listing.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to mark listing %s as sold: %w", listing.ID, err)
		}
		sold = append(sold, listing.ID)
	}
	sort.Strings(sold)
	return sold, nil
}

// Reconcile applies one full reconciliation run in a single transaction:
// upsert the fetched batch, then sweep the query's missing listings to sold.
// Readers observe either the pre-run or the post-run state, never a half
// applied one.
func (s *Store) Reconcile(searchQuery string, records []*models.Listing, seenIDs map[string]struct{}) ([]string, error) {
	var sold []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := upsertBatch(tx, records); err != nil {
			return err
		}
		var err error
		sold, err = markMissingAsSold(tx, searchQuery, seenIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sold, nil
}

// QueryWindow returns all listings last seen at or after the cutoff,
// regardless of status. This is the valuation engine's input.
func (s *Store) QueryWindow(since time.Time) ([]models.Listing, error) {
	var listings []models.Listing
	err := s.db.
		Where("last_seen >= ?", since).
		Order("last_seen DESC").
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query listing window: %w", err)
	}
	return listings, nil
}

// GetByIDs returns the listings for the given ids, in id order.
func (s *Store) GetByIDs(ids []string) ([]models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var listings []models.Listing
	err := s.db.Where("id IN ?", ids).Order("id").Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load listings by id: %w", err)
	}
	return listings, nil
}

// GetRecentSales returns the most recently disappeared listings.
func (s *Store) GetRecentSales(limit int) ([]models.Listing, error) {
	var listings []models.Listing
	err := s.db.
		Where("status = ?", models.StatusSold).
		Order("last_seen DESC").
		Limit(limit).
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sales: %w", err)
	}
	return listings, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
