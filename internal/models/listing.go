package models

import (
	"encoding/json"
	"math"
	"time"
)

// Listing lifecycle statuses. No status is terminal: a sold listing that
// reappears in a search is flipped back to active on the next upsert.
const (
	StatusNew    = "new"
	StatusActive = "active"
	StatusSold   = "sold"
)

// Listing is one observed marketplace item. Rows are created on first
// observation of an id and never deleted; disappearance is recorded by the
// sold status so the full history stays available for valuation.
type Listing struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	SearchQuery string     `json:"search_query" gorm:"index"`
	Title       string     `json:"title"`
	Price       *float64   `json:"price"`
	FinalPrice  *float64   `json:"final_price"`
	HighestBid  *float64   `json:"highest_bid"`
	Status      string     `json:"status" gorm:"index"`
	StartDate   *time.Time `json:"start_date"`
	LastSeen    time.Time  `json:"last_seen" gorm:"index"`
	URL         string     `json:"url"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RawListing is the attribute record produced by a listing source for one
// item on a search results page. The source is responsible for parsing; the
// core only consumes these fields.
type RawListing struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Price      *float64   `json:"price"`
	HighestBid *float64   `json:"highest_bid"`
	StartDate  *time.Time `json:"start_date"`
	URL        string     `json:"url"`
	Commercial bool       `json:"commercial"`
}

// ProductRule maps a canonical product key to the match patterns used for
// fuzzy title matching. Rule order matters: score ties go to the rule
// declared first.
type ProductRule struct {
	Key      string   `json:"key"`
	Patterns []string `json:"patterns"`
}

// RuleSet is the matcher configuration loaded from the product rules file.
type RuleSet struct {
	Threshold int           `json:"threshold"`
	Rules     []ProductRule `json:"rules"`
}

// ValuationResult holds the robust price statistics for one product key.
// TimeToDisappear is NaN when no listing in the sample had both a start date
// and a last-seen timestamp.
type ValuationResult struct {
	P25             float64 `json:"p25"`
	Median          float64 `json:"median"`
	P75             float64 `json:"p75"`
	TimeToDisappear float64 `json:"time_to_disappear"`
}

// MarshalJSON emits null for an undefined time-to-disappear, since JSON has
// no NaN and dashboards treat null as "unknown".
func (v ValuationResult) MarshalJSON() ([]byte, error) {
	type result struct {
		P25             float64  `json:"p25"`
		Median          float64  `json:"median"`
		P75             float64  `json:"p75"`
		TimeToDisappear *float64 `json:"time_to_disappear"`
	}
	out := result{P25: v.P25, Median: v.Median, P75: v.P75}
	if !math.IsNaN(v.TimeToDisappear) {
		out.TimeToDisappear = &v.TimeToDisappear
	}
	return json.Marshal(out)
}
