// Package stream provides the bounded append-only side channel the
// query core publishes page-fetch events to. Consumers are live
// dashboards; the core itself never reads the log back, and append
// failures must never affect the response path.
package stream

import (
	"context"
	"time"
)

// Event is one immutable record describing a completed upstream page
// fetch.
type Event struct {
	Entity    string    `json:"entity"`
	Group     string    `json:"group"`
	State     string    `json:"state"`
	Page      int       `json:"page"`
	PageSize  int       `json:"page_size"`
	Total     int       `json:"total"`
	DataCount int       `json:"data_count"`
	CacheKey  string    `json:"cache_key"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is a capacity-bounded append target. Once a stream holds maxLen
// events the oldest are evicted.
type Log interface {
	Append(ctx context.Context, name string, ev Event, maxLen int) error
}
