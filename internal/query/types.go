package query

import "snowgate/internal/snow"

// PageResult is one page of ticket records as served to the dashboard.
//
// Degraded marks a page synthesized after the upstream stayed
// unreachable through the whole retry budget: the data is empty but
// the request did not fail, so the UI can render "no data" instead of
// an error banner while still being able to tell the two apart.
type PageResult struct {
	Data        []snow.Record `json:"data"`
	Total       int           `json:"total"`
	CurrentPage int           `json:"current_page"`
	TotalPages  int           `json:"total_pages"`
	HasMore     bool          `json:"has_more"`
	Degraded    bool          `json:"degraded,omitempty"`
}

// Request is the logical query shape: one entity table, optional group
// and state filters ("all" or empty means unfiltered), and a page
// window. The active calendar month is implied, not passed.
type Request struct {
	Entity   string
	Group    string
	State    string
	Page     int
	PageSize int

	// Background requests (cache warming) queue in the limiter's
	// default lane; interactive requests take the high lane.
	Background bool
}

func (r Request) normalized() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 10
	}
	return r
}
