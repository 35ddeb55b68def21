package cache

import (
	"fmt"
	"strings"
	"time"
)

// Wildcard is the filter value meaning "no filtering on this field".
const Wildcard = "all"

// PageKey identifies one cached page of ticket results. Window is the
// active calendar month (YYYY-MM), so keys rotate naturally at month
// boundaries and stale months age out via TTL without explicit
// invalidation.
type PageKey struct {
	Entity   string // table name, e.g. "incident"
	Group    string // assignment group or Wildcard
	State    string // ticket state code or Wildcard
	Window   string // time-window label, YYYY-MM
	Page     int
	PageSize int
}

// String converts the structured key into the final string used in
// Redis/map lookups.
func (k PageKey) String() string {
	// page:<ENTITY>:<GROUP>:<STATE>:<WINDOW>:<PAGE>:<SIZE>
	return fmt.Sprintf("page:%s:%s:%s:%s:%d:%d",
		k.Entity, k.Group, k.State, k.Window, k.Page, k.PageSize)
}

// BuildPageKey normalizes the logical query parameters into a
// deterministic key. Identical parameters within the same calendar
// month always yield the same string.
func BuildPageKey(entity, group, state string, page, pageSize int, now time.Time) PageKey {
	return PageKey{
		Entity:   normalize(entity),
		Group:    normalizeFilter(group),
		State:    normalizeFilter(state),
		Window:   WindowLabel(now),
		Page:     page,
		PageSize: pageSize,
	}
}

// WindowLabel returns the time-window component of keys and stream
// names for the given instant.
func WindowLabel(now time.Time) string {
	return now.Format("2006-01")
}

// StreamName derives the bounded-log name for an entity within the
// current window.
func StreamName(entity string, now time.Time) string {
	return fmt.Sprintf("tickets:%s:%s", normalize(entity), WindowLabel(now))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeFilter collapses empty or wildcard-ish filter values to
// Wildcard so "", "all" and "ALL" share one key. Group names keep
// their spaces; colons are replaced to keep the key parseable.
func normalizeFilter(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, Wildcard) {
		return Wildcard
	}
	return strings.ReplaceAll(strings.ToLower(s), ":", "_")
}
