// Package query implements the paginated, TTL-cached read path between
// the dashboard and the ticket upstream. A read resolves as: cache
// key → store lookup → on miss, a single-flighted upstream fetch
// admitted through the priority gate and wrapped in bounded retries →
// store write-through plus a best-effort stream event.
package query

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"snowgate/internal/cache"
	"snowgate/internal/limiter"
	"snowgate/internal/metrics"
	"snowgate/internal/snow"
	"snowgate/internal/stream"
)

// monthFilter scopes every query to the current calendar month; the
// cache key carries the same window label so results rotate with it.
const monthFilter = "sys_created_onONThis month@javascript:gs.beginningOfThisMonth()@javascript:gs.endOfThisMonth()"

// TTLs hold per-query-shape cache lifetimes.
type TTLs struct {
	Page       time.Duration // filtered interactive page queries
	Unfiltered time.Duration // group and state both wildcards
	Search     time.Duration // cross-table aggregates
}

func DefaultTTLs() TTLs {
	return TTLs{
		Page:       120 * time.Second,
		Unfiltered: 300 * time.Second,
		Search:     600 * time.Second,
	}
}

type Config struct {
	// Fields selected from the upstream; empty selects everything.
	Fields []string
	// SearchTables are the tables merged by Search.
	SearchTables []string
	// StreamMaxLen caps each bounded stream. Default 1000.
	StreamMaxLen int
	TTLs         TTLs
}

func (c Config) withDefaults() Config {
	if c.StreamMaxLen <= 0 {
		c.StreamMaxLen = 1000
	}
	if len(c.SearchTables) == 0 {
		c.SearchTables = []string{"incident", "change_task", "sc_task"}
	}
	if c.TTLs == (TTLs{}) {
		c.TTLs = DefaultTTLs()
	}
	return c
}

// Service is the resilient query core.
type Service struct {
	store     cache.Store
	events    stream.Log
	gate      *limiter.Gate
	fetcher   snow.Fetcher
	retry     *snow.Retryer
	estimator Estimator
	cfg       Config
	flight    singleflight.Group
	now       func() time.Time
	logger    *zap.Logger
}

func New(
	store cache.Store,
	events stream.Log,
	gate *limiter.Gate,
	fetcher snow.Fetcher,
	retry *snow.Retryer,
	estimator Estimator,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if estimator == nil {
		estimator = NewHeuristicEstimator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		events:    events,
		gate:      gate,
		fetcher:   fetcher,
		retry:     retry,
		estimator: estimator,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		logger:    logger.Named("query"),
	}
}

// Paginated serves one page, from cache when possible. Transient
// upstream exhaustion degrades to an empty page; auth and business
// errors propagate.
func (s *Service) Paginated(ctx context.Context, req Request) (*PageResult, error) {
	req = req.normalized()
	key := cache.BuildPageKey(req.Entity, req.Group, req.State, req.Page, req.PageSize, s.now())

	if res, ok := s.lookup(ctx, key.String()); ok {
		return res, nil
	}

	// Concurrent misses on one key share a single upstream fetch. The
	// fetch deliberately outlives the triggering caller: a completed
	// page is cached and benefits whoever asks next.
	v, err, _ := s.flight.Do(key.String(), func() (any, error) {
		return s.fetchAndStore(context.WithoutCancel(ctx), key, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PageResult), nil
}

func (s *Service) lookup(ctx context.Context, key string) (*PageResult, bool) {
	raw, hit, err := s.store.Get(ctx, key)
	if err != nil {
		// Cache is best-effort; log and treat as miss.
		s.logger.Warn("cache_get_error", zap.String("cache_key", key), zap.Error(err))
		return nil, false
	}
	if !hit {
		return nil, false
	}

	var res PageResult
	if err := json.Unmarshal(raw, &res); err != nil {
		s.logger.Warn("cache_unmarshal_error", zap.String("cache_key", key), zap.Error(err))
		return nil, false
	}
	return &res, true
}

func (s *Service) fetchAndStore(ctx context.Context, key cache.PageKey, req Request) (*PageResult, error) {
	tq := snow.TableQuery{
		Table:  key.Entity,
		Filter: buildFilter(req.Group, req.State),
		Fields: s.cfg.Fields,
		Limit:  key.PageSize,
		Offset: (key.Page - 1) * key.PageSize,
	}

	prio := limiter.High
	if req.Background {
		prio = limiter.Default
	}

	var fetched *snow.TableResult
	err := s.retry.Do(ctx, "table_query", func(ctx context.Context) error {
		// Admission happens per attempt: a retried attempt queues
		// again rather than holding its slot through the backoff.
		return s.gate.Do(ctx, prio, func(ctx context.Context) error {
			res, err := s.fetcher.Query(ctx, tq)
			if err != nil {
				return err
			}
			fetched = res
			return nil
		})
	})
	if err != nil {
		if !snow.IsTransient(err) {
			return nil, err
		}
		metrics.DegradedResponsesTotal.Inc()
		s.logger.Warn("upstream exhausted, serving degraded page",
			zap.String("cache_key", key.String()),
			zap.Error(err),
		)
		return &PageResult{
			Data:        []snow.Record{},
			CurrentPage: key.Page,
			Degraded:    true,
		}, nil
	}

	res := s.buildPage(key, fetched)

	if raw, err := json.Marshal(res); err != nil {
		s.logger.Warn("cache_marshal_error", zap.String("cache_key", key.String()), zap.Error(err))
	} else if err := s.store.Set(ctx, key.String(), raw, s.ttlFor(key)); err != nil {
		s.logger.Warn("cache_set_error", zap.String("cache_key", key.String()), zap.Error(err))
	}

	s.emit(ctx, key, res)

	return res, nil
}

// buildPage annotates records and derives the pagination fields.
func (s *Service) buildPage(key cache.PageKey, fetched *snow.TableResult) *PageResult {
	records := fetched.Records
	if records == nil {
		records = []snow.Record{}
	}
	// Denormalize the source so mixed-table consumers can tell rows
	// apart.
	for _, r := range records {
		r["source_table"] = key.Entity
		r["group_label"] = key.Group
	}

	res := &PageResult{
		Data:        records,
		CurrentPage: key.Page,
	}
	if fetched.HasTotal {
		res.Total = fetched.Total
		res.TotalPages = pageCount(res.Total, key.PageSize)
		res.HasMore = key.Page < res.TotalPages
	} else {
		// No reliable total: report what we can see and never claim
		// a next page.
		res.Total = len(records)
		res.TotalPages = pageCount(res.Total, key.PageSize)
		res.HasMore = false
	}
	return res
}

// emit appends a stream event on a best-effort basis; a failure is
// logged and never affects the response.
func (s *Service) emit(ctx context.Context, key cache.PageKey, res *PageResult) {
	name := cache.StreamName(key.Entity, s.now())
	ev := stream.Event{
		Entity:    key.Entity,
		Group:     key.Group,
		State:     key.State,
		Page:      key.Page,
		PageSize:  key.PageSize,
		Total:     res.Total,
		DataCount: len(res.Data),
		CacheKey:  key.String(),
		Timestamp: s.now(),
	}
	if err := s.events.Append(ctx, name, ev, s.cfg.StreamMaxLen); err != nil {
		metrics.StreamEmitFailuresTotal.Inc()
		s.logger.Warn("stream_append_error", zap.String("stream", name), zap.Error(err))
	}
}

// Search serves one merged page across the configured tables, cached
// as its own aggregate entry. Tables are fetched through Paginated, so
// warm per-table pages are reused.
func (s *Service) Search(ctx context.Context, group, state string, page, pageSize int) (*PageResult, error) {
	req := Request{Entity: "search", Group: group, State: state, Page: page, PageSize: pageSize}.normalized()
	key := cache.BuildPageKey(req.Entity, req.Group, req.State, req.Page, req.PageSize, s.now())

	if res, ok := s.lookup(ctx, key.String()); ok {
		return res, nil
	}

	merged := &PageResult{Data: []snow.Record{}, CurrentPage: req.Page}
	for _, table := range s.cfg.SearchTables {
		part, err := s.Paginated(ctx, Request{
			Entity:   table,
			Group:    req.Group,
			State:    req.State,
			Page:     req.Page,
			PageSize: req.PageSize,
		})
		if err != nil {
			return nil, err
		}
		merged.Data = append(merged.Data, part.Data...)
		merged.Total += part.Total
		merged.Degraded = merged.Degraded || part.Degraded
	}
	merged.TotalPages = pageCount(merged.Total, req.PageSize)
	merged.HasMore = req.Page < merged.TotalPages

	if !merged.Degraded {
		if raw, err := json.Marshal(merged); err != nil {
			s.logger.Warn("cache_marshal_error", zap.String("cache_key", key.String()), zap.Error(err))
		} else if err := s.store.Set(ctx, key.String(), raw, s.cfg.TTLs.Search); err != nil {
			s.logger.Warn("cache_set_error", zap.String("cache_key", key.String()), zap.Error(err))
		}
	}

	return merged, nil
}

// EstimateCount derives an approximate match count from a small sample
// page. Best effort by construction; see Estimator.
func (s *Service) EstimateCount(ctx context.Context, entity, group, state string) (int, error) {
	sample, err := s.Paginated(ctx, Request{
		Entity:   entity,
		Group:    group,
		State:    state,
		Page:     1,
		PageSize: sampleSize,
	})
	if err != nil {
		return 0, err
	}
	return s.estimator.Estimate(sample, group, state), nil
}

func (s *Service) ttlFor(key cache.PageKey) time.Duration {
	switch {
	case key.Entity == "search":
		return s.cfg.TTLs.Search
	case key.Group == cache.Wildcard && key.State == cache.Wildcard:
		return s.cfg.TTLs.Unfiltered
	default:
		return s.cfg.TTLs.Page
	}
}

// buildFilter conjoins the month window with the optional state and
// group terms. Wildcards skip their term entirely.
func buildFilter(group, state string) string {
	var b strings.Builder
	b.WriteString(monthFilter)
	if state = strings.TrimSpace(state); state != "" && !strings.EqualFold(state, cache.Wildcard) {
		b.WriteString("^state=")
		b.WriteString(state)
	}
	if group = strings.TrimSpace(group); group != "" && !strings.EqualFold(group, cache.Wildcard) {
		b.WriteString("^assignment_group.name=")
		b.WriteString(group)
	}
	return b.String()
}

func pageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
