package query

import (
	"testing"

	"snowgate/internal/snow"
)

func sampleOf(n int) *PageResult {
	data := make([]snow.Record, n)
	for i := range data {
		data[i] = snow.Record{}
	}
	return &PageResult{Data: data, Total: n, CurrentPage: 1}
}

func TestHeuristicEstimatorMultipliers(t *testing.T) {
	e := NewHeuristicEstimator()

	// 5 records, wildcard state (x8), specific group (x1) = 40.
	if got := e.Estimate(sampleOf(5), "Service Desk", "all"); got != 40 {
		t.Fatalf("expected 40, got %d", got)
	}

	// 5 records, specific state (x3), specific group (x1) = 15.
	if got := e.Estimate(sampleOf(5), "Service Desk", "3"); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
}

func TestHeuristicEstimatorClamps(t *testing.T) {
	e := NewHeuristicEstimator()

	// Fully wildcarded: 5 * 8 * 4 = 160, inside the clamp.
	if got := e.Estimate(sampleOf(5), "all", "all"); got != 160 {
		t.Fatalf("expected 160, got %d", got)
	}

	// Empty sample clamps up to the floor.
	if got := e.Estimate(sampleOf(0), "Service Desk", "3"); got != 5 {
		t.Fatalf("expected floor 5, got %d", got)
	}

	// Oversized estimate clamps down to the ceiling.
	if got := e.Estimate(sampleOf(10), "all", "all"); got != 200 {
		t.Fatalf("expected ceiling 200, got %d", got)
	}
}

func TestHeuristicEstimatorPrefersUpstreamTotal(t *testing.T) {
	e := NewHeuristicEstimator()

	sample := sampleOf(5)
	sample.Total = 42
	sample.TotalPages = 9

	if got := e.Estimate(sample, "Service Desk", "3"); got != 42 {
		t.Fatalf("expected reported total 42, got %d", got)
	}
}

func TestHeuristicEstimatorDegradedSample(t *testing.T) {
	e := NewHeuristicEstimator()

	sample := &PageResult{Data: []snow.Record{}, Degraded: true}
	if got := e.Estimate(sample, "all", "all"); got != 5 {
		t.Fatalf("expected floor for degraded sample, got %d", got)
	}
}
