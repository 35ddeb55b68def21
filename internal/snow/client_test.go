package snow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:    srv.URL,
		Token:      "test-token",
		HTTPClient: srv.Client(),
	}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestClientQueryParsesTotal(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("sysparm_query")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("X-Total-Count", "42")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[{"number":"INC0001"},{"number":"INC0002"}]}`))
	})

	res, err := c.Query(context.Background(), TableQuery{
		Table:  "incident",
		Filter: "state=3",
		Limit:  5,
		Offset: 10,
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if gotPath != "/api/now/table/incident" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery != "state=3" {
		t.Fatalf("unexpected sysparm_query %q", gotQuery)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("unexpected Authorization header %q", gotAuth)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}
	if !res.HasTotal || res.Total != 42 {
		t.Fatalf("expected total 42, got %+v", res)
	}
}

func TestClientQueryMissingTotal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[{"number":"INC0001"}]}`))
	})

	res, err := c.Query(context.Background(), TableQuery{Table: "incident"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if res.HasTotal {
		t.Fatalf("expected HasTotal=false without header, got %+v", res)
	}
}

func TestClientQueryAuthFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"User Not Authenticated"}}`))
	})

	_, err := c.Query(context.Background(), TableQuery{Table: "incident"})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if IsTransient(err) {
		t.Fatalf("auth failures must not be retryable")
	}
}

func TestClientQueryBusinessError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid query","detail":"bad field"}}`))
	})

	_, err := c.Query(context.Background(), TableQuery{Table: "incident"})
	var bizErr *BusinessError
	if !errors.As(err, &bizErr) {
		t.Fatalf("expected BusinessError, got %v", err)
	}
	if bizErr.Body != "Invalid query: bad field" {
		t.Fatalf("unexpected error body %q", bizErr.Body)
	}
}

func TestClientQueryGatewayTimeoutIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	})

	_, err := c.Query(context.Background(), TableQuery{Table: "incident"})
	if err == nil {
		t.Fatalf("expected error on 504")
	}
	if !IsTransient(err) {
		t.Fatalf("504 should be retryable, got %v", err)
	}
}
