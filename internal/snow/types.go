package snow

import "context"

// Record is a single row returned by the table API. ServiceNow returns
// loosely typed JSON objects, so values stay as interface{} until a
// consumer needs a concrete field.
type Record map[string]any

// TableQuery describes one page of a table read.
type TableQuery struct {
	Table  string   // e.g. "incident", "change_task", "sc_task"
	Filter string   // encoded sysparm_query expression
	Fields []string // sysparm_fields selection; empty means all fields
	Limit  int      // sysparm_limit
	Offset int      // sysparm_offset
}

// TableResult is the decoded response for one TableQuery.
// HasTotal is false when the upstream omitted the X-Total-Count header,
// in which case Total is meaningless and callers must fall back to
// len(Records).
type TableResult struct {
	Records  []Record
	Total    int
	HasTotal bool
}

// Fetcher is the read surface of the table API. Implemented by *Client;
// tests substitute fakes.
type Fetcher interface {
	Query(ctx context.Context, q TableQuery) (*TableResult, error)
}
