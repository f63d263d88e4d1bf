package batcher

import (
	"rpcclient/internal/jsonrpc"
)

// cycle holds the calls and results of one execution. A new cycle starts
// with BeginBatch or with every immediate-mode call.
type cycle struct {
	batch   bool
	records []*CallRecord
	results map[string]*Result // id key -> result
}

func newCycle(batch bool) *cycle {
	return &cycle{
		batch:   batch,
		results: make(map[string]*Result),
	}
}

// add registers a call and its result
func (c *cycle) add(rec *CallRecord, res *Result) {
	c.records = append(c.records, rec)
	c.results[rec.ID.Key()] = res
}

// result returns the result of a call
func (c *cycle) result(rec *CallRecord) *Result {
	return c.results[rec.ID.Key()]
}

// take removes and returns the accumulated calls
func (c *cycle) take() []*CallRecord {
	records := c.records
	c.records = nil
	return records
}

// isEmpty returns true if nothing is waiting for execution
func (c *cycle) isEmpty() bool {
	return c == nil || len(c.records) == 0
}

// pending returns the calls whose results are unresolved
func pending(c *cycle, records []*CallRecord) []*CallRecord {
	out := make([]*CallRecord, 0, len(records))
	for _, rec := range records {
		if res := c.result(rec); res != nil && res.Pending() {
			out = append(out, rec)
		}
	}
	return out
}

// requests converts calls to their wire form
func requests(records []*CallRecord) []*jsonrpc.Request {
	reqs := make([]*jsonrpc.Request, len(records))
	for i, rec := range records {
		reqs[i] = rec.Request()
	}
	return reqs
}
