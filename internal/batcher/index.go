// Package batcher turns logical JSON-RPC calls into network exchanges.
//
// A Coordinator accumulates calls, consults a cache adapter, sends the
// remaining calls in one exchange (a single object, or an array in batch
// mode) and routes every reply back to its Result by correlation id.
//
// Immediate mode:
//
//	res := c.SelectService("billing").Invoke(ctx, "ping", nil)
//	if res.Success() { ... res.Data() ... }
//
// Batch mode:
//
//	c.BeginBatch()
//	a := c.WithCache(cache.DefaultTTL).Invoke(ctx, "rates", []string{"EUR"})
//	b := c.Invoke(ctx, "divide", map[string]int{"a": 1, "b": 0})
//	err := c.Execute(ctx) // cycle-wide failures only; per-call errors live in a and b
//
// A Coordinator is not safe for concurrent use; use one per goroutine.
package batcher
