package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rpcclient/internal/batcher"
)

func newCallCommand(opts *options) *cobra.Command {
	var (
		useCache bool
		cacheTTL int
		headers  []string
	)

	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Execute a single call and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params json.RawMessage
			if len(args) == 2 {
				params = json.RawMessage(args[1])
				if !json.Valid(params) {
					return fmt.Errorf("params are not valid JSON")
				}
			}

			parsed, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			a, err := setup(opts)
			if err != nil {
				return err
			}
			defer a.close(opts)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for _, h := range parsed {
				a.coordinator.SetHeader(h.name, batcher.Literal(h.value))
			}
			if useCache || cmd.Flags().Changed("cache-ttl") {
				a.coordinator.WithCache(cacheDuration(cacheTTL))
			}

			res := a.coordinator.Invoke(ctx, args[0], params)
			if err := writeResult(cmd.OutOrStdout(), args[0], res); err != nil {
				return err
			}
			if !res.Success() {
				return res.Err()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&useCache, "cache", false, "serve from and store into the cache")
	cmd.Flags().IntVar(&cacheTTL, "cache-ttl", -1, "cache lifetime in minutes (0 expires immediately, negative uses the cache default); implies --cache")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header as Name=Value (repeatable)")
	return cmd
}

func newBatchCommand(opts *options) *cobra.Command {
	var headers []string

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Execute the calls listed in a YAML or JSON file as one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			calls, err := loadBatchFile(args[0])
			if err != nil {
				return err
			}
			parsed, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			a, err := setup(opts)
			if err != nil {
				return err
			}
			defer a.close(opts)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runBatch(ctx, a.coordinator, calls, parsed, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header as Name=Value (repeatable)")
	return cmd
}

// runBatch issues calls as one batch and writes a result line per call
func runBatch(ctx context.Context, c *batcher.Coordinator, calls []batchCall, headers []headerFlag, w io.Writer) error {
	for _, h := range headers {
		c.SetHeader(h.name, batcher.Literal(h.value))
	}

	c.BeginBatch()
	results := make([]*batcher.Result, len(calls))
	for i, call := range calls {
		if call.Cache || call.CacheTTL != nil {
			ttl := -1
			if call.CacheTTL != nil {
				ttl = *call.CacheTTL
			}
			c.WithCache(cacheDuration(ttl))
		}
		results[i] = c.Invoke(ctx, call.Method, call.Params)
	}

	execErr := c.Execute(ctx)

	for i, res := range results {
		if err := writeResult(w, calls[i].Method, res); err != nil {
			return err
		}
	}
	return execErr
}

// resultLine is the printed form of a call outcome
type resultLine struct {
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   interface{}     `json:"error,omitempty"`
}

func writeResult(w io.Writer, method string, res *batcher.Result) error {
	line := resultLine{
		ID:      res.ID().String(),
		Method:  method,
		Success: res.Success(),
		Result:  res.Data(),
	}
	if e := res.Err(); e != nil {
		line.Error = e
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
