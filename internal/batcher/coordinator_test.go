package batcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpcclient/internal/cache"
	"rpcclient/internal/config"
	"rpcclient/internal/header"
	"rpcclient/internal/jsonrpc"
	"rpcclient/internal/metrics"
	"rpcclient/internal/transport"
)

type sentExchange struct {
	service  string
	settings *config.ServiceConfig
	payload  transport.Payload
	headers  []transport.Header
}

// fakeTransport records exchanges and answers them with respond
type fakeTransport struct {
	sent    []sentExchange
	respond func(payload transport.Payload) (*jsonrpc.Reply, error)
}

func (f *fakeTransport) Send(_ context.Context, service string, settings *config.ServiceConfig, payload transport.Payload, headers []transport.Header) (*jsonrpc.Reply, error) {
	f.sent = append(f.sent, sentExchange{
		service:  service,
		settings: settings,
		payload:  payload,
		headers:  headers,
	})
	if f.respond == nil {
		return echoCalculator(payload)
	}
	return f.respond(payload)
}

// echoCalculator answers ping, divide and echo
func echoCalculator(payload transport.Payload) (*jsonrpc.Reply, error) {
	reply := &jsonrpc.Reply{Batch: payload.Batch}
	for _, req := range payload.Requests {
		reply.Responses = append(reply.Responses, calculate(req))
	}
	return reply, nil
}

func calculate(req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case "ping":
		return jsonrpc.NewResponseRaw(req.ID, json.RawMessage(`"pong"`))
	case "divide":
		var p struct{ A, B float64 }
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, ""))
		}
		if p.B == 0 {
			return jsonrpc.NewErrorResponse(req.ID, &jsonrpc.Error{Code: jsonrpc.CodeAppValidationError, Message: "Division by zero"})
		}
		return jsonrpc.NewResponseRaw(req.ID, json.RawMessage(fmt.Sprintf("%g", p.A/p.B)))
	case "echo":
		params := req.Params
		if params == nil {
			params = json.RawMessage("null")
		}
		return jsonrpc.NewResponseRaw(req.ID, params)
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, ""))
	}
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultService: "calc",
		Services: []config.ServiceConfig{
			{
				Name:        "calc",
				Host:        "http://calc.test/rpc",
				AuthHeader:  "X-Api-Key",
				AuthKey:     "secret",
				ClientLabel: "tests",
				Headers: []config.HeaderConfig{
					{Name: "X-Tenant", Value: "acme"},
				},
			},
			{
				Name:    "signed",
				Host:    "http://signed.test/rpc",
				AuthKey: "signing-key",
				Headers: []config.HeaderConfig{
					{Name: "X-Signature", Sign: config.SignHMACSHA3},
				},
			},
			{Name: "nohost"},
		},
	}
}

func sequentialIDs() func() jsonrpc.ID {
	n := 0
	return func() jsonrpc.ID {
		n++
		return jsonrpc.NewIDString(fmt.Sprintf("call-%d", n))
	}
}

func newTestCoordinator(tr transport.Transport, adapter cache.Adapter, opts ...Option) *Coordinator {
	opts = append([]Option{WithIDGenerator(sequentialIDs())}, opts...)
	return New(testConfig(), tr, adapter, zerolog.Nop(), opts...)
}

func headerValue(headers []transport.Header, name string) (string, bool) {
	for _, h := range headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

func TestInvoke_ImmediatePing(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)

	res := c.Invoke(context.Background(), "ping", map[string]interface{}{})

	require.Len(t, tr.sent, 1)
	assert.False(t, tr.sent[0].payload.Batch)
	require.Len(t, tr.sent[0].payload.Requests, 1)
	assert.Equal(t, "ping", tr.sent[0].payload.Requests[0].Method)
	assert.Equal(t, "calc", tr.sent[0].service)

	assert.True(t, res.Success())
	assert.Equal(t, StateSucceeded, res.State())
	var out string
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, "pong", out)
}

func TestInvoke_DivideByZero(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)

	res := c.Invoke(context.Background(), "divide", map[string]int{"a": 1, "b": 0})

	require.Len(t, tr.sent, 1)
	assert.False(t, res.Success())
	require.NotNil(t, res.Err())
	assert.Equal(t, jsonrpc.CodeAppValidationError, res.Err().Code)
	assert.Equal(t, "Division by zero", res.Err().Message)

	var out float64
	err := res.Decode(&out)
	var rpcErr *jsonrpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, jsonrpc.CodeAppValidationError, rpcErr.Code)
}

func TestInvoke_EachImmediateCallDispatches(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)

	for i := 0; i < 3; i++ {
		res := c.Invoke(context.Background(), "ping", nil)
		assert.True(t, res.Success())
	}
	assert.Len(t, tr.sent, 3)
}

func TestBatch_OneDispatchForAllCalls(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	assert.True(t, c.Batching())
	results := []*Result{
		c.Invoke(ctx, "ping", nil),
		c.Invoke(ctx, "divide", map[string]int{"a": 6, "b": 3}),
		c.Invoke(ctx, "echo", []string{"x"}),
	}
	for _, res := range results {
		assert.True(t, res.Pending(), "calls are deferred until execute")
	}
	assert.Empty(t, tr.sent)

	require.NoError(t, c.Execute(ctx))

	require.Len(t, tr.sent, 1)
	assert.True(t, tr.sent[0].payload.Batch)
	assert.Len(t, tr.sent[0].payload.Requests, 3)
	for _, res := range results {
		assert.True(t, res.Success())
	}
	assert.JSONEq(t, `2`, string(results[1].Data()))
	assert.JSONEq(t, `["x"]`, string(results[2].Data()))
	assert.False(t, c.Batching(), "batch mode ends after execute")
}

func TestBatch_SingleCallStillSentAsArray(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	c.Invoke(ctx, "ping", nil)
	require.NoError(t, c.Execute(ctx))

	require.Len(t, tr.sent, 1)
	body, err := tr.sent[0].payload.Bytes()
	require.NoError(t, err)
	assert.Equal(t, byte('['), body[0])
}

func TestBatch_ReorderedReplies(t *testing.T) {
	tr := &fakeTransport{
		respond: func(payload transport.Payload) (*jsonrpc.Reply, error) {
			reply, _ := echoCalculator(payload)
			for i, j := 0, len(reply.Responses)-1; i < j; i, j = i+1, j-1 {
				reply.Responses[i], reply.Responses[j] = reply.Responses[j], reply.Responses[i]
			}
			return reply, nil
		},
	}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	first := c.Invoke(ctx, "echo", "first")
	second := c.Invoke(ctx, "echo", "second")
	require.NoError(t, c.Execute(ctx))

	assert.JSONEq(t, `"first"`, string(first.Data()))
	assert.JSONEq(t, `"second"`, string(second.Data()))
}

func TestBatch_PartialFailure(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	ok1 := c.Invoke(ctx, "divide", map[string]int{"a": 4, "b": 2})
	bad := c.Invoke(ctx, "divide", map[string]int{"a": 1, "b": 0})
	ok2 := c.Invoke(ctx, "ping", nil)

	require.NoError(t, c.Execute(ctx), "per-call errors are not cycle failures")

	assert.True(t, ok1.Success())
	assert.True(t, ok2.Success())
	assert.Equal(t, StateFailed, bad.State())
	assert.Equal(t, jsonrpc.CodeAppValidationError, bad.Err().Code)
}

func TestBeginBatch_DiscardsPreviousCalls(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	dropped := c.Invoke(ctx, "echo", "dropped")
	c.BeginBatch()
	kept := c.Invoke(ctx, "echo", "kept")
	require.NoError(t, c.Execute(ctx))

	require.Len(t, tr.sent, 1)
	require.Len(t, tr.sent[0].payload.Requests, 1)
	assert.Equal(t, kept.ID(), tr.sent[0].payload.Requests[0].ID)
	assert.True(t, dropped.Pending())
	assert.True(t, kept.Success())
}

func TestExecute_NothingAccumulated(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	assert.NoError(t, c.Execute(ctx))
	c.BeginBatch()
	assert.NoError(t, c.Execute(ctx))
	assert.Empty(t, tr.sent)
}

func TestExecute_AfterBatchFallsBackToImmediate(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	c.Invoke(ctx, "ping", nil)
	require.NoError(t, c.Execute(ctx))

	res := c.Invoke(ctx, "ping", nil)
	assert.True(t, res.Success())
	require.Len(t, tr.sent, 2)
	assert.False(t, tr.sent[1].payload.Batch)
}

func TestCache_HitSkipsTransport(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, cache.NewGoCache(0))
	ctx := context.Background()

	first := c.WithCache(cache.DefaultTTL).Invoke(ctx, "divide", map[string]int{"a": 9, "b": 3})
	second := c.WithCache(cache.DefaultTTL).Invoke(ctx, "divide", map[string]int{"b": 3, "a": 9})

	require.Len(t, tr.sent, 1, "equivalent params share a fingerprint")
	assert.True(t, first.Success())
	assert.True(t, second.Success())
	assert.JSONEq(t, string(first.Data()), string(second.Data()))

	c.Invoke(ctx, "divide", map[string]int{"a": 9, "b": 3})
	assert.Len(t, tr.sent, 2, "calls without a cache directive always dispatch")
}

func TestCache_DirectiveAppliesToNextCallOnly(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, cache.NewGoCache(0))
	ctx := context.Background()

	c.BeginBatch()
	c.WithCache(cache.DefaultTTL)
	c.Invoke(ctx, "echo", 1)
	c.Invoke(ctx, "echo", 2)
	require.NoError(t, c.Execute(ctx))

	c.BeginBatch()
	c.WithCache(cache.DefaultTTL)
	cached := c.Invoke(ctx, "echo", 1)
	c.WithCache(cache.DefaultTTL)
	uncached := c.Invoke(ctx, "echo", 2)
	require.NoError(t, c.Execute(ctx))

	require.Len(t, tr.sent, 2)
	require.Len(t, tr.sent[1].payload.Requests, 1, "only the cache miss goes out")
	assert.Equal(t, uncached.ID(), tr.sent[1].payload.Requests[0].ID)
	assert.JSONEq(t, `1`, string(cached.Data()))
	assert.JSONEq(t, `2`, string(uncached.Data()))
}

func TestCache_AllHitsNoDispatch(t *testing.T) {
	tr := &fakeTransport{}
	mc, err := cache.NewMemoryCache(16, 0)
	require.NoError(t, err)
	defer mc.Close()
	c := newTestCoordinator(tr, mc)
	ctx := context.Background()

	c.WithCache(cache.DefaultTTL).Invoke(ctx, "ping", nil)
	require.Len(t, tr.sent, 1)

	c.BeginBatch()
	c.WithCache(cache.DefaultTTL)
	res := c.Invoke(ctx, "ping", nil)
	require.NoError(t, c.Execute(ctx))

	assert.Len(t, tr.sent, 1)
	assert.True(t, res.Success())
}

func TestCache_FailuresAreNotStored(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, cache.NewGoCache(0))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res := c.WithCache(cache.DefaultTTL).Invoke(ctx, "divide", map[string]int{"a": 1, "b": 0})
		assert.False(t, res.Success())
	}
	assert.Len(t, tr.sent, 2)
}

func TestCache_KeyedByService(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, cache.NewGoCache(0))
	ctx := context.Background()

	c.WithCache(cache.DefaultTTL).Invoke(ctx, "ping", nil)
	c.SelectService("signed").WithCache(cache.DefaultTTL).Invoke(ctx, "ping", nil)

	assert.Len(t, tr.sent, 2)
	assert.Equal(t, "signed", tr.sent[1].service)
	assert.Equal(t, "signed", c.Service())
}

func TestDispatch_UnresolvedHost(t *testing.T) {
	for _, service := range []string{"nohost", "unknown"} {
		t.Run(service, func(t *testing.T) {
			tr := &fakeTransport{}
			c := newTestCoordinator(tr, nil)
			ctx := context.Background()

			c.SelectService(service).BeginBatch()
			a := c.Invoke(ctx, "ping", nil)
			b := c.Invoke(ctx, "ping", nil)
			err := c.Execute(ctx)

			assert.True(t, errors.Is(err, ErrHostNotConfigured))
			assert.Empty(t, tr.sent)
			for _, res := range []*Result{a, b} {
				require.Equal(t, StateFailed, res.State())
				assert.Equal(t, jsonrpc.CodeInternalError, res.Err().Code)
			}
		})
	}
}

func TestDispatch_TransportError(t *testing.T) {
	tr := &fakeTransport{
		respond: func(transport.Payload) (*jsonrpc.Reply, error) {
			return nil, errors.New("connection refused")
		},
	}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	a := c.Invoke(ctx, "ping", nil)
	b := c.Invoke(ctx, "ping", nil)
	err := c.Execute(ctx)

	assert.True(t, errors.Is(err, ErrTransport))
	for _, res := range []*Result{a, b} {
		require.Equal(t, StateFailed, res.State())
		assert.Equal(t, jsonrpc.CodeInternalError, res.Err().Code)
		assert.Contains(t, res.Err().Message, "connection refused")
	}
}

func TestDispatch_TransportErrorInImmediateMode(t *testing.T) {
	tr := &fakeTransport{
		respond: func(transport.Payload) (*jsonrpc.Reply, error) {
			return nil, transport.ErrCircuitOpen
		},
	}
	c := newTestCoordinator(tr, nil)

	res := c.Invoke(context.Background(), "ping", nil)

	require.Equal(t, StateFailed, res.State())
	assert.Contains(t, res.Err().Message, transport.ErrCircuitOpen.Error())
}

func TestDispatch_EmptyReply(t *testing.T) {
	tr := &fakeTransport{
		respond: func(transport.Payload) (*jsonrpc.Reply, error) {
			return &jsonrpc.Reply{Batch: true, Invalid: []json.RawMessage{json.RawMessage(`42`)}}, nil
		},
	}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	res := c.Invoke(ctx, "ping", nil)
	err := c.Execute(ctx)

	assert.ErrorIs(t, err, ErrInvalidReply)
	require.Equal(t, StateFailed, res.State())
	assert.Equal(t, jsonrpc.CodeParseError, res.Err().Code)
	assert.Equal(t, "Parse error", res.Err().Message)
}

func TestDispatch_UncorrelatedReplies(t *testing.T) {
	tr := &fakeTransport{
		respond: func(payload transport.Payload) (*jsonrpc.Reply, error) {
			return &jsonrpc.Reply{
				Batch: true,
				Responses: []*jsonrpc.Response{
					jsonrpc.NewResponseRaw(jsonrpc.NewIDString("stranger"), json.RawMessage(`1`)),
					{JSONRPC: jsonrpc.Version, Result: json.RawMessage(`2`)},
					jsonrpc.NewResponseRaw(payload.Requests[0].ID, json.RawMessage(`3`)),
				},
				Invalid: []json.RawMessage{json.RawMessage(`"junk"`)},
			}, nil
		},
	}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	answered := c.Invoke(ctx, "echo", nil)
	unanswered := c.Invoke(ctx, "echo", nil)
	require.NoError(t, c.Execute(ctx))

	assert.True(t, answered.Success())
	assert.JSONEq(t, `3`, string(answered.Data()))

	require.Equal(t, StateFailed, unanswered.State(), "no slot stays pending after execute")
	assert.Equal(t, jsonrpc.CodeInternalError, unanswered.Err().Code)
}

func TestDispatch_ReplyWithoutIDForSingleCall(t *testing.T) {
	tr := &fakeTransport{
		respond: func(transport.Payload) (*jsonrpc.Reply, error) {
			return &jsonrpc.Reply{
				Responses: []*jsonrpc.Response{{JSONRPC: jsonrpc.Version, Result: json.RawMessage(`"pong"`)}},
			}, nil
		},
	}
	c := newTestCoordinator(tr, nil)

	res := c.Invoke(context.Background(), "ping", nil)

	assert.True(t, res.Success())
	assert.JSONEq(t, `"pong"`, string(res.Data()))
}

func TestDispatch_DuplicateReplyKeepsFirst(t *testing.T) {
	tr := &fakeTransport{
		respond: func(payload transport.Payload) (*jsonrpc.Reply, error) {
			id := payload.Requests[0].ID
			return &jsonrpc.Reply{
				Responses: []*jsonrpc.Response{
					jsonrpc.NewResponseRaw(id, json.RawMessage(`"first"`)),
					jsonrpc.NewErrorResponse(id, jsonrpc.NewError(jsonrpc.CodeInternalError, "")),
				},
			}, nil
		},
	}
	c := newTestCoordinator(tr, nil)

	res := c.Invoke(context.Background(), "ping", nil)

	assert.True(t, res.Success())
	assert.JSONEq(t, `"first"`, string(res.Data()))
}

func TestDispatch_DefaultErrorMessage(t *testing.T) {
	tr := &fakeTransport{
		respond: func(payload transport.Payload) (*jsonrpc.Reply, error) {
			return &jsonrpc.Reply{
				Responses: []*jsonrpc.Response{
					jsonrpc.NewErrorResponse(payload.Requests[0].ID, &jsonrpc.Error{Code: jsonrpc.CodeAppUnauthorized}),
				},
			}, nil
		},
	}
	c := newTestCoordinator(tr, nil)

	res := c.Invoke(context.Background(), "ping", nil)

	require.Equal(t, StateFailed, res.State())
	assert.Equal(t, jsonrpc.CodeAppUnauthorized, res.Err().Code)
	assert.Equal(t, "Unauthorized", res.Err().Message)
}

func TestInvoke_UnencodableParams(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	bad := c.Invoke(ctx, "echo", make(chan int))
	good := c.Invoke(ctx, "echo", "ok")
	require.NoError(t, c.Execute(ctx))

	require.Equal(t, StateFailed, bad.State())
	assert.Equal(t, jsonrpc.CodeInvalidParams, bad.Err().Code)
	require.Len(t, tr.sent, 1)
	assert.Len(t, tr.sent[0].payload.Requests, 1)
	assert.True(t, good.Success())
}

func TestHeaders_Defaults(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)

	c.Invoke(context.Background(), "ping", nil)

	require.Len(t, tr.sent, 1)
	headers := tr.sent[0].headers
	require.Len(t, headers, 3)
	assert.Equal(t, transport.Header{Name: "Content-Type", Value: ContentType}, headers[0])
	assert.Equal(t, transport.Header{Name: "X-Api-Key", Value: "secret"}, headers[1])
	assert.Equal(t, transport.Header{Name: "X-Tenant", Value: "acme"}, headers[2])
}

func TestHeaders_ExplicitHeadersWin(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)

	c.SetHeader("content-type", Literal("application/json-rpc")).
		SetHeader("X-Tenant", Literal("globex")).
		SetHeader("x-tenant", Literal("ignored"))
	c.Invoke(context.Background(), "ping", nil)

	headers := tr.sent[0].headers
	ct, ok := headerValue(headers, "Content-Type")
	require.True(t, ok)
	assert.Equal(t, "application/json-rpc", ct)

	tenant, _ := headerValue(headers, "X-Tenant")
	assert.Equal(t, "globex", tenant, "first registration wins over later ones and config")

	seen := make(map[string]int)
	for _, h := range headers {
		seen[h.Name]++
	}
	for name, n := range seen {
		assert.Equal(t, 1, n, "header %s sent more than once", name)
	}
}

func TestHeaders_ComputedOncePerDispatch(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, cache.NewGoCache(0))
	ctx := context.Background()

	c.WithCache(cache.DefaultTTL).Invoke(ctx, "echo", "warm")

	var calls int
	var seen []string
	c.SetHeader("X-Methods", Computed(func(payloads []*jsonrpc.Request) (string, error) {
		calls++
		seen = seen[:0]
		for _, p := range payloads {
			seen = append(seen, string(p.Params))
		}
		return fmt.Sprintf("%d", len(payloads)), nil
	}))

	c.BeginBatch()
	c.WithCache(cache.DefaultTTL)
	c.Invoke(ctx, "echo", "warm")
	c.Invoke(ctx, "echo", "a")
	c.Invoke(ctx, "echo", "b")
	require.NoError(t, c.Execute(ctx))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{`"a"`, `"b"`}, seen, "cached calls are not part of the payloads")
	v, _ := headerValue(tr.sent[1].headers, "X-Methods")
	assert.Equal(t, "2", v)
}

func TestHeaders_ComputeFailureAbortsCycle(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.SetHeader("X-Signature", Computed(func([]*jsonrpc.Request) (string, error) {
		return "", errors.New("key unavailable")
	}))
	c.BeginBatch()
	res := c.Invoke(ctx, "ping", nil)
	err := c.Execute(ctx)

	assert.ErrorIs(t, err, ErrHeaders)
	assert.Empty(t, tr.sent)
	require.Equal(t, StateFailed, res.State())
	assert.Equal(t, jsonrpc.CodeInternalError, res.Err().Code)
}

func TestHeaders_ConfiguredSignature(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)

	c.SelectService("signed").Invoke(context.Background(), "ping", nil)

	require.Len(t, tr.sent, 1)
	sig, ok := headerValue(tr.sent[0].headers, "X-Signature")
	require.True(t, ok)

	want, err := header.HMACSHA3([]byte("signing-key"))(tr.sent[0].payload.Requests)
	require.NoError(t, err)
	assert.Equal(t, want, sig)
	_, hasAuth := headerValue(tr.sent[0].headers, "X-Api-Key")
	assert.False(t, hasAuth, "auth header requires both name and key")
}

func TestClientLabel(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)
	c.Invoke(context.Background(), "ping", nil)
	assert.Equal(t, "tests", tr.sent[0].payload.Requests[0].Client)

	tr = &fakeTransport{}
	c = newTestCoordinator(tr, nil, WithClientLabel("cli"))
	c.Invoke(context.Background(), "ping", nil)
	assert.Equal(t, "cli", tr.sent[0].payload.Requests[0].Client)
}

func TestCorrelationIDsAreUnique(t *testing.T) {
	tr := &fakeTransport{}
	c := New(testConfig(), tr, nil, zerolog.Nop())
	ctx := context.Background()

	c.BeginBatch()
	ids := make(map[string]bool)
	for i := 0; i < 50; i++ {
		res := c.Invoke(ctx, "ping", nil)
		assert.False(t, ids[res.ID().Key()])
		ids[res.ID().Key()] = true
	}
	require.NoError(t, c.Execute(ctx))
}

func TestResult_DecodePending(t *testing.T) {
	res := newResult(jsonrpc.NewIDString("x"))
	var out string
	assert.ErrorIs(t, res.Decode(&out), ErrPending)
	assert.Equal(t, "pending", res.State().String())

	assert.True(t, res.fail(nil))
	assert.False(t, res.succeed(json.RawMessage(`1`)), "final results do not change")
	assert.Equal(t, jsonrpc.CodeInternalError, res.Err().Code)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	tr := &fakeTransport{}
	c := newTestCoordinator(tr, cache.NewGoCache(0), WithMetrics(collector))
	ctx := context.Background()

	c.WithCache(cache.DefaultTTL).Invoke(ctx, "ping", nil)
	c.BeginBatch()
	c.WithCache(cache.DefaultTTL)
	c.Invoke(ctx, "ping", nil)
	c.Invoke(ctx, "divide", map[string]int{"a": 1, "b": 0})
	require.NoError(t, c.Execute(ctx))

	assert.Equal(t, 1.0, counterValue(t, reg, "rpcclient_dispatches_total", map[string]string{"service": "calc", "mode": "single"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "rpcclient_dispatches_total", map[string]string{"service": "calc", "mode": "batch"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "rpcclient_cache_lookups_total", map[string]string{"service": "calc", "result": "hit"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "rpcclient_cache_lookups_total", map[string]string{"service": "calc", "result": "miss"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "rpcclient_results_total", map[string]string{"service": "calc", "outcome": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "rpcclient_results_total", map[string]string{"service": "calc", "outcome": "failure"}))
}

func TestDispatch_NilReply(t *testing.T) {
	tr := &fakeTransport{
		respond: func(transport.Payload) (*jsonrpc.Reply, error) {
			return nil, nil
		},
	}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	res := c.Invoke(ctx, "ping", nil)
	require.Equal(t, StateFailed, res.State())
	assert.Equal(t, jsonrpc.CodeParseError, res.Err().Code)

	c.BeginBatch()
	batched := c.Invoke(ctx, "ping", nil)
	assert.ErrorIs(t, c.Execute(ctx), ErrInvalidReply)
	assert.Equal(t, StateFailed, batched.State())
}

func TestBatch_CallsFollowTheirService(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, cache.NewGoCache(0))
	ctx := context.Background()

	c.BeginBatch()
	c.SelectService("calc")
	first := c.WithCache(cache.DefaultTTL).Invoke(ctx, "echo", []int{1})
	c.SelectService("signed")
	second := c.Invoke(ctx, "echo", []int{2})
	require.NoError(t, c.Execute(ctx))

	require.Len(t, tr.sent, 2, "one exchange per service")
	assert.Equal(t, "calc", tr.sent[0].service)
	assert.Equal(t, "calc", tr.sent[0].settings.Name)
	require.Len(t, tr.sent[0].payload.Requests, 1)
	assert.Equal(t, first.ID(), tr.sent[0].payload.Requests[0].ID)
	assert.Equal(t, "signed", tr.sent[1].service)
	require.Len(t, tr.sent[1].payload.Requests, 1)
	assert.Equal(t, second.ID(), tr.sent[1].payload.Requests[0].ID)

	cached := c.SelectService("calc").WithCache(cache.DefaultTTL).Invoke(ctx, "echo", []int{1})
	assert.Len(t, tr.sent, 2)
	assert.JSONEq(t, `[1]`, string(cached.Data()))
}

func TestBatch_UnresolvedServiceLeavesOthersAlone(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, nil)
	ctx := context.Background()

	c.BeginBatch()
	ok := c.Invoke(ctx, "ping", nil)
	c.SelectService("nohost")
	lost := c.Invoke(ctx, "ping", nil)
	err := c.Execute(ctx)

	assert.ErrorIs(t, err, ErrHostNotConfigured)
	require.Len(t, tr.sent, 1)
	assert.True(t, ok.Success())
	assert.Equal(t, StateFailed, lost.State())
}

func TestCache_ZeroTTLExpiresImmediately(t *testing.T) {
	tr := &fakeTransport{}
	mc, err := cache.NewMemoryCache(16, time.Hour)
	require.NoError(t, err)
	defer mc.Close()
	c := newTestCoordinator(tr, mc)
	ctx := context.Background()

	c.WithCache(0).Invoke(ctx, "ping", nil)
	res := c.WithCache(0).Invoke(ctx, "ping", nil)
	assert.True(t, res.Success())
	assert.Len(t, tr.sent, 2)

	c.WithCache(cache.NoExpiration).Invoke(ctx, "ping", nil)
	c.WithCache(cache.NoExpiration).Invoke(ctx, "ping", nil)
	assert.Len(t, tr.sent, 3)
}

func TestResult_DataIsACopy(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestCoordinator(tr, cache.NewGoCache(0))
	ctx := context.Background()

	res := c.WithCache(cache.DefaultTTL).Invoke(ctx, "echo", "abc")
	data := res.Data()
	data[1] = 'x'
	assert.JSONEq(t, `"abc"`, string(res.Data()))

	again := c.WithCache(cache.DefaultTTL).Invoke(ctx, "echo", "abc")
	assert.Len(t, tr.sent, 1)
	assert.JSONEq(t, `"abc"`, string(again.Data()))
}

func TestDispatch_ReplyWithoutResultOrError(t *testing.T) {
	tr := &fakeTransport{
		respond: func(payload transport.Payload) (*jsonrpc.Reply, error) {
			return &jsonrpc.Reply{
				Responses: []*jsonrpc.Response{{JSONRPC: jsonrpc.Version, ID: payload.Requests[0].ID}},
			}, nil
		},
	}
	var logs bytes.Buffer
	c := New(testConfig(), tr, nil, zerolog.New(&logs))

	res := c.Invoke(context.Background(), "ping", nil)

	assert.True(t, res.Success())
	assert.Equal(t, "null", string(res.Data()))
	assert.Contains(t, logs.String(), "neither result nor error")
}
