package batcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rpcclient/internal/config"
	"rpcclient/internal/header"
	"rpcclient/internal/jsonrpc"
	"rpcclient/internal/transport"
)

// Cycle-wide failures returned by Execute
var (
	ErrHostNotConfigured = errors.New("service host is not configured")
	ErrHeaders           = errors.New("failed to build headers")
	ErrTransport         = errors.New("transport failed")
	ErrInvalidReply      = errors.New("reply carries no response objects")
)

// dispatch runs one cycle over records. Calls are grouped by the service
// they were issued for and each group is sent in its own exchange.
func (c *Coordinator) dispatch(ctx context.Context, cyc *cycle, records []*CallRecord) error {
	var errs []error
	for _, group := range groupByService(records) {
		if err := c.dispatchService(ctx, cyc, group.service, group.records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type serviceGroup struct {
	service string
	records []*CallRecord
}

// groupByService splits records by service, keeping first-seen order
func groupByService(records []*CallRecord) []serviceGroup {
	var groups []serviceGroup
	index := make(map[string]int)
	for _, rec := range records {
		i, ok := index[rec.Service]
		if !ok {
			i = len(groups)
			index[rec.Service] = i
			groups = append(groups, serviceGroup{service: rec.Service})
		}
		groups[i].records = append(groups[i].records, rec)
	}
	return groups
}

// dispatchService runs the calls issued for one service
func (c *Coordinator) dispatchService(ctx context.Context, cyc *cycle, service string, records []*CallRecord) error {
	settings := c.cfg.Service(service)
	if !settings.HasHost() {
		err := fmt.Errorf("%w: service '%s'", ErrHostNotConfigured, service)
		n := c.failAll(cyc, records, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error()))
		c.logger.Error().
			Str("service", service).
			Int("calls", n).
			Msg("no host configured, cycle aborted")
		return err
	}

	outbound := c.resolveFromCache(cyc, records)
	if len(outbound) == 0 {
		return nil
	}

	payloads := requests(outbound)
	payload := transport.Payload{
		Requests: payloads,
		Batch:    cyc.batch,
	}

	headers, err := c.buildHeaders(settings, payloads)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrHeaders, err)
		c.failAll(cyc, outbound, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error()))
		c.logger.Error().Err(err).Str("service", service).Msg("cycle aborted")
		return err
	}

	c.logger.Debug().
		Str("service", service).
		Int("calls", len(outbound)).
		Bool("batch", payload.Batch).
		Msg("dispatching")

	start := time.Now()
	reply, err := c.transport.Send(ctx, service, settings, payload, headers)
	c.metrics.ObserveDispatch(service, payload.Batch, time.Since(start))

	if err != nil {
		c.failAll(cyc, outbound, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error()))
		logEvent := c.logger.Error().
			Err(err).
			Str("service", service).
			Int("calls", len(outbound))
		if body, mErr := payload.Bytes(); mErr == nil {
			logEvent = logEvent.RawJSON("payload", body)
		}
		logEvent.Msg("transport failed")
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if reply.IsEmpty() {
		invalid := 0
		if reply != nil {
			invalid = len(reply.Invalid)
		}
		c.failAll(cyc, outbound, jsonrpc.NewError(jsonrpc.CodeParseError, ""))
		c.logger.Error().
			Str("service", service).
			Int("calls", len(outbound)).
			Int("invalid", invalid).
			Msg("reply carries no response objects")
		return fmt.Errorf("%w: service '%s'", ErrInvalidReply, service)
	}

	c.distribute(cyc, service, outbound, reply)
	return nil
}

// resolveFromCache resolves cached calls and returns the ones to send
func (c *Coordinator) resolveFromCache(cyc *cycle, records []*CallRecord) []*CallRecord {
	outbound := make([]*CallRecord, 0, len(records))
	for _, rec := range records {
		if !rec.Cacheable {
			outbound = append(outbound, rec)
			continue
		}

		key := rec.Fingerprint()
		entry, ok := c.cache.Lookup(key)
		c.metrics.ObserveCache(rec.Service, ok)
		if !ok {
			outbound = append(outbound, rec)
			continue
		}

		res := cyc.result(rec)
		if entry.Success {
			c.succeed(rec, res, entry.Data)
		} else {
			c.fail(rec, res, entry.Error)
		}
		c.logger.Debug().
			Str("method", rec.Method).
			Str("cacheKey", key).
			Msg("cache hit")
	}
	return outbound
}

// distribute matches reply objects to results by id
func (c *Coordinator) distribute(cyc *cycle, service string, outbound []*CallRecord, reply *jsonrpc.Reply) {
	byID := make(map[string]*CallRecord, len(outbound))
	for _, rec := range outbound {
		byID[rec.ID.Key()] = rec
	}

	for _, raw := range reply.Invalid {
		c.logger.Warn().
			Str("service", service).
			Str("element", string(raw)).
			Msg("discarding malformed reply element")
	}

	for _, resp := range reply.Responses {
		rec := c.match(service, resp, byID, outbound)
		if rec == nil {
			continue
		}
		res := cyc.result(rec)

		if resp.HasError() {
			if !c.fail(rec, res, resp.Error.WithDefaultMessage()) {
				c.logDuplicate(rec)
			}
			continue
		}

		data := resp.Result
		if len(data) == 0 {
			c.logger.Warn().
				Str("service", service).
				Str("method", rec.Method).
				Str("id", rec.ID.String()).
				Msg("reply carries neither result nor error, reading it as null")
			data = json.RawMessage("null")
		}

		if !c.succeed(rec, res, data) {
			c.logDuplicate(rec)
			continue
		}

		if rec.Cacheable {
			c.cache.Store(rec.Fingerprint(), rec.CacheTTL, res.entry())
		}
	}

	for _, rec := range pending(cyc, outbound) {
		c.fail(rec, cyc.result(rec), jsonrpc.NewError(jsonrpc.CodeInternalError, "no reply received for request"))
		c.logger.Warn().
			Str("service", service).
			Str("method", rec.Method).
			Str("id", rec.ID.String()).
			Msg("call left unanswered by reply")
	}
}

// match finds the call a reply object belongs to. A reply without id is
// accepted only when exactly one call was sent.
func (c *Coordinator) match(service string, resp *jsonrpc.Response, byID map[string]*CallRecord, outbound []*CallRecord) *CallRecord {
	if !resp.HasID() {
		if len(outbound) == 1 {
			return outbound[0]
		}
		c.logger.Warn().
			Str("service", service).
			Int("calls", len(outbound)).
			Msg("dropping reply without id, cannot correlate")
		return nil
	}

	rec, ok := byID[resp.ID.Key()]
	if !ok {
		c.logger.Warn().
			Str("service", service).
			Str("id", resp.ID.String()).
			Msg("dropping reply with unknown id")
		return nil
	}
	return rec
}

func (c *Coordinator) logDuplicate(rec *CallRecord) {
	c.logger.Warn().
		Str("service", rec.Service).
		Str("method", rec.Method).
		Str("id", rec.ID.String()).
		Msg("ignoring duplicate reply")
}

// failAll fails every still-pending result among records
func (c *Coordinator) failAll(cyc *cycle, records []*CallRecord, err *jsonrpc.Error) int {
	n := 0
	for _, rec := range records {
		if c.fail(rec, cyc.result(rec), err) {
			n++
		}
	}
	return n
}

// buildHeaders assembles the outbound headers: explicit headers first,
// then content type, auth, and the service's configured headers, each
// only if its name is not present yet
func (c *Coordinator) buildHeaders(settings *config.ServiceConfig, payloads []*jsonrpc.Request) ([]transport.Header, error) {
	set := newHeaderSet()
	for _, h := range c.headers.entries {
		set.add(h.name, h.value)
	}

	set.add("Content-Type", Literal(ContentType))
	if settings.HasAuth() {
		set.add(settings.AuthHeader, Literal(settings.AuthKey))
	}

	configured, err := c.configuredHeaders(settings)
	if err != nil {
		return nil, err
	}
	for _, h := range configured {
		set.add(h.name, h.value)
	}

	return set.evaluate(payloads)
}

// configuredHeaders builds a service's configured headers once
func (c *Coordinator) configuredHeaders(settings *config.ServiceConfig) ([]namedHeader, error) {
	if built, ok := c.computed[settings.Name]; ok {
		return built, nil
	}

	built := make([]namedHeader, 0, len(settings.Headers))
	for _, hc := range settings.Headers {
		fn, err := header.FromConfig(hc, settings, c.logger)
		if err != nil {
			return nil, err
		}
		value := Literal(hc.Value)
		if fn != nil {
			value = Computed(fn)
		}
		built = append(built, namedHeader{name: hc.Name, value: value})
	}

	c.computed[settings.Name] = built
	return built, nil
}
