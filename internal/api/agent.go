package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"resumelift/internal/errors"
	"resumelift/internal/stream"
	"resumelift/internal/types"
)

// Optimize runs one optimization to completion and returns the final
// result. Run lists are invalidated: a new run exists now.
func (c *Client) Optimize(ctx context.Context, req types.OptimizeRequest) (types.OptimizationResult, error) {
	if err := c.requireAuth(); err != nil {
		return types.OptimizationResult{}, err
	}

	var result types.OptimizationResult
	if err := c.do(ctx, http.MethodPost, "/api/agent/run", req, &result); err != nil {
		return types.OptimizationResult{}, err
	}
	c.runsCache.InvalidateAll()
	return result, nil
}

// OptimizeStream runs one optimization over the event stream. Every
// decoded event is forwarded to sink in arrival order; the terminal
// completed payload becomes the returned result. Run lists are
// invalidated only when the stream finishes successfully.
func (c *Client) OptimizeStream(ctx context.Context, req types.OptimizeRequest, sink stream.Sink) (types.OptimizationResult, error) {
	if err := c.requireAuth(); err != nil {
		return types.OptimizationResult{}, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return types.OptimizationResult{}, errors.NewInternalError(errors.ErrCodeInvalidRequest,
			"Cannot encode request body", err)
	}

	resp, err := c.send(ctx, c.streamc, http.MethodPost, "/api/agent/run/stream", payload, "application/json")
	if err != nil {
		return types.OptimizationResult{}, err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := stream.Collect(ctx, resp.Body, func(ev types.StreamEvent) {
		c.metrics.RecordStreamEvent(ctx, ev.Event)
		if sink != nil {
			sink(ev)
		}
	})
	if err != nil {
		return types.OptimizationResult{}, err
	}

	var result types.OptimizationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return types.OptimizationResult{}, errors.NewStreamError(errors.ErrCodeStreamError,
			"Final result payload is not a valid optimization result", err)
	}

	c.runsCache.InvalidateAll()
	return result, nil
}

// Runs lists recent optimization runs, cached per limit value.
func (c *Client) Runs(ctx context.Context, limit int, force bool) ([]types.Run, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = c.cfg.App.DefaultRunLimit
	}

	key := strconv.Itoa(limit)
	recordLookup(ctx, c.metrics, "runs", force, c.runsCache, key)
	return c.runsCache.Read(ctx, key, c.cfg.Cache.RunsTTL,
		func(ctx context.Context) ([]types.Run, error) {
			var runs []types.Run
			path := fmt.Sprintf("/api/agent/runs?limit=%d", limit)
			err := c.do(ctx, http.MethodGet, path, nil, &runs)
			return runs, err
		}, force)
}

// CachedRuns returns the cached run list for limit without fetching.
func (c *Client) CachedRuns(limit int) ([]types.Run, bool) {
	if limit <= 0 {
		limit = c.cfg.App.DefaultRunLimit
	}
	return c.runsCache.Peek(strconv.Itoa(limit))
}

// Run fetches one run by ID. Individual runs are immutable once
// finished, so no cache fronts this call.
func (c *Client) Run(ctx context.Context, runID string) (types.Run, error) {
	if err := c.requireAuth(); err != nil {
		return types.Run{}, err
	}

	var run types.Run
	path := "/api/agent/runs/" + url.PathEscape(runID)
	if err := c.do(ctx, http.MethodGet, path, nil, &run); err != nil {
		return types.Run{}, err
	}
	return run, nil
}

// DeleteRun removes one run. Every cached run list may have contained
// it, so all of them are invalidated.
func (c *Client) DeleteRun(ctx context.Context, runID string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}

	path := "/api/agent/runs/" + url.PathEscape(runID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	c.runsCache.InvalidateAll()
	return nil
}

// ClearRunHistory deletes all recorded runs and reports how many were
// removed.
func (c *Client) ClearRunHistory(ctx context.Context) (types.DeleteSummary, error) {
	if err := c.requireAuth(); err != nil {
		return types.DeleteSummary{}, err
	}

	var summary types.DeleteSummary
	if err := c.do(ctx, http.MethodDelete, "/api/agent/runs", nil, &summary); err != nil {
		return types.DeleteSummary{}, err
	}
	c.runsCache.InvalidateAll()
	return summary, nil
}
