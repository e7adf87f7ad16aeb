package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dukex/escalate/pkg/protocol"
)

// DefaultMaxInline is the longest wait served by sleeping the execution's goroutine.
const DefaultMaxInline = time.Minute

// Wait pauses for duration milliseconds. Longer waits than MaxInline, or
// mode "suspend", pause the execution instead; it is resumed externally.
// An inline wait ends early when ctx is done. The executor calls handlers
// with a context that is never cancelled.
type Wait struct {
	MaxInline time.Duration
}

func (w Wait) Handle(ctx context.Context, params map[string]string, _ map[string]any) (any, map[string]any, error) {
	raw, err := required(params, "duration")
	if err != nil {
		return nil, nil, err
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		return nil, nil, fmt.Errorf("%w: duration %q", ErrInvalidParam, raw)
	}

	duration := time.Duration(ms) * time.Millisecond
	output := map[string]any{"duration_ms": ms}

	maxInline := w.MaxInline
	if maxInline <= 0 {
		maxInline = DefaultMaxInline
	}

	if params["mode"] == "suspend" || duration > maxInline {
		output["suspended"] = true

		return output, nil, protocol.ErrSuspend
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-timer.C:
	}

	return output, nil, nil
}
