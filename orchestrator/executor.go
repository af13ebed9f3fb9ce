package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lamwimham/neuroflow/core"
)

// executeBatch dispatches a whole batch of requested calls, possibly in
// parallel up to the configured fan-out cap. Siblings have no completion
// ordering guarantee; results are buffered into invocation order so the
// conversation always reads "request, then each outcome" deterministically.
func (o *Orchestrator) executeBatch(ctx context.Context, calls []core.FunctionCall) []core.CapabilityOutcome {
	n := len(calls)
	if n == 0 {
		return nil
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		return []core.CapabilityOutcome{o.dispatchCall(ctx, calls[0])}
	}

	maxPar := o.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]core.CapabilityOutcome, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		if ctx.Err() != nil { // pre-check cancellation
			inv := invocationFromCall(calls[i], o.opts.InvocationTimeout)
			results[i] = core.FailedOutcome(inv, ctx.Err(), 0)
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = o.dispatchCall(ctx, fc)
		}(i, calls[i])
	}
	wg.Wait()

	o.opts.Logger.Debug(
		"orchestrator.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

// dispatchCall converts one model-requested function call into an invocation
// and routes it through the catalog. Every failure mode (unparseable
// arguments, unknown capability, missing executor, execution error) lands in
// a failed outcome; nothing here can abort the turn loop.
func (o *Orchestrator) dispatchCall(ctx context.Context, fc core.FunctionCall) core.CapabilityOutcome {
	inv := invocationFromCall(fc, o.opts.InvocationTimeout)

	if fc.Arguments != "" {
		var args map[string]any
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return core.FailedOutcome(inv, &core.CapabilityError{
				Capability: fc.Name,
				Message:    "arguments are not a JSON object: " + err.Error(),
				Code:       core.CodeValidationError,
			}, 0)
		}
		inv.Arguments = args
	}

	outcome, err := o.catalog.Dispatch(ctx, inv)
	if err != nil {
		// Configuration errors (unknown capability, unbound backend) are
		// still just failed outcomes from the loop's point of view.
		o.opts.Logger.Warn("orchestrator.dispatch.rejected", "capability", fc.Name, "error", err.Error())
		return core.FailedOutcome(inv, err, 0)
	}
	return outcome
}

// invocationFromCall keeps the model-assigned call id so outcomes correlate
// with the originating FunctionCall in provider message formats.
func invocationFromCall(fc core.FunctionCall, timeout time.Duration) core.CapabilityInvocation {
	id := fc.ID
	if id == "" {
		id = uuid.NewString()
	}
	return core.CapabilityInvocation{
		ID:        id,
		Name:      fc.Name,
		Arguments: map[string]any{},
		Timeout:   timeout,
	}
}
