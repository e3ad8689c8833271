package importer

import (
	"context"
	"fmt"
	"time"
)

// Batch pacing. Fixed constants, not derived from row count; the inter-chunk
// delay bounds write throughput against the store.
const (
	DefaultChunkSize   = 20
	DefaultChunkDelay  = 250 * time.Millisecond
	DefaultUpdateDelay = 100 * time.Millisecond
	WipeChunkSize      = 10
	WipeChunkDelay     = 200 * time.Millisecond
)

// Runner executes a reconciliation plan against the record store: creates in
// fixed-size bulk chunks, updates strictly one at a time, fixed delay after
// every unit. A unit's failure is logged and counted, never fatal to the run.
// Cancellation is cooperative, checked between units only; work in flight
// always completes or fails on its own.
type Runner struct {
	store       RecordStore
	entity      string
	chunkSize   int
	chunkDelay  time.Duration
	updateDelay time.Duration
	timings     *Timings
}

// NewRunner creates a runner with the default pacing constants.
// If timings is nil, stage timing collection is disabled.
func NewRunner(store RecordStore, entity string, timings *Timings) *Runner {
	return &Runner{
		store:       store,
		entity:      entity,
		chunkSize:   DefaultChunkSize,
		chunkDelay:  DefaultChunkDelay,
		updateDelay: DefaultUpdateDelay,
		timings:     timings,
	}
}

// Run drives both phases of the plan and returns the final summary. Creates
// are fully attempted before the first update. Counters only ever grow;
// committed work is never rolled back, including after cancellation.
func (r *Runner) Run(ctx context.Context, plan *Plan, rep Reporter) Summary {
	var sum Summary
	total := plan.Size()
	done := 0

	// Cancellation must never abort a unit already handed to the store: the
	// store may commit it regardless, and the summary has to count what was
	// committed. Store calls run detached; only the between-unit checks and
	// the pacing sleeps observe ctx.
	callCtx := context.WithoutCancel(ctx)

	rep.Event(SeverityInfo, fmt.Sprintf("starting import: %d to create, %d to update",
		len(plan.ToCreate), len(plan.ToUpdate)))

	for start := 0; start < len(plan.ToCreate); start += r.chunkSize {
		if ctx.Err() != nil {
			rep.Event(SeverityInfo, "import cancelled, stopping before next chunk")
			return r.finish(sum, rep)
		}

		end := start + r.chunkSize
		if end > len(plan.ToCreate) {
			end = len(plan.ToCreate)
		}
		chunk := plan.ToCreate[start:end]

		items := make([]map[string]any, len(chunk))
		for i, c := range chunk {
			items[i] = c.Data
		}

		callStart := time.Now()
		_, err := r.store.BulkCreate(callCtx, r.entity, items)
		r.timings.ObserveStoreCall(time.Since(callStart))
		if err != nil {
			sum.Failed += len(chunk)
			rep.Event(SeverityError, fmt.Sprintf("create chunk of %d failed: %v", len(chunk), err))
		} else {
			sum.Created += len(chunk)
			rep.Event(SeveritySuccess, fmt.Sprintf("created %d work orders", len(chunk)))
		}

		done += len(chunk)
		rep.Progress(done, total)
		sleep(ctx, r.chunkDelay)
	}

	for _, item := range plan.ToUpdate {
		if ctx.Err() != nil {
			rep.Event(SeverityInfo, "import cancelled, stopping before next update")
			return r.finish(sum, rep)
		}

		callStart := time.Now()
		_, err := r.store.Update(callCtx, r.entity, item.ID, item.Data)
		r.timings.ObserveStoreCall(time.Since(callStart))
		if err != nil {
			sum.Failed++
			rep.Event(SeverityError, fmt.Sprintf("update of record %s failed: %v", item.ID, err))
		} else {
			sum.Updated++
		}

		done++
		rep.Progress(done, total)
		sleep(ctx, r.updateDelay)
	}

	return r.finish(sum, rep)
}

func (r *Runner) finish(sum Summary, rep Reporter) Summary {
	rep.Event(SeverityInfo, fmt.Sprintf("import finished: %d created, %d updated, %d failed",
		sum.Created, sum.Updated, sum.Failed))
	return sum
}

// Wipe deletes every record of the runner's entity type, in small chunks with
// a delay after each chunk. Best effort: a single failed delete is logged and
// skipped. Returns deleted and failed counts.
func (r *Runner) Wipe(ctx context.Context, rep Reporter) (int, int, error) {
	records, err := r.store.List(ctx, r.entity)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list records for wipe: %w", err)
	}
	rep.Event(SeverityInfo, fmt.Sprintf("wiping %d records", len(records)))

	// Deletes detach from ctx for the same reason store calls in Run do
	callCtx := context.WithoutCancel(ctx)

	deleted, failed := 0, 0
	for start := 0; start < len(records); start += WipeChunkSize {
		if ctx.Err() != nil {
			break
		}

		end := start + WipeChunkSize
		if end > len(records) {
			end = len(records)
		}
		for _, rec := range records[start:end] {
			if err := r.store.Delete(callCtx, r.entity, rec.ID); err != nil {
				failed++
				rep.Event(SeverityError, fmt.Sprintf("delete of record %s failed: %v", rec.ID, err))
				continue
			}
			deleted++
		}
		sleep(ctx, WipeChunkDelay)
	}

	rep.Event(SeverityInfo, fmt.Sprintf("wipe finished: %d deleted, %d failed", deleted, failed))
	return deleted, failed, nil
}

// sleep waits for d or until ctx is cancelled, whichever comes first
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
