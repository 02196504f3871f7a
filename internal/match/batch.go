package match

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/firm-crd-matching/internal/debug"
)

// progressEvery controls how often batch progress is logged.
const progressEvery = 1000

// BatchStats tracks batch processing statistics
type BatchStats struct {
	Total       int            `json:"total"`
	Matched     int            `json:"matched"`
	Unmatched   int            `json:"unmatched"`
	NeedsReview int            `json:"needs_review"`
	Ambiguous   int            `json:"ambiguous"`
	Divergences int            `json:"divergences"`
	Failed      int            `json:"failed"`
	ByMethod    map[string]int `json:"by_method"`
}

// BatchResult holds one outcome per input, in input order.
type BatchResult struct {
	Outcomes []Outcome     `json:"outcomes"`
	Stats    BatchStats    `json:"stats"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Results returns the match results in input order.
func (b *BatchResult) Results() []MatchResult {
	out := make([]MatchResult, len(b.Outcomes))
	for i, o := range b.Outcomes {
		out[i] = o.Result
	}
	return out
}

// Divergences returns every stability divergence recorded in the batch.
func (b *BatchResult) Divergences() []Divergence {
	var out []Divergence
	for _, o := range b.Outcomes {
		if o.Divergence != nil {
			out = append(out, *o.Divergence)
		}
	}
	return out
}

// MatchAll resolves every input on a bounded pool of workers. The output
// has exactly one outcome per input in the same order. A record that
// panics is reported as unmatched and needing review; the only error
// returned is cancellation of ctx.
func (e *Engine) MatchAll(ctx context.Context, localDebug bool, inputs []InputRecord) (*BatchResult, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	start := time.Now()
	outcomes := make([]Outcome, len(inputs))

	workers := e.config.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var done atomic.Int64
	for i := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = e.safeMatch(localDebug, inputs[i])
			if n := done.Add(1); n%progressEvery == 0 {
				debug.Logger().Info("batch progress",
					zap.Int64("processed", n),
					zap.Int("total", len(inputs)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("match batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("match batch: %w", err)
	}

	result := &BatchResult{
		Outcomes: outcomes,
		Stats:    calculateBatchStats(outcomes),
		Elapsed:  time.Since(start),
	}

	debug.Logger().Info("batch complete",
		zap.Int("total", result.Stats.Total),
		zap.Int("matched", result.Stats.Matched),
		zap.Int("unmatched", result.Stats.Unmatched),
		zap.Int("needs_review", result.Stats.NeedsReview),
		zap.Int("divergences", result.Stats.Divergences),
		zap.Int("failed", result.Stats.Failed),
		zap.Duration("elapsed", result.Elapsed))
	e.observer.ObserveBatch(result.Stats, result.Elapsed)

	return result, nil
}

// safeMatch isolates a single record: a panic while matching becomes an
// unmatched result that still passes through the stability policy.
func (e *Engine) safeMatch(localDebug bool, rec InputRecord) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			debug.Logger().Error("record failed during matching",
				zap.String("raw_name", rec.RawName),
				zap.Any("panic", r))
			out = e.finish(localDebug, rec, unmatched(rec.RawName), true)
		}
	}()
	return e.Match(localDebug, rec)
}

func calculateBatchStats(outcomes []Outcome) BatchStats {
	stats := BatchStats{Total: len(outcomes), ByMethod: make(map[string]int)}

	for _, o := range outcomes {
		r := o.Result
		if r.Matched() {
			stats.Matched++
		} else {
			stats.Unmatched++
		}
		if r.NeedsReview {
			stats.NeedsReview++
		}
		if r.Ambiguous {
			stats.Ambiguous++
		}
		if o.Divergence != nil {
			stats.Divergences++
		}
		if o.Failed {
			stats.Failed++
		}
		stats.ByMethod[r.Method.String()]++
	}

	return stats
}
