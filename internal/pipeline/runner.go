package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunFunc processes one ticker.
type RunFunc func(ctx context.Context, ticker string) (*Result, error)

// Outcome is one ticker's entry in a batch summary.
type Outcome struct {
	Ticker string
	Result *Result
	Err    error
}

// Summary collects a batch's outcomes in input order.
type Summary struct {
	RunID    string
	Outcomes []Outcome
	Elapsed  time.Duration
}

// Failed returns the tickers that ended in error.
func (s Summary) Failed() []string {
	var out []string
	for _, o := range s.Outcomes {
		if o.Err != nil {
			out = append(out, o.Ticker)
		}
	}
	return out
}

// ParseTickers splits a comma-separated list, upper-cases, and drops blanks
// and repeats.
func ParseTickers(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(s, ",") {
		t := strings.ToUpper(strings.TrimSpace(part))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// RunBatch runs every ticker with at most concurrency in flight. A ticker's
// failure never stops the others. One [OK] or [FAIL] line per ticker is
// written to out in input order, and the returned error names the failed
// tickers.
func RunBatch(ctx context.Context, tickers []string, concurrency int, run RunFunc, out io.Writer) (Summary, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	sum := Summary{RunID: uuid.NewString(), Outcomes: make([]Outcome, len(tickers))}
	log := zap.L().With(zap.String("run_id", sum.RunID))
	log.Info("pipeline: batch starting", zap.Int("tickers", len(tickers)), zap.Int("concurrency", concurrency))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, ticker := range tickers {
		g.Go(func() error {
			res, err := run(gctx, ticker)
			sum.Outcomes[i] = Outcome{Ticker: ticker, Result: res, Err: err}
			if err != nil {
				log.Error("pipeline: ticker failed", zap.String("ticker", ticker), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	sum.Elapsed = time.Since(start)

	for _, o := range sum.Outcomes {
		fmt.Fprintln(out, outcomeLine(o))
	}

	failed := sum.Failed()
	log.Info("pipeline: batch complete",
		zap.Int("succeeded", len(tickers)-len(failed)),
		zap.Int("failed", len(failed)),
		zap.Duration("elapsed", sum.Elapsed),
	)
	if len(failed) > 0 {
		return sum, eris.Errorf("pipeline: %d of %d tickers failed: %s",
			len(failed), len(tickers), strings.Join(failed, ", "))
	}
	return sum, nil
}

func outcomeLine(o Outcome) string {
	if o.Err != nil {
		return fmt.Sprintf("[FAIL] %s: %v", o.Ticker, o.Err)
	}
	r := o.Result
	if r == nil {
		return fmt.Sprintf("[OK] %s", o.Ticker)
	}
	line := fmt.Sprintf("[OK] %s: %d records", o.Ticker, r.Records)
	if r.Stats.Attempted > 0 {
		line += fmt.Sprintf(" (inserted=%d updated=%d unchanged=%d)",
			r.Stats.Inserted, r.Stats.Updated, r.Stats.Unchanged)
	}
	if r.Skipped > 0 {
		line += fmt.Sprintf(", %d skipped", r.Skipped)
	}
	return line
}
